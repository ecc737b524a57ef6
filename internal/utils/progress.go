package utils

import (
	"fmt"
	"os"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// labelWidth is the column reserved for the bundle or entry name.
const labelWidth = 20

// Progress counts bundles indexed or entries extracted on a stderr bar.
// Without a terminal, or when disabled, it only keeps the count.
type Progress struct {
	container *mpb.Progress
	bar       *mpb.Bar
	label     string
	current   int
}

// NewProgress starts a bar expecting total items.
func NewProgress(total int, enabled bool) *Progress {
	p := &Progress{}
	if !enabled || !term.IsTerminal(int(os.Stderr.Fd())) {
		return p
	}

	fmt.Fprintln(os.Stderr)
	p.container = mpb.New(
		mpb.WithOutput(os.Stderr),
		mpb.WithWidth(64),
		mpb.WithRefreshRate(100*time.Millisecond),
	)
	p.bar = p.container.New(int64(total),
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string { return shorten(p.label, labelWidth) },
				decor.WC{W: labelWidth, C: decor.DindentRight}),
			decor.Name("  "),
			decor.CountersNoUnit("%d/%d", decor.WC{C: decor.DindentRight}),
		),
		mpb.AppendDecorators(decor.Percentage()),
	)
	return p
}

func shorten(s string, width int) string {
	if len(s) <= width {
		return s
	}
	return s[:width-2] + ".."
}

// Update moves the bar to current and labels it with the item in hand.
func (p *Progress) Update(current int, label string) {
	p.current = current
	if p.bar == nil {
		return
	}
	p.label = label
	p.bar.SetCurrent(int64(current))
}

// Increment advances the bar by one.
func (p *Progress) Increment(label string) {
	p.Update(p.current+1, label)
}

// Current returns the last reported count.
func (p *Progress) Current() int {
	return p.current
}

// Finish marks the bar complete at the current count, so bundles skipped
// on error still close it.
func (p *Progress) Finish() {
	if p.container == nil {
		return
	}
	p.bar.SetTotal(int64(p.current), true)
	p.container.Wait()
	fmt.Fprintln(os.Stderr)
}

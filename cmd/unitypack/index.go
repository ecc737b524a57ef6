package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"github.com/jchantrell/unitypack"
	"github.com/jchantrell/unitypack/internal/database"
	"github.com/jchantrell/unitypack/internal/utils"
	"github.com/spf13/cobra"
)

// IndexStats summarises one index run
type IndexStats struct {
	StartTime      time.Time
	EndTime        time.Time
	TotalBundles   int
	IndexedBundles int
	Assets         int64
	Objects        int64
	Bytes          int64
	LoadErrors     int
	DatabaseErrors int
	NewestEngine   string
}

var indexCmd = &cobra.Command{
	Use:   "index <bundle>...",
	Short: "Record bundles, assets and objects in a SQLite database",
	Long: `Index loads each bundle and writes its directory and object tables into
the index database. Indexing a bundle again replaces its earlier rows.

Bundles that fail to load are reported and skipped; the command fails if none
could be indexed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := newLibrary(cfg)
		if err != nil {
			return err
		}

		db, err := database.NewDatabase(database.DefaultDatabaseOptions(cfg.Database))
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		showProgress := !(noProgress || cfg.LogFormat == "json" || cfg.LogLevel == "debug")
		stats, err := runIndex(cmd.Context(), db, lib, args, showProgress)
		if err != nil {
			return err
		}

		printIndexSummary(cmd.OutOrStdout(), stats)
		if stats.IndexedBundles == 0 {
			return fmt.Errorf("no bundles indexed")
		}
		return nil
	},
}

func runIndex(ctx context.Context, db *database.Database, lib *unitypack.Library, paths []string, showProgress bool) (*IndexStats, error) {
	stats := &IndexStats{
		StartTime:    time.Now(),
		TotalBundles: len(paths),
	}

	if err := database.NewDDLManager(db).CreateSchema(ctx, nil); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	inserter := database.NewBulkInserter(db, database.DefaultBulkInsertOptions())
	progress := utils.NewProgress(len(paths), showProgress)

	for _, path := range paths {
		select {
		case <-ctx.Done():
			slog.Warn("Indexing canceled")
			return nil, ctx.Err()
		default:
		}

		progress.Increment(filepath.Base(path))

		rec, err := bundleRecord(lib, path)
		if err != nil {
			slog.Error("Failed to load bundle", "path", path, "kind", unitypack.KindOf(err), "error", err)
			stats.LoadErrors++
			continue
		}

		if _, err := inserter.InsertBundle(ctx, rec); err != nil {
			slog.Error("Failed to index bundle", "path", path, "error", err)
			stats.DatabaseErrors++
			continue
		}

		stats.IndexedBundles++
		stats.Bytes += rec.Size
		if newer(rec.EngineVersion, stats.NewestEngine) {
			stats.NewestEngine = rec.EngineVersion
		}
		for _, a := range rec.Assets {
			stats.Assets++
			stats.Objects += int64(len(a.Objects))
		}
	}

	progress.Finish()
	stats.EndTime = time.Now()

	return stats, nil
}

// bundleRecord loads path and copies out everything the index stores
func bundleRecord(lib *unitypack.Library, path string) (*database.BundleRecord, error) {
	b, err := lib.Load(path)
	if err != nil {
		return nil, err
	}
	defer lib.Destroy(b)

	info, err := lib.BundleInfo(b)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	rec := &database.BundleRecord{
		Path:          abs,
		Signature:     info.Signature,
		Version:       info.Version,
		PlayerVersion: info.PlayerVersion,
		EngineVersion: info.EngineVersion,
		Compression:   info.Compression,
		Size:          info.Size,
	}

	for i := 0; i < info.Entries; i++ {
		a, err := lib.GetAsset(b, i)
		if err != nil {
			return nil, err
		}
		ai, err := lib.AssetInfo(a)
		if err != nil {
			return nil, err
		}

		ar := database.AssetRecord{
			Index:        i,
			Name:         ai.Name,
			Resource:     ai.Resource,
			Format:       ai.Format,
			UnityVersion: ai.UnityVersion,
			Platform:     ai.Platform,
			BigEndian:    ai.BigEndian,
			Size:         ai.Size,
		}
		if v, err := utils.ParseVersionInfo(ai.UnityVersion); err == nil {
			ar.UnityMajor = sql.NullInt32{Int32: int32(v.Major), Valid: true}
			ar.UnityMinor = sql.NullInt32{Int32: int32(v.Minor), Valid: true}
		}

		objs, err := lib.Objects(a, b)
		if err != nil {
			return nil, err
		}
		for _, o := range objs.Items() {
			t, err := lib.ObjectType(o, a, b)
			if err != nil {
				lib.FreeObjectArray(objs)
				return nil, err
			}
			ar.Objects = append(ar.Objects, database.ObjectRecord{
				PathID:   o.PathID,
				ClassID:  o.ClassID,
				TypeName: t.String(),
				Offset:   o.Offset,
				Size:     o.Size,
			})
			lib.FreeString(t)
		}
		lib.FreeObjectArray(objs)

		rec.Assets = append(rec.Assets, ar)
	}

	return rec, nil
}

// newer reports whether engine version v sorts after current. Versions
// that do not parse never win.
func newer(v, current string) bool {
	if current == "" {
		_, err := utils.ParseVersionInfo(v)
		return err == nil
	}
	cmp, err := utils.CompareVersions(v, current)
	return err == nil && cmp > 0
}

func printIndexSummary(out io.Writer, stats *IndexStats) {
	duration := stats.EndTime.Sub(stats.StartTime)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	fmt.Fprintf(out, "Bundles indexed: %d/%d\n", stats.IndexedBundles, stats.TotalBundles)
	fmt.Fprintf(out, "Assets: %s\n", utils.Number(stats.Assets))
	fmt.Fprintf(out, "Objects: %s\n", utils.Number(stats.Objects))
	fmt.Fprintf(out, "Bundle bytes: %s\n", utils.Bytes(stats.Bytes))
	if stats.NewestEngine != "" {
		fmt.Fprintf(out, "Newest engine: %s\n", stats.NewestEngine)
	}
	fmt.Fprintf(out, "Load errors: %d\n", stats.LoadErrors)
	fmt.Fprintf(out, "Database errors: %d\n", stats.DatabaseErrors)
	fmt.Fprintf(out, "Duration: %s\n", utils.Duration(duration))
	fmt.Fprintf(out, "Indexing rate: %s objects/sec\n", utils.Rate(stats.Objects, duration))
	fmt.Fprintf(out, "Memory usage: %s\n", utils.Bytes(int64(memStats.Alloc)))
	fmt.Fprintln(out, "Try running: unitypack query --tables")
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

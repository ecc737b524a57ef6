package config

import (
	"fmt"
	"strings"
)

// validateTypeFilter ensures a type name is usable as an exact-match filter
func validateTypeFilter(name string) error {
	if name == "" {
		return fmt.Errorf("type name cannot be empty")
	}
	if strings.IndexByte(name, 0) >= 0 {
		return fmt.Errorf("type name %q contains a NUL byte", name)
	}
	return nil
}

// validateOodleMethod accepts 0 (disabled) or a block compression id that
// Unity does not use itself.
func validateOodleMethod(method int) error {
	if method == 0 {
		return nil
	}
	if method < 5 || method > 63 {
		return fmt.Errorf("method id %d outside 5-63", method)
	}
	return nil
}

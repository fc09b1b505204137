package config

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads the file or directory at path and returns the overrides it
	// declares.
	Load(ctx context.Context, path string) (Patch, error)
}

// Resolve layers the patches over Default and validates the result.
func Resolve(patches ...Patch) (*Model, error) {
	m := Default()
	for _, p := range patches {
		m.Apply(p)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseDuration accepts Go duration strings ("90s", "1m30s") and bare
// integers, which are read as seconds.
func ParseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// OptionalDuration parses s when it is set. field names the setting in the
// returned error.
func OptionalDuration(field string, s *string) (*time.Duration, error) {
	if s == nil {
		return nil, nil
	}
	d, err := ParseDuration(*s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return &d, nil
}

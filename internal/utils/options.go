package util

import (
	"fmt"
)

const (
	StoreFile   = "file"
	StoreBolt   = "bolt"
	StoreMemory = "memory"

	PolicyLRU   = "lru"
	PolicyClock = "clock"
)

// Options represents database configuration options
type Options struct {
	Path         string `toml:"path" mapstructure:"path"`
	StoreType    string `toml:"store" mapstructure:"store"`
	PageLimit    int    `toml:"page-limit" mapstructure:"page-limit"`
	Policy       string `toml:"policy" mapstructure:"policy"`
	InitialPages int    `toml:"initial-pages" mapstructure:"initial-pages"`
	SyncWrites   bool   `toml:"sync-writes" mapstructure:"sync-writes"`
	LogLevel     string `toml:"log-level" mapstructure:"log-level"`
}

// DefaultOptions returns default database options
func DefaultOptions() Options {
	return Options{
		Path:         "arraydb.dat",
		StoreType:    StoreFile,
		PageLimit:    1000, // 4MB default buffer pool
		Policy:       PolicyLRU,
		InitialPages: 16,
		SyncWrites:   false,
		LogLevel:     "info",
	}
}

// Validate checks option values before any component is built.
func (o Options) Validate() error {
	if o.PageLimit <= 0 {
		return fmt.Errorf("page-limit %d: %w", o.PageLimit, ErrInvalidPoolSize)
	}
	if o.InitialPages <= 0 {
		return fmt.Errorf("initial-pages %d: %w", o.InitialPages, ErrInvalidInitialPages)
	}
	switch o.Policy {
	case PolicyLRU, PolicyClock:
	default:
		return fmt.Errorf("policy %q: %w", o.Policy, ErrUnknownPolicy)
	}
	switch o.StoreType {
	case StoreMemory:
	case StoreFile, StoreBolt:
		if o.Path == "" {
			return fmt.Errorf("store %q requires a path", o.StoreType)
		}
	default:
		return fmt.Errorf("store %q: %w", o.StoreType, ErrUnknownStore)
	}
	return nil
}

// Package kv keeps JSON values in named buckets, either in memory or in the
// kv_store table.
package kv

import "time"

// StoreOptions contains optional parameters for Store operations.
type StoreOptions struct {
	TTL time.Duration // zero means the value never expires
}

// Bucket is a namespace of JSON values.
type Bucket interface {
	Name() string

	// IsPersistent reports whether values survive the process.
	IsPersistent() bool

	Store(key string, value any, opts *StoreOptions) error

	// Load decodes the value under key into dst. Missing and expired keys
	// report false without an error.
	Load(key string, dst any) (bool, error)

	// Delete reports whether the key was present.
	Delete(key string) (bool, error)

	// Keys lists live keys in ascending order.
	Keys() ([]string, error)

	Clear() error
}

// deadline turns a TTL into an absolute expiry; zero means none.
func deadline(opts *StoreOptions, now time.Time) time.Time {
	if opts == nil || opts.TTL <= 0 {
		return time.Time{}
	}
	return now.Add(opts.TTL)
}

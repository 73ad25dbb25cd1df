// Package kv defines the local key-value store used by the client for
// offline state, and its implementations.
package kv

import "errors"

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("kv: key not found")

// Store is a string-keyed blob store. Each Set replaces the whole value.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

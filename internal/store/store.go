// Package store provides the durable key/value persistence used by the
// trial ledger. Implementations report absent values through an ok result
// rather than an error; callers treat absent as the zero default. Each
// store instance is scoped to a named partition and keys from one
// partition are never visible in another.
package store

import (
	"strconv"
	"time"
)

// DefaultPartition is used when the host does not name a partition.
const DefaultPartition = "default"

// Store is the persistence contract for ledger facts. All methods are safe
// for concurrent use.
type Store interface {
	GetBool(key string) (bool, bool)
	GetFloat(key string) (float64, bool)
	GetTime(key string) (time.Time, bool)
	GetString(key string) (string, bool)

	SetBool(key string, value bool)
	SetFloat(key string, value float64)
	SetTime(key string, value time.Time)
	SetString(key string, value string)

	Remove(key string)
}

// Values are persisted as strings in every backend so that the encodings
// stay identical across file, memory and redis stores.

func encodeBool(v bool) string {
	return strconv.FormatBool(v)
}

func decodeBool(s string) (bool, bool) {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, false
	}
	return v, true
}

func encodeFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func decodeFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func encodeTime(v time.Time) string {
	return v.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) (time.Time, bool) {
	v, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return v, true
}

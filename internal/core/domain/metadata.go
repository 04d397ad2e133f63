package domain

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Metadata keeps insertion order so that serialized results list generation
// artifacts in the order they were produced.
type Metadata = orderedmap.OrderedMap[string, any]

const (
	MetaFallback = "fallback"
	MetaError    = "error"
)

func NewMetadata() *Metadata {
	return orderedmap.New[string, any]()
}

// MetadataOf builds metadata from alternating key/value pairs. Keys that are
// not strings are skipped.
func MetadataOf(kv ...any) *Metadata {
	m := NewMetadata()
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		m.Set(key, kv[i+1])
	}
	return m
}

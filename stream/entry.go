package stream

import "maps"

// Entry is one training record flowing through a stream. The multiplexing core only
// ever writes to Metadata (tags); every other field is filled by the Source that
// produced the entry and passed through untouched.
type Entry struct {
	ID           string
	AudioPath    string
	Duration     float64
	SamplingRate int
	Text         string
	Language     string

	// Audio holds raw payload bytes when the entry was read from an archive shard.
	// It is never decoded here.
	Audio []byte

	// Origin is the name of the source stream the entry was read from.
	Origin string

	Metadata map[string]any
}

// Set stores value under key in the entry's metadata, replacing any previous value.
func (e *Entry) Set(key string, value any) {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
}

// Get returns the metadata value for key.
func (e *Entry) Get(key string) (any, bool) {
	v, ok := e.Metadata[key]
	return v, ok
}

// Clone returns a copy of e whose Metadata can be modified independently.
// Audio bytes are shared.
func (e *Entry) Clone() *Entry {
	c := *e
	if e.Metadata != nil {
		c.Metadata = maps.Clone(e.Metadata)
	}
	return &c
}

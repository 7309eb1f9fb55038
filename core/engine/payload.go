package engine

import (
	"encoding/json"
	"time"
)

// Payload is a destination property payload built from typed optional
// fields. A field exists only after an explicit Set call, so serialization
// emits exactly the populated fields and nothing else. This replaces the
// "dict with keys present only if not null" construction with an explicit
// contract.
type Payload struct {
	fields map[string]any
	order  []string
}

// NewPayload creates an empty payload.
func NewPayload() *Payload {
	return &Payload{fields: make(map[string]any)}
}

// Set stores an arbitrary value under name. Setting the same name twice
// overwrites the value but keeps its original position.
func (p *Payload) Set(name string, value any) *Payload {
	if _, ok := p.fields[name]; !ok {
		p.order = append(p.order, name)
	}
	p.fields[name] = value
	return p
}

// SetString stores a string field.
func (p *Payload) SetString(name, value string) *Payload {
	return p.Set(name, value)
}

// SetInt stores an integer field.
func (p *Payload) SetInt(name string, value int64) *Payload {
	return p.Set(name, value)
}

// SetFloat stores a float field.
func (p *Payload) SetFloat(name string, value float64) *Payload {
	return p.Set(name, value)
}

// SetBool stores a boolean field.
func (p *Payload) SetBool(name string, value bool) *Payload {
	return p.Set(name, value)
}

// SetTime stores a timestamp field in RFC 3339.
func (p *Payload) SetTime(name string, value time.Time) *Payload {
	return p.Set(name, value.Format(time.RFC3339))
}

// SetStringPtr stores a string field when value is non-nil and leaves the
// payload untouched otherwise.
func (p *Payload) SetStringPtr(name string, value *string) *Payload {
	if value == nil {
		return p
	}
	return p.Set(name, *value)
}

// SetTimePtr stores a timestamp field when value is non-nil.
func (p *Payload) SetTimePtr(name string, value *time.Time) *Payload {
	if value == nil {
		return p
	}
	return p.SetTime(name, *value)
}

// Get returns the value stored under name.
func (p *Payload) Get(name string) (any, bool) {
	v, ok := p.fields[name]
	return v, ok
}

// Has reports whether a field was populated.
func (p *Payload) Has(name string) bool {
	_, ok := p.fields[name]
	return ok
}

// Len returns the number of populated fields.
func (p *Payload) Len() int {
	return len(p.fields)
}

// Fields returns the populated field names in insertion order. The result is
// also what gets recorded as the mapping's synced field set.
func (p *Payload) Fields() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Map returns a copy of the populated fields.
func (p *Payload) Map() map[string]any {
	out := make(map[string]any, len(p.fields))
	for k, v := range p.fields {
		out[k] = v
	}
	return out
}

// MarshalJSON serializes only the populated fields.
func (p *Payload) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.fields)
}

package models

import (
	"bytes"
	"encoding/json"
)

// Header is a single header line, name as supplied (no canonicalization).
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered header mapping. Names are case-sensitive keys: "Accept" and "accept"
// are different entries, the way they would be as keys of a plain object.
type Headers []Header

// Get returns the value stored under the exact name.
func (h Headers) Get(name string) (string, bool) {
	for _, header := range h {
		if header.Name == name {
			return header.Value, true
		}
	}
	return "", false
}

// Set overwrites the value of an existing entry in place, keeping its position, or appends
// a new entry.
func (h *Headers) Set(name, value string) {
	for i := range *h {
		if (*h)[i].Name == name {
			(*h)[i].Value = value
			return
		}
	}
	*h = append(*h, Header{Name: name, Value: value})
}

// Merge returns a copy of h with every entry of other assigned onto it. On a name collision the
// value from other wins while the position of the first occurrence is kept.
func (h Headers) Merge(other Headers) Headers {
	merged := h.Clone()
	for _, header := range other {
		merged.Set(header.Name, header.Value)
	}
	return merged
}

func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	copy(out, h)
	return out
}

// Names returns header names in order.
func (h Headers) Names() []string {
	names := make([]string, len(h))
	for i, header := range h {
		names[i] = header.Name
	}
	return names
}

// Map flattens the headers into a map, dropping order.
func (h Headers) Map() map[string]string {
	m := make(map[string]string, len(h))
	for _, header := range h {
		m[header.Name] = header.Value
	}
	return m
}

// MarshalJSON encodes the headers as a JSON object with keys in insertion order.
func (h Headers) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, header := range h {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(header.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(header.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

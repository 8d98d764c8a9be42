package session

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Session is a per-browser key-value bag. Values are kept as raw JSON so the
// bag round-trips through the cookie without knowing the value types.
// A Session belongs to a single request and is not safe for concurrent use.
type Session struct {
	values   map[string]json.RawMessage
	modified bool
}

// New returns an empty session.
func New() *Session {
	return &Session{values: make(map[string]json.RawMessage)}
}

func fromValues(values map[string]json.RawMessage) *Session {
	if values == nil {
		values = make(map[string]json.RawMessage)
	}
	return &Session{values: values}
}

// Has reports whether key is present.
func (s *Session) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

// Get decodes the value stored under key into v. It returns false when the
// key is absent.
func (s *Session) Get(key string, v any) (bool, error) {
	raw, ok := s.values[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("decoding session key %q: %w", key, err)
	}
	return true, nil
}

// GetString returns a string value; non-string values are treated as absent.
func (s *Session) GetString(key string) (string, bool) {
	var value string
	ok, err := s.Get(key, &value)
	if !ok || err != nil {
		return "", false
	}
	return value, true
}

// Set stores v under key.
func (s *Session) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding session key %q: %w", key, err)
	}
	s.values[key] = raw
	s.modified = true
	return nil
}

// Delete removes key and reports whether it was present.
func (s *Session) Delete(key string) bool {
	if _, ok := s.values[key]; !ok {
		return false
	}
	delete(s.values, key)
	s.modified = true
	return true
}

// Pop decodes the value under key into v and removes it.
func (s *Session) Pop(key string, v any) (bool, error) {
	ok, err := s.Get(key, v)
	if ok {
		s.Delete(key)
	}
	return ok, err
}

// Clear removes every key.
func (s *Session) Clear() {
	if len(s.values) == 0 {
		return
	}
	clear(s.values)
	s.modified = true
}

// Keys returns the stored keys in sorted order.
func (s *Session) Keys() []string {
	return slices.Sorted(maps.Keys(s.values))
}

// Len returns the number of stored keys.
func (s *Session) Len() int {
	return len(s.values)
}

// Modified reports whether the bag changed since it was loaded.
func (s *Session) Modified() bool {
	return s.modified
}

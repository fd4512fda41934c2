package realtime

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Response is a decoded realtime record.
type Response interface {
	Metadata() *Meta
}

// Meta is embedded by every response.
type Meta struct {
	TRID       string
	Key        string
	ReceivedAt time.Time
	Raw        []string // 원본 필드 (StoreRaw 설정 시)
}

// Metadata implements Response.
func (m *Meta) Metadata() *Meta {
	return m
}

// Transform converts one raw token into a typed value.
type Transform func(raw string) (any, error)

// Field is one positional field of a record.
type Field struct {
	Name      string
	Transform Transform
}

// Schema describes how to decode one TR id.
type Schema struct {
	Fields   []Field
	KeyField string // field holding the TR key
	Build    func(rec Record) Response
}

// Record gives Build typed access to one decoded record.
type Record struct {
	values map[string]any
}

// String returns a text field.
func (r Record) String(name string) string {
	v, _ := r.values[name].(string)
	return v
}

// Decimal returns a decimal field.
func (r Record) Decimal(name string) decimal.Decimal {
	v, _ := r.values[name].(decimal.Decimal)
	return v
}

// Int returns an integer field.
func (r Record) Int(name string) int64 {
	v, _ := r.values[name].(int64)
	return v
}

// Bool returns a flag field.
func (r Record) Bool(name string) bool {
	v, _ := r.values[name].(bool)
	return v
}

// Clock returns a time-of-day field.
func (r Record) Clock(name string) TimeOfDay {
	v, _ := r.values[name].(TimeOfDay)
	return v
}

// Text keeps the token as is.
func Text(raw string) (any, error) {
	return raw, nil
}

// Decimal parses a decimal; an empty token is zero.
func Decimal(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

// Int parses a base-10 integer; an empty token is zero.
func Int(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return int64(0), nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

// Flag parses Y/N (or 1/0); an empty token is false.
func Flag(raw string) (any, error) {
	switch strings.TrimSpace(raw) {
	case "Y", "y", "1":
		return true, nil
	case "N", "n", "0", "":
		return false, nil
	}
	return nil, fmt.Errorf("invalid flag %q", raw)
}

// TimeOfDay is an HHMMSS wall-clock time.
type TimeOfDay struct {
	Hour, Minute, Second int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// MarshalText encodes the time as HH:MM:SS.
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Seconds returns the seconds since midnight.
func (t TimeOfDay) Seconds() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

// Clock parses HHMMSS; an empty token is midnight.
func Clock(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return TimeOfDay{}, nil
	}
	if len(raw) != 6 {
		return nil, fmt.Errorf("invalid time %q", raw)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q", raw)
	}
	t := TimeOfDay{Hour: n / 10000, Minute: n / 100 % 100, Second: n % 100}
	if t.Hour > 23 || t.Minute > 59 || t.Second > 59 {
		return nil, fmt.Errorf("invalid time %q", raw)
	}
	return t, nil
}

// Registry maps TR ids to schemas. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]Schema
	now     func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		schemas: make(map[string]Schema),
		now:     time.Now,
	}
}

// Register adds or replaces the schema for the given TR ids.
func (r *Registry) Register(s Schema, ids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		r.schemas[id] = s
	}
}

// Lookup returns the schema for id.
func (r *Registry) Lookup(id string) (Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.schemas[id]
	return s, ok
}

// IDs returns the registered TR ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.schemas))
	for id := range r.schemas {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Decode splits payload on '^' and decodes every record in it. The token
// count must be a multiple of the schema's field count.
func (r *Registry) Decode(id, payload string, storeRaw bool) ([]Response, error) {
	s, ok := r.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoDecoder, id)
	}
	if len(s.Fields) == 0 {
		return nil, fmt.Errorf("%w: %s declares no fields", ErrNoDecoder, id)
	}

	tokens := strings.Split(payload, "^")
	if len(tokens)%len(s.Fields) != 0 {
		return nil, fmt.Errorf("%w: %s has %d tokens for %d fields", ErrFieldCount, id, len(tokens), len(s.Fields))
	}

	received := r.now()
	out := make([]Response, 0, len(tokens)/len(s.Fields))
	for i := 0; i < len(tokens); i += len(s.Fields) {
		record := tokens[i : i+len(s.Fields)]

		values := make(map[string]any, len(s.Fields))
		for j, f := range s.Fields {
			transform := f.Transform
			if transform == nil {
				transform = Text
			}
			v, err := transform(record[j])
			if err != nil {
				return nil, fmt.Errorf("%s field %s: %w", id, f.Name, err)
			}
			values[f.Name] = v
		}

		rec := Record{values: values}
		resp := s.Build(rec)
		meta := resp.Metadata()
		meta.TRID = id
		meta.Key = rec.String(s.KeyField)
		meta.ReceivedAt = received
		if storeRaw {
			meta.Raw = slices.Clone(record)
		}
		out = append(out, resp)
	}
	return out, nil
}

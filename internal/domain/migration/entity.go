package migration

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Entity is a WeClapp record as stored in the source cache.
// Field values follow JSON decoding with json.Number for numbers.
type Entity map[string]any

// Predicate selects entities from the source cache. A nil predicate matches everything.
type Predicate func(Entity) bool

// FieldEquals matches entities whose field renders to value.
func FieldEquals(field, value string) Predicate {
	return func(e Entity) bool {
		return e.String(field) == value
	}
}

// ID returns the WeClapp id of the entity.
func (e Entity) ID() string {
	return e.String("id")
}

// Has reports whether the field is present and not null.
func (e Entity) Has(key string) bool {
	v, ok := e[key]
	return ok && v != nil
}

// String returns the field rendered as a string, or "" when absent.
func (e Entity) String(key string) string {
	return stringify(e[key])
}

// Bool returns the field as a boolean.
func (e Entity) Bool(key string) bool {
	switch v := e[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

// Int64 returns the field as an integer.
func (e Entity) Int64(key string) (int64, bool) {
	switch v := e[key].(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		f, err := v.Float64()
		return int64(f), err == nil
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// List returns the nested entity list stored under key.
func (e Entity) List(key string) []Entity {
	switch v := e[key].(type) {
	case []Entity:
		return v
	case []map[string]any:
		out := make([]Entity, 0, len(v))
		for _, item := range v {
			out = append(out, Entity(item))
		}
		return out
	case []any:
		out := make([]Entity, 0, len(v))
		for _, item := range v {
			switch m := item.(type) {
			case map[string]any:
				out = append(out, Entity(m))
			case Entity:
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

// Strings returns a list of labels. Objects contribute their "name" field.
func (e Entity) Strings(key string) []string {
	var raw []any
	switch v := e[key].(type) {
	case []string:
		return v
	case []any:
		raw = v
	default:
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		switch t := item.(type) {
		case map[string]any:
			if s := stringify(t["name"]); s != "" {
				out = append(out, s)
			}
		default:
			if s := stringify(t); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// Clone returns a shallow copy that can be modified without touching the cached record.
func (e Entity) Clone() Entity {
	out := make(Entity, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

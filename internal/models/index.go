package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FieldType is the closed set of value types an index field can hold
type FieldType int

const (
	FieldTypeString FieldType = iota
	FieldTypeInt64
	FieldTypeDateTimeOffset
	FieldTypeStringSet
)

func (t FieldType) String() string {
	switch t {
	case FieldTypeString:
		return "String"
	case FieldTypeInt64:
		return "Int64"
	case FieldTypeDateTimeOffset:
		return "DateTimeOffset"
	case FieldTypeStringSet:
		return "Collection"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// Field describes one field of an index structure
type Field struct {
	Name       string
	Type       FieldType
	Key        bool
	Searchable bool
	Filterable bool
	Sortable   bool
}

// IndexStructure is the ordered set of fields for an index generation.
// It must not be modified once a generation has been created with it.
type IndexStructure []Field

// KeyField returns the single field marked as key.
func (s IndexStructure) KeyField(indexName string) (Field, error) {
	var key *Field
	for i := range s {
		if !s[i].Key {
			continue
		}
		if key != nil {
			return Field{}, &ConfigurationError{
				Index:  indexName,
				Reason: fmt.Sprintf("more than one field set as the key (%s, %s)", key.Name, s[i].Name),
			}
		}
		key = &s[i]
	}
	if key == nil {
		return Field{}, &ConfigurationError{Index: indexName, Reason: "no field set as the key"}
	}
	return *key, nil
}

// Field looks up a field by name.
func (s IndexStructure) Field(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// SearchableFields returns the names of all searchable fields, in declaration order.
func (s IndexStructure) SearchableFields() []string {
	names := make([]string, 0)
	for _, f := range s {
		if f.Searchable {
			names = append(names, f.Name)
		}
	}
	return names
}

// Document is a flattened, search-ready record keyed by field name
type Document map[string]any

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	c := make(Document, len(d))
	for k, v := range d {
		c[k] = v
	}
	return c
}

// String returns the value of a field as a string, or "" if absent.
func (d Document) String(field string) string {
	switch v := d[field].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int64 returns the value of a field as an int64, or 0 if absent or not numeric.
func (d Document) Int64(field string) int64 {
	n, _ := ToInt64(d[field])
	return n
}

// StringSet returns the value of a field as a string slice.
func (d Document) StringSet(field string) []string {
	return ToStringSet(d[field])
}

// ToInt64 converts any integer-like value (including numeric strings) to int64.
func ToInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float32:
		return floatToInt64(float64(v))
	case float64:
		return floatToInt64(v)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func floatToInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// ToTime converts a time.Time, *time.Time or RFC3339 string to a UTC time.
func ToTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), !v.IsZero()
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return v.UTC(), !v.IsZero()
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	default:
		return time.Time{}, false
	}
}

// ToStringSet converts a slice-like value to a string slice. A scalar becomes a
// single-element set and nil becomes an empty set.
func ToStringSet(value any) []string {
	switch v := value.(type) {
	case nil:
		return []string{}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		return []string{v}
	default:
		return []string{fmt.Sprint(v)}
	}
}

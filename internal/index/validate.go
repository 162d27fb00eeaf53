package index

import (
	"strings"
	"time"

	"github.com/BradenHooton/directory-search/internal/models"
)

type fieldRule func(value any, present bool) string

// rules holds the one validation rule per field type. An empty string means valid.
var rules = map[models.FieldType]fieldRule{
	models.FieldTypeString: func(value any, present bool) string {
		return ""
	},
	models.FieldTypeStringSet: func(value any, present bool) string {
		if !present || value == nil {
			return "does not have a value for a collection field; collection fields must have a value"
		}
		switch value.(type) {
		case []string, []any:
			return ""
		default:
			return "has a non-collection value for a collection field"
		}
	},
	models.FieldTypeInt64: func(value any, present bool) string {
		if isEmpty(value) {
			return ""
		}
		if _, ok := models.ToInt64(value); !ok {
			return "has a value that is not a valid Int64"
		}
		return ""
	},
	models.FieldTypeDateTimeOffset: func(value any, present bool) string {
		if isEmpty(value) {
			return ""
		}
		if _, ok := models.ToTime(value); !ok {
			return "has a value that is not a valid date"
		}
		return ""
	},
}

// Validate checks every document against the structure and returns the first
// violation as a *models.ValidationError. Documents are not modified.
func Validate(indexName string, documents []models.Document, structure models.IndexStructure) error {
	for _, doc := range documents {
		key := keyOf(doc, structure)
		for _, field := range structure {
			value, present := doc[field.Name]

			if field.Key && isEmpty(value) {
				return &models.ValidationError{
					Index:       indexName,
					Field:       field.Name,
					DocumentKey: key,
					Reason:      "does not have key field " + field.Name,
					Document:    doc,
				}
			}

			rule, ok := rules[field.Type]
			if !ok {
				return &models.ConfigurationError{Index: indexName, Reason: "field " + field.Name + " has unknown type " + field.Type.String()}
			}
			if reason := rule(value, present); reason != "" {
				return &models.ValidationError{
					Index:       indexName,
					Field:       field.Name,
					DocumentKey: key,
					Reason:      reason,
					Document:    doc,
				}
			}
		}
	}
	return nil
}

func keyOf(doc models.Document, structure models.IndexStructure) string {
	for _, f := range structure {
		if f.Key {
			return doc.String(f.Name)
		}
	}
	return ""
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case time.Time:
		return v.IsZero()
	case *time.Time:
		return v == nil || v.IsZero()
	default:
		return false
	}
}

// normalize returns a copy of doc with Int64 and date values converted to their
// canonical Go types and collections converted to []string.
func normalize(doc models.Document, structure models.IndexStructure) models.Document {
	out := doc.Clone()
	for _, field := range structure {
		value, present := out[field.Name]
		if !present {
			continue
		}
		switch field.Type {
		case models.FieldTypeInt64:
			if isEmpty(value) {
				delete(out, field.Name)
				continue
			}
			n, _ := models.ToInt64(value)
			out[field.Name] = n
		case models.FieldTypeDateTimeOffset:
			if isEmpty(value) {
				delete(out, field.Name)
				continue
			}
			t, _ := models.ToTime(value)
			out[field.Name] = t
		case models.FieldTypeStringSet:
			out[field.Name] = models.ToStringSet(value)
		}
	}
	return out
}

// coerce converts a document read back from an engine into the types normalize produces.
func coerce(doc models.Document, structure models.IndexStructure) models.Document {
	for _, field := range structure {
		value, present := doc[field.Name]
		switch field.Type {
		case models.FieldTypeStringSet:
			doc[field.Name] = models.ToStringSet(value)
		case models.FieldTypeInt64:
			if !present || value == nil {
				continue
			}
			if n, ok := models.ToInt64(value); ok {
				doc[field.Name] = n
			}
		case models.FieldTypeDateTimeOffset:
			if !present || value == nil {
				continue
			}
			if t, ok := models.ToTime(value); ok {
				doc[field.Name] = t
			}
		case models.FieldTypeString:
			if present && value != nil {
				if _, ok := value.(string); !ok {
					doc[field.Name] = doc.String(field.Name)
				}
			}
		}
	}
	return doc
}

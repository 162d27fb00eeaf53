package index

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BradenHooton/directory-search/internal/models"
)

// LastLoginField accepts the special "0" (never) and "1" (ever) filter encodings
const LastLoginField = "lastLogin"

// Operator is the comparison a Clause applies
type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpGreaterOrEqual
	OpAnyOf
)

// Clause is a single comparison against one field
type Clause struct {
	Field  string
	Type   models.FieldType
	Op     Operator
	Int    int64
	Str    string
	Values []string // OpAnyOf only
}

// Condition is a set of clauses of which any may match
type Condition []Clause

// Predicate is a set of conditions that must all match
type Predicate []Condition

// Filter restricts a search to documents whose field holds one of the values
type Filter struct {
	Field  string   `json:"field"`
	Values []string `json:"values"`
}

// BuildPredicate translates filters into a predicate, branching on the
// declared type of each filtered field.
func BuildPredicate(indexName string, structure models.IndexStructure, filters []Filter) (Predicate, error) {
	if len(filters) == 0 {
		return nil, nil
	}

	predicate := make(Predicate, 0, len(filters))
	for _, f := range filters {
		if f.Field == "" {
			return nil, badRequest("all filters must have a field")
		}
		if f.Values == nil {
			return nil, badRequest("all filters must have values (missing on %s)", f.Field)
		}
		field, ok := structure.Field(f.Field)
		if !ok {
			return nil, badRequest("field %s is not in the index structure for %s", f.Field, indexName)
		}

		cond, err := buildCondition(field, f.Values)
		if err != nil {
			return nil, err
		}
		predicate = append(predicate, cond)
	}
	return predicate, nil
}

func buildCondition(field models.Field, values []string) (Condition, error) {
	if field.Type == models.FieldTypeStringSet {
		return Condition{{Field: field.Name, Type: field.Type, Op: OpAnyOf, Values: values}}, nil
	}

	cond := make(Condition, 0, len(values))
	switch {
	case field.Name == LastLoginField:
		for _, v := range values {
			switch v {
			case "0":
				cond = append(cond, Clause{Field: field.Name, Type: models.FieldTypeInt64, Op: OpEqual, Int: 0})
			case "1":
				cond = append(cond, Clause{Field: field.Name, Type: models.FieldTypeInt64, Op: OpNotEqual, Int: 0})
			default:
				n, err := strconv.ParseInt(v, 10, 64)
				if err != nil {
					return nil, badRequest("filter value %q for %s is not a valid timestamp", v, field.Name)
				}
				cond = append(cond, Clause{Field: field.Name, Type: models.FieldTypeInt64, Op: OpGreaterOrEqual, Int: n})
			}
		}
	case field.Type == models.FieldTypeInt64:
		for _, v := range values {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, badRequest("filter value %q for Int64 field %s is not a valid Int64", v, field.Name)
			}
			cond = append(cond, Clause{Field: field.Name, Type: field.Type, Op: OpEqual, Int: n})
		}
	default:
		for _, v := range values {
			cond = append(cond, Clause{Field: field.Name, Type: field.Type, Op: OpEqual, Str: v})
		}
	}
	return cond, nil
}

// String renders the predicate as an OData filter expression.
func (p Predicate) String() string {
	parts := make([]string, 0, len(p))
	for _, cond := range p {
		if s := cond.String(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " and ")
}

func (c Condition) String() string {
	if len(c) == 0 {
		return ""
	}
	parts := make([]string, len(c))
	for i, clause := range c {
		parts[i] = clause.String()
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " or ") + ")"
}

func (c Clause) String() string {
	switch c.Op {
	case OpAnyOf:
		return fmt.Sprintf("%s/any(x: search.in(x, '%s', ','))", c.Field, escapeLiteral(strings.Join(c.Values, ",")))
	case OpNotEqual:
		return fmt.Sprintf("%s ne %s", c.Field, c.literal())
	case OpGreaterOrEqual:
		return fmt.Sprintf("%s ge %s", c.Field, c.literal())
	default:
		return fmt.Sprintf("%s eq %s", c.Field, c.literal())
	}
}

func (c Clause) literal() string {
	if c.Type == models.FieldTypeInt64 {
		return strconv.FormatInt(c.Int, 10)
	}
	return "'" + escapeLiteral(c.Str) + "'"
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// Matches evaluates the predicate against a normalized document. Engines without
// a native filter language use it to post-filter.
func (p Predicate) Matches(doc models.Document) bool {
	for _, cond := range p {
		if !cond.matches(doc) {
			return false
		}
	}
	return true
}

func (c Condition) matches(doc models.Document) bool {
	for _, clause := range c {
		if clause.matches(doc) {
			return true
		}
	}
	return false
}

func (c Clause) matches(doc models.Document) bool {
	switch c.Op {
	case OpAnyOf:
		for _, have := range models.ToStringSet(doc[c.Field]) {
			for _, want := range c.Values {
				if have == want {
					return true
				}
			}
		}
		return false
	}

	if c.Type == models.FieldTypeInt64 {
		n, _ := models.ToInt64(doc[c.Field])
		switch c.Op {
		case OpNotEqual:
			return n != c.Int
		case OpGreaterOrEqual:
			return n >= c.Int
		default:
			return n == c.Int
		}
	}

	s := doc.String(c.Field)
	if c.Op == OpNotEqual {
		return s != c.Str
	}
	return s == c.Str
}

// badRequest reports a search the caller asked for wrongly. It matches
// models.ErrBadRequest.
func badRequest(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), models.ErrBadRequest)
}

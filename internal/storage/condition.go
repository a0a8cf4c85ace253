package storage

import (
	"fmt"
	"strings"
)

// Cond is a single filter condition on one attribute. Build values with
// Equals or OneOf; the zero value is not usable.
//
// All condition values are bound as SQL parameters, including the OneOf
// set. Attribute names are identifiers and are only sanitized by stripping
// statement separators; they must not come from untrusted input.
type Cond struct {
	attr  string
	args  []any
	oneOf bool
}

// Equals matches records whose attribute equals v.
func Equals(attr string, v any) Cond {
	return Cond{attr: cleanIdent(attr), args: []any{v}}
}

// OneOf matches records whose attribute equals any element of vs.
// An empty set matches no records.
func OneOf(attr string, vs ...any) Cond {
	return Cond{attr: cleanIdent(attr), args: vs, oneOf: true}
}

// whereClause renders conds into a " WHERE ..." fragment plus the ordered
// argument list. An empty conds list yields an empty fragment (match all).
// Referencing the same attribute twice is an error.
func whereClause(conds []Cond) (string, []any, error) {
	if len(conds) == 0 {
		return "", nil, nil
	}

	seen := make(map[string]struct{}, len(conds))
	parts := make([]string, 0, len(conds))
	args := make([]any, 0, len(conds))

	for _, c := range conds {
		if c.attr == "" {
			return "", nil, fmt.Errorf("condition with empty attribute")
		}
		if _, dup := seen[c.attr]; dup {
			return "", nil, fmt.Errorf("condition repeats attribute %q", c.attr)
		}
		seen[c.attr] = struct{}{}

		if !c.oneOf {
			parts = append(parts, c.attr+" = ?")
			args = append(args, c.args...)
			continue
		}
		if len(c.args) == 0 {
			// IN () is not valid SQL; an empty set can match nothing.
			parts = append(parts, "1 = 0")
			continue
		}
		ph := strings.Repeat("?, ", len(c.args))
		parts = append(parts, c.attr+" IN ("+ph[:len(ph)-2]+")")
		args = append(args, c.args...)
	}

	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

// cleanIdent strips statement separators from an identifier. This is not an
// allowlist; identifiers are trusted by contract.
func cleanIdent(s string) string {
	return strings.ReplaceAll(s, ";", "")
}

package schema

import (
	"fmt"
	"strings"
)

// Type is the logical type of a field.
type Type string

const (
	TypeString    Type = "string"
	TypeBool      Type = "bool"
	TypeInt       Type = "int"
	TypeFloat     Type = "float"
	TypeTimestamp Type = "timestamp"
)

// Field captures the minimal behavior-relevant schema fields.
type Field struct {
	Name     string
	Type     Type
	Nullable bool
}

// Contract is the logical schema of a persisted table.
type Contract struct {
	Name string
	// Key lists the fields that identify a row. Informational; rows are not deduplicated on it.
	Key    []string
	Fields []Field
}

// Names returns the field names in order.
func (c Contract) Names() []string {
	out := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		out[i] = f.Name
	}
	return out
}

// Validate checks for empty and duplicate field names and unknown key fields.
func (c Contract) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("contract name is required")
	}
	seen := make(map[string]struct{}, len(c.Fields))
	for i, f := range c.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("field %d has no name", i)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	for _, k := range c.Key {
		if _, ok := seen[k]; !ok {
			return fmt.Errorf("key field %q is not in the contract", k)
		}
	}
	return nil
}

// SQLType maps a logical type onto a SQLite column affinity. Floats stay TEXT so their
// formatting survives a round trip unchanged.
func SQLType(t Type) string {
	switch t {
	case TypeInt:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

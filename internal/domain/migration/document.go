package migration

import (
	"strconv"
	"time"
)

// Fields is the field map of a destination document.
// Child tables are stored as lists of Fields.
type Fields map[string]any

// Document is a record in the ERPNext-shaped destination store.
type Document struct {
	Doctype    string
	Name       string
	ExternalID string
	Fields     Fields
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HasProvenance reports whether the document was created from a WeClapp entity.
func (d *Document) HasProvenance() bool {
	return d.ExternalID != ""
}

// String returns a field value as string.
func (d *Document) String(key string) string {
	if d == nil || d.Fields == nil {
		return ""
	}
	switch v := d.Fields[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Bool returns a field value as boolean. Stored 1/0 flags count as well.
func (d *Document) Bool(key string) bool {
	if d == nil || d.Fields == nil {
		return false
	}
	switch v := d.Fields[key].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	default:
		return false
	}
}

// Rows returns a child table.
func (d *Document) Rows(key string) []Fields {
	if d == nil || d.Fields == nil {
		return nil
	}
	switch v := d.Fields[key].(type) {
	case []Fields:
		return v
	case []map[string]any:
		out := make([]Fields, 0, len(v))
		for _, row := range v {
			out = append(out, Fields(row))
		}
		return out
	case []any:
		out := make([]Fields, 0, len(v))
		for _, row := range v {
			switch r := row.(type) {
			case map[string]any:
				out = append(out, Fields(r))
			case Fields:
				out = append(out, r)
			}
		}
		return out
	default:
		return nil
	}
}

// Link is a directed association from a parent document to a child document.
type Link struct {
	ID         string
	ParentType string
	ParentName string
	ChildType  string
	ChildName  string
}

// File is an attachment stored in the destination file tree.
type File struct {
	ID                string
	Folder            string
	FileName          string
	AttachedToDoctype string
	AttachedToName    string
	Private           bool
	Size              int64
	StorageKey        string
}

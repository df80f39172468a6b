package bqstore

import (
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
)

// fieldTypes maps the type names accepted in a schema string to BigQuery types.
var fieldTypes = map[string]bigquery.FieldType{
	"STRING":    bigquery.StringFieldType,
	"INTEGER":   bigquery.IntegerFieldType,
	"INT64":     bigquery.IntegerFieldType,
	"FLOAT":     bigquery.FloatFieldType,
	"FLOAT64":   bigquery.FloatFieldType,
	"NUMERIC":   bigquery.NumericFieldType,
	"BOOLEAN":   bigquery.BooleanFieldType,
	"BOOL":      bigquery.BooleanFieldType,
	"TIMESTAMP": bigquery.TimestampFieldType,
	"DATE":      bigquery.DateFieldType,
	"BYTES":     bigquery.BytesFieldType,
	"JSON":      bigquery.JSONFieldType,
}

// ParseSchema parses a compact schema of the form "name:TYPE,name:TYPE".
// Type names are case-insensitive. All fields are NULLABLE.
func ParseSchema(spec string) (bigquery.Schema, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty schema")
	}

	var schema bigquery.Schema
	seen := make(map[string]bool)
	for i, entry := range strings.Split(spec, ",") {
		name, typeName, ok := strings.Cut(strings.TrimSpace(entry), ":")
		name = strings.TrimSpace(name)
		typeName = strings.ToUpper(strings.TrimSpace(typeName))
		if !ok || name == "" || typeName == "" {
			return nil, fmt.Errorf("schema entry %d %q: want name:TYPE", i, entry)
		}
		fieldType, known := fieldTypes[typeName]
		if !known {
			return nil, fmt.Errorf("schema entry %d %q: unsupported type %s", i, entry, typeName)
		}
		if seen[name] {
			return nil, fmt.Errorf("schema entry %d: duplicate field %s", i, name)
		}
		seen[name] = true
		schema = append(schema, &bigquery.FieldSchema{Name: name, Type: fieldType})
	}
	return schema, nil
}

// TableSpec identifies a BigQuery table.
type TableSpec struct {
	ProjectID string
	DatasetID string
	TableID   string
}

// String renders the table as project:dataset.table.
func (t TableSpec) String() string {
	return fmt.Sprintf("%s:%s.%s", t.ProjectID, t.DatasetID, t.TableID)
}

// ParseTableSpec accepts "project:dataset.table", "project.dataset.table" or
// "dataset.table"; the last form is resolved against defaultProject.
func ParseTableSpec(spec, defaultProject string) (TableSpec, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return TableSpec{}, fmt.Errorf("empty table spec")
	}

	var ts TableSpec
	if project, rest, ok := strings.Cut(spec, ":"); ok {
		dataset, table, ok := strings.Cut(rest, ".")
		if !ok {
			return TableSpec{}, fmt.Errorf("malformed table spec %q, want project:dataset.table", spec)
		}
		ts = TableSpec{ProjectID: project, DatasetID: dataset, TableID: table}
	} else {
		parts := strings.Split(spec, ".")
		switch len(parts) {
		case 2:
			ts = TableSpec{ProjectID: defaultProject, DatasetID: parts[0], TableID: parts[1]}
		case 3:
			ts = TableSpec{ProjectID: parts[0], DatasetID: parts[1], TableID: parts[2]}
		default:
			return TableSpec{}, fmt.Errorf("malformed table spec %q, want [project:]dataset.table", spec)
		}
	}

	if ts.ProjectID == "" {
		return TableSpec{}, fmt.Errorf("table spec %q has no project and no default project is set", spec)
	}
	if ts.DatasetID == "" || ts.TableID == "" || strings.Contains(ts.TableID, ".") {
		return TableSpec{}, fmt.Errorf("malformed table spec %q", spec)
	}
	return ts, nil
}

// ParseCreateDisposition accepts CREATE_IF_NEEDED or CREATE_NEVER.
func ParseCreateDisposition(s string) (bigquery.TableCreateDisposition, error) {
	switch d := bigquery.TableCreateDisposition(strings.ToUpper(strings.TrimSpace(s))); d {
	case bigquery.CreateIfNeeded, bigquery.CreateNever:
		return d, nil
	default:
		return "", fmt.Errorf("unknown create disposition %q", s)
	}
}

// ParseWriteDisposition accepts WRITE_APPEND, WRITE_EMPTY or WRITE_TRUNCATE.
func ParseWriteDisposition(s string) (bigquery.TableWriteDisposition, error) {
	switch d := bigquery.TableWriteDisposition(strings.ToUpper(strings.TrimSpace(s))); d {
	case bigquery.WriteAppend, bigquery.WriteEmpty, bigquery.WriteTruncate:
		return d, nil
	default:
		return "", fmt.Errorf("unknown write disposition %q", s)
	}
}

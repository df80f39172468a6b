// Package ingest is the ingest-to-table pipeline: it reads JSON records from a
// Pub/Sub topic, validates them and appends them to a BigQuery table.
package ingest

import (
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/go-json-experiment/json"
)

// DefaultSchema is the fixed schema of the destination table.
const DefaultSchema = "field1:STRING,field2:INTEGER,field3:FLOAT"

// ErrInvalidPayload wraps every parse and validation failure.
var ErrInvalidPayload = errors.New("invalid payload")

// Record is one row of the destination table.
type Record struct {
	Field1 string
	Field2 int64
	Field3 float64

	// InsertID is passed to BigQuery for best-effort de-duplication of
	// redelivered messages. It is not a column.
	InsertID string
}

// wireRecord is the accepted JSON shape. Pointers distinguish absent keys from zero values.
type wireRecord struct {
	Field1 *string  `json:"field1"`
	Field2 *int64   `json:"field2"`
	Field3 *float64 `json:"field3"`
}

// ParseRecord decodes a payload as a single JSON object with exactly the keys
// field1 (string), field2 (integer) and field3 (number). Unknown or duplicate
// keys, missing keys, nulls, wrong types, invalid UTF-8 and trailing data are
// all rejected.
func ParseRecord(data []byte) (*Record, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w, json.RejectUnknownMembers(true)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	var missing []string
	if w.Field1 == nil {
		missing = append(missing, "field1")
	}
	if w.Field2 == nil {
		missing = append(missing, "field2")
	}
	if w.Field3 == nil {
		missing = append(missing, "field3")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing or null fields %v", ErrInvalidPayload, missing)
	}

	return &Record{
		Field1: *w.Field1,
		Field2: *w.Field2,
		Field3: *w.Field3,
	}, nil
}

// Values returns the row as a column name to value mapping.
func (r *Record) Values() map[string]bigquery.Value {
	return map[string]bigquery.Value{
		"field1": r.Field1,
		"field2": r.Field2,
		"field3": r.Field3,
	}
}

// Save implements bigquery.ValueSaver.
func (r *Record) Save() (map[string]bigquery.Value, string, error) {
	return r.Values(), r.InsertID, nil
}

var _ bigquery.ValueSaver = (*Record)(nil)

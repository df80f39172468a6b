package ingest_test

import (
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/google/go-cmp/cmp"
	"github.com/illmade-knight/beaver/pkg/ingest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecord_WellFormed(t *testing.T) {
	record, err := ingest.ParseRecord([]byte(`{"field1": "a", "field2": 1, "field3": 2.5}`))
	require.NoError(t, err)

	want := map[string]bigquery.Value{"field1": "a", "field2": int64(1), "field3": 2.5}
	if diff := cmp.Diff(want, record.Values()); diff != "" {
		t.Errorf("Values() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRecord_KeyOrderAndWhitespace(t *testing.T) {
	record, err := ingest.ParseRecord([]byte("\n {\"field3\":-1e3,\"field1\":\"\",\"field2\":-7}\t"))
	require.NoError(t, err)
	assert.Equal(t, &ingest.Record{Field1: "", Field2: -7, Field3: -1000}, record)
}

func TestParseRecord_Integral(t *testing.T) {
	record, err := ingest.ParseRecord([]byte(`{"field1":"a","field2":9007199254740993,"field3":0}`))
	require.NoError(t, err)
	assert.Equal(t, int64(9007199254740993), record.Field2, "large integers must not lose precision")
}

func TestParseRecord_Invalid(t *testing.T) {
	testCases := map[string]string{
		"empty":                   ``,
		"not json":                `this is not json`,
		"python literal":          `{'field1': 'a', 'field2': 1, 'field3': 2.5}`,
		"expression":              `__import__('os').system('true')`,
		"array":                   `[1, 2, 3]`,
		"null":                    `null`,
		"missing field":           `{"field1":"a","field2":1}`,
		"null field":              `{"field1":"a","field2":1,"field3":null}`,
		"unknown field":           `{"field1":"a","field2":1,"field3":2.5,"field4":true}`,
		"duplicate field":         `{"field1":"a","field1":"b","field2":1,"field3":2.5}`,
		"wrong case":              `{"Field1":"a","field2":1,"field3":2.5}`,
		"string for integer":      `{"field1":"a","field2":"1","field3":2.5}`,
		"fraction for integer":    `{"field1":"a","field2":1.5,"field3":2.5}`,
		"integer overflow":        `{"field1":"a","field2":92233720368547758070,"field3":2.5}`,
		"number for string":       `{"field1":1,"field2":1,"field3":2.5}`,
		"string for float":        `{"field1":"a","field2":1,"field3":"2.5"}`,
		"trailing data":           `{"field1":"a","field2":1,"field3":2.5} {}`,
		"invalid utf-8 in string": "{\"field1\":\"\xff\",\"field2\":1,\"field3\":2.5}",
	}

	for name, payload := range testCases {
		t.Run(name, func(t *testing.T) {
			record, err := ingest.ParseRecord([]byte(payload))
			require.Error(t, err)
			assert.ErrorIs(t, err, ingest.ErrInvalidPayload)
			assert.Nil(t, record)
		})
	}
}

func TestRecord_Save(t *testing.T) {
	record := &ingest.Record{Field1: "a", Field2: 1, Field3: 2.5, InsertID: "msg-1"}
	row, insertID, err := record.Save()
	require.NoError(t, err)
	assert.Equal(t, "msg-1", insertID)
	assert.Equal(t, record.Values(), row)
	assert.Len(t, row, 3, "the insert ID is not a column")
}

package passthrough_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"testing/quick"

	"github.com/illmade-knight/beaver/pkg/passthrough"
	"github.com/illmade-knight/beaver/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countLines(buf *bytes.Buffer) int {
	return strings.Count(buf.String(), "\n")
}

func TestProcessBatch_OutputEqualsInput(t *testing.T) {
	testCases := []struct {
		name  string
		batch [][]byte
	}{
		{name: "empty", batch: [][]byte{}},
		{name: "single", batch: [][]byte{[]byte("a")}},
		{name: "ordered", batch: [][]byte{[]byte("first"), []byte("second"), []byte("third")}},
		{name: "duplicates and empty elements", batch: [][]byte{[]byte("x"), {}, []byte("x")}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			out := passthrough.ProcessBatch(zerolog.New(&buf), tc.batch)

			assert.Equal(t, tc.batch, out)
			assert.Equal(t, len(tc.batch), countLines(&buf), "one log line per element")
		})
	}
}

func TestProcessBatch_Properties(t *testing.T) {
	property := func(batch [][]byte) bool {
		var buf bytes.Buffer
		out := passthrough.ProcessBatch(zerolog.New(&buf), batch)
		if len(out) != len(batch) || countLines(&buf) != len(batch) {
			return false
		}
		for i := range batch {
			if !bytes.Equal(out[i], batch[i]) {
				return false
			}
		}
		return true
	}
	require.NoError(t, quick.Check(property, nil))
}

func TestProcessBatch_ReturnsNewSlice(t *testing.T) {
	in := []int{1, 2, 3}
	out := passthrough.ProcessBatch(zerolog.Nop(), in)
	out[0] = 42
	assert.Equal(t, 1, in[0], "the input batch must not be modified")
}

func TestTransformer(t *testing.T) {
	element, skip, err := passthrough.Transformer(types.ConsumedMessage{ID: "m1", Payload: []byte("raw")})
	require.NoError(t, err)
	assert.False(t, skip)
	assert.Equal(t, &passthrough.Element{ID: "m1", Data: []byte("raw")}, element)
}

func TestDiscarder(t *testing.T) {
	var buf bytes.Buffer
	d := passthrough.NewDiscarder(zerolog.New(&buf).Level(zerolog.InfoLevel))

	items := []*passthrough.Element{{ID: "1"}, {ID: "2"}, {ID: "3", Data: []byte("abc")}}
	require.NoError(t, d.InsertBatch(context.Background(), items))
	assert.Equal(t, 3, countLines(&buf))
	assert.Contains(t, buf.String(), `"component":"Discarder"`)
	assert.NoError(t, d.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	for i, line := range lines {
		assert.Contains(t, line, `"msg_id":"`+items[i].ID+`"`)
	}
	assert.Contains(t, lines[2], `"size":3`)
}

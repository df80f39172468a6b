package loadgen

import (
	"fmt"
	"math/rand"
	"sync/atomic"

	"github.com/go-json-experiment/json"
)

// recordPayload is the JSON shape read by the ingest pipeline.
type recordPayload struct {
	Field1 string  `json:"field1"`
	Field2 int64   `json:"field2"`
	Field3 float64 `json:"field3"`
}

// RecordPayloadGenerator emits ingest records: field1 is the publisher ID,
// field2 a sequence number and field3 a random reading.
//
// When InvalidEvery is positive, every InvalidEvery-th payload is deliberately
// malformed so dead-letter handling can be exercised under load.
type RecordPayloadGenerator struct {
	InvalidEvery int64
	seq          atomic.Int64
}

// GeneratePayload implements PayloadGenerator.
func (g *RecordPayloadGenerator) GeneratePayload(p *Publisher) ([]byte, error) {
	n := g.seq.Add(1)
	if g.InvalidEvery > 0 && n%g.InvalidEvery == 0 {
		return []byte(fmt.Sprintf(`{'field1': %q, 'field2': %d}`, p.ID, n)), nil
	}
	return json.Marshal(recordPayload{
		Field1: p.ID,
		Field2: n,
		Field3: rand.Float64() * 100,
	})
}

package provision_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/illmade-knight/beaver/pkg/provision"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestPubsubClient(t *testing.T, projectID string) *pubsub.Client {
	t.Helper()
	srv := pstest.NewServer()
	client, err := pubsub.NewClient(context.Background(), projectID,
		option.WithEndpoint(srv.Addr),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
		_ = srv.Close()
	})
	return client
}

// fakeBigQuery is an in-memory BQClient. Lookups of missing resources fail
// with a 404 googleapi.Error like the real service.
type fakeBigQuery struct {
	mu       sync.Mutex
	project  string
	datasets map[string]*bigquery.DatasetMetadata
	tables   map[string]*bigquery.TableMetadata
	updates  int
	// deleteErrs forces Delete to fail for "dataset" or "dataset.table".
	deleteErrs map[string]error
}

func newFakeBigQuery(project string) *fakeBigQuery {
	return &fakeBigQuery{
		project:    project,
		datasets:   make(map[string]*bigquery.DatasetMetadata),
		tables:     make(map[string]*bigquery.TableMetadata),
		deleteErrs: make(map[string]error),
	}
}

func notFound(what string) error {
	return &googleapi.Error{Code: http.StatusNotFound, Message: "notFound: " + what}
}

func (f *fakeBigQuery) Dataset(id string) provision.BQDataset { return &fakeDataset{f: f, id: id} }
func (f *fakeBigQuery) Project() string                      { return f.project }
func (f *fakeBigQuery) Close() error                         { return nil }

func (f *fakeBigQuery) hasTable(dataset, table string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tables[dataset+"."+table]
	return ok
}

func (f *fakeBigQuery) table(dataset, table string) *bigquery.TableMetadata {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tables[dataset+"."+table]
}

func (f *fakeBigQuery) dataset(id string) *bigquery.DatasetMetadata {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.datasets[id]
}

type fakeDataset struct {
	f  *fakeBigQuery
	id string
}

func (d *fakeDataset) Metadata(_ context.Context) (*bigquery.DatasetMetadata, error) {
	d.f.mu.Lock()
	defer d.f.mu.Unlock()
	meta, ok := d.f.datasets[d.id]
	if !ok {
		return nil, notFound(d.id)
	}
	return meta, nil
}

func (d *fakeDataset) Create(_ context.Context, meta *bigquery.DatasetMetadata) error {
	d.f.mu.Lock()
	defer d.f.mu.Unlock()
	if _, ok := d.f.datasets[d.id]; ok {
		return &googleapi.Error{Code: http.StatusConflict, Message: "duplicate"}
	}
	d.f.datasets[d.id] = meta
	return nil
}

func (d *fakeDataset) Update(_ context.Context, update bigquery.DatasetMetadataToUpdate, _ string) (*bigquery.DatasetMetadata, error) {
	d.f.mu.Lock()
	defer d.f.mu.Unlock()
	meta, ok := d.f.datasets[d.id]
	if !ok {
		return nil, notFound(d.id)
	}
	if desc, ok := update.Description.(string); ok {
		meta.Description = desc
	}
	d.f.updates++
	return meta, nil
}

func (d *fakeDataset) Delete(_ context.Context) error {
	d.f.mu.Lock()
	defer d.f.mu.Unlock()
	if err := d.f.deleteErrs[d.id]; err != nil {
		return err
	}
	if _, ok := d.f.datasets[d.id]; !ok {
		return notFound(d.id)
	}
	for key := range d.f.tables {
		if len(key) > len(d.id) && key[:len(d.id)+1] == d.id+"." {
			return fmt.Errorf("dataset %s is still in use", d.id)
		}
	}
	delete(d.f.datasets, d.id)
	return nil
}

func (d *fakeDataset) Table(id string) provision.BQTable {
	return &fakeTable{f: d.f, dataset: d.id, id: id}
}

type fakeTable struct {
	f       *fakeBigQuery
	dataset string
	id      string
}

func (t *fakeTable) key() string { return t.dataset + "." + t.id }

func (t *fakeTable) Metadata(_ context.Context) (*bigquery.TableMetadata, error) {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	meta, ok := t.f.tables[t.key()]
	if !ok {
		return nil, notFound(t.key())
	}
	return meta, nil
}

func (t *fakeTable) Create(_ context.Context, meta *bigquery.TableMetadata) error {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	if _, ok := t.f.datasets[t.dataset]; !ok {
		return notFound(t.dataset)
	}
	t.f.tables[t.key()] = meta
	return nil
}

func (t *fakeTable) Delete(_ context.Context) error {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	if err := t.f.deleteErrs[t.key()]; err != nil {
		return err
	}
	if _, ok := t.f.tables[t.key()]; !ok {
		return notFound(t.key())
	}
	delete(t.f.tables, t.key())
	return nil
}

package bqstore_test

import (
	"context"
	"sync"

	"cloud.google.com/go/bigquery"
	"github.com/illmade-knight/beaver/pkg/types"
)

// ====================================================================================
// Test Mocks & Helpers
// ====================================================================================

type testPayload struct {
	ID   int
	Data string
}

// MockDataBatchInserter records batches; InsertBatchFn overrides the result.
type MockDataBatchInserter[T any] struct {
	mu            sync.Mutex
	receivedItems [][]*T
	callCount     int
	InsertBatchFn func(ctx context.Context, items []*T) error
}

func (m *MockDataBatchInserter[T]) InsertBatch(ctx context.Context, items []*T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount++
	m.receivedItems = append(m.receivedItems, items)

	if m.InsertBatchFn != nil {
		return m.InsertBatchFn(ctx, items)
	}
	return nil
}

func (m *MockDataBatchInserter[T]) Close() error { return nil }

func (m *MockDataBatchInserter[T]) GetReceivedItems() [][]*T {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.receivedItems
}

func (m *MockDataBatchInserter[T]) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// MockMessageConsumer stops itself when the service context is cancelled.
type MockMessageConsumer struct {
	msgChan  chan types.ConsumedMessage
	doneChan chan struct{}
	stopOnce sync.Once
}

func NewMockMessageConsumer(bufferSize int) *MockMessageConsumer {
	return &MockMessageConsumer{
		msgChan:  make(chan types.ConsumedMessage, bufferSize),
		doneChan: make(chan struct{}),
	}
}

func (m *MockMessageConsumer) Messages() <-chan types.ConsumedMessage { return m.msgChan }

func (m *MockMessageConsumer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = m.Stop()
	}()
	return nil
}

func (m *MockMessageConsumer) Stop() error {
	m.stopOnce.Do(func() {
		close(m.msgChan)
		close(m.doneChan)
	})
	return nil
}

func (m *MockMessageConsumer) Done() <-chan struct{} { return m.doneChan }

func (m *MockMessageConsumer) Push(msg types.ConsumedMessage) {
	select {
	case m.msgChan <- msg:
	default:
	}
}

// fakeTable implements bqstore.BQTable.
type fakeTable struct {
	mu          sync.Mutex
	meta        *bigquery.TableMetadata
	metadataErr error
	createErr   error
	created     *bigquery.TableMetadata
}

func (f *fakeTable) Metadata(_ context.Context) (*bigquery.TableMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.metadataErr != nil {
		return nil, f.metadataErr
	}
	return f.meta, nil
}

func (f *fakeTable) Create(_ context.Context, meta *bigquery.TableMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = meta
	return nil
}

func (f *fakeTable) Created() *bigquery.TableMetadata {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

// fakePutter implements bqstore.RowPutter.
type fakePutter struct {
	mu     sync.Mutex
	puts   []interface{}
	putErr error
}

func (f *fakePutter) Put(_ context.Context, src interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.puts = append(f.puts, src)
	return nil
}

func (f *fakePutter) Puts() []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

package messagepipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/illmade-knight/beaver/pkg/types"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// newTestPubsubOptions starts an in-memory Pub/Sub server and returns options
// that make a client connect to it.
func newTestPubsubOptions(t *testing.T) []option.ClientOption {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	return []option.ClientOption{
		option.WithEndpoint(srv.Addr),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		option.WithoutAuthentication(),
	}
}

// receiveSingleMessage waits for one message from a subscription.
func receiveSingleMessage(t *testing.T, ctx context.Context, sub *pubsub.Subscription, timeout time.Duration) *pubsub.Message {
	t.Helper()
	var receivedMsg *pubsub.Message
	var mu sync.RWMutex

	receiveCtx, receiveCancel := context.WithTimeout(ctx, timeout)
	defer receiveCancel()

	err := sub.Receive(receiveCtx, func(ctx context.Context, msg *pubsub.Message) {
		mu.Lock()
		defer mu.Unlock()
		if receivedMsg == nil {
			receivedMsg = msg
			msg.Ack()
			receiveCancel()
		} else {
			msg.Nack()
		}
	})

	if err != nil && !errors.Is(err, context.Canceled) {
		t.Logf("Receive loop ended with error: %v", err)
	}

	mu.RLock()
	defer mu.RUnlock()
	return receivedMsg
}

// ====================================================================================
// Mocks for the interfaces defined in this package.
// ====================================================================================

// --- MockMessageConsumer ---

// MockMessageConsumer simulates a message source.
type MockMessageConsumer struct {
	msgChan    chan types.ConsumedMessage
	doneChan   chan struct{}
	stopOnce   sync.Once
	startErr   error
	startMu    sync.Mutex
	startCount int
	stopCount  int
	failErr    error
}

// NewMockMessageConsumer creates a new mock consumer with a buffered channel.
func NewMockMessageConsumer(bufferSize int) *MockMessageConsumer {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &MockMessageConsumer{
		msgChan:  make(chan types.ConsumedMessage, bufferSize),
		doneChan: make(chan struct{}),
	}
}

func (m *MockMessageConsumer) Messages() <-chan types.ConsumedMessage {
	return m.msgChan
}

func (m *MockMessageConsumer) Start(ctx context.Context) error {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	m.startCount++
	if m.startErr != nil {
		return m.startErr
	}
	go func() {
		<-ctx.Done()
		_ = m.Stop()
	}()
	return nil
}

// Stop closes the channels and Nacks anything still buffered, as a real
// consumer does.
func (m *MockMessageConsumer) Stop() error {
	m.stopOnce.Do(func() {
		m.startMu.Lock()
		m.stopCount++
		m.startMu.Unlock()

		close(m.msgChan)
		for msg := range m.msgChan {
			log.Warn().Str("msg_id", msg.ID).Msg("MockConsumer draining and Nacking message on shutdown.")
			if msg.Nack != nil {
				msg.Nack()
			}
		}
		close(m.doneChan)
	})
	return nil
}

func (m *MockMessageConsumer) Done() <-chan struct{} {
	return m.doneChan
}

// Fail stops the consumer on its own, as a broken subscription would, and
// makes Err report err.
func (m *MockMessageConsumer) Fail(err error) {
	m.startMu.Lock()
	m.failErr = err
	m.startMu.Unlock()
	_ = m.Stop()
}

func (m *MockMessageConsumer) Err() error {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	return m.failErr
}

// Push injects a message into the mock consumer's channel.
func (m *MockMessageConsumer) Push(msg types.ConsumedMessage) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Msg("Recovered from panic trying to push to closed consumer channel.")
		}
	}()
	m.msgChan <- msg
}

func (m *MockMessageConsumer) SetStartError(err error) {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	m.startErr = err
}

func (m *MockMessageConsumer) GetStartCount() int {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	return m.startCount
}

func (m *MockMessageConsumer) GetStopCount() int {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	return m.stopCount
}

// --- MockMessageProcessor ---

// MockMessageProcessor records what it receives and optionally Acks it.
type MockMessageProcessor[T any] struct {
	InputChan    chan *types.BatchedMessage[T]
	Received     []*types.BatchedMessage[T]
	mu           sync.Mutex
	wg           sync.WaitGroup
	startCount   int
	stopCount    int
	ackOnProcess bool
}

func NewMockMessageProcessor[T any](bufferSize int) *MockMessageProcessor[T] {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &MockMessageProcessor[T]{
		InputChan: make(chan *types.BatchedMessage[T], bufferSize),
	}
}

func (m *MockMessageProcessor[T]) Input() chan<- *types.BatchedMessage[T] {
	return m.InputChan
}

func (m *MockMessageProcessor[T]) Start() {
	m.mu.Lock()
	m.startCount++
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for msg := range m.InputChan {
			m.mu.Lock()
			m.Received = append(m.Received, msg)
			ack := m.ackOnProcess
			m.mu.Unlock()
			if ack && msg.OriginalMessage.Ack != nil {
				msg.OriginalMessage.Ack()
			}
		}
	}()
}

func (m *MockMessageProcessor[T]) Stop() {
	m.mu.Lock()
	m.stopCount++
	m.mu.Unlock()
	close(m.InputChan)
	m.wg.Wait()
}

func (m *MockMessageProcessor[T]) GetStartCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCount
}

func (m *MockMessageProcessor[T]) GetStopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCount
}

func (m *MockMessageProcessor[T]) GetReceived() []*types.BatchedMessage[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	receivedCopy := make([]*types.BatchedMessage[T], len(m.Received))
	copy(receivedCopy, m.Received)
	return receivedCopy
}

func (m *MockMessageProcessor[T]) SetAckOnProcess(b bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ackOnProcess = b
}

// --- MockDataBatchInserter ---

// MockDataBatchInserter records every batch it is given.
type MockDataBatchInserter[T any] struct {
	mu        sync.Mutex
	batches   [][]*T
	insertErr error
	closed    bool
}

func (m *MockDataBatchInserter[T]) InsertBatch(_ context.Context, items []*T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	batch := make([]*T, len(items))
	copy(batch, items)
	m.batches = append(m.batches, batch)
	return nil
}

func (m *MockDataBatchInserter[T]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockDataBatchInserter[T]) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertErr = err
}

func (m *MockDataBatchInserter[T]) GetBatches() [][]*T {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]*T, len(m.batches))
	copy(out, m.batches)
	return out
}

func (m *MockDataBatchInserter[T]) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// --- messageState ---

// messageState tracks Ack/Nack calls for a single message.
type messageState struct {
	ID        string
	mu        sync.Mutex
	ackCount  int
	nackCount int
}

func (ms *messageState) Ack() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.ackCount++
}

func (ms *messageState) Nack() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.nackCount++
}

func (ms *messageState) IsAcked() bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.ackCount > 0
}

func (ms *messageState) IsNacked() bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.nackCount > 0
}

// Settled reports Ack and Nack call counts.
func (ms *messageState) Settled() (acks, nacks int) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.ackCount, ms.nackCount
}

func (ms *messageState) message(payload []byte) types.ConsumedMessage {
	return types.ConsumedMessage{
		ID:      ms.ID,
		Payload: payload,
		Ack:     ms.Ack,
		Nack:    ms.Nack,
	}
}

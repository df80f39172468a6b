package types

// BatchedMessage is a generic wrapper that links a raw, original `ConsumedMessage`
// with its successfully transformed payload of type T.
//
// It lets the final stage of a pipeline (a batch inserter or a discarder) work with
// typed data while still retaining the ability to Ack/Nack the `OriginalMessage`.
type BatchedMessage[T any] struct {
	// OriginalMessage is the message as it was received from the consumer.
	OriginalMessage ConsumedMessage
	// Payload is the structured data of type T, created by the MessageTransformer.
	Payload *T
}

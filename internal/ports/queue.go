package ports

// QueuedPayload is a published payload waiting for dispatch.
type QueuedPayload struct {
	Seq     uint64
	Topic   string
	Payload []byte
}

type PayloadQueue interface {
	Enqueue(item QueuedPayload) bool
	DequeueBatch(max int) []QueuedPayload
	Len() int
}

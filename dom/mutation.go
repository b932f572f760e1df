package dom

// RecordKind is the type of document change carried by a Record.
type RecordKind string

const (
	RecordAdded RecordKind = "added" // root of an inserted subtree
	RecordText  RecordKind = "text"  // character data of Node changed
)

// Record is a single document change.
type Record struct {
	Kind RecordKind
	Node Node
}

// Batch is one delivery of document changes, in the order the host saw them.
type Batch struct {
	Records []Record
}

// Observation is an active subscription to document changes. Batches are
// delivered on a single channel and must be consumed by one goroutine.
type Observation interface {
	Batches() <-chan Batch
	// Disconnect stops delivery. Batches already queued may still be read
	// from the channel and must be ignored by the consumer.
	Disconnect()
}

// Observable is a document host.
type Observable interface {
	Root() Node
	Observe() (Observation, error)
}

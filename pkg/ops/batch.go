package ops

import "encoding/json"

// Batch is an ordered group of operations for one index.
//
// A Batch is not safe for concurrent mutation. The writer front-end keeps each
// batch confined to the session that builds it and stops touching it once it
// has been handed to a dispatcher.
type Batch struct {
	indexName string
	ops       []Operation
}

// NewBatch creates a batch for indexName, optionally seeded with operations.
func NewBatch(indexName string, operations ...Operation) *Batch {
	b := &Batch{indexName: indexName}
	b.Append(operations...)
	return b
}

// IndexName returns the target index.
func (b *Batch) IndexName() string { return b.indexName }

// Append adds operations to the end of the batch in call order.
func (b *Batch) Append(operations ...Operation) {
	b.ops = append(b.ops, operations...)
}

// Len returns the number of operations.
func (b *Batch) Len() int { return len(b.ops) }

// Operations returns a copy of the operations in application order.
func (b *Batch) Operations() []Operation {
	out := make([]Operation, len(b.ops))
	copy(out, b.ops)
	return out
}

// Counts returns the number of operations of each kind.
func (b *Batch) Counts() map[Kind]int {
	counts := make(map[Kind]int, 3)
	for _, op := range b.ops {
		counts[op.Kind()]++
	}
	return counts
}

type wireBatch struct {
	Index      string      `json:"index"`
	Operations []Operation `json:"operations"`
}

// MarshalJSON implements json.Marshaler.
func (b *Batch) MarshalJSON() ([]byte, error) {
	operations := b.ops
	if operations == nil {
		operations = []Operation{}
	}
	return json.Marshal(wireBatch{Index: b.indexName, Operations: operations})
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Batch) UnmarshalJSON(data []byte) error {
	var w wireBatch
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	b.indexName = w.Index
	b.ops = w.Operations
	return nil
}

// Package ops defines the index mutation model shared by the writer front-end
// and the authoritative indexing node.
//
// An [Operation] is one indivisible mutation: add a document, delete by query,
// or delete by term. A [Batch] is an ordered group of operations tagged with
// the name of the index they target. Operation order inside a batch is the
// order in which the executor applies them.
//
// Payload semantics are not validated here. The executor behind the
// dispatcher decides what a query string or term means.
package ops

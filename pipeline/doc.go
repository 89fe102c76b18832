// Package pipeline runs the enrichment pass over a photo library.
//
// A Pipeline walks the library, asks the gate what each photo needs and
// dispatches the remaining work to a bounded worker pool. Each item moves
// through the core.State machine: it is described by the vision model,
// embedded, written back to the file's metadata and upserted into the
// vector index.
//
// Per-item failures are recorded in the Summary and never stop sibling
// work. Only configuration problems (an invalid root or a collection whose
// dimensionality differs from the embeddings) make Run return an error.
//
// Cancelling the context passed to Run stops dispatch. Items already handed
// to a worker run to completion.
package pipeline

package inference

import "context"

// Model is a warmed-up inference handle.
//
// Implementations are shared, read-only resources: concurrent Run calls must
// be safe, and no caller may mutate the handle after construction. The core
// never fetches, caches, or validates model bytes; it consumes handles that
// an external loader has already instantiated.
type Model interface {
	// Run feeds the named input tensors through the network and returns the
	// named outputs. Implementations should observe ctx before starting
	// work; an in-flight backend call is not expected to be abortable.
	Run(ctx context.Context, inputs map[string]Tensor) (map[string]Tensor, error)
}

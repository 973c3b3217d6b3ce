// Package dispatch decodes inbound SmartREST payloads and fans each message
// out to every registered listener on a bounded worker pool.
//
// Route is installed as the broker message handler. It never blocks on a
// listener: each listener invocation is a task placed on a FIFO queue in
// front of the pool, so messages are submitted in the order they arrive.
// Route waits only when the pool and the queue are both full, which holds
// up the broker delivery goroutine until a worker frees. A listener that fails or panics is logged and
// counted; nothing propagates back to the transport.
package dispatch

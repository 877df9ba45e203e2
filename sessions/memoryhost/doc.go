// Package memoryhost provides an in-memory sessions.SessionHost implementation
// suitable for tests, development, and single-process servers. All state is
// ephemeral and discarded on process exit.
//
// Characteristics
//
//	Durability        : none (RAM only)
//	Horizontal scale  : no (process local)
//	Ordering          : FIFO per session queue, monotonic decimal IDs
//	Delivery          : at-most-once (a message is dequeued before its handler runs)
//	Concurrency       : safe (mutex per host and per queue)
//
// Example:
//
//	host := memoryhost.New()
//	mgr := sessions.NewManager(host, dispatcher)
//
// For deployments with several replicas prefer redishost.
package memoryhost

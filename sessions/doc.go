// Package sessions owns the single client slot of the server. At most one SSE
// session is active at a time; opening a new stream replaces (and closes) the
// previous one, and a closed stream gives the slot back.
//
// Layers & Roles
//
//	Transport   -> one connected SSE client; writes outbound messages
//	Manager     -> slot state machine (none / active), routing of posted messages
//	SessionHost -> slot storage and ordered per-session message queues
//	Dispatcher  -> turns one inbound JSON-RPC message into at most one reply
//
// # Host Interface
//
// SessionHost abstracts the slot and the message queue so that a POST served
// by one process can reach a stream held open by another:
//   - ClaimSlot / CurrentSlot / ReleaseSlot : atomic slot swap and compare-and-clear
//   - PublishSession / SubscribeSession     : ordered per-session queue (at-least-once)
//   - CleanupSession                        : drop the queue once the stream is gone
//
// Implementations
//
//	memoryhost : in-memory host for a single process and for tests
//	redishost  : Redis keys and Streams, for several replicas behind one load balancer
//
// A message published between ClaimSlot and the first SubscribeSession call is
// kept in the queue and delivered once the stream starts serving, so a POST
// that follows a successful Open is never lost.
package sessions

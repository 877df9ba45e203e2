// Package redishost implements sessions.SessionHost using Redis primitives
// (Streams + simple keys) so several server replicas can share the single
// session slot. A POST served by any replica reaches the replica holding the
// SSE stream through the session's Redis Stream.
//
// Design Notes
//   - Slot: one string key swapped with a Lua script; release is a Lua compare-and-delete
//   - Liveness: a per-session marker key gates PublishSession so closed sessions reject messages
//   - Queues: XADD + XREAD polling from "0"; delivered entries are XDEL'd; at-least-once
//   - Expiry: slot, marker and queue carry a TTL refreshed by the subscriber on every poll,
//     so a crashed replica frees the slot on its own
//
// Scripts touch several keys, so all keys of a host must live on one node;
// Redis Cluster deployments need a hash-tagged KeyPrefix such as "{cnc}:".
//
// Example:
//
//	host, _ := redishost.New(redishost.Config{RedisAddr: "localhost:6379"})
//	defer host.Close()
package redishost

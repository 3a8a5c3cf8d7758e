// Package notifier reports scheduler activity to operators.
//
// The service subscribes to the event bus, formats action.* and scheduler.*
// events into short notifications and delivers them to every configured Sink
// (Telegram chat, Redis channel) through a bounded queue and a worker pool.
//
// # Delivery
//
// Sends are rate limited with a token bucket and retried with jittered
// exponential backoff. Delivery is best-effort: a full queue drops the
// notification and publishes notifier.dropped instead of blocking the bus.
//
// # History
//
// The service keeps a small in-memory history of delivered notifications for
// the debug endpoint.
package notifier

// Package notify turns inbound SMS events into outbound push notifications.
//
// Four channel kinds are supported: DingTalk group robots, WeCom group
// robots, Feishu custom bots and plain HTTP webhooks. Channel configs live
// in storage and are snapshotted per dispatch, so a config save never
// affects deliveries already in flight.
//
// Delivery is split in two: request builders render a channel config plus
// an event into a concrete HTTP request (pure, no network), and a Deliverer
// executes it. The Service on top adds an async queue, a worker pool and a
// shared rate limit.
package notify

// Package dispatch fans the inbound realtime stream out to typed,
// per-concern buffers (chat, notifications, presence, account data). Messages
// are routed on their type discriminator alone; payload schemas belong to the
// consumers.
package dispatch

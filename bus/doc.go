// Package bus implements the in-process publish/subscribe hub used by mesh
// agents. Topics are dot-delimited; a "*" segment in a subscription pattern
// matches exactly one arbitrary segment and pattern and topic must have the
// same number of segments.
//
// Exact topics are resolved through a map lookup while wildcard patterns are
// scanned linearly on every publish. Each subscription owns a FIFO queue so
// messages reach a single subscriber in publish order.
//
// Request publishes an intent and waits for a RESPONSE on the private topic
// "response.<message_id>"; Respond publishes such a reply.
package bus

// Package messages provides a backend-agnostic "create message" SDK.
//
// Design goals:
//   - Stable domain model: callers build a CreateMessageRequest from canonical types (Message, Content,
//     ContentPart, Tool) regardless of which backend serves it.
//   - One streaming vocabulary: every backend yields the same Event sequence (message_start, content block
//     start/delta/stop, a single message_delta, message_stop). Callers can rebuild the final response with
//     Accumulator or DrainStream.
//   - Backends as values: HTTP backends implement Requester and are driven by Client; backends with their own
//     SDK implement Messenger directly.
//
// Backend implementations live under providers/ and are responsible for mapping the canonical model to
// each backend's wire format.
package messages

// Package message implements the optimistic message lifecycle.
//
// A send creates an optimistic record under a temporary id and registers a
// correlation from that id to its conversation. The first matching
// new_message echo resolves the send: the temporary id is replaced by the
// server-assigned id and the status moves to Sent. Absent an echo, a fixed
// timeout retires the record as Failed exactly once; retry is always a
// user-initiated action.
//
// Status transitions are monotonic (Sending < Sent < Delivered < Read, with
// Failed reachable only from Sending/Sent), so duplicated or out-of-order
// receipts can never regress a message. A message id, temporary or
// server-assigned, never appears twice in a conversation.
//
// Note: correlation matches on conversation, sender, and content because
// the transport does not echo the temporary id. Two identical messages sent
// in quick succession resolve oldest-first.
package message

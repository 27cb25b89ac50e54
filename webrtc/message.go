/*
WebRTC WebSocket Signaling Transport
====================================

This package is the concrete transport the Call Session Manager (internal/csm)
is written against: it upgrades an HTTP connection to a WebSocket, decodes
each frame into the wire envelope below, and dispatches it to the matching
csm.Manager method. Outbound events flow the other way through wsChannel,
which implements csm.Channel over the same connection.

The envelope's field set matches the external interface: every inbound
event name the CSM understands (register, call_initiate, webrtc_offer, ...)
shares one struct, with unused fields simply omitted from the JSON. Payload
fields (sdp, candidate, extraMeta) are left as `any` and never inspected —
the CSM treats them as opaque, and so does this layer.
*/
package webrtc

// envelope is the wire shape of every inbound and outbound event.
type envelope struct {
	Type string `json:"type"`

	UserID string `json:"userId,omitempty"`
	Status string `json:"status,omitempty"`

	CallID      string   `json:"callId,omitempty"`
	CallerID    string   `json:"callerId,omitempty"`
	ReceiverID  string   `json:"receiverId,omitempty"`
	ReceiverIDs []string `json:"receiverIds,omitempty"`
	CallType    string   `json:"callType,omitempty"`
	ExtraMeta   any      `json:"extraMeta,omitempty"`

	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
	SDP  any    `json:"sdp,omitempty"`

	Candidate any `json:"candidate,omitempty"`

	Success bool   `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason,omitempty"`
	By      string `json:"by,omitempty"`
}

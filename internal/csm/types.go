// Package csm implements the Call Session Manager: the in-memory state
// machine that ties together the user directory, presence table, pending
// signal queue, call registry, and signal router described by the service's
// call-control specification. The package is transport-agnostic — it never
// imports net/http or gorilla/websocket — so it can be exercised by tests
// with an in-memory Channel.
package csm

import "time"

// UserID is an opaque, non-empty, case-sensitive identifier assigned
// externally (e.g. by an auth layer). The CSM never interprets it.
type UserID = string

// CallID is an opaque, non-empty identifier chosen by the call initiator.
type CallID = string

// PresenceStatus is the closed enumeration of a user's CSM-observed
// availability, independent of transport liveness.
type PresenceStatus string

const (
	StatusOffline   PresenceStatus = "offline"
	StatusAvailable PresenceStatus = "available"
	StatusRinging   PresenceStatus = "ringing"
	StatusBusy      PresenceStatus = "busy"
	StatusInCall    PresenceStatus = "in-call"
)

// CallStatus is the closed enumeration of a call record's lifecycle state.
// "terminated" is deliberately absent: terminal calls are removed from the
// registry rather than represented, per the data model's invariants.
type CallStatus string

const (
	CallInitiated CallStatus = "initiated"
	CallActive    CallStatus = "active"
)

// Presence is one entry of the Presence Table.
type Presence struct {
	Status        PresenceStatus
	CurrentCallID CallID // empty when unset
}

// Channel is the abstract transport channel the CSM routes events over. It
// is the only interface the CSM has onto the outside world: send a named
// event with an opaque payload, and close. Concrete transports (WebSocket,
// or an in-memory fake for tests) implement it.
type Channel interface {
	// ID is a transport-assigned identifier, distinct from any user id.
	ID() string
	// Send delivers a named event with an opaque payload. It must not block
	// the caller on the remote peer's behavior; a transport that cannot
	// buffer the event drops it rather than block.
	Send(event string, payload map[string]any) error
	// Close closes the underlying transport connection.
	Close() error
}

type iceCandidateEntry struct {
	From      UserID
	Candidate any
	At        time.Time
}

// Call is a Call Registry record.
type Call struct {
	CallID      CallID
	CallerID    UserID
	ReceiverIDs []UserID
	CallType    string
	ExtraMeta   any

	// Participants is the ordered set of user ids currently bound to this
	// call. ParticipantChannels is a cached, possibly-stale fast path onto
	// the User Directory: a key may be briefly absent even for a user in
	// Participants, and a present entry must still be validated against the
	// directory before use (see resolveForRoutingLocked in state.go).
	Participants        []UserID
	ParticipantChannels map[UserID]Channel

	Status CallStatus

	OfferAttempts int
	LastOfferTime time.Time

	iceBuffer map[UserID][]iceCandidateEntry

	noAnswerTimer cancelFunc
}

type cancelFunc func() bool

func (c *Call) hasParticipant(user UserID) bool {
	for _, p := range c.Participants {
		if p == user {
			return true
		}
	}
	return false
}

func (c *Call) removeParticipant(user UserID) {
	kept := c.Participants[:0]
	for _, p := range c.Participants {
		if p != user {
			kept = append(kept, p)
		}
	}
	c.Participants = kept
	delete(c.ParticipantChannels, user)
}

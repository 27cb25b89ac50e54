package csm

// Inbound event names (client -> server), as accepted by Manager's methods
// via the transport dispatch loop.
const (
	EventRegister           = "register"
	EventUserStatus         = "user_status"
	EventCallInitiate       = "call_initiate"
	EventCallAccept         = "call_accept"
	EventCallReject         = "call_reject"
	EventCallEnd            = "call_end"
	EventUserReady          = "user_ready"
	EventWebRTCOffer        = "webrtc_offer"
	EventWebRTCAnswer       = "webrtc_answer"
	EventICECandidate       = "ice_candidate"
	EventParticipantAdd     = "call_participant_add"
	EventParticipantRemove  = "call_participant_remove"
)

// Outbound event names (server -> client), emitted by Manager onto Channels.
const (
	EventRegistered        = "registered"
	EventError              = "error"
	EventForceDisconnect    = "force_disconnect"
	EventIncomingCall       = "incoming_call"
	EventCallRinging        = "call_ringing"
	EventCallBusy           = "call_busy"
	EventCallAccepted       = "call_accepted"
	EventCallRejected       = "call_rejected"
	EventCallTimeout        = "call_timeout"
	EventCallEnded          = "call_ended"
	EventStartSignaling     = "start_signaling"
	EventParticipantAdded   = "participant_added"
	EventParticipantRemoved = "participant_removed"
	// webrtc_offer, webrtc_answer and ice_candidate are also used outbound,
	// sharing the inbound constants above: the router forwards them under
	// the same name with "to" stripped from the payload.
)

const (
	reasonTimeout           = "Timeout"
	reasonNoAnswer          = "No answer"
	reasonNoAnswerReceiver  = "No answer from receiver"
	reasonUserEnded         = "User ended the call"
	reasonParticipantLeft   = "Participant disconnected"
)

package csm

// ErrorKind is the closed set of error conditions the CSM surfaces to a
// client via an "error" event. Anything outside this set is a server-side
// condition that gets logged, not surfaced (spec: "server-visible only").
type ErrorKind string

const (
	ErrInvalidUser          ErrorKind = "invalid_user"
	ErrInvalidCallData      ErrorKind = "invalid_call_data"
	ErrCallerNotConnected   ErrorKind = "caller_not_connected"
	ErrCallNotFound         ErrorKind = "call_not_found"
	ErrReceiverNotConnected ErrorKind = "receiver_not_connected"
	ErrInvalidReceiver      ErrorKind = "invalid_receiver"
)

// ClientError wraps an ErrorKind that was sent to the offending client as an
// "error" event, so callers (mostly tests) can distinguish it from a wider
// Go error without parsing strings.
type ClientError struct {
	Kind ErrorKind
}

func (e *ClientError) Error() string { return string(e.Kind) }

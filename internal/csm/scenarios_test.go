package csm_test

import (
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callrelay/csm/internal/clock"
	"github.com/callrelay/csm/internal/csm"
)

func testManager() (*csm.Manager, *clock.Fake) {
	fc := clock.NewFake(time.Unix(0, 0))
	m := csm.New(fc, log.New(nopWriter{}, "", 0))
	return m, fc
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func lastEvent(t *testing.T, ch *fakeChannel, name string) sentEvent {
	t.Helper()
	for i := len(ch.sent) - 1; i >= 0; i-- {
		if ch.sent[i].Name == name {
			return ch.sent[i]
		}
	}
	t.Fatalf("channel %s never received %q (got %v)", ch.id, name, ch.names())
	return sentEvent{}
}

func countEvent(ch *fakeChannel, name string) int {
	n := 0
	for _, e := range ch.events() {
		if e.Name == name {
			n++
		}
	}
	return n
}

// S1 — happy path.
func TestS1HappyPath(t *testing.T) {
	m, _ := testManager()
	a := newFakeChannel("conn-a")
	b := newFakeChannel("conn-b")

	require.NoError(t, m.Register(a, "A"))
	require.NoError(t, m.Register(b, "B"))

	m.CallInitiate(a, "c1", "A", []string{"B"}, "audio", nil)
	lastEvent(t, b, csm.EventIncomingCall)
	ringing := lastEvent(t, a, csm.EventCallRinging)
	assert.Equal(t, "B", ringing.Payload["receiverId"])
	assert.Equal(t, csm.StatusBusy, m.Presence("A").Status)
	assert.Equal(t, csm.StatusRinging, m.Presence("B").Status)

	m.CallAccept(b, "c1", "B")
	accepted := lastEvent(t, a, csm.EventCallAccepted)
	assert.Equal(t, "B", accepted.Payload["receiverId"])
	lastEvent(t, a, csm.EventStartSignaling)
	lastEvent(t, b, csm.EventStartSignaling)
	assert.Equal(t, csm.StatusInCall, m.Presence("A").Status)
	assert.Equal(t, csm.StatusInCall, m.Presence("B").Status)

	// call_accepted observable strictly before start_signaling for A.
	var acceptedIdx, signalIdx int = -1, -1
	for i, e := range a.events() {
		if e.Name == csm.EventCallAccepted {
			acceptedIdx = i
		}
		if e.Name == csm.EventStartSignaling && signalIdx == -1 {
			signalIdx = i
		}
	}
	require.NotEqual(t, -1, acceptedIdx)
	require.NotEqual(t, -1, signalIdx)
	assert.Less(t, acceptedIdx, signalIdx)

	m.Offer("c1", "A", "B", "sdp-o")
	offer := lastEvent(t, b, csm.EventWebRTCOffer)
	assert.Equal(t, "A", offer.Payload["from"])
	assert.Equal(t, "sdp-o", offer.Payload["sdp"])
	assert.NotContains(t, offer.Payload, "to")

	m.Answer("c1", "B", "A", "sdp-a")
	answer := lastEvent(t, a, csm.EventWebRTCAnswer)
	assert.Equal(t, "B", answer.Payload["from"])
	assert.Equal(t, "sdp-a", answer.Payload["sdp"])

	m.CallEnd("c1", "A")
	ended := lastEvent(t, b, csm.EventCallEnded)
	assert.Equal(t, "A", ended.Payload["userId"])
	assert.Equal(t, "User ended the call", ended.Payload["reason"])
	assert.Equal(t, csm.StatusAvailable, m.Presence("A").Status)
	assert.Equal(t, csm.StatusAvailable, m.Presence("B").Status)
}

// S2 — busy.
func TestS2Busy(t *testing.T) {
	m, _ := testManager()
	a := newFakeChannel("conn-a")
	b := newFakeChannel("conn-b")
	c := newFakeChannel("conn-c")
	require.NoError(t, m.Register(a, "A"))
	require.NoError(t, m.Register(b, "B"))
	require.NoError(t, m.Register(c, "C"))

	m.CallInitiate(a, "c1", "A", []string{"B"}, "audio", nil)
	m.CallAccept(b, "c1", "B")

	m.CallInitiate(c, "c2", "C", []string{"B"}, "audio", nil)
	busy := lastEvent(t, c, csm.EventCallBusy)
	assert.Equal(t, "c2", busy.Payload["callId"])
	assert.Equal(t, "B", busy.Payload["receiverId"])
	assert.Equal(t, 1, countEvent(b, csm.EventIncomingCall)) // only from c1; c2 never created a record
	assert.Equal(t, csm.StatusInCall, m.Presence("B").Status)
}

// S3 — no answer.
func TestS3NoAnswer(t *testing.T) {
	m, fc := testManager()
	a := newFakeChannel("conn-a")
	require.NoError(t, m.Register(a, "A"))

	m.CallInitiate(a, "c3", "A", []string{"D"}, "audio", nil)
	fc.Advance(60 * time.Second)

	timeout := lastEvent(t, a, csm.EventCallTimeout)
	assert.Equal(t, "c3", timeout.Payload["callId"])
	assert.Equal(t, csm.StatusAvailable, m.Presence("A").Status)
}

// S4 — offline receiver gets the queued incoming_call on registration.
func TestS4OfflineReceiverQueues(t *testing.T) {
	m, _ := testManager()
	a := newFakeChannel("conn-a")
	require.NoError(t, m.Register(a, "A"))

	m.CallInitiate(a, "c4", "A", []string{"D"}, "audio", nil)

	d := newFakeChannel("conn-d")
	require.NoError(t, m.Register(d, "D"))
	require.Len(t, d.events(), 2) // registered, then the queued incoming_call
	assert.Equal(t, csm.EventRegistered, d.events()[0].Name)
	assert.Equal(t, csm.EventIncomingCall, d.events()[1].Name)
}

// S5 — reconnect mid-call re-arms signaling via user_ready.
func TestS5ReconnectMidCall(t *testing.T) {
	m, _ := testManager()
	a := newFakeChannel("conn-a")
	b1 := newFakeChannel("conn-b1")
	require.NoError(t, m.Register(a, "A"))
	require.NoError(t, m.Register(b1, "B"))

	m.CallInitiate(a, "c1", "A", []string{"B"}, "audio", nil)
	m.CallAccept(b1, "c1", "B")

	m.Disconnect(b1)
	assert.Equal(t, csm.StatusOffline, m.Presence("B").Status)

	b2 := newFakeChannel("conn-b2")
	require.NoError(t, m.Register(b2, "B"))
	m.UserReady("c1", "B")
	lastEvent(t, b2, csm.EventStartSignaling)
	lastEvent(t, a, csm.EventStartSignaling)
}

// S6 — duplicate registration force-disconnects the stale channel.
func TestS6DuplicateRegistration(t *testing.T) {
	m, _ := testManager()
	x := newFakeChannel("conn-x")
	require.NoError(t, m.Register(x, "A"))

	y := newFakeChannel("conn-y")
	require.NoError(t, m.Register(y, "A"))

	lastEvent(t, x, csm.EventForceDisconnect)
	assert.True(t, x.isClosed())
	lastEvent(t, y, csm.EventRegistered)

	// Only Y is reachable for A thereafter.
	other := newFakeChannel("conn-other")
	require.NoError(t, m.Register(other, "Z"))
	m.Offer("c9", "Z", "A", "sdp")
	offer := lastEvent(t, y, csm.EventWebRTCOffer)
	assert.Equal(t, "sdp", offer.Payload["sdp"])
	for _, e := range x.events() {
		assert.NotEqual(t, csm.EventWebRTCOffer, e.Name)
	}
}

func TestOfferStallSweep(t *testing.T) {
	m, fc := testManager()
	a := newFakeChannel("conn-a")
	b := newFakeChannel("conn-b")
	require.NoError(t, m.Register(a, "A"))
	require.NoError(t, m.Register(b, "B"))

	m.CallInitiate(a, "c1", "A", []string{"B"}, "audio", nil)
	m.Offer("c1", "A", "B", "sdp-o")

	fc.Advance(11 * time.Second)

	timeout := lastEvent(t, a, csm.EventCallTimeout)
	assert.Equal(t, "No answer", timeout.Payload["reason"])
	ended := lastEvent(t, b, csm.EventCallEnded)
	assert.Equal(t, "No answer from receiver", ended.Payload["reason"])
}

func TestCandidateBufferTrimsAfterTTL(t *testing.T) {
	m, fc := testManager()
	a := newFakeChannel("conn-a")
	b := newFakeChannel("conn-b")
	require.NoError(t, m.Register(a, "A"))
	require.NoError(t, m.Register(b, "B"))
	m.CallInitiate(a, "c1", "A", []string{"B"}, "audio", nil)
	m.CallAccept(b, "c1", "B")

	m.Candidate("c1", "A", "B", "cand-1")
	require.Len(t, m.BufferedCandidates("c1", "B"), 1)

	fc.Advance(61 * time.Second)
	assert.Empty(t, m.BufferedCandidates("c1", "B"))
}

func TestLoopbackDropped(t *testing.T) {
	m, _ := testManager()
	a := newFakeChannel("conn-a")
	require.NoError(t, m.Register(a, "A"))
	m.Offer("c1", "A", "A", "sdp")
	for _, e := range a.events() {
		assert.NotEqual(t, csm.EventWebRTCOffer, e.Name)
	}
}

func TestCallAcceptUnknownCall(t *testing.T) {
	m, _ := testManager()
	b := newFakeChannel("conn-b")
	require.NoError(t, m.Register(b, "B"))
	m.CallAccept(b, "does-not-exist", "B")
	err := lastEvent(t, b, csm.EventError)
	assert.Equal(t, string(csm.ErrCallNotFound), err.Payload["message"])
}

func TestCallRejectAndEndUnknownCallAreNoOps(t *testing.T) {
	m, _ := testManager()
	// Must not panic and must not emit anything.
	m.CallReject("nope", "A")
	m.CallEnd("nope", "A")
}

func TestRegisterInvalidUser(t *testing.T) {
	m, _ := testManager()
	a := newFakeChannel("conn-a")
	err := m.Register(a, "")
	require.Error(t, err)
	e := lastEvent(t, a, csm.EventError)
	assert.Equal(t, string(csm.ErrInvalidUser), e.Payload["message"])
}

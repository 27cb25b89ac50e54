package csm

import "time"

// routeLocked implements the Signal Router's common routing rule (spec
// §4.4, steps 1-4): drop loopbacks, resolve the target (cache-then-
// directory), forward with "to" stripped, or enqueue for later delivery.
// It never inspects payload beyond the to/from headers needed to route it.
// field names the payload on the wire the way the rest of the codebase
// names its outbound fields literally (e.g. call_ringing's receiverId) -
// "sdp" for offer/answer, "candidate" for ice_candidate.
func (m *Manager) routeLocked(call *Call, event, field string, callID CallID, from, to UserID, payload any) {
	if from == to {
		m.logf("%s: dropping loopback from %s to itself on call %s", event, from, callID)
		return
	}
	outbound := map[string]any{"callId": callID, "from": from, field: payload}
	if ch, ok := m.resolveForRoutingLocked(call, to); ok {
		ch.Send(event, outbound)
		return
	}
	m.enqueueLocked(to, event, outbound)
}

// Offer implements the "offer" signaling handler (spec §4.4).
func (m *Manager) Offer(callID CallID, from, to UserID, sdp any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.calls[callID]
	if call != nil {
		call.OfferAttempts++
		call.LastOfferTime = m.clock.Now()
	}
	if from == to {
		m.logf("%s: dropping loopback from %s to itself on call %s", EventWebRTCOffer, from, callID)
		return
	}
	// With no call record (the call may be about to be created or resumed),
	// routing falls back to the directory and queues for an offline target.
	m.routeLocked(call, EventWebRTCOffer, "sdp", callID, from, to, sdp)
}

// Answer implements the "answer" signaling handler (spec §4.4).
func (m *Manager) Answer(callID CallID, from, to UserID, sdp any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.calls[callID]
	if call != nil {
		call.OfferAttempts = 0
	}
	m.routeLocked(call, EventWebRTCAnswer, "sdp", callID, from, to, sdp)
}

// Candidate implements the "candidate" signaling handler (spec §4.4):
// buffering is best-effort and never blocks forwarding.
func (m *Manager) Candidate(callID CallID, from, to UserID, candidate any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.calls[callID]
	if call != nil && from != to {
		if call.iceBuffer == nil {
			call.iceBuffer = make(map[UserID][]iceCandidateEntry)
		}
		call.iceBuffer[to] = append(call.iceBuffer[to], iceCandidateEntry{
			From:      from,
			Candidate: candidate,
			At:        m.clock.Now(),
		})
	}
	m.routeLocked(call, EventICECandidate, "candidate", callID, from, to, candidate)
}

// BufferedCandidates returns a copy of the candidates currently buffered for
// a (call, user) pair, for tests and observability. It never returns
// entries older than candidateTTL relative to the clock's current time.
func (m *Manager) BufferedCandidates(callID CallID, userID UserID) []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	call, ok := m.calls[callID]
	if !ok {
		return nil
	}
	entries := call.iceBuffer[userID]
	now := m.clock.Now()
	out := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		if now.Sub(e.At) <= candidateTTL {
			out = append(out, e.At)
		}
	}
	return out
}

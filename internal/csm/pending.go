package csm

// enqueueLocked appends an event to a user's pending signal mailbox. The
// queue is created lazily and is pure FIFO; there is no cap in the baseline.
func (m *Manager) enqueueLocked(userID UserID, event string, payload map[string]any) {
	m.pending[userID] = append(m.pending[userID], pendingSignal{Event: event, Payload: payload})
}

// drainPendingLocked sends every queued entry for userID, in insertion
// order, over ch, then clears the queue. Called atomically with
// registration, per spec §4.2/§5.
func (m *Manager) drainPendingLocked(userID UserID, ch Channel) {
	queued, ok := m.pending[userID]
	if !ok {
		return
	}
	delete(m.pending, userID)
	for _, sig := range queued {
		ch.Send(sig.Event, sig.Payload)
	}
}

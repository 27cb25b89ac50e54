package csm

// Register implements the User Directory's register operation (spec §4.1).
// ch is the transport channel the register event arrived on.
func (m *Manager) Register(ch Channel, userID UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if userID == "" {
		ch.Send(EventError, map[string]any{"message": string(ErrInvalidUser)})
		return &ClientError{Kind: ErrInvalidUser}
	}

	if old, exists := m.directory[userID]; exists && old.ID() != ch.ID() {
		old.Send(EventForceDisconnect, map[string]any{"message": "replaced by new connection for " + userID})
		old.Close()
		delete(m.reverseIndex, old.ID())
	}

	m.directory[userID] = ch
	m.reverseIndex[ch.ID()] = userID

	pres, hasPresence := m.presence[userID]
	liveCall := hasPresence && pres.CurrentCallID != "" && m.calls[pres.CurrentCallID] != nil &&
		(pres.Status == StatusRinging || pres.Status == StatusInCall)

	if liveCall {
		if call := m.calls[pres.CurrentCallID]; call != nil {
			call.ParticipantChannels[userID] = ch
		}
	} else {
		m.presence[userID] = &Presence{Status: StatusAvailable}
	}

	ch.Send(EventRegistered, map[string]any{"success": true})

	m.drainPendingLocked(userID, ch)
	return nil
}

// resolveLocked is the User Directory's resolve operation. Must be called
// with the lock held.
func (m *Manager) resolveLocked(userID UserID) (Channel, bool) {
	ch, ok := m.directory[userID]
	return ch, ok
}

// Disconnect implements channel close handling: unbind from the directory
// only if this channel is still the one on file (a re-registration may have
// already superseded it), then apply the transport-disconnect call-lifecycle
// effects (spec §4.3's "transport disconnect of last participant" row).
func (m *Manager) Disconnect(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID, ok := m.reverseIndex[ch.ID()]
	if !ok {
		return
	}
	if current, exists := m.directory[userID]; !exists || current.ID() != ch.ID() {
		// Superseded by a re-registration; nothing to unbind.
		delete(m.reverseIndex, ch.ID())
		return
	}

	delete(m.directory, userID)
	delete(m.reverseIndex, ch.ID())

	pres := m.presence[userID]
	if pres == nil {
		return
	}
	callID := pres.CurrentCallID
	if callID == "" {
		m.presence[userID] = &Presence{Status: StatusOffline}
		return
	}

	call := m.calls[callID]
	if call == nil {
		m.presence[userID] = &Presence{Status: StatusOffline}
		return
	}

	m.removeParticipantLocked(callID, call, userID, reasonParticipantLeft, StatusOffline)
}

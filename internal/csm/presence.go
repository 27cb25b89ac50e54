package csm

func (m *Manager) setPresenceLocked(userID UserID, status PresenceStatus, callID CallID) {
	m.presence[userID] = &Presence{Status: status, CurrentCallID: callID}
}

// Presence returns a snapshot of a user's presence entry for callers outside
// the package (health endpoint, tests). An offline entry with no call is
// returned for an unknown user.
func (m *Manager) Presence(userID UserID) Presence {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.presence[userID]; ok {
		return *p
	}
	return Presence{Status: StatusOffline}
}

// UserStatus implements the supplemented user_status handshake (SPEC_FULL):
// a client announcing itself available again. It is a no-op, logged rather
// than surfaced as an error, for a user whose presence is owned by the Call
// State Machine (ringing/busy/in-call).
func (m *Manager) UserStatus(ch Channel, userID UserID, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if status != string(StatusAvailable) {
		m.logf("user_status: ignoring unsupported status %q from %s", status, userID)
		return
	}
	pres, ok := m.presence[userID]
	if ok && (pres.Status == StatusRinging || pres.Status == StatusBusy || pres.Status == StatusInCall) {
		m.logf("user_status: ignoring available announcement from %s mid-call (%s)", userID, pres.Status)
		return
	}
	m.presence[userID] = &Presence{Status: StatusAvailable}
}

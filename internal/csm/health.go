package csm

// CallSnapshot is the /health view of one Call Registry record (spec §6).
type CallSnapshot struct {
	CallID              CallID   `json:"callId"`
	Participants        []UserID `json:"participants"`
	Status              string   `json:"status"`
	BoundParticipantIDs []UserID `json:"boundParticipantIds"`
}

// Snapshot is the full /health payload: connected users, active calls, and
// the presence map.
type Snapshot struct {
	ConnectedUsers []UserID                 `json:"connectedUsers"`
	Calls          []CallSnapshot           `json:"calls"`
	Presence       map[UserID]PresenceEntry `json:"presence"`
}

// PresenceEntry is the JSON-friendly shape of a Presence value.
type PresenceEntry struct {
	Status        string `json:"status"`
	CurrentCallID string `json:"currentCallId,omitempty"`
}

// Snapshot builds the /health debug view described by spec §6.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	users := make([]UserID, 0, len(m.directory))
	for u := range m.directory {
		users = append(users, u)
	}

	calls := make([]CallSnapshot, 0, len(m.calls))
	for id, call := range m.calls {
		bound := make([]UserID, 0, len(call.ParticipantChannels))
		for p := range call.ParticipantChannels {
			bound = append(bound, p)
		}
		participants := make([]UserID, len(call.Participants))
		copy(participants, call.Participants)
		calls = append(calls, CallSnapshot{
			CallID:              id,
			Participants:        participants,
			Status:              string(call.Status),
			BoundParticipantIDs: bound,
		})
	}

	presence := make(map[UserID]PresenceEntry, len(m.presence))
	for u, p := range m.presence {
		presence[u] = PresenceEntry{Status: string(p.Status), CurrentCallID: p.CurrentCallID}
	}

	return Snapshot{ConnectedUsers: users, Calls: calls, Presence: presence}
}

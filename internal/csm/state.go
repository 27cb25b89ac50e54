package csm

// resolveForRoutingLocked implements the shared "prefer the cached
// participant channel, fall back to the directory" rule used by both the
// Call State Machine's broadcasts and the Signal Router (spec §4.1, §4.4).
// The cache is treated as a weak reference: it is only trusted when the
// directory still shows that channel bound to the same user.
func (m *Manager) resolveForRoutingLocked(call *Call, userID UserID) (Channel, bool) {
	if call != nil {
		if ch, ok := call.ParticipantChannels[userID]; ok {
			if bound, exists := m.reverseIndex[ch.ID()]; exists && bound == userID {
				return ch, true
			}
		}
	}
	return m.resolveLocked(userID)
}

// CallInitiate implements the ∅ -> initiated transition (spec §4.3).
func (m *Manager) CallInitiate(ch Channel, callID CallID, callerID UserID, receiverIDs []UserID, callType string, extraMeta any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if callID == "" || callerID == "" || len(receiverIDs) == 0 {
		ch.Send(EventError, map[string]any{"message": string(ErrInvalidCallData)})
		return
	}

	callerChannel, ok := m.resolveLocked(callerID)
	if !ok {
		ch.Send(EventError, map[string]any{"message": string(ErrCallerNotConnected)})
		return
	}

	receiverID := receiverIDs[0]
	if recvPres, ok := m.presence[receiverID]; ok && (recvPres.Status == StatusBusy || recvPres.Status == StatusInCall) {
		callerChannel.Send(EventCallBusy, map[string]any{"callId": callID, "receiverId": receiverID})
		return
	}

	if stale, exists := m.calls[callID]; exists {
		// Collision on initiate: overwrite. The stale record's timer is
		// cancelled here; no further transitions apply to it (spec §4.3).
		m.logf("call_initiate: overwriting stale record for call %s", callID)
		if stale.noAnswerTimer != nil {
			stale.noAnswerTimer()
		}
		delete(m.calls, callID)
	}

	call := &Call{
		CallID:              callID,
		CallerID:            callerID,
		ReceiverIDs:         receiverIDs,
		CallType:            callType,
		ExtraMeta:           extraMeta,
		Participants:        []UserID{callerID, receiverID},
		ParticipantChannels: map[UserID]Channel{callerID: callerChannel},
		Status:              CallInitiated,
		iceBuffer:           make(map[UserID][]iceCandidateEntry),
	}
	m.calls[callID] = call
	m.setPresenceLocked(callerID, StatusBusy, callID)

	incomingPayload := map[string]any{
		"callId":      callID,
		"callerId":    callerID,
		"receiverIds": receiverIDs,
		"callType":    callType,
		"extraMeta":   extraMeta,
	}
	if receiverChannel, online := m.resolveLocked(receiverID); online {
		call.ParticipantChannels[receiverID] = receiverChannel
		m.setPresenceLocked(receiverID, StatusRinging, callID)
		receiverChannel.Send(EventIncomingCall, incomingPayload)
	} else {
		m.enqueueLocked(receiverID, EventIncomingCall, incomingPayload)
	}

	callerChannel.Send(EventCallRinging, map[string]any{"callId": callID, "receiverId": receiverID})

	timer := m.clock.AfterFunc(noAnswerTimeout, func() { m.onNoAnswer(callID) })
	call.noAnswerTimer = timer.Stop
}

func (m *Manager) onNoAnswer(callID CallID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call, ok := m.calls[callID]
	if !ok || call.Status != CallInitiated {
		return
	}
	m.terminateInitiatedLocked(callID, call, reasonNoAnswer, reasonTimeout)
}

// terminateInitiatedLocked implements both the no-answer-timer and the
// offer-stall-sweep transitions out of "initiated" (spec §4.3, §4.6): they
// share every effect except the two emitted reason strings.
func (m *Manager) terminateInitiatedLocked(callID CallID, call *Call, callTimeoutReason, callEndedReason string) {
	if callerChannel, ok := m.resolveForRoutingLocked(call, call.CallerID); ok {
		callerChannel.Send(EventCallTimeout, map[string]any{"callId": callID, "reason": callTimeoutReason})
	}
	for _, participant := range call.Participants {
		if participant == call.CallerID {
			continue
		}
		if participantChannel, ok := m.resolveForRoutingLocked(call, participant); ok {
			participantChannel.Send(EventCallEnded, map[string]any{"callId": callID, "userId": "system", "reason": callEndedReason})
		}
	}
	for _, participant := range call.Participants {
		m.presence[participant] = &Presence{Status: StatusAvailable}
	}
	delete(m.calls, callID)
}

// CallAccept implements the initiated -> active transition, and its
// idempotent re-bind path when the call is already active (spec §4.3).
func (m *Manager) CallAccept(ch Channel, callID CallID, receiverID UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call, ok := m.calls[callID]
	if !ok {
		ch.Send(EventError, map[string]any{"message": string(ErrCallNotFound)})
		return
	}
	if !call.hasParticipant(receiverID) {
		ch.Send(EventError, map[string]any{"message": string(ErrInvalidReceiver)})
		return
	}
	receiverChannel, online := m.resolveLocked(receiverID)
	if !online {
		ch.Send(EventError, map[string]any{"message": string(ErrReceiverNotConnected)})
		return
	}

	if call.Status == CallActive {
		call.ParticipantChannels[receiverID] = receiverChannel
		receiverChannel.Send(EventStartSignaling, map[string]any{"callId": callID})
		return
	}

	if call.noAnswerTimer != nil {
		call.noAnswerTimer()
		call.noAnswerTimer = nil
	}
	call.ParticipantChannels[receiverID] = receiverChannel
	call.Status = CallActive
	for _, participant := range call.Participants {
		m.setPresenceLocked(participant, StatusInCall, callID)
	}

	for _, participant := range call.Participants {
		if participant == receiverID {
			continue
		}
		if participantChannel, ok := m.resolveForRoutingLocked(call, participant); ok {
			participantChannel.Send(EventCallAccepted, map[string]any{"callId": callID, "receiverId": receiverID})
		}
	}
	// call_accepted must be observable by every non-accepting bound
	// participant strictly before the first start_signaling for this call.
	for _, participant := range call.Participants {
		if participantChannel, ok := m.resolveForRoutingLocked(call, participant); ok {
			participantChannel.Send(EventStartSignaling, map[string]any{"callId": callID})
		}
	}
}

// CallReject implements the initiated -> ∅ rejection transition. Unknown
// call ids are a silent no-op (spec §4.3, §7).
func (m *Manager) CallReject(callID CallID, userID UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call, ok := m.calls[callID]
	if !ok {
		return
	}
	if call.noAnswerTimer != nil {
		call.noAnswerTimer()
	}
	for _, participant := range call.Participants {
		m.presence[participant] = &Presence{Status: StatusAvailable}
	}
	if callerChannel, ok := m.resolveForRoutingLocked(call, call.CallerID); ok {
		callerChannel.Send(EventCallRejected, map[string]any{"callId": callID, "userId": userID})
	}
	delete(m.calls, callID)
}

// CallEnd implements the active -> ∅ end transition (and, by the same
// mechanics, an end during "initiated"). When fewer than two participants
// remain, the call is over: the remaining participant is reset to available
// and the record is deleted. Unknown call ids, and a userID that is not a
// current participant, are silent no-ops.
func (m *Manager) CallEnd(callID CallID, userID UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call, ok := m.calls[callID]
	if !ok || !call.hasParticipant(userID) {
		return
	}
	m.removeParticipantLocked(callID, call, userID, reasonUserEnded, StatusAvailable)
	if _, live := m.calls[callID]; live && len(call.Participants) < 2 {
		for _, participant := range call.Participants {
			m.presence[participant] = &Presence{Status: StatusAvailable}
		}
		if call.noAnswerTimer != nil {
			call.noAnswerTimer()
		}
		delete(m.calls, callID)
	}
}

// removeParticipantLocked is the shared tail of CallEnd and Disconnect: drop
// the user from the call, notify everyone still bound, reset the departing
// user's presence to departedStatus, and delete the record once empty.
func (m *Manager) removeParticipantLocked(callID CallID, call *Call, userID UserID, endedReason string, departedStatus PresenceStatus) {
	call.removeParticipant(userID)
	m.presence[userID] = &Presence{Status: departedStatus}

	for _, participant := range call.Participants {
		if participantChannel, ok := m.resolveForRoutingLocked(call, participant); ok {
			participantChannel.Send(EventCallEnded, map[string]any{"callId": callID, "userId": userID, "reason": endedReason})
		}
	}

	if len(call.Participants) == 0 {
		if call.noAnswerTimer != nil {
			call.noAnswerTimer()
		}
		delete(m.calls, callID)
	}
}

// UserReady implements the reconnect-without-re-accept handshake (spec
// §4.5): rebind the participant's cached channel from the directory, and
// re-broadcast start_signaling once every participant has a live channel.
func (m *Manager) UserReady(callID CallID, userID UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call, ok := m.calls[callID]
	if !ok {
		return
	}
	if ch, online := m.resolveLocked(userID); online {
		call.ParticipantChannels[userID] = ch
	}

	for _, participant := range call.Participants {
		if _, ok := m.resolveForRoutingLocked(call, participant); !ok {
			return
		}
	}
	for _, participant := range call.Participants {
		if participantChannel, ok := m.resolveForRoutingLocked(call, participant); ok {
			participantChannel.Send(EventStartSignaling, map[string]any{"callId": callID})
		}
	}
}

// ParticipantAdd and ParticipantRemove are the supplemented group-call hooks
// (SPEC_FULL "SUPPLEMENTED FEATURES"). They never touch the 1:1 invariants:
// they leave Status untouched and only set presence for the user they add
// or remove.
func (m *Manager) ParticipantAdd(callID CallID, userID UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call, ok := m.calls[callID]
	if !ok || call.hasParticipant(userID) {
		return
	}
	call.Participants = append(call.Participants, userID)
	if ch, online := m.resolveLocked(userID); online {
		call.ParticipantChannels[userID] = ch
	}
	if call.Status == CallActive {
		m.setPresenceLocked(userID, StatusInCall, callID)
	}
	for _, participant := range call.Participants {
		if participant == userID {
			continue
		}
		if participantChannel, ok := m.resolveForRoutingLocked(call, participant); ok {
			participantChannel.Send(EventParticipantAdded, map[string]any{"callId": callID, "userId": userID})
		}
	}
}

func (m *Manager) ParticipantRemove(callID CallID, userID UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call, ok := m.calls[callID]
	if !ok || !call.hasParticipant(userID) {
		return
	}
	call.removeParticipant(userID)
	m.presence[userID] = &Presence{Status: StatusAvailable}

	for _, participant := range call.Participants {
		if participantChannel, ok := m.resolveForRoutingLocked(call, participant); ok {
			participantChannel.Send(EventParticipantRemoved, map[string]any{"callId": callID, "userId": userID})
		}
	}
	if len(call.Participants) == 0 {
		if call.noAnswerTimer != nil {
			call.noAnswerTimer()
		}
		delete(m.calls, callID)
	}
}

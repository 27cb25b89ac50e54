package webrtc_test

import (
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/callrelay/csm/internal/clock"
	"github.com/callrelay/csm/internal/csm"
	"github.com/callrelay/csm/webrtc"
)

func testServer(t *testing.T) (*httptest.Server, *csm.Manager) {
	t.Helper()
	logger := log.New(&strings.Builder{}, "", 0)
	manager := csm.New(clock.System{}, logger)
	signaling := webrtc.NewServer(manager, logger)

	srv := httptest.NewServer(signaling)
	t.Cleanup(srv.Close)
	t.Cleanup(manager.Close)
	return srv, manager
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestRegisterOverWebSocket(t *testing.T) {
	srv, _ := testServer(t)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "register", "userId": "A"}))
	msg := readEvent(t, conn)
	require.Equal(t, "registered", msg["type"])
	require.Equal(t, true, msg["success"])
}

func TestCallInitiateAndOfferOverWebSocket(t *testing.T) {
	srv, _ := testServer(t)
	a := dial(t, srv)
	b := dial(t, srv)

	require.NoError(t, a.WriteJSON(map[string]any{"type": "register", "userId": "A"}))
	readEvent(t, a) // registered
	require.NoError(t, b.WriteJSON(map[string]any{"type": "register", "userId": "B"}))
	readEvent(t, b) // registered

	require.NoError(t, a.WriteJSON(map[string]any{
		"type": "call_initiate", "callId": "c1", "callerId": "A",
		"receiverIds": []string{"B"}, "callType": "audio",
	}))

	incoming := readEvent(t, b)
	require.Equal(t, "incoming_call", incoming["type"])
	require.Equal(t, "c1", incoming["callId"])

	ringing := readEvent(t, a)
	require.Equal(t, "call_ringing", ringing["type"])

	require.NoError(t, b.WriteJSON(map[string]any{"type": "call_accept", "callId": "c1", "receiverId": "B"}))
	accepted := readEvent(t, a)
	require.Equal(t, "call_accepted", accepted["type"])
	startA := readEvent(t, a)
	require.Equal(t, "start_signaling", startA["type"])
	startB := readEvent(t, b)
	require.Equal(t, "start_signaling", startB["type"])

	require.NoError(t, a.WriteJSON(map[string]any{
		"type": "webrtc_offer", "callId": "c1", "from": "A", "to": "B", "sdp": "sdp-o",
	}))
	offer := readEvent(t, b)
	require.Equal(t, "webrtc_offer", offer["type"])
	require.Equal(t, "A", offer["from"])
	require.Equal(t, "sdp-o", offer["sdp"])
	require.NotContains(t, offer, "to")
}

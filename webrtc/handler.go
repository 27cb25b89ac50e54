package webrtc

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/callrelay/csm/internal/csm"
)

// upgrader configures the HTTP->WebSocket handshake. CheckOrigin is wide
// open here, same as the teacher: origin policy is an authentication-layer
// concern the CSM spec declares out of scope.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server bridges HTTP/WebSocket connections to a csm.Manager. It owns no
// state of its own beyond the manager and logger it was built with.
type Server struct {
	manager *csm.Manager
	logger  *log.Logger
}

func NewServer(manager *csm.Manager, logger *log.Logger) *Server {
	return &Server{manager: manager, logger: logger}
}

// ServeHTTP makes Server an http.Handler so it can be registered directly
// on a mux, e.g. mux.Handle("/signal", signalingServer).
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.HandleWebSocket(w, r)
}

// HandleWebSocket upgrades the connection, then loops reading frames until
// the peer disconnects or sends a malformed frame. Every frame is dispatched
// to the Manager method matching its "type" field; the mapping is mechanical
// by design, so that the CSM itself never has to know about JSON or sockets.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("upgrade error: %v", err)
		return
	}
	ch := newChannel(conn, s.logger)

	defer func() {
		s.manager.Disconnect(ch)
		ch.Close()
	}()

	for {
		var msg envelope
		if err := conn.ReadJSON(&msg); err != nil {
			s.logger.Printf("channel %s: read error: %v", ch.ID(), err)
			return
		}
		s.dispatch(ch, msg)
	}
}

// dispatch recovers from a panic in any single handler so one malformed or
// unexpectedly-shaped message can't take the connection's read loop down
// (spec §7: exceptions are caught at the boundary, logged, socket kept open).
func (s *Server) dispatch(ch *wsChannel, msg envelope) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("channel %s: recovered from panic handling %q: %v", ch.ID(), msg.Type, r)
		}
	}()

	switch msg.Type {
	case csm.EventRegister:
		s.manager.Register(ch, msg.UserID)
	case csm.EventUserStatus:
		s.manager.UserStatus(ch, msg.UserID, msg.Status)
	case csm.EventCallInitiate:
		s.manager.CallInitiate(ch, msg.CallID, msg.CallerID, msg.ReceiverIDs, msg.CallType, msg.ExtraMeta)
	case csm.EventCallAccept:
		s.manager.CallAccept(ch, msg.CallID, msg.ReceiverID)
	case csm.EventCallReject:
		s.manager.CallReject(msg.CallID, msg.UserID)
	case csm.EventCallEnd:
		s.manager.CallEnd(msg.CallID, msg.UserID)
	case csm.EventUserReady:
		s.manager.UserReady(msg.CallID, msg.UserID)
	case csm.EventWebRTCOffer:
		s.manager.Offer(msg.CallID, msg.From, msg.To, msg.SDP)
	case csm.EventWebRTCAnswer:
		s.manager.Answer(msg.CallID, msg.From, msg.To, msg.SDP)
	case csm.EventICECandidate:
		s.manager.Candidate(msg.CallID, msg.From, msg.To, msg.Candidate)
	case csm.EventParticipantAdd:
		s.manager.ParticipantAdd(msg.CallID, msg.UserID)
	case csm.EventParticipantRemove:
		s.manager.ParticipantRemove(msg.CallID, msg.UserID)
	default:
		s.logger.Printf("channel %s: unknown event type %q", ch.ID(), msg.Type)
	}
}

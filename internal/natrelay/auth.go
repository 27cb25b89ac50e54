package natrelay

import (
	"log"
	"net"

	"github.com/pion/turn/v4"
)

// newAuthHandler adapts a static username->key map into the callback
// pion/turn invokes on every allocation request, logging each attempt the
// way the teacher's stunturnLogger did.
func newAuthHandler(users map[string][]byte, logger *log.Logger) turn.AuthHandler {
	return func(username, realm string, srcAddr net.Addr) ([]byte, bool) {
		key, ok := users[username]
		if !ok {
			logger.Printf("natrelay: rejected auth for %q from %s", username, srcAddr)
			return nil, false
		}
		return key, true
	}
}

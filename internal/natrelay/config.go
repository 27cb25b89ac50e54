// Package natrelay wires github.com/pion/turn/v4 into the signaling process
// as a sibling STUN/TURN relay. The Call Session Manager never touches media
// or NAT traversal — this package is purely ambient infrastructure a real
// WebRTC deployment runs alongside signaling, adapted from the teacher's
// combined STUN/TURN server into one config-driven relay instead of the
// teacher's duplicated "TURN" and "STUNTurn" initializer pairs.
package natrelay

import "regexp"

// Config describes one Relay's listeners and credentials.
type Config struct {
	PublicIP  string
	Realm     string
	Users     string // "user1=pass1,user2=pass2"
	ThreadNum int
	UDPPort   int
	TCPPort   int
	TLSPort   int
	EnableTCP bool
	EnableTLS bool
	CertFile  string
	KeyFile   string
}

var userPairPattern = regexp.MustCompile(`(\w+)=(\w+)`)

// parseUsers turns the "user=pass,user=pass" flag/env format into pairs,
// deferring key derivation (which needs the realm) to the caller.
func parseUsers(spec string) [][2]string {
	matches := userPairPattern.FindAllStringSubmatch(spec, -1)
	pairs := make([][2]string, 0, len(matches))
	for _, m := range matches {
		pairs = append(pairs, [2]string{m[1], m[2]})
	}
	return pairs
}

package natrelay

import (
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"

	"github.com/pion/logging"
	"github.com/pion/turn/v4"
)

// Relay bundles the UDP, TCP, and TLS variants of a TURN server (which, per
// RFC 5766, inherently also serves STUN) behind one set of credentials and
// one relay address.
type Relay struct {
	udp *turn.Server
	tcp *turn.Server
	tls *turn.Server

	logger *log.Logger
}

// New builds and starts every listener enabled by cfg. TCP and TLS are
// optional fallbacks for networks that block UDP; TLS is skipped entirely
// when cfg.CertFile is absent, matching the teacher's "run without TLS if
// certificates are not available" behavior.
func New(cfg Config, logger *log.Logger) (*Relay, error) {
	usersMap := make(map[string][]byte, 0)
	for _, pair := range parseUsers(cfg.Users) {
		usersMap[pair[0]] = turn.GenerateAuthKey(pair[0], cfg.Realm, pair[1])
		logger.Printf("natrelay: added TURN user %s", pair[0])
	}

	relayGen := &turn.RelayAddressGeneratorStatic{
		RelayAddress: net.ParseIP(cfg.PublicIP),
		Address:      "0.0.0.0",
	}

	loggerFactory := &logging.DefaultLoggerFactory{
		Writer:          logWriter{logger},
		DefaultLogLevel: logging.LogLevelWarn,
		ScopeLevels:     map[string]logging.LogLevel{},
	}

	authHandler := newAuthHandler(usersMap, logger)

	r := &Relay{logger: logger}

	udp, err := r.buildUDP(cfg, relayGen, authHandler, loggerFactory)
	if err != nil {
		return nil, fmt.Errorf("natrelay: udp: %w", err)
	}
	r.udp = udp

	if cfg.EnableTCP {
		tcp, err := r.buildTCP(cfg, relayGen, authHandler, loggerFactory)
		if err != nil {
			return nil, fmt.Errorf("natrelay: tcp: %w", err)
		}
		r.tcp = tcp
	}

	if cfg.EnableTLS {
		tlsSrv, err := r.buildTLS(cfg, relayGen, authHandler, loggerFactory)
		if err != nil {
			return nil, fmt.Errorf("natrelay: tls: %w", err)
		}
		r.tls = tlsSrv
	}

	return r, nil
}

// buildUDP opens ThreadNum UDP listeners on the same port and folds them
// into a single turn.Server, the standard pion/turn multi-listener pattern
// for spreading load across threads.
func (r *Relay) buildUDP(cfg Config, relayGen *turn.RelayAddressGeneratorStatic, authHandler turn.AuthHandler, lf logging.LoggerFactory) (*turn.Server, error) {
	packetConnConfigs := make([]turn.PacketConnConfig, cfg.ThreadNum)
	for i := 0; i < cfg.ThreadNum; i++ {
		conn, err := net.ListenPacket("udp4", "0.0.0.0:"+strconv.Itoa(cfg.UDPPort))
		if err != nil {
			return nil, fmt.Errorf("listener %d: %w", i, err)
		}
		packetConnConfigs[i] = turn.PacketConnConfig{
			PacketConn:            conn,
			RelayAddressGenerator: relayGen,
		}
		r.logger.Printf("natrelay: UDP STUN/TURN listener %d on %s", i, conn.LocalAddr())
	}
	return turn.NewServer(turn.ServerConfig{
		Realm:             cfg.Realm,
		AuthHandler:       authHandler,
		PacketConnConfigs: packetConnConfigs,
		LoggerFactory:     lf,
	})
}

func (r *Relay) buildTCP(cfg Config, relayGen *turn.RelayAddressGeneratorStatic, authHandler turn.AuthHandler, lf logging.LoggerFactory) (*turn.Server, error) {
	listenerConfigs := make([]turn.ListenerConfig, cfg.ThreadNum)
	for i := 0; i < cfg.ThreadNum; i++ {
		ln, err := net.Listen("tcp4", "0.0.0.0:"+strconv.Itoa(cfg.TCPPort))
		if err != nil {
			return nil, fmt.Errorf("listener %d: %w", i, err)
		}
		listenerConfigs[i] = turn.ListenerConfig{
			Listener:              ln,
			RelayAddressGenerator: relayGen,
		}
		r.logger.Printf("natrelay: TCP STUN/TURN listener %d on %s", i, ln.Addr())
	}
	return turn.NewServer(turn.ServerConfig{
		Realm:           cfg.Realm,
		AuthHandler:     authHandler,
		ListenerConfigs: listenerConfigs,
		LoggerFactory:   lf,
	})
}

// buildTLS wraps the same TCP listener pattern in a tls.Listener. It is
// skipped by the caller when no certificate is configured.
func (r *Relay) buildTLS(cfg Config, relayGen *turn.RelayAddressGeneratorStatic, authHandler turn.AuthHandler, lf logging.LoggerFactory) (*turn.Server, error) {
	if _, err := os.Stat(cfg.CertFile); os.IsNotExist(err) {
		r.logger.Printf("natrelay: no certificate at %s, skipping TLS listener", cfg.CertFile)
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load keypair: %w", err)
	}
	tlsConfig := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}

	listenerConfigs := make([]turn.ListenerConfig, cfg.ThreadNum)
	for i := 0; i < cfg.ThreadNum; i++ {
		tcpLn, err := net.Listen("tcp4", "0.0.0.0:"+strconv.Itoa(cfg.TLSPort))
		if err != nil {
			return nil, fmt.Errorf("listener %d: %w", i, err)
		}
		tlsLn := tls.NewListener(tcpLn, tlsConfig)
		listenerConfigs[i] = turn.ListenerConfig{
			Listener:              tlsLn,
			RelayAddressGenerator: relayGen,
		}
		r.logger.Printf("natrelay: TLS STUN/TURN listener %d on %s", i, tlsLn.Addr())
	}
	return turn.NewServer(turn.ServerConfig{
		Realm:           cfg.Realm,
		AuthHandler:     authHandler,
		ListenerConfigs: listenerConfigs,
		LoggerFactory:   lf,
	})
}

// Close shuts down every listener that was started. Safe to call on a Relay
// where TCP/TLS were never enabled.
func (r *Relay) Close() error {
	var firstErr error
	for _, s := range []*turn.Server{r.udp, r.tcp, r.tls} {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// logWriter adapts a *log.Logger to the io.Writer pion/logging wants for its
// DefaultLoggerFactory, so pion/turn's internal STUN/TURN tracing lands in
// the same sink as the rest of natrelay's logging.
type logWriter struct{ l *log.Logger }

func (w logWriter) Write(p []byte) (int, error) {
	w.l.Print(string(p))
	return len(p), nil
}

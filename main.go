/*
WebRTC Signaling Server
=======================

This binary is the composition root for a WebRTC signaling and call-control
service. It wires three independently testable pieces together:

  - internal/csm: the Call Session Manager, an in-memory state machine that
    tracks connected users, active calls, and routes opaque SDP/ICE payloads
    between them. It never touches a socket or a media byte.
  - webrtc: the WebSocket transport that decodes client frames into Manager
    calls and implements the Manager's outbound Channel over the connection.
  - internal/natrelay: a STUN/TURN relay (github.com/pion/turn/v4) that runs
    alongside signaling so clients have somewhere to ask for NAT traversal
    help, exactly as the original combined STUN/TURN + signaling server did.

The CSM's clock, call registry, and presence table are process-local and
volatile by design (spec: no persistence); restarting this binary drops all
in-flight calls.
*/
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/callrelay/csm/internal/clock"
	"github.com/callrelay/csm/internal/csm"
	"github.com/callrelay/csm/internal/natrelay"
	"github.com/callrelay/csm/webrtc"
)

const defaultPort = 8083

func main() {
	publicIP := flag.String("public-ip", "", "IP address the TURN relay can be contacted on. Auto-detected if empty.")
	turnUsers := flag.String("turn-users", "", "TURN credentials, e.g. \"user=pass,user2=pass2\"")
	realm := flag.String("realm", "pion.ly", "TURN authentication realm")
	threadNum := flag.Int("thread-num", 1, "Number of listeners per STUN/TURN protocol variant")
	turnPort := flag.Int("turn-port", 3478, "STUN/TURN UDP and TCP port")
	turnTLSPort := flag.Int("turn-tls-port", 5349, "STUN/TURN TLS port")
	enableTCP := flag.Bool("enable-tcp", true, "Enable STUN/TURN over TCP")
	enableTLS := flag.Bool("enable-tls", true, "Enable STUN/TURN over TLS (skipped if no certificate is found)")
	certFile := flag.String("tls-cert", "certs/fullchain.pem", "TLS certificate for the TURN TLS listener")
	keyFile := flag.String("tls-key", "certs/privkey.pem", "TLS private key for the TURN TLS listener")
	natrelayLogFile := flag.String("natrelay-log", "", "Log file for the STUN/TURN relay (stdout if empty)")
	csmLogFile := flag.String("csm-log", "", "Log file for the signaling/CSM server (stdout if empty)")
	flag.Parse()

	natrelayLogger, csmLogger := setupLogging(*natrelayLogFile, *csmLogFile)

	port := defaultPort
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			csmLogger.Fatalf("invalid PORT %q: %v", v, err)
		}
		port = p
	}

	if *turnUsers == "" {
		*turnUsers = "1ac96ad0a8374103e5c58441=drTJQZjbVFKpcXfn"
		natrelayLogger.Printf("no -turn-users given, using the documentation default credential (NOT for production)")
	}

	if *publicIP == "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		ip, err := natrelay.DetectPublicIP(ctx)
		cancel()
		if err != nil {
			natrelayLogger.Fatalf("no -public-ip given and auto-detection failed: %v", err)
		}
		*publicIP = ip
		natrelayLogger.Printf("auto-detected public IP: %s", *publicIP)
	}

	relay, err := natrelay.New(natrelay.Config{
		PublicIP:  *publicIP,
		Realm:     *realm,
		Users:     *turnUsers,
		ThreadNum: *threadNum,
		UDPPort:   *turnPort,
		TCPPort:   *turnPort,
		TLSPort:   *turnTLSPort,
		EnableTCP: *enableTCP,
		EnableTLS: *enableTLS,
		CertFile:  *certFile,
		KeyFile:   *keyFile,
	}, natrelayLogger)
	if err != nil {
		natrelayLogger.Fatalf("failed to start STUN/TURN relay: %v", err)
	}

	manager := csm.New(clock.System{}, csmLogger)
	signaling := webrtc.NewServer(manager, csmLogger)

	mux := http.NewServeMux()
	mux.HandleFunc("/", rootHandler)
	mux.HandleFunc("/health", healthHandler(manager))
	mux.Handle("/signal", signaling)

	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	go func() {
		csmLogger.Printf("signaling server listening on :%d (ws endpoint: /signal)", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			csmLogger.Fatalf("signaling server: %v", err)
		}
	}()

	natrelayLogger.Printf("STUN/TURN relay ready: public IP %s, realm %s, UDP/TCP port %d", *publicIP, *realm, *turnPort)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	csmLogger.Printf("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		csmLogger.Printf("http shutdown: %v", err)
	}
	manager.Close()
	if err := relay.Close(); err != nil {
		natrelayLogger.Printf("relay shutdown: %v", err)
	}
}

// rootHandler is the static liveness string described by spec §6.
func rootHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, "callrelay signaling server is running")
}

// healthHandler returns the JSON debug snapshot described by spec §6:
// connected user ids, active calls, and the presence map.
func healthHandler(manager *csm.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(manager.Snapshot()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// setupLogging builds the two per-concern loggers the rest of the server
// uses: one for the STUN/TURN relay, one for the CSM/signaling path. Each
// writes to its own file when one is given, and to stdout otherwise.
func setupLogging(natrelayLogFile, csmLogFile string) (*log.Logger, *log.Logger) {
	open := func(path, prefix string) *log.Logger {
		if path == "" {
			return log.New(os.Stdout, prefix, log.LstdFlags|log.Lshortfile)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			log.Fatalf("failed to open log file %s: %v", path, err)
		}
		return log.New(f, prefix, log.LstdFlags|log.Lshortfile)
	}
	return open(natrelayLogFile, "[NATRELAY] "), open(csmLogFile, "[SIGNALING] ")
}

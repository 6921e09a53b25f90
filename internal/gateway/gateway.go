// Package gateway serves a dialog's streamed reply over WebSocket so any
// number of browser consumers can replay it independently, exercising the
// same producer/replay-cursor duality internal/promise provides to an
// in-process consumer. It is grounded on the teacher's main.go client
// read/write pumps (ping cadence, write deadlines, payload limits) and
// internal/grpc/compress.go's Compressor interface, now backed by gzip and
// snappy instead of only gzip.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"miniagents/internal/agent"
	"miniagents/internal/config"
	"miniagents/internal/logging"
)

const (
	writeWait          = 10 * time.Second
	pongWaitMultiplier = 2
)

var pingInterval = 15 * time.Second

var upgrader = websocket.Upgrader{}

// frame is the wire envelope sent to every subscriber, one per promise
// piece, encoded as JSON then compressed with whatever codec the
// subscriber negotiated.
type frame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Err  string `json:"error,omitempty"`
}

// Gateway serves replayable token streams over WebSocket.
type Gateway struct {
	addr            string
	maxPayloadBytes int64
	verifier        *sessionTokenVerifier
	log             *logging.Logger

	server *http.Server

	mu      sync.RWMutex
	current agent.Reply
}

// New builds a Gateway from cfg. If cfg.GatewayAdminToken is non-empty,
// connections must present a signed session token as the "token" query
// parameter, naming the dialog session they're allowed to watch, matching
// the teacher's wsAuthenticator gate.
func New(cfg *config.Config, log *logging.Logger) (*Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("gateway: config must be provided")
	}
	if log == nil {
		log = logging.L()
	}
	g := &Gateway{
		addr:            cfg.GatewayAddr,
		maxPayloadBytes: cfg.GatewayMaxPayloadBytes,
		log:             log,
	}
	if cfg.GatewayAdminToken != "" {
		verifier, err := newSessionTokenVerifier(cfg.GatewayAdminToken)
		if err != nil {
			return nil, fmt.Errorf("gateway: building session token verifier: %w", err)
		}
		g.verifier = verifier
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", logging.HTTPTraceMiddleware(log)(http.HandlerFunc(g.handleUpgrade)))
	g.server = &http.Server{Addr: g.addr, Handler: mux}
	return g, nil
}

// Publish makes reply the stream new WebSocket connections will replay.
// Each connection gets its own Cursor over reply, so a slow browser tab
// never throttles another, and reconnecting mid-turn replays from the
// beginning rather than missing earlier tokens.
func (g *Gateway) Publish(reply agent.Reply) {
	g.mu.Lock()
	g.current = reply
	g.mu.Unlock()
}

// ListenAndServe starts the HTTP server; it blocks until Shutdown is called
// or the listener fails.
func (g *Gateway) ListenAndServe() error {
	err := g.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.server.Shutdown(ctx)
}

func (g *Gateway) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	log := logging.LoggerFromContext(r.Context())

	if g.verifier != nil {
		claims, err := g.verifier.verify(r.URL.Query().Get("token"))
		if err != nil {
			log.Warn("rejecting websocket upgrade", logging.Error(err))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		log = log.With(logging.String("session_id", claims.SessionID))
	}

	codec := Codecs["gzip"]
	if name := r.URL.Query().Get("codec"); name != "" {
		c, ok := Codecs[name]
		if !ok {
			http.Error(w, fmt.Sprintf("unknown codec %q", name), http.StatusBadRequest)
			return
		}
		codec = c
	}

	g.mu.RLock()
	reply := g.current
	g.mu.RUnlock()
	if reply == nil {
		http.Error(w, "no dialog in progress", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	if g.maxPayloadBytes > 0 {
		conn.SetReadLimit(g.maxPayloadBytes)
	}

	go g.servePieces(conn, reply, codec, log)
}

// servePieces streams reply's pieces to conn until the stream ends, an
// error occurs, or the connection closes. It owns the connection and
// closes it before returning, the write-pump half of the teacher's
// read/write pump pair (there is no meaningful inbound traffic here beyond
// keepalive pongs, so the read side is only a small goroutine that discards
// inbound messages).
func (g *Gateway) servePieces(conn *websocket.Conn, reply agent.Reply, codec Compressor, log *logging.Logger) {
	defer conn.Close()

	waitDuration := time.Duration(pongWaitMultiplier) * pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(waitDuration))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(waitDuration))
	})
	// Drain and discard inbound control frames so pong handling fires.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pieces := make(chan frame, 1)
	go pullPieces(ctx, reply, pieces)

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case f, ok := <-pieces:
			if !ok {
				return
			}
			if err := g.writeFrame(conn, codec, f); err != nil {
				log.Warn("gateway write error", logging.Error(err))
				return
			}
			if f.Type != "token" {
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				log.Warn("gateway ping failure", logging.Error(err))
				return
			}
		}
	}
}

func (g *Gateway) writeFrame(conn *websocket.Conn, codec Compressor, f frame) error {
	encoded, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	compressed, err := codec.Compress(encoded)
	if err != nil {
		return fmt.Errorf("compressing frame: %w", err)
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, compressed)
}

// pullPieces drains reply's cursor into pieces, translating end-of-stream
// and errors into terminal frames, then closes the channel.
func pullPieces(ctx context.Context, reply agent.Reply, pieces chan<- frame) {
	defer close(pieces)
	cur := reply.Iterate()
	for {
		token, err := cur.Next(ctx)
		if errors.Is(err, io.EOF) {
			pieces <- frame{Type: "end"}
			return
		}
		if err != nil {
			pieces <- frame{Type: "error", Err: err.Error()}
			return
		}
		select {
		case pieces <- frame{Type: "token", Text: token}:
		case <-ctx.Done():
			return
		}
	}
}

// Wordduel
//
// Two strangers are matched into a room and race to guess their own secret
// five-letter word, six tries each, watching each other's grids fill in live.
//
// Features:
// - Single websocket endpoint at /duel/ws; all game traffic is JSON envelopes
// - FIFO matchmaking: first JOIN waits, second JOIN starts the match
// - Secret words fetched per player from a random-word API at match creation
// - Both grids broadcast to both players after every accepted move
// - First correct guess wins; both connections close once the match ends
// - Finished rooms reaped on a configurable interval
// - Optional per-recipient redaction of the opponent's secret word
// - In-browser QR button to share the server, backed by go-qrcode

package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

type client struct {
	conn   *websocket.Conn
	send   chan Envelope
	remote string

	mu     sync.Mutex
	closed bool
}

func (c *client) Label() string {
	return c.remote
}

// enqueue hands an envelope to the write pump without blocking. A full
// buffer means the client has stopped reading; the message is dropped and
// the caller decides whether to shut the connection down. Enqueueing after
// shutdown is a no-op, since the two can race between a pair of clients.
func (c *client) enqueue(env Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

// shutdown closes the send channel exactly once. The write pump drains
// whatever is still buffered, then closes the underlying connection, so a
// final GAME_STATE always goes out before the socket dies.
func (c *client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump drives the connection: every frame goes through the dispatcher
// and the resulting messages are queued onto the addressed clients. The
// connection itself is closed by the write pump once the send channel
// drains, so a terminal snapshot is never cut off.
func (c *client) readPump(cfg *Config, d *Dispatcher) {
	defer c.shutdown()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		outs, err := d.Submit(context.Background(), raw, c)
		if err != nil {
			logf(cfg, "DUEL: Rejected message from %s: %v", c.remote, err)
		}

		for _, out := range outs {
			peer, ok := out.To.(*client)
			if !ok {
				continue
			}
			if !peer.enqueue(out.Env) {
				peer.shutdown()
			}
		}

		// Close both sides of a finished match, not just the side whose
		// move ended it.
		for _, out := range outs {
			if peer, ok := out.To.(*client); ok && peer != c && !d.ShouldKeepOpen(peer) {
				peer.shutdown()
			}
		}
		if !d.ShouldKeepOpen(c) {
			return
		}
	}
}

func (c *client) writePump(cfg *Config) {
	defer c.conn.Close()

	for env := range c.send {
		if err := c.conn.WriteJSON(env); err != nil {
			return
		}

		if cfg.verbose && env.Type == msgGameState {
			if payload, err := json.Marshal(env.Data); err == nil {
				logf(cfg, "DUEL: Sent %s (%s) to %s", env.Type, humanReadableSize(int64(len(payload))), c.remote)
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func serveDuelWS(cfg *Config, d *Dispatcher) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "DUEL: Upgrade error for %s: %v", realIP(r), err)
			return
		}

		c := &client{
			conn:   conn,
			send:   make(chan Envelope, 8),
			remote: realIP(r),
		}

		logf(cfg, "DUEL: Connected %s", c.remote)

		go c.writePump(cfg)
		c.readPump(cfg, d)

		logf(cfg, "DUEL: Disconnected %s", c.remote)
	}
}

// reaperLoop periodically evicts rooms whose match has ended. Both channels
// of a finished room have already been told to close, so eviction only
// frees bookkeeping.
func reaperLoop(cfg *Config, d *Dispatcher, reg *Registry) {
	ticker := time.NewTicker(cfg.reapInterval)
	for range ticker.C {
		for _, roomID := range reg.FinishedRooms() {
			playerIDs := reg.Reap(roomID)
			d.Evict(playerIDs)
			logf(cfg, "REAP: Evicted room %s (players %v)", roomID, playerIDs)
		}
	}
}

// ---- Static file paths ----

//go:embed duel/index.html
var indexHTML []byte

//go:embed duel/app.css
var duelCSS []byte

//go:embed duel/app.js
var duelJS []byte

func getIndexHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(indexHTML)
	}
}

func getCssHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(duelCSS)
	}
}

func getJsHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(duelJS)
	}
}

// qrHandler generates a PNG QR code for the duel page URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../qr; strip the trailing "/qr" to get the page URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// registerDuelGame sets up routes so that:
//   - $path        → HTML client
//   - $path/ws     → the game websocket
//   - $path/qr     → PNG QR code for the page URL
//
// All connected clients share one matchmaking pool; whoever JOINs while
// someone else is waiting gets matched with them.
func registerDuelGame(cfg *Config, path string, mux *httprouter.Router) {
	words := newWordAPI(cfg.wordAPI, cfg.wordTimeout)
	reg := newRegistry(words)
	d := newDispatcher(cfg, reg)

	if cfg.reapInterval > 0 {
		go reaperLoop(cfg, d, reg)
	}

	// Client view (HTML)
	mux.GET(cfg.prefix+path, getIndexHandler(cfg))

	// Shared assets
	mux.GET(cfg.prefix+"/assets/duel/app.css", getCssHandler(cfg))
	mux.GET(cfg.prefix+"/assets/duel/app.js", getJsHandler(cfg))

	// The game websocket
	mux.GET(cfg.prefix+path+"/ws", serveDuelWS(cfg, d))

	// QR code for sharing the page
	mux.GET(cfg.prefix+path+"/qr", qrHandler)
}

package main

// Every frame on the wire is a JSON envelope {"type": ..., "data": {...}}. Clients send CREATE, JOIN,
// GUESS, LETTER and BACKSPACE (LEAVE is reserved); the server answers with
// CREATION, ERROR_NOT_ENOUGH_PLAYERS, GAME_STATE or ERROR_UNK.

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Channel identifies one connected client. The dispatcher only needs a
// stable identity to key its maps and a label for logs; message delivery
// stays with the transport.
type Channel interface {
	Label() string
}

type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Outbound is one message addressed to one channel. The transport decides
// how (and whether) it gets delivered.
type Outbound struct {
	To  Channel
	Env Envelope
}

const (
	msgCreate    = "CREATE"
	msgJoin      = "JOIN"
	msgGuess     = "GUESS"
	msgLetter    = "LETTER"
	msgBackspace = "BACKSPACE"
	msgLeave     = "LEAVE"

	msgCreation         = "CREATION"
	msgGameState        = "GAME_STATE"
	msgNotEnoughPlayers = "ERROR_NOT_ENOUGH_PLAYERS"
	msgErrorUnknown     = "ERROR_UNK"
)

// One struct per inbound message kind, decoded once at the boundary and
// matched exhaustively below.
type (
	createMsg struct {
		PlayerName string `json:"player_name"`
	}
	joinMsg struct {
		PlayerID string `json:"player_id"`
	}
	guessMsg struct {
		PlayerID string `json:"player_id"`
		RoomID   string `json:"room_id"`
	}
	letterMsg struct {
		PlayerID string `json:"player_id"`
		RoomID   string `json:"room_id"`
		Letter   string `json:"letter"`
	}
	backspaceMsg struct {
		PlayerID string `json:"player_id"`
		RoomID   string `json:"room_id"`
	}
)

type inboundMsg interface {
	createMsg | joinMsg | guessMsg | letterMsg | backspaceMsg
}

func decodeData[T inboundMsg](data json.RawMessage) (T, error) {
	var msg T
	if len(data) == 0 {
		return msg, fmt.Errorf("%w: missing data", errMalformedMessage)
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", errMalformedMessage, err)
	}
	return msg, nil
}

func creationEnvelope(playerID string) Envelope {
	return Envelope{
		Type: msgCreation,
		Data: map[string]string{"player_id": playerID},
	}
}

func notEnoughPlayersEnvelope(queued bool) Envelope {
	return Envelope{
		Type: msgNotEnoughPlayers,
		Data: map[string]bool{"queued": queued},
	}
}

func gameStateEnvelope(snap Snapshot) Envelope {
	return Envelope{
		Type: msgGameState,
		Data: snap,
	}
}

func errorEnvelope(err error) Envelope {
	return Envelope{
		Type: msgErrorUnknown,
		Data: map[string]string{"error": err.Error()},
	}
}

// playerPhase tracks how far along the matchmaking flow a player is, so
// out-of-order messages (a JOIN before any CREATE, say) surface as typed
// errors instead of silent map misses.
type playerPhase int

const (
	phaseIdentified playerPhase = iota + 1
	phaseQueued
	phaseJoined
)

// Dispatcher routes one inbound message at a time into the registry and
// decides which channels hear about the result. It owns the idempotency
// bookkeeping: one player per channel, one room per player.
type Dispatcher struct {
	mu sync.Mutex

	cfg *Config
	reg *Registry

	players map[Channel]string
	phases  map[string]playerPhase
}

func newDispatcher(cfg *Config, reg *Registry) *Dispatcher {
	return &Dispatcher{
		cfg:     cfg,
		reg:     reg,
		players: make(map[Channel]string),
		phases:  make(map[string]playerPhase),
	}
}

// Submit handles one raw frame from a channel and returns the messages to
// deliver in response. Client errors come back as a single ERROR_UNK
// addressed to the sender, plus the error itself for logging; no state is
// mutated on a rejected message.
func (d *Dispatcher) Submit(ctx context.Context, raw []byte, ch Channel) ([]Outbound, error) {
	outs, err := d.route(ctx, raw, ch)
	if err != nil {
		return []Outbound{{To: ch, Env: errorEnvelope(err)}}, err
	}
	return outs, nil
}

func (d *Dispatcher) route(ctx context.Context, raw []byte, ch Channel) ([]Outbound, error) {
	var envelope struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedMessage, err)
	}

	switch envelope.Type {
	case msgCreate:
		msg, err := decodeData[createMsg](envelope.Data)
		if err != nil {
			return nil, err
		}
		return d.handleCreate(msg, ch)

	case msgJoin:
		msg, err := decodeData[joinMsg](envelope.Data)
		if err != nil {
			return nil, err
		}
		return d.handleJoin(ctx, msg, ch)

	case msgGuess:
		msg, err := decodeData[guessMsg](envelope.Data)
		if err != nil {
			return nil, err
		}
		return d.handleMove(msg.RoomID, func(game *Game) error {
			return game.Guess(msg.PlayerID)
		})

	case msgLetter:
		msg, err := decodeData[letterMsg](envelope.Data)
		if err != nil {
			return nil, err
		}
		return d.handleMove(msg.RoomID, func(game *Game) error {
			return game.Letter(msg.PlayerID, msg.Letter)
		})

	case msgBackspace:
		msg, err := decodeData[backspaceMsg](envelope.Data)
		if err != nil {
			return nil, err
		}
		return d.handleMove(msg.RoomID, func(game *Game) error {
			return game.Backspace(msg.PlayerID)
		})

	case msgLeave:
		return nil, fmt.Errorf("%w: %q is reserved but not implemented", errUnsupportedMessage, envelope.Type)

	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedMessage, envelope.Type)
	}
}

// handleCreate allocates a player for the channel, or returns the one it
// already has. Repeated CREATE on a channel never allocates twice.
func (d *Dispatcher) handleCreate(msg createMsg, ch Channel) ([]Outbound, error) {
	if msg.PlayerName == "" {
		return nil, fmt.Errorf("%w: missing player_name", errMalformedMessage)
	}

	d.mu.Lock()
	playerID, ok := d.players[ch]
	if !ok {
		playerID = d.reg.CreatePlayer(msg.PlayerName, ch)
		d.players[ch] = playerID
		d.phases[playerID] = phaseIdentified
		logf(d.cfg, "DUEL: Created player %s (%q) for %s", playerID, msg.PlayerName, ch.Label())
	}
	d.mu.Unlock()

	return []Outbound{{To: ch, Env: creationEnvelope(playerID)}}, nil
}

// handleJoin pairs the player into a room, queues them if nobody is
// waiting, or re-broadcasts the current state if they already joined.
func (d *Dispatcher) handleJoin(ctx context.Context, msg joinMsg, ch Channel) ([]Outbound, error) {
	if msg.PlayerID == "" {
		return nil, fmt.Errorf("%w: missing player_id", errMalformedMessage)
	}

	d.mu.Lock()
	phase, ok := d.phases[msg.PlayerID]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q has not been created", errUnknownPlayer, msg.PlayerID)
	}

	if phase == phaseJoined {
		roomID, ok := d.reg.RoomOf(msg.PlayerID)
		if !ok {
			return nil, fmt.Errorf("%w: no room for %q", errUnknownRoom, msg.PlayerID)
		}
		return d.broadcast(roomID)
	}

	if phase == phaseQueued {
		// Guard against a waiting player pairing with themselves: a repeat
		// JOIN just reaffirms their place in the queue. They hear about a
		// match through the broadcast when an opponent shows up.
		return []Outbound{{To: ch, Env: notEnoughPlayersEnvelope(true)}}, nil
	}

	roomID, paired, err := d.reg.PairOrQueue(ctx, msg.PlayerID)
	if err != nil {
		// The join failed wholesale; the player can retry.
		return nil, err
	}

	if !paired {
		d.mu.Lock()
		d.phases[msg.PlayerID] = phaseQueued
		d.mu.Unlock()
		logf(d.cfg, "DUEL: Queued player %s", msg.PlayerID)
		return []Outbound{{To: ch, Env: notEnoughPlayersEnvelope(true)}}, nil
	}

	game, err := d.reg.GameOf(roomID)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	for _, playerID := range game.PlayerIDs() {
		d.phases[playerID] = phaseJoined
	}
	d.mu.Unlock()

	logf(d.cfg, "DUEL: Matched players %v into room %s", game.PlayerIDs(), roomID)

	return d.broadcast(roomID)
}

// handleMove applies one move to the room's game and broadcasts the new
// state. A rejected move mutates nothing and reaches nobody but the sender.
func (d *Dispatcher) handleMove(roomID string, move func(*Game) error) ([]Outbound, error) {
	if roomID == "" {
		return nil, fmt.Errorf("%w: missing room_id", errMalformedMessage)
	}

	game, err := d.reg.GameOf(roomID)
	if err != nil {
		return nil, err
	}

	if err := move(game); err != nil {
		return nil, err
	}

	return d.broadcast(roomID)
}

// broadcast addresses the current snapshot to both of the room's channels,
// in registration order. With --redact-secrets each recipient gets their
// own view; otherwise both get the identical full snapshot, secret words
// and all.
func (d *Dispatcher) broadcast(roomID string) ([]Outbound, error) {
	game, err := d.reg.GameOf(roomID)
	if err != nil {
		return nil, err
	}

	playerIDs := game.PlayerIDs()

	// Taken once so both recipients see the same serialized state even if
	// a move on the same room lands mid-loop.
	full := game.Snapshot()

	outs := make([]Outbound, 0, len(playerIDs))
	for _, playerID := range playerIDs {
		ch, err := d.reg.ChannelOf(playerID)
		if err != nil {
			return nil, err
		}

		snap := full
		if d.cfg.redactSecrets {
			snap = game.SnapshotFor(playerID)
		}

		outs = append(outs, Outbound{To: ch, Env: gameStateEnvelope(snap)})
	}

	return outs, nil
}

// ShouldKeepOpen reports whether a channel still has business being open:
// false once the sender's room has finished, true otherwise. The transport
// applies the same check to the peer so both sides close symmetrically.
func (d *Dispatcher) ShouldKeepOpen(ch Channel) bool {
	d.mu.Lock()
	playerID, ok := d.players[ch]
	var phase playerPhase
	if ok {
		phase = d.phases[playerID]
	}
	d.mu.Unlock()

	if !ok || phase != phaseJoined {
		return true
	}

	roomID, ok := d.reg.RoomOf(playerID)
	if !ok {
		// Room already reaped; nothing left to keep the channel for.
		return false
	}

	game, err := d.reg.GameOf(roomID)
	if err != nil {
		return false
	}

	return !game.Over()
}

// Evict drops the dispatcher's bookkeeping for reaped players and their
// channels.
func (d *Dispatcher) Evict(playerIDs []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	evicted := make(map[string]struct{}, len(playerIDs))
	for _, playerID := range playerIDs {
		delete(d.phases, playerID)
		evicted[playerID] = struct{}{}
	}

	for ch, playerID := range d.players {
		if _, ok := evicted[playerID]; ok {
			delete(d.players, ch)
		}
	}
}

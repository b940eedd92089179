package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// idIssuer hands out opaque identifiers guaranteed unique for the lifetime
// of the issuer. Collisions between v4 UUIDs are astronomically unlikely,
// but the issued set is checked anyway; its memory only ever grows.
type idIssuer struct {
	mu     sync.Mutex
	issued map[string]struct{}
}

func newIDIssuer() *idIssuer {
	return &idIssuer{
		issued: make(map[string]struct{}),
	}
}

func (i *idIssuer) generate() string {
	i.mu.Lock()
	defer i.mu.Unlock()

	for {
		id := uuid.NewString()
		if _, exists := i.issued[id]; exists {
			continue
		}
		i.issued[id] = struct{}{}
		return id
	}
}

// matchQueue pairs players first-come-first-served. At most one player is
// ever left waiting; requeue exists only so a failed match creation can put
// the dequeued opponent back.
type matchQueue struct {
	waiting []string
}

// pair returns a waiting opponent if there is one; otherwise playerID
// becomes the waiting entry. Enqueueing the same identifier twice is a
// caller error, guarded at the dispatch layer.
func (q *matchQueue) pair(playerID string) (string, bool) {
	if len(q.waiting) == 0 {
		q.waiting = append(q.waiting, playerID)
		return "", false
	}

	opponent := q.waiting[len(q.waiting)-1]
	q.waiting = q.waiting[:len(q.waiting)-1]
	return opponent, true
}

func (q *matchQueue) requeue(playerID string) {
	q.waiting = append(q.waiting, playerID)
}

// Registry is the single owner of all shared matchmaking state: who is
// connected, what they are called, which room they are in, and the game
// each room is playing. Every mutation goes through one mutex so that
// pairing is atomic; individual games carry their own lock.
type Registry struct {
	mu sync.Mutex

	playerIDs *idIssuer
	roomIDs   *idIssuer
	queue     matchQueue
	words     WordProvider

	channels map[string]Channel
	names    map[string]string
	rooms    map[string]string
	games    map[string]*Game

	// Players whose room is mid-construction, so a concurrent re-join
	// cannot queue them a second time while the word fetch is in flight.
	pending map[string]struct{}
}

func newRegistry(words WordProvider) *Registry {
	return &Registry{
		playerIDs: newIDIssuer(),
		roomIDs:   newIDIssuer(),
		words:     words,
		channels:  make(map[string]Channel),
		names:     make(map[string]string),
		rooms:     make(map[string]string),
		games:     make(map[string]*Game),
		pending:   make(map[string]struct{}),
	}
}

// CreatePlayer allocates a fresh identifier and records the player's name
// and owning channel. It never fails.
func (reg *Registry) CreatePlayer(name string, ch Channel) string {
	playerID := reg.playerIDs.generate()

	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.channels[playerID] = ch
	reg.names[playerID] = name

	return playerID
}

// PairOrQueue either returns the room the player already belongs to, pairs
// the player with a waiting opponent into a brand-new room, or leaves the
// player as the sole waiting entry. The word fetches happen outside the
// registry lock; on a provider failure nothing is registered and the
// opponent goes back into the queue.
func (reg *Registry) PairOrQueue(ctx context.Context, playerID string) (string, bool, error) {
	reg.mu.Lock()

	if roomID, ok := reg.rooms[playerID]; ok {
		reg.mu.Unlock()
		return roomID, true, nil
	}
	if _, ok := reg.pending[playerID]; ok {
		// A room is already being built around this player.
		reg.mu.Unlock()
		return "", false, nil
	}

	opponent, matched := reg.queue.pair(playerID)
	if !matched {
		reg.mu.Unlock()
		return "", false, nil
	}

	reg.pending[playerID] = struct{}{}
	reg.pending[opponent] = struct{}{}
	reg.mu.Unlock()

	roomID, err := reg.createRoom(ctx, opponent, playerID)

	reg.mu.Lock()
	delete(reg.pending, playerID)
	delete(reg.pending, opponent)
	if err != nil {
		reg.queue.requeue(opponent)
		reg.mu.Unlock()
		return "", false, err
	}
	reg.mu.Unlock()

	return roomID, true, nil
}

// createRoom fetches one secret word per player, then registers the new
// game under the registry lock. All-or-nothing: a failed fetch leaves no
// partial room behind.
func (reg *Registry) createRoom(ctx context.Context, playerA, playerB string) (string, error) {
	playerIDs := []string{playerA, playerB}

	secretWords := make(map[string]string, len(playerIDs))
	for _, id := range playerIDs {
		word, err := reg.words.FetchWord(ctx, wordLength)
		if err != nil {
			return "", err
		}
		secretWords[id] = word
	}

	roomID := reg.roomIDs.generate()

	reg.mu.Lock()
	defer reg.mu.Unlock()

	names := map[string]string{
		playerA: reg.names[playerA],
		playerB: reg.names[playerB],
	}

	reg.games[roomID] = newGame(roomID, playerIDs, names, secretWords)
	reg.rooms[playerA] = roomID
	reg.rooms[playerB] = roomID

	return roomID, nil
}

// ChannelOf looks up the channel that owns a player.
func (reg *Registry) ChannelOf(playerID string) (Channel, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	ch, ok := reg.channels[playerID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUnknownPlayer, playerID)
	}
	return ch, nil
}

// RoomOf returns the room a player has been paired into, if any.
func (reg *Registry) RoomOf(playerID string) (string, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	roomID, ok := reg.rooms[playerID]
	return roomID, ok
}

// GameOf returns the game owned by a room.
func (reg *Registry) GameOf(roomID string) (*Game, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	game, ok := reg.games[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUnknownRoom, roomID)
	}
	return game, nil
}

// FinishedRooms lists rooms whose game has reached its terminal state.
func (reg *Registry) FinishedRooms() []string {
	reg.mu.Lock()
	games := make(map[string]*Game, len(reg.games))
	for roomID, game := range reg.games {
		games[roomID] = game
	}
	reg.mu.Unlock()

	finished := []string{}
	for roomID, game := range games {
		if game.Over() {
			finished = append(finished, roomID)
		}
	}
	return finished
}

// Reap evicts a room and both of its players from every map, returning the
// evicted player identifiers. Identifiers themselves are never reissued.
func (reg *Registry) Reap(roomID string) []string {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	game, ok := reg.games[roomID]
	if !ok {
		return nil
	}

	playerIDs := game.PlayerIDs()
	for _, playerID := range playerIDs {
		delete(reg.channels, playerID)
		delete(reg.names, playerID)
		delete(reg.rooms, playerID)
	}
	delete(reg.games, roomID)

	return playerIDs
}

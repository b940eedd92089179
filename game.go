package main

// A Game is the state of one match between exactly two players. Each player
// races to guess their own secret word: up to six guesses of five letters
// each, built up one letter at a time. The first player whose guess matches
// their secret wins; if both players burn all six guesses, nobody does.

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"
)

const (
	maxGuesses = 6
	wordLength = 5
)

// Snapshot is the full serialized state of a match, broadcast to both
// players after every accepted move.
type Snapshot struct {
	PlayerNames map[string]string   `json:"player_names"`
	PlayerIDs   []string            `json:"player_ids"`
	RoomID      string              `json:"room_id"`
	Guesses     map[string]string   `json:"guesses"`
	PastGuesses map[string][]string `json:"past_guesses"`
	SecretWords map[string]string   `json:"secret_words"`
	IsRight     map[string]bool     `json:"is_right"`
	GameOver    bool                `json:"game_over"`
	Winner      string              `json:"winner"`
}

type Game struct {
	mu sync.Mutex

	roomID    string
	playerIDs []string
	names     map[string]string

	guesses     map[string]string
	pastGuesses map[string][]string
	secretWords map[string]string
	isRight     map[string]bool

	gameOver bool
	winner   string
}

// newGame starts a match for the given players, in order. One secret word
// per player; membership is fixed for the lifetime of the game.
func newGame(roomID string, playerIDs []string, names map[string]string, secretWords map[string]string) *Game {
	return &Game{
		roomID:      roomID,
		playerIDs:   slices.Clone(playerIDs),
		names:       names,
		guesses:     lo.SliceToMap(playerIDs, func(id string) (string, string) { return id, "" }),
		pastGuesses: lo.SliceToMap(playerIDs, func(id string) (string, []string) { return id, []string{} }),
		secretWords: secretWords,
		isRight:     lo.SliceToMap(playerIDs, func(id string) (string, bool) { return id, false }),
	}
}

func (g *Game) player(playerID string) error {
	if _, ok := g.guesses[playerID]; !ok {
		return fmt.Errorf("%w: %q is not in room %q", errUnknownPlayer, playerID, g.roomID)
	}
	return nil
}

// Letter appends one lower-case letter to the player's in-progress guess.
func (g *Game) Letter(playerID, letter string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.player(playerID); err != nil {
		return err
	}
	if g.gameOver {
		return fmt.Errorf("%w: game is already over", errInvalidMove)
	}
	if len(letter) != 1 || letter[0] < 'a' || letter[0] > 'z' {
		return fmt.Errorf("%w: letter must be a single lower-case character", errInvalidMove)
	}
	if len(g.guesses[playerID]) >= wordLength {
		return fmt.Errorf("%w: guess already has %d letters", errInvalidMove, wordLength)
	}

	g.guesses[playerID] += letter

	return nil
}

// Backspace removes the last letter of the player's in-progress guess.
func (g *Game) Backspace(playerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.player(playerID); err != nil {
		return err
	}
	if g.gameOver {
		return fmt.Errorf("%w: game is already over", errInvalidMove)
	}
	if len(g.guesses[playerID]) == 0 {
		return fmt.Errorf("%w: cannot backspace an empty guess", errInvalidMove)
	}

	guess := g.guesses[playerID]
	g.guesses[playerID] = guess[:len(guess)-1]

	return nil
}

// Guess submits the player's in-progress guess. The guess must be exactly
// five letters, and a player gets at most six of them. The comparison with
// the secret word is exact; the first player to match wins, and a win is
// never reassigned even if the opponent matches afterwards.
func (g *Game) Guess(playerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.player(playerID); err != nil {
		return err
	}
	if g.gameOver {
		return fmt.Errorf("%w: game is already over", errInvalidMove)
	}
	if len(g.pastGuesses[playerID]) >= maxGuesses {
		return fmt.Errorf("%w: already guessed the maximum number of times (%d)", errInvalidMove, maxGuesses)
	}

	guess := g.guesses[playerID]
	if len(guess) != wordLength {
		return fmt.Errorf("%w: guess must be %d letters long", errInvalidMove, wordLength)
	}

	g.guesses[playerID] = ""
	g.pastGuesses[playerID] = append(g.pastGuesses[playerID], guess)

	if guess == g.secretWords[playerID] {
		g.isRight[playerID] = true
		// First correct guess wins. If the opponent was already right,
		// the winner is already set and stays set.
		if !lo.EveryBy(g.playerIDs, func(id string) bool { return g.isRight[id] }) {
			g.winner = playerID
		}
	}

	exhausted := lo.EveryBy(g.playerIDs, func(id string) bool {
		return len(g.pastGuesses[id]) == maxGuesses
	})
	anyRight := lo.SomeBy(g.playerIDs, func(id string) bool { return g.isRight[id] })

	if exhausted || anyRight {
		g.gameOver = true
	}

	return nil
}

// Over reports whether the match has reached its terminal state.
func (g *Game) Over() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.gameOver
}

// PlayerIDs returns the room's members in registration order.
func (g *Game) PlayerIDs() []string {
	return slices.Clone(g.playerIDs)
}

// Snapshot returns a copy of the full game state, both secret words
// included.
func (g *Game) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.snapshotLocked()
}

// SnapshotFor returns the game state as seen by one player: the opponent's
// secret word is masked until the match is over.
func (g *Game) SnapshotFor(playerID string) Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := g.snapshotLocked()

	if !g.gameOver {
		for id := range snap.SecretWords {
			if id != playerID {
				snap.SecretWords[id] = strings.Repeat("*", wordLength)
			}
		}
	}

	return snap
}

func (g *Game) snapshotLocked() Snapshot {
	return Snapshot{
		PlayerNames: lo.SliceToMap(g.playerIDs, func(id string) (string, string) { return id, g.names[id] }),
		PlayerIDs:   slices.Clone(g.playerIDs),
		RoomID:      g.roomID,
		Guesses:     lo.SliceToMap(g.playerIDs, func(id string) (string, string) { return id, g.guesses[id] }),
		PastGuesses: lo.SliceToMap(g.playerIDs, func(id string) (string, []string) { return id, slices.Clone(g.pastGuesses[id]) }),
		SecretWords: lo.SliceToMap(g.playerIDs, func(id string) (string, string) { return id, g.secretWords[id] }),
		IsRight:     lo.SliceToMap(g.playerIDs, func(id string) (string, bool) { return id, g.isRight[id] }),
		GameOver:    g.gameOver,
		Winner:      g.winner,
	}
}

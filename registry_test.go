package main

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	name string
}

func (f *fakeChannel) Label() string {
	return f.name
}

// fakeWords hands out canned five-letter words, or fails on demand.
type fakeWords struct {
	mu    sync.Mutex
	words []string
	next  int
	err   error
}

func (f *fakeWords) FetchWord(_ context.Context, length int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}
	word := f.words[f.next%len(f.words)]
	f.next++
	return word, nil
}

func testRegistry() (*Registry, *fakeWords) {
	words := &fakeWords{words: []string{"crane", "slate"}}
	return newRegistry(words), words
}

func TestIDIssuerUnique(t *testing.T) {
	issuer := newIDIssuer()

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := issuer.generate()
		_, dup := seen[id]
		require.False(t, dup, "issuer repeated %q", id)
		seen[id] = struct{}{}
	}
}

func TestMatchQueue(t *testing.T) {
	var q matchQueue

	opponent, matched := q.pair("pid-a")
	assert.False(t, matched)
	assert.Empty(t, opponent)

	opponent, matched = q.pair("pid-b")
	assert.True(t, matched)
	assert.Equal(t, "pid-a", opponent)

	// Nobody waiting again.
	_, matched = q.pair("pid-c")
	assert.False(t, matched)

	q.requeue("pid-a")
	opponent, matched = q.pair("pid-d")
	assert.True(t, matched)
	assert.Contains(t, []string{"pid-a", "pid-c"}, opponent)
}

func TestCreatePlayer(t *testing.T) {
	reg, _ := testRegistry()

	chA := &fakeChannel{name: "a"}
	pidA := reg.CreatePlayer("alice", chA)
	pidB := reg.CreatePlayer("bob", &fakeChannel{name: "b"})
	assert.NotEqual(t, pidA, pidB)

	ch, err := reg.ChannelOf(pidA)
	require.NoError(t, err)
	assert.Same(t, chA, ch)

	_, err = reg.ChannelOf("pid-nope")
	assert.ErrorIs(t, err, errUnknownPlayer)
}

func TestPairOrQueue(t *testing.T) {
	reg, _ := testRegistry()
	ctx := context.Background()

	pidA := reg.CreatePlayer("alice", &fakeChannel{name: "a"})
	pidB := reg.CreatePlayer("bob", &fakeChannel{name: "b"})

	// First player queues.
	roomID, paired, err := reg.PairOrQueue(ctx, pidA)
	require.NoError(t, err)
	assert.False(t, paired)
	assert.Empty(t, roomID)

	_, inRoom := reg.RoomOf(pidA)
	assert.False(t, inRoom)

	// Second player matches; both land in the same room.
	roomID, paired, err = reg.PairOrQueue(ctx, pidB)
	require.NoError(t, err)
	assert.True(t, paired)
	require.NotEmpty(t, roomID)

	roomA, ok := reg.RoomOf(pidA)
	require.True(t, ok)
	roomB, ok := reg.RoomOf(pidB)
	require.True(t, ok)
	assert.Equal(t, roomID, roomA)
	assert.Equal(t, roomID, roomB)

	game, err := reg.GameOf(roomID)
	require.NoError(t, err)
	assert.Equal(t, []string{pidA, pidB}, game.PlayerIDs())

	// Re-joining is idempotent: same room, no second pairing.
	again, paired, err := reg.PairOrQueue(ctx, pidA)
	require.NoError(t, err)
	assert.True(t, paired)
	assert.Equal(t, roomID, again)
}

// A storm of simultaneous joins must still pair players strictly two at a
// time: every room ends up with exactly two distinct members, nobody lands
// in more than one room, and at most one player is left waiting.
func TestPairOrQueueConcurrent(t *testing.T) {
	reg, _ := testRegistry()
	ctx := context.Background()

	const players = 100

	playerIDs := make([]string, players)
	for i := range playerIDs {
		playerIDs[i] = reg.CreatePlayer(fmt.Sprintf("player-%d", i), &fakeChannel{name: fmt.Sprintf("ch-%d", i)})
	}

	var wg sync.WaitGroup
	for _, playerID := range playerIDs {
		wg.Add(1)
		go func(playerID string) {
			defer wg.Done()
			_, _, err := reg.PairOrQueue(ctx, playerID)
			assert.NoError(t, err)
		}(playerID)
	}
	wg.Wait()

	members := make(map[string][]string)
	unpaired := 0
	for _, playerID := range playerIDs {
		roomID, ok := reg.RoomOf(playerID)
		if !ok {
			unpaired++
			continue
		}
		members[roomID] = append(members[roomID], playerID)
	}

	assert.LessOrEqual(t, unpaired, 1)
	assert.Len(t, members, (players-unpaired)/2)

	for roomID, roomMembers := range members {
		require.Len(t, roomMembers, 2, "room %q", roomID)
		require.NotEqual(t, roomMembers[0], roomMembers[1])

		game, err := reg.GameOf(roomID)
		require.NoError(t, err)
		assert.ElementsMatch(t, roomMembers, game.PlayerIDs())
	}
}

func TestPairOrQueueProviderFailure(t *testing.T) {
	reg, words := testRegistry()
	ctx := context.Background()

	pidA := reg.CreatePlayer("alice", &fakeChannel{name: "a"})
	pidB := reg.CreatePlayer("bob", &fakeChannel{name: "b"})

	_, _, err := reg.PairOrQueue(ctx, pidA)
	require.NoError(t, err)

	words.err = fmt.Errorf("%w: boom", errWordProvider)

	// The match fails wholesale: no room, nobody joined.
	_, paired, err := reg.PairOrQueue(ctx, pidB)
	assert.ErrorIs(t, err, errWordProvider)
	assert.False(t, paired)

	_, ok := reg.RoomOf(pidA)
	assert.False(t, ok)
	_, ok = reg.RoomOf(pidB)
	assert.False(t, ok)

	// The opponent went back into the queue, so a retry pairs them again.
	words.err = nil
	roomID, paired, err := reg.PairOrQueue(ctx, pidB)
	require.NoError(t, err)
	assert.True(t, paired)
	assert.NotEmpty(t, roomID)
}

func TestGameOfUnknownRoom(t *testing.T) {
	reg, _ := testRegistry()

	_, err := reg.GameOf("room-nope")
	assert.ErrorIs(t, err, errUnknownRoom)
}

func TestReap(t *testing.T) {
	reg, _ := testRegistry()
	ctx := context.Background()

	pidA := reg.CreatePlayer("alice", &fakeChannel{name: "a"})
	pidB := reg.CreatePlayer("bob", &fakeChannel{name: "b"})

	_, _, err := reg.PairOrQueue(ctx, pidA)
	require.NoError(t, err)
	roomID, _, err := reg.PairOrQueue(ctx, pidB)
	require.NoError(t, err)

	// An in-progress room is not finished.
	assert.Empty(t, reg.FinishedRooms())

	game, err := reg.GameOf(roomID)
	require.NoError(t, err)
	for _, r := range "crane" {
		require.NoError(t, game.Letter(pidA, string(r)))
	}
	require.NoError(t, game.Guess(pidA))

	assert.Equal(t, []string{roomID}, reg.FinishedRooms())

	reaped := reg.Reap(roomID)
	assert.ElementsMatch(t, []string{pidA, pidB}, reaped)

	_, err = reg.GameOf(roomID)
	assert.ErrorIs(t, err, errUnknownRoom)
	_, err = reg.ChannelOf(pidA)
	assert.ErrorIs(t, err, errUnknownPlayer)
	_, ok := reg.RoomOf(pidB)
	assert.False(t, ok)

	// Reaping twice is harmless.
	assert.Empty(t, reg.Reap(roomID))
}

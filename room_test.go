package main

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testConfig() *Config {
	return &Config{
		bind:            "127.0.0.1",
		port:            8080,
		roomTTL:         24 * time.Hour,
		rounds:          8,
		sweepInterval:   time.Hour,
		votingCountdown: 25 * time.Second,
	}
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := newRegistry(testConfig(), slog.New(slog.DiscardHandler))
	t.Cleanup(reg.Shutdown)
	return reg
}

func newTestClient() *Client {
	return &Client{
		id:   uuid.NewString(),
		send: make(chan any, 256),
	}
}

// waitFor drains a client's send channel until a message of type T
// arrives.
func waitFor[T any](t *testing.T, c *Client) T {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				t.Fatal("send channel closed while waiting")
			}
			if v, match := msg.(T); match {
				return v
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
		}
	}
}

func mustAttach(t *testing.T, c *Client, room *Room, name string, create bool) {
	t.Helper()
	if err := c.attach(room, name, create); err != nil {
		t.Fatalf("attach %q: %v", name, err)
	}
	c.room = room
}

func send(room *Room, c *Client, cmd command) {
	room.commands <- inbound{client: c, cmd: cmd}
}

func TestRandomRoomCode(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		code := randomRoomCode(roomCodeLength)
		if len(code) != roomCodeLength {
			t.Fatalf("code %q has length %d", code, len(code))
		}
		for _, ch := range code {
			if !strings.ContainsRune(roomCodeAlphabet, ch) {
				t.Fatalf("code %q contains %q outside the alphabet", code, ch)
			}
		}
		seen[code] = true
	}
	if len(seen) < 50 {
		t.Errorf("only %d distinct codes in 100 draws", len(seen))
	}
}

func TestRegistryCreateAndGet(t *testing.T) {
	reg := testRegistry(t)

	room := reg.Create()
	if len(room.code) != roomCodeLength {
		t.Fatalf("room code %q", room.code)
	}

	if _, ok := reg.Get(room.code); !ok {
		t.Error("created room not found")
	}
	if _, ok := reg.Get(strings.ToLower(room.code)); !ok {
		t.Error("lookup is not case-insensitive")
	}
	if _, ok := reg.Get("ZZZZ"); ok {
		t.Error("found a room that was never created")
	}
}

func TestRegistrySweep(t *testing.T) {
	reg := testRegistry(t)
	room := reg.Create()

	reg.sweep(time.Now())
	if _, ok := reg.Get(room.code); !ok {
		t.Fatal("sweep removed a room inside its TTL")
	}

	reg.sweep(time.Now().Add(25 * time.Hour))
	if _, ok := reg.Get(room.code); ok {
		t.Fatal("sweep kept an expired room")
	}

	select {
	case <-room.done:
	case <-time.After(2 * time.Second):
		t.Error("swept room was not closed")
	}
}

func TestJoinRejections(t *testing.T) {
	reg := testRegistry(t)
	room := reg.Create()

	alice := newTestClient()
	mustAttach(t, alice, room, "alice", true)
	waitFor[roomCreatedMsg](t, alice)

	// Case-insensitive collision against a connected player.
	impostor := newTestClient()
	err, ok := impostor.attach(room, "ALICE", false).(*joinError)
	if !ok || err.reason != "name-taken" {
		t.Fatalf("duplicate name: got %v, want name-taken", err)
	}

	blank := newTestClient()
	err, ok = blank.attach(room, "   ", false).(*joinError)
	if !ok || err.reason != "invalid-name" {
		t.Fatalf("blank name: got %v, want invalid-name", err)
	}

	// New names are rejected once a session is running.
	bob := newTestClient()
	mustAttach(t, bob, room, "bob", false)
	send(room, alice, startSessionCmd{Mode: ModeNormal})
	waitFor[sessionStartedMsg](t, bob)

	late := newTestClient()
	err, ok = late.attach(room, "carol", false).(*joinError)
	if !ok || err.reason != "in-progress" {
		t.Fatalf("late join: got %v, want in-progress", err)
	}
}

func TestNonHostCannotStart(t *testing.T) {
	reg := testRegistry(t)
	room := reg.Create()

	alice := newTestClient()
	bob := newTestClient()
	mustAttach(t, alice, room, "alice", true)
	mustAttach(t, bob, room, "bob", false)

	send(room, bob, startSessionCmd{Mode: ModeNormal})
	msg := waitFor[errorMsg](t, bob)
	if msg.Message == "" {
		t.Error("unauthorized start produced no error message")
	}

	send(room, bob, advanceRoundCmd{})
	waitFor[errorMsg](t, bob)
}

// Host disconnects mid-game, rights transfer to the next connected
// player, and the original host gets them back on reconnect with the
// session intact.
func TestHostTransferAndRestore(t *testing.T) {
	reg := testRegistry(t)
	room := reg.Create()

	alice := newTestClient()
	bob := newTestClient()
	carol := newTestClient()
	mustAttach(t, alice, room, "alice", true)
	mustAttach(t, bob, room, "bob", false)
	mustAttach(t, carol, room, "carol", false)

	send(room, alice, startSessionCmd{Mode: ModeNormal})
	started := waitFor[sessionStartedMsg](t, bob)
	if started.State.Phase != PhasePsychic {
		t.Fatalf("phase = %q, want %q", started.State.Phase, PhasePsychic)
	}

	room.unregister <- alice
	change := waitFor[hostChangedMsg](t, bob)
	if change.HostName != "bob" {
		t.Fatalf("host transferred to %q, want bob", change.HostName)
	}
	gone := waitFor[playerDisconnectedMsg](t, bob)
	if gone.PlayerName != "alice" {
		t.Fatalf("disconnected player %q, want alice", gone.PlayerName)
	}

	// Reconnect by name, case-insensitively, on a fresh connection.
	alice2 := newTestClient()
	mustAttach(t, alice2, room, "ALICE", false)

	restored := waitFor[hostChangedMsg](t, bob)
	if restored.HostName != "alice" {
		t.Fatalf("host restored to %q, want alice", restored.HostName)
	}
	back := waitFor[playerReconnectedMsg](t, bob)
	if back.PlayerName != "alice" {
		t.Fatalf("reconnected player %q, want alice", back.PlayerName)
	}

	// The full session state is pushed to the reconnecting player,
	// unchanged.
	state := waitFor[sessionStateMsg](t, alice2)
	if state.State.Phase != PhasePsychic || state.State.CurrentRound != 1 {
		t.Errorf("pushed state: phase=%q round=%d, want psychic/1", state.State.Phase, state.State.CurrentRound)
	}

	for _, p := range back.Room.Players {
		switch p.Name {
		case "alice":
			if !p.IsHost || !p.IsConnected {
				t.Errorf("alice: host=%v connected=%v, want true/true", p.IsHost, p.IsConnected)
			}
		case "bob":
			if p.IsHost {
				t.Error("bob kept host rights after restore")
			}
		}
	}
}

func TestRoomVotingLifecycle(t *testing.T) {
	reg := testRegistry(t)
	room := reg.Create()

	alice := newTestClient()
	bob := newTestClient()
	mustAttach(t, alice, room, "alice", true)
	mustAttach(t, bob, room, "bob", false)

	send(room, alice, updateModeCmd{Mode: ModeCustom})
	waitFor[gameModeMsg](t, bob)

	send(room, alice, addPromptCmd{Prompt: "hot vs cold"})
	waitFor[promptAddedMsg](t, bob)

	send(room, alice, startSessionCmd{Mode: ModeCustom, Prompts: []string{"up vs down"}})
	started := waitFor[sessionStartedMsg](t, bob)
	if started.State.Phase != PhasePromptVoting {
		t.Fatalf("phase = %q, want %q", started.State.Phase, PhasePromptVoting)
	}
	if len(started.State.Prompts) != 2 {
		t.Fatalf("candidates = %d, want 2", len(started.State.Prompts))
	}

	send(room, bob, votePromptCmd{PromptID: 1})
	waitFor[voteTallyMsg](t, alice)

	send(room, alice, lockVoteCmd{})
	send(room, bob, lockVoteCmd{})

	finished := waitFor[votingFinishedMsg](t, bob)
	if finished.State.Phase != PhasePsychic {
		t.Fatalf("phase = %q after all locked, want %q", finished.State.Phase, PhasePsychic)
	}
	if finished.State.Card == nil {
		t.Fatal("no card selected")
	}
}

// Messages queued for delivery must capture the session as it stood when
// the triggering handler finished, not whatever it mutates into later.
func TestBroadcastStateIsSnapshot(t *testing.T) {
	reg := testRegistry(t)
	room := reg.Create()

	alice := newTestClient()
	bob := newTestClient()
	mustAttach(t, alice, room, "alice", true)
	mustAttach(t, bob, room, "bob", false)

	send(room, alice, startSessionCmd{Mode: ModeNormal})
	started := waitFor[sessionStartedMsg](t, bob)

	send(room, alice, submitClueCmd{Clue: "warm"})
	after := waitFor[sessionStateMsg](t, bob)
	if after.State.Phase != PhaseGuessing {
		t.Fatalf("phase = %q after clue, want %q", after.State.Phase, PhaseGuessing)
	}

	if started.State.Phase != PhasePsychic || started.State.PsychicClue != "" {
		t.Errorf("earlier message mutated: phase=%q clue=%q, want psychic and empty",
			started.State.Phase, started.State.PsychicClue)
	}
}

// A client dropped for a full send buffer must never be written to
// again, even when a command from it is already in flight.
func TestDroppedClientDoesNotKillRoom(t *testing.T) {
	reg := testRegistry(t)
	room := reg.Create()

	alice := newTestClient()
	mustAttach(t, alice, room, "alice", true)
	waitFor[roomCreatedMsg](t, alice)

	slow := &Client{id: uuid.NewString(), send: make(chan any, 1)}
	mustAttach(t, slow, room, "slow", false)
	waitFor[playerJoinedMsg](t, alice)

	// The next broadcast overflows slow's buffer and drops it.
	carol := newTestClient()
	mustAttach(t, carol, room, "carol", false)
	waitFor[playerJoinedMsg](t, alice)

	// An in-flight command from the dropped client draws an error reply,
	// which must not hit the closed channel.
	send(room, slow, advanceRoundCmd{})

	send(room, carol, emojiCmd{Emoji: "🔥"})
	waitFor[emojiMsg](t, alice)

	// The slow client's channel was closed at drop time.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-slow.send:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("dropped client's send channel never closed")
		}
	}
}

func TestHostStatePushPreservesVotes(t *testing.T) {
	reg := testRegistry(t)
	room := reg.Create()

	alice := newTestClient()
	bob := newTestClient()
	mustAttach(t, alice, room, "alice", true)
	mustAttach(t, bob, room, "bob", false)

	prompts := []string{"hot vs cold", "up vs down"}
	send(room, alice, startSessionCmd{Mode: ModeCustom, Prompts: prompts})
	waitFor[sessionStartedMsg](t, bob)

	send(room, bob, votePromptCmd{PromptID: 1})
	waitFor[voteTallyMsg](t, bob)

	// Host pushes a snapshot that omits the vote set mid-vote.
	send(room, alice, pushStateCmd{State: &GameSession{
		Phase:        PhasePromptVoting,
		Mode:         ModeCustom,
		CurrentRound: 1,
		TotalRounds:  8,
		Prompts:      prompts,
		DialPosition: 50,
	}})

	pushed := waitFor[sessionStateMsg](t, bob)
	if len(pushed.State.PromptVotes) != 1 || pushed.State.PromptVotes[0].Voter != "bob" {
		t.Errorf("in-flight votes lost on push: %+v", pushed.State.PromptVotes)
	}

	send(room, bob, pushStateCmd{State: &GameSession{Phase: PhasePsychic}})
	waitFor[errorMsg](t, bob)
}

func TestEmojiReaction(t *testing.T) {
	reg := testRegistry(t)
	room := reg.Create()

	alice := newTestClient()
	bob := newTestClient()
	mustAttach(t, alice, room, "alice", true)
	mustAttach(t, bob, room, "bob", false)

	send(room, bob, emojiCmd{Emoji: "🎉"})
	msg := waitFor[emojiMsg](t, alice)
	if msg.Emoji != "🎉" || msg.PlayerName != "bob" {
		t.Errorf("emoji = %+v", msg)
	}
}

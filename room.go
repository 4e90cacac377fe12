package main

import (
	"crypto/rand"
	"log/slog"
	mrand "math/rand/v2"
	"strings"
	"sync"
	"time"
)

// Player is a roster entry. Names are the durable identity; connection
// ids are transport artifacts, reassigned on reconnect. Entries are never
// removed, only marked disconnected, so indices derived from roster
// position stay meaningful across reconnects.
type Player struct {
	ConnectionID string `json:"connectionId"`
	Name         string `json:"name"`
	IsHost       bool   `json:"isHost"`
	IsConnected  bool   `json:"isConnected"`
}

type roomState struct {
	Code          string   `json:"code"`
	Players       []Player `json:"players"`
	GameMode      GameMode `json:"gameMode"`
	CustomPrompts []string `json:"customPrompts"`
}

type joinAttempt struct {
	client *Client
	name   string
	create bool
	reply  chan error
}

type joinError struct {
	reason  string
	message string
}

func (e *joinError) Error() string { return e.message }

type inbound struct {
	client *Client
	cmd    command
}

// Room owns one game's full lifetime: roster, host designation, custom
// prompt list, and the embedded session. All mutation happens on the
// room's run goroutine, fed by channels, so handlers run to completion
// before the next message is processed and broadcasts always reflect a
// fully-applied state change.
type Room struct {
	code      string
	createdAt time.Time

	cfg    *Config
	logger *slog.Logger

	clients          map[*Client]bool
	players          []*Player
	originalHostName string
	customPrompts    []string
	mode             GameMode
	session          *GameSession
	rng              *mrand.Rand

	register   chan joinAttempt
	unregister chan *Client
	commands   chan inbound

	votingTicker *time.Ticker
	tickC        <-chan time.Time

	done      chan struct{}
	closeOnce sync.Once
}

func newRoom(code string, cfg *Config, logger *slog.Logger) *Room {
	return &Room{
		code:       code,
		createdAt:  time.Now(),
		cfg:        cfg,
		logger:     logger,
		clients:    make(map[*Client]bool),
		mode:       ModeNormal,
		rng:        mrand.New(mrand.NewPCG(mrand.Uint64(), mrand.Uint64())),
		register:   make(chan joinAttempt),
		unregister: make(chan *Client),
		commands:   make(chan inbound),
		done:       make(chan struct{}),
	}
}

func (r *Room) run() {
	for {
		select {
		case ja := <-r.register:
			ja.reply <- r.handleJoin(ja)

		case c := <-r.unregister:
			r.handleDisconnect(c)

		case in := <-r.commands:
			r.dispatch(in)

		case <-r.tickC:
			r.handleVotingTick()

		case <-r.done:
			r.stopCountdown()
			for c := range r.clients {
				r.drop(c)
				if c.conn != nil {
					_ = c.conn.Close()
				}
			}
			return
		}
	}
}

func (r *Room) close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
}

// drop removes a client whose send buffer overflowed and closes its
// channel exactly once. The conn teardown then reaches handleDisconnect
// through the usual unregister path.
func (r *Room) drop(c *Client) {
	if c.dropped {
		return
	}
	delete(r.clients, c)
	close(c.send)
	c.dropped = true
}

// broadcast delivers msg to every connected client, dropping clients
// whose send buffer is full.
func (r *Room) broadcast(msg any) {
	for c := range r.clients {
		select {
		case c.send <- msg:
		default:
			r.drop(c)
		}
	}
}

func (r *Room) broadcastExcept(skip *Client, msg any) {
	for c := range r.clients {
		if c == skip {
			continue
		}
		select {
		case c.send <- msg:
		default:
			r.drop(c)
		}
	}
}

func (r *Room) sendTo(c *Client, msg any) {
	if c.dropped {
		return
	}
	select {
	case c.send <- msg:
	default:
		r.drop(c)
	}
}

func (r *Room) findPlayer(name string) *Player {
	for _, p := range r.players {
		if strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return nil
}

func (r *Room) playerByConn(connID string) *Player {
	for _, p := range r.players {
		if p.ConnectionID == connID && p.IsConnected {
			return p
		}
	}
	return nil
}

func (r *Room) clientByConn(connID string) *Client {
	for c := range r.clients {
		if c.id == connID {
			return c
		}
	}
	return nil
}

func (r *Room) connectedHost() *Player {
	for _, p := range r.players {
		if p.IsHost && p.IsConnected {
			return p
		}
	}
	return nil
}

func (r *Room) firstConnected() *Player {
	for _, p := range r.players {
		if p.IsConnected {
			return p
		}
	}
	return nil
}

func (r *Room) connectedNames() []string {
	names := make([]string, 0, len(r.players))
	for _, p := range r.players {
		if p.IsConnected {
			names = append(names, p.Name)
		}
	}
	return names
}

func (r *Room) state() roomState {
	players := make([]Player, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, *p)
	}
	return roomState{
		Code:          r.code,
		Players:       players,
		GameMode:      r.mode,
		CustomPrompts: append([]string(nil), r.customPrompts...),
	}
}

// setHost moves host rights to p, demoting any current holder.
func (r *Room) setHost(p *Player) {
	for _, other := range r.players {
		other.IsHost = false
	}
	p.IsHost = true
}

func (r *Room) handleJoin(ja joinAttempt) error {
	c := ja.client
	name := strings.TrimSpace(ja.name)
	if name == "" {
		err := &joinError{reason: "invalid-name", message: "A display name is required."}
		r.sendReject(c, err)
		return err
	}

	// First named connection claims the room.
	if ja.create || len(r.players) == 0 {
		if len(r.players) > 0 {
			return r.handleJoin(joinAttempt{client: c, name: name})
		}

		p := &Player{ConnectionID: c.id, Name: name, IsHost: true, IsConnected: true}
		r.players = append(r.players, p)
		r.originalHostName = name
		r.clients[c] = true
		c.name = name

		r.sendTo(c, roomCreatedMsg{Type: "room-created", RoomCode: r.code, Room: r.state()})
		r.logger.Debug("GAMES: Room created", "room", r.code, "player", name)
		return nil
	}

	if existing := r.findPlayer(name); existing != nil {
		if existing.IsConnected {
			err := &joinError{reason: "name-taken", message: "That name is already taken. Please choose a different name."}
			r.sendReject(c, err)
			return err
		}
		r.handleReconnect(c, existing, name)
		return nil
	}

	if r.session != nil {
		err := &joinError{reason: "in-progress", message: "That game has already started."}
		r.sendReject(c, err)
		return err
	}

	p := &Player{ConnectionID: c.id, Name: name, IsConnected: true}
	r.players = append(r.players, p)
	if r.connectedHost() == nil {
		r.setHost(p)
	}
	r.clients[c] = true
	c.name = name

	r.broadcast(playerJoinedMsg{Type: "player-joined", PlayerName: name, Room: r.state()})
	r.logger.Debug("GAMES: Player joined", "room", r.code, "player", name)
	return nil
}

// handleReconnect reattaches a returning player to their roster entry.
// The room creator gets host rights back even if they were transferred
// while they were gone.
func (r *Room) handleReconnect(c *Client, p *Player, name string) {
	p.ConnectionID = c.id
	p.IsConnected = true
	r.clients[c] = true
	c.name = p.Name

	if strings.EqualFold(p.Name, r.originalHostName) && !p.IsHost {
		r.setHost(p)
		r.broadcast(hostChangedMsg{Type: "host-changed", HostName: p.Name})
	} else if r.connectedHost() == nil {
		r.setHost(p)
		r.broadcast(hostChangedMsg{Type: "host-changed", HostName: p.Name})
	}

	if r.session != nil {
		r.session.SyncRoster(r.connectedNames())
	}

	r.broadcast(playerReconnectedMsg{Type: "player-reconnected", PlayerName: p.Name, Room: r.state()})

	r.sendTo(c, gameModeMsg{Type: "game-mode-updated", GameMode: r.mode})
	if r.session != nil {
		r.sendTo(c, sessionStateMsg{Type: "session-state-updated", State: r.session.snapshot()})
	}

	r.logger.Debug("GAMES: Player reconnected", "room", r.code, "player", p.Name)
}

func (r *Room) sendReject(c *Client, err *joinError) {
	r.sendTo(c, joinRejectedMsg{Type: "join-rejected", Reason: err.reason, Message: err.message})
}

func (r *Room) handleDisconnect(c *Client) {
	r.drop(c)

	p := r.playerByConn(c.id)
	if p == nil {
		return
	}
	p.IsConnected = false

	if p.IsHost {
		p.IsHost = false
		if next := r.firstConnected(); next != nil {
			r.setHost(next)
			r.broadcast(hostChangedMsg{Type: "host-changed", HostName: next.Name})
		}
	}

	if r.session != nil {
		r.session.SyncRoster(r.connectedNames())

		// A departed player no longer counts toward either quorum.
		if r.session.AllVotesLocked() {
			r.finishVoting()
		} else if r.session.FinishGuessing() {
			r.broadcast(sessionStateMsg{Type: "session-state-updated", State: r.session.snapshot()})
		}
	}

	r.broadcast(playerDisconnectedMsg{Type: "player-disconnected", PlayerName: p.Name, Room: r.state()})
	r.logger.Debug("GAMES: Player disconnected", "room", r.code, "player", p.Name)
}

// dispatch routes one decoded command to its handler. Commands from
// connections that never joined are dropped.
func (r *Room) dispatch(in inbound) {
	c := in.client
	actor := r.playerByConn(c.id)
	if actor == nil {
		return
	}

	switch cmd := in.cmd.(type) {
	case startSessionCmd:
		r.handleStartSession(c, actor, cmd)
	case updateModeCmd:
		r.handleUpdateMode(c, actor, cmd)
	case addPromptCmd:
		r.handleAddPrompt(actor, cmd)
	case addVotingPromptCmd:
		r.AddPrompt(actor.Name, cmd.Prompt)
	case votePromptCmd:
		r.VotePrompt(actor.Name, cmd.PromptID)
	case lockVoteCmd:
		r.LockVote(actor.Name)
	case unlockVoteCmd:
		r.UnlockVote(actor.Name)
	case moveDialCmd:
		r.MoveDial(actor.Name, cmd.Position)
	case submitClueCmd:
		r.SubmitClue(actor.Name, cmd.Clue)
	case lockGuessCmd:
		r.LockGuess(actor.Name, cmd.Position)
	case pushStateCmd:
		r.handlePushState(c, actor, cmd)
	case advanceRoundCmd:
		if !actor.IsHost {
			r.sendTo(c, errorMsg{Type: "error", Message: "Only the host can advance the round."})
			return
		}
		r.AdvanceRound(actor.Name)
	case emojiCmd:
		if cmd.Emoji != "" {
			r.broadcast(emojiMsg{Type: "emoji-reaction", Emoji: cmd.Emoji, PlayerName: actor.Name})
		}
	case leaveCmd:
		r.handleDisconnect(c)
	}
}

func (r *Room) handleStartSession(c *Client, actor *Player, cmd startSessionCmd) {
	if !actor.IsHost {
		r.sendTo(c, errorMsg{Type: "error", Message: "Only the host can start the game."})
		return
	}
	if r.session != nil && r.session.Phase != PhaseEnded {
		return
	}

	if cmd.Mode == ModeNormal || cmd.Mode == ModeCustom {
		r.mode = cmd.Mode
	}
	for _, prompt := range cmd.Prompts {
		if _, ok := parsePrompt(prompt); !ok {
			continue
		}
		known := false
		for _, have := range r.customPrompts {
			if strings.EqualFold(have, prompt) {
				known = true
				break
			}
		}
		if !known {
			r.customPrompts = append(r.customPrompts, prompt)
		}
	}

	var prompts []string
	if r.mode == ModeCustom {
		prompts = append([]string(nil), r.customPrompts...)
	}

	r.session = newGameSession(r.mode, r.connectedNames(), prompts, r.cfg.rounds, int(r.cfg.votingCountdown.Seconds()), r.rng)
	if r.session.Phase == PhasePromptVoting {
		r.startCountdown()
	}

	r.broadcast(sessionStartedMsg{Type: "session-started", GameMode: r.mode, State: r.session.snapshot()})
	r.logger.Debug("GAMES: Session started", "room", r.code, "mode", r.mode, "rounds", r.session.TotalRounds)
}

func (r *Room) handleUpdateMode(c *Client, actor *Player, cmd updateModeCmd) {
	if !actor.IsHost {
		r.sendTo(c, errorMsg{Type: "error", Message: "Only the host can change the game mode."})
		return
	}
	if r.session != nil || (cmd.Mode != ModeNormal && cmd.Mode != ModeCustom) {
		return
	}

	r.mode = cmd.Mode
	r.broadcast(gameModeMsg{Type: "game-mode-updated", GameMode: r.mode})
}

func (r *Room) handleAddPrompt(actor *Player, cmd addPromptCmd) {
	if r.session != nil {
		return
	}
	if _, ok := parsePrompt(cmd.Prompt); !ok {
		return
	}

	r.customPrompts = append(r.customPrompts, cmd.Prompt)
	r.broadcast(promptAddedMsg{Type: "prompt-added", Prompt: cmd.Prompt, Prompts: append([]string(nil), r.customPrompts...)})
}

// handlePushState applies a host-pushed session snapshot. In-flight
// prompt votes survive a push that omits them, since the host client's
// copy of the vote set may lag the server's.
func (r *Room) handlePushState(c *Client, actor *Player, cmd pushStateCmd) {
	if !actor.IsHost {
		r.sendTo(c, errorMsg{Type: "error", Message: "Only the host can push session state."})
		return
	}
	if r.session == nil || cmd.State == nil {
		return
	}

	r.session.ApplyState(cmd.State)
	r.broadcastExcept(c, sessionStateMsg{Type: "session-state-updated", State: r.session.snapshot()})
}

// Countdown plumbing. The ticker exists only while prompt-voting is
// active; a nil tickC never fires in the run loop's select.

func (r *Room) startCountdown() {
	r.stopCountdown()
	r.votingTicker = time.NewTicker(time.Second)
	r.tickC = r.votingTicker.C
}

func (r *Room) stopCountdown() {
	if r.votingTicker != nil {
		r.votingTicker.Stop()
		r.votingTicker = nil
		r.tickC = nil
	}
}

func (r *Room) handleVotingTick() {
	if r.session == nil || r.session.Phase != PhasePromptVoting {
		r.stopCountdown()
		return
	}

	r.session.VotingTimeLeft--
	if r.session.VotingTimeLeft <= 0 {
		r.finishVoting()
		return
	}
	r.broadcast(votingTickMsg{Type: "voting-tick", TimeLeft: r.session.VotingTimeLeft})
}

func (r *Room) finishVoting() {
	if r.session == nil {
		return
	}
	if r.session.FinishVoting(r.session.VoteGen()) {
		r.stopCountdown()
		r.broadcast(votingFinishedMsg{Type: "voting-finished", State: r.session.snapshot()})
	}
}

// Room implements SessionDriver: each action mutates the authoritative
// session and broadcasts the observed result.
var _ SessionDriver = (*Room)(nil)

func (r *Room) VotePrompt(player string, promptID int) bool {
	if r.session == nil || !r.session.CastPromptVote(player, promptID) {
		return false
	}
	r.broadcastTally()
	return true
}

func (r *Room) LockVote(player string) bool {
	if r.session == nil {
		return false
	}
	changed := r.session.LockPromptVote(player)
	if changed {
		r.broadcastTally()
	}
	if r.session.AllVotesLocked() {
		r.finishVoting()
	}
	return changed
}

func (r *Room) UnlockVote(player string) bool {
	if r.session == nil || !r.session.UnlockPromptVote(player) {
		return false
	}
	r.broadcastTally()
	return true
}

func (r *Room) AddPrompt(player, prompt string) bool {
	if r.session == nil {
		return false
	}
	if _, ok := r.session.AddVotingPrompt(player, prompt); !ok {
		return false
	}
	r.customPrompts = append(r.customPrompts, prompt)
	r.broadcast(promptAddedMsg{Type: "prompt-added", Prompt: prompt, Prompts: append([]string(nil), r.session.Prompts...)})
	r.broadcastTally()
	return true
}

func (r *Room) SubmitClue(player, clue string) bool {
	if r.session == nil || !r.session.SubmitClue(player, clue) {
		return false
	}
	r.broadcast(sessionStateMsg{Type: "session-state-updated", State: r.session.snapshot()})
	return true
}

func (r *Room) MoveDial(player string, pos float64) bool {
	if r.session == nil || !r.session.MoveDial(player, pos) {
		return false
	}

	var mover *Client
	if p := r.findPlayer(player); p != nil {
		mover = r.clientByConn(p.ConnectionID)
	}
	r.broadcastExcept(mover, dialMovedMsg{Type: "dial-moved", Position: r.session.DialPosition, PlayerName: player})
	return true
}

func (r *Room) LockGuess(player string, pos float64) bool {
	if r.session == nil {
		return false
	}
	changed, done := r.session.LockGuess(player, pos)
	if changed {
		r.broadcast(sessionStateMsg{Type: "session-state-updated", State: r.session.snapshot()})
	}
	if done {
		r.logger.Debug("GAMES: Round scored", "room", r.code, "round", r.session.RoundScores[len(r.session.RoundScores)-1].Round, "points", r.session.RoundScores[len(r.session.RoundScores)-1].Points)
	}
	return changed
}

func (r *Room) AdvanceRound(string) bool {
	if r.session == nil || !r.session.Advance() {
		return false
	}
	if r.session.Phase == PhasePromptVoting {
		r.startCountdown()
	}
	r.broadcast(roundAdvancedMsg{Type: "round-advanced", State: r.session.snapshot()})
	return true
}

func (r *Room) broadcastTally() {
	r.broadcast(voteTallyMsg{
		Type:    "vote-tally-updated",
		Prompts: append([]string(nil), r.session.Prompts...),
		Votes:   append([]PromptVote(nil), r.session.PromptVotes...),
	})
}

// Registry is the process-wide map of live rooms. It is constructed by
// the entry point and injected wherever rooms are created or looked up;
// Shutdown stops the sweep and every room's timers.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	cfg    *Config
	logger *slog.Logger

	done     chan struct{}
	stopOnce sync.Once
}

func newRegistry(cfg *Config, logger *slog.Logger) *Registry {
	reg := &Registry{
		rooms:  make(map[string]*Room),
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
	go reg.sweepLoop()
	return reg
}

func (reg *Registry) Create() *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	var code string
	for {
		code = randomRoomCode(roomCodeLength)
		if _, exists := reg.rooms[code]; !exists {
			break
		}
	}

	room := newRoom(code, reg.cfg, reg.logger)
	reg.rooms[code] = room
	go room.run()

	reg.logger.Info("ROOMS: Created room", "room", code)
	return room
}

func (reg *Registry) Get(code string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, ok := reg.rooms[strings.ToUpper(code)]
	return room, ok
}

// sweep purges rooms older than the TTL, active or not.
func (reg *Registry) sweep(now time.Time) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for code, room := range reg.rooms {
		if now.Sub(room.createdAt) > reg.cfg.roomTTL {
			delete(reg.rooms, code)
			room.close()
			reg.logger.Info("ROOMS: Purged expired room", "room", code)
		}
	}
}

func (reg *Registry) sweepLoop() {
	ticker := time.NewTicker(reg.cfg.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			reg.sweep(time.Now())
		case <-reg.done:
			return
		}
	}
}

func (reg *Registry) Shutdown() {
	reg.stopOnce.Do(func() {
		close(reg.done)
	})

	reg.mu.Lock()
	defer reg.mu.Unlock()

	for code, room := range reg.rooms {
		delete(reg.rooms, code)
		room.close()
	}
}

const (
	roomCodeLength   = 4
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// randomRoomCode draws n characters from the code alphabet using
// rejection sampling, so every character is equally likely.
func randomRoomCode(n int) string {
	const max = byte(255 - (256 % len(roomCodeAlphabet)))

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)

	for {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}

		for _, b := range buf {
			if b <= max {
				out = append(out, roomCodeAlphabet[int(b)%len(roomCodeAlphabet)])
				if len(out) == n {
					return string(out)
				}
			}
		}
	}
}

package main

import (
	"math/rand/v2"
	"strings"
)

type Phase string

const (
	PhasePromptVoting Phase = "prompt-voting"
	PhasePsychic      Phase = "psychic"
	PhaseGuessing     Phase = "guessing"
	PhaseScoring      Phase = "scoring"
	PhaseEnded        Phase = "ended"
)

type GameMode string

const (
	ModeNormal GameMode = "normal"
	ModeCustom GameMode = "custom"
)

// PromptVote is one player's vote during prompt-voting. A locked vote
// with PromptID == abstainPrompt is an abstention.
type PromptVote struct {
	Voter    string `json:"voterId"`
	PromptID int    `json:"promptId"`
	LockedIn bool   `json:"isLockedIn"`
}

// GuessVote records a non-psychic player's locked dial position.
type GuessVote struct {
	Voter    string  `json:"voterId"`
	Name     string  `json:"voterName"`
	LockedIn bool    `json:"isLockedIn"`
	Position float64 `json:"dialPosition"`
}

type RoundScore struct {
	Round  int    `json:"round"`
	Points int    `json:"points"`
	Zone   string `json:"zone"`
}

type RoundClue struct {
	Round   int    `json:"round"`
	Clue    string `json:"clue"`
	Psychic string `json:"psychic"`
}

// GameSession is one playthrough's state machine. All mutation happens
// through its methods, on the owning room's goroutine (or, for local play,
// whatever single goroutine drives it). Mutating methods report whether
// they changed anything, so callers can skip broadcasts for silent no-ops.
type GameSession struct {
	Phase          Phase        `json:"phase"`
	Mode           GameMode     `json:"mode"`
	Players        []string     `json:"players"`
	CurrentRound   int          `json:"currentRound"`
	TotalRounds    int          `json:"totalRounds"`
	PsychicIndex   int          `json:"currentPsychicIndex"`
	Card           *Concept     `json:"currentCard"`
	TargetPosition float64      `json:"targetPosition"`
	TargetWidth    float64      `json:"targetWidth"`
	DialPosition   float64      `json:"dialPosition"`
	PsychicClue    string       `json:"psychicClue"`
	TotalScore     int          `json:"totalScore"`
	RoundScores    []RoundScore `json:"roundScores"`
	RoundClues     []RoundClue  `json:"roundClues"`
	Prompts        []string     `json:"customPrompts"`
	PromptVotes    []PromptVote `json:"promptVotes"`
	GuessVotes     []GuessVote  `json:"guessVotes"`
	VotingTimeLeft int          `json:"votingTimeLeft"`

	cardIndex int
	countdown int
	gen       int
	rng       *rand.Rand
}

// newGameSession builds a fresh session for the given connected roster.
// In custom mode with k prompts the round count is padded so every prompt
// can be used an equal number of times.
func newGameSession(mode GameMode, players []string, prompts []string, baseRounds, countdownSecs int, rng *rand.Rand) *GameSession {
	total := baseRounds
	if mode == ModeCustom && len(prompts) > 0 {
		k := len(prompts)
		total = k * ((baseRounds + k - 1) / k)
	}

	s := &GameSession{
		Mode:         mode,
		Players:      append([]string(nil), players...),
		CurrentRound: 1,
		TotalRounds:  total,
		TargetWidth:  targetWidth,
		DialPosition: 50,
		Prompts:      append([]string(nil), prompts...),
		countdown:    countdownSecs,
		rng:          rng,
	}

	if len(builtinConcepts) > 0 {
		s.cardIndex = rng.IntN(len(builtinConcepts))
	}

	if mode == ModeCustom && len(prompts) > 0 {
		s.enterPromptVoting()
	} else {
		s.drawBuiltinCard()
		s.Phase = PhasePsychic
	}

	return s
}

// VoteGen identifies the current prompt-voting window. A countdown that
// fires after the window already closed compares stale generations and
// becomes a no-op, so a transition can never be applied twice.
func (s *GameSession) VoteGen() int {
	return s.gen
}

func (s *GameSession) Psychic() string {
	if s.PsychicIndex >= 0 && s.PsychicIndex < len(s.Players) {
		return s.Players[s.PsychicIndex]
	}
	return ""
}

func (s *GameSession) hasPlayer(name string) bool {
	for _, p := range s.Players {
		if p == name {
			return true
		}
	}
	return false
}

func (s *GameSession) enterPromptVoting() {
	s.gen++
	s.Phase = PhasePromptVoting
	s.Card = nil
	s.PromptVotes = nil
	s.VotingTimeLeft = s.countdown
}

func (s *GameSession) drawBuiltinCard() {
	card := builtinConcepts[s.cardIndex%len(builtinConcepts)]
	s.cardIndex++
	s.Card = &card
	s.TargetPosition = adjustedTarget(s.rng.Float64() * 100)
}

// CastPromptVote records or re-keys a player's vote for a candidate
// prompt. The lock flag survives a re-vote.
func (s *GameSession) CastPromptVote(voter string, promptID int) bool {
	if s.Phase != PhasePromptVoting || !s.hasPlayer(voter) {
		return false
	}
	if promptID < 0 || promptID >= len(s.Prompts) {
		return false
	}

	for i := range s.PromptVotes {
		if s.PromptVotes[i].Voter == voter {
			s.PromptVotes[i].PromptID = promptID
			return true
		}
	}

	s.PromptVotes = append(s.PromptVotes, PromptVote{Voter: voter, PromptID: promptID})
	return true
}

// LockPromptVote locks a player's current vote, creating an abstention if
// they never voted. Re-locking an already-locked vote changes nothing.
func (s *GameSession) LockPromptVote(voter string) bool {
	if s.Phase != PhasePromptVoting || !s.hasPlayer(voter) {
		return false
	}

	for i := range s.PromptVotes {
		if s.PromptVotes[i].Voter == voter {
			if s.PromptVotes[i].LockedIn {
				return false
			}
			s.PromptVotes[i].LockedIn = true
			return true
		}
	}

	s.PromptVotes = append(s.PromptVotes, PromptVote{Voter: voter, PromptID: abstainPrompt, LockedIn: true})
	return true
}

func (s *GameSession) UnlockPromptVote(voter string) bool {
	if s.Phase != PhasePromptVoting {
		return false
	}

	for i := range s.PromptVotes {
		if s.PromptVotes[i].Voter == voter && s.PromptVotes[i].LockedIn {
			s.PromptVotes[i].LockedIn = false
			return true
		}
	}
	return false
}

// AddVotingPrompt appends a new candidate mid-vote and auto-votes its
// submitter for it. Returns the new prompt's id.
func (s *GameSession) AddVotingPrompt(voter, prompt string) (int, bool) {
	if s.Phase != PhasePromptVoting || !s.hasPlayer(voter) {
		return 0, false
	}
	if _, ok := parsePrompt(prompt); !ok {
		return 0, false
	}

	s.Prompts = append(s.Prompts, prompt)
	id := len(s.Prompts) - 1
	s.CastPromptVote(voter, id)
	return id, true
}

// AllVotesLocked reports whether every connected player has locked in,
// evaluated against the live roster.
func (s *GameSession) AllVotesLocked() bool {
	if s.Phase != PhasePromptVoting || len(s.Players) == 0 {
		return false
	}

	for _, p := range s.Players {
		locked := false
		for _, v := range s.PromptVotes {
			if v.Voter == p && v.LockedIn {
				locked = true
				break
			}
		}
		if !locked {
			return false
		}
	}
	return true
}

// FinishVoting closes the prompt-voting window identified by gen: the
// winning prompt becomes the round's card and a fresh target is drawn.
// A stale generation (countdown racing an all-locked-in exit) is a no-op.
func (s *GameSession) FinishVoting(gen int) bool {
	if s.Phase != PhasePromptVoting || gen != s.gen {
		return false
	}

	if len(s.Prompts) > 0 {
		winner := tallyVotes(s.PromptVotes, len(s.Prompts), s.rng)
		if card, ok := parsePrompt(s.Prompts[winner]); ok {
			s.Card = &card
			s.TargetPosition = adjustedTarget(s.rng.Float64() * 100)
		} else {
			s.drawBuiltinCard()
		}
	} else {
		s.drawBuiltinCard()
	}

	s.gen++
	s.TargetWidth = targetWidth
	s.PromptVotes = nil
	s.VotingTimeLeft = 0
	s.Phase = PhasePsychic
	return true
}

// SubmitClue accepts the round psychic's clue and opens guessing.
func (s *GameSession) SubmitClue(player, clue string) bool {
	clue = strings.TrimSpace(clue)
	if s.Phase != PhasePsychic || clue == "" || player != s.Psychic() {
		return false
	}

	s.PsychicClue = clue
	s.Phase = PhaseGuessing
	s.DialPosition = 50
	s.GuessVotes = nil
	return true
}

// MoveDial applies a shared-dial update. The dial is a shared whiteboard:
// any non-psychic connected player may overwrite it, last write wins.
// Moving it invalidates the mover's own locked guess, since that lock
// recorded a position the group has since abandoned.
func (s *GameSession) MoveDial(player string, pos float64) bool {
	if s.Phase != PhaseGuessing || !s.hasPlayer(player) || player == s.Psychic() {
		return false
	}

	if pos < 0 {
		pos = 0
	} else if pos > 100 {
		pos = 100
	}
	if pos == s.DialPosition {
		return false
	}

	s.DialPosition = pos
	for i := range s.GuessVotes {
		if s.GuessVotes[i].Voter == player {
			s.GuessVotes[i].LockedIn = false
		}
	}
	return true
}

// LockGuess locks a player's guess at the given dial position. Returns
// (changed, done): done means the quorum was reached and the round was
// scored.
func (s *GameSession) LockGuess(player string, pos float64) (bool, bool) {
	if s.Phase != PhaseGuessing || !s.hasPlayer(player) || player == s.Psychic() {
		return false, false
	}

	if pos < 0 {
		pos = 0
	} else if pos > 100 {
		pos = 100
	}

	changed := true
	found := false
	for i := range s.GuessVotes {
		if s.GuessVotes[i].Voter == player {
			found = true
			if s.GuessVotes[i].LockedIn && s.GuessVotes[i].Position == pos {
				changed = false
				break
			}
			s.GuessVotes[i].LockedIn = true
			s.GuessVotes[i].Position = pos
			break
		}
	}
	if !found {
		s.GuessVotes = append(s.GuessVotes, GuessVote{Voter: player, Name: player, LockedIn: true, Position: pos})
	}

	return changed, s.FinishGuessing()
}

// AllGuessesLocked reports whether every connected non-psychic player has
// a locked guess.
func (s *GameSession) AllGuessesLocked() bool {
	if s.Phase != PhaseGuessing || len(s.Players) < 2 {
		return false
	}

	psychic := s.Psychic()
	for _, p := range s.Players {
		if p == psychic {
			continue
		}
		locked := false
		for _, v := range s.GuessVotes {
			if v.Voter == p && v.LockedIn {
				locked = true
				break
			}
		}
		if !locked {
			return false
		}
	}
	return true
}

// FinishGuessing scores the round once the guess quorum is met. The
// shared dial position, not any individual vote, is what gets scored.
func (s *GameSession) FinishGuessing() bool {
	if !s.AllGuessesLocked() {
		return false
	}

	points, zone := scoreGuess(s.DialPosition, s.TargetPosition)
	s.RoundScores = append(s.RoundScores, RoundScore{Round: s.CurrentRound, Points: points, Zone: zone})
	s.TotalScore += points
	s.RoundClues = append(s.RoundClues, RoundClue{Round: s.CurrentRound, Clue: s.PsychicClue, Psychic: s.Psychic()})
	s.Phase = PhaseScoring
	return true
}

// Advance moves past the scoring display: either into the next round or,
// after the final round, into the terminal ended phase.
func (s *GameSession) Advance() bool {
	if s.Phase != PhaseScoring {
		return false
	}

	if s.CurrentRound+1 > s.TotalRounds {
		s.Phase = PhaseEnded
		return true
	}

	s.CurrentRound++
	if len(s.Players) > 0 {
		s.PsychicIndex = (s.PsychicIndex + 1) % len(s.Players)
	}
	s.DialPosition = 50
	s.PsychicClue = ""
	s.GuessVotes = nil

	if s.Mode == ModeCustom && len(s.Prompts) > 0 {
		s.enterPromptVoting()
	} else {
		s.drawBuiltinCard()
		s.PromptVotes = nil
		s.Phase = PhasePsychic
	}
	return true
}

// SyncRoster rebuilds the session's live player list after a disconnect or
// reconnect. The psychic is re-derived by name where possible; otherwise
// the index is clamped into the shrunk roster.
func (s *GameSession) SyncRoster(connected []string) {
	psychic := s.Psychic()
	s.Players = append([]string(nil), connected...)

	if len(s.Players) == 0 {
		s.PsychicIndex = 0
		return
	}

	for i, p := range s.Players {
		if p == psychic {
			s.PsychicIndex = i
			return
		}
	}
	s.PsychicIndex %= len(s.Players)
}

// ApplyState overwrites the session's broadcastable fields with a pushed
// snapshot. A snapshot that omits prompt votes during prompt-voting keeps
// the in-flight vote set, since the pusher's copy may lag the server's.
func (s *GameSession) ApplyState(in *GameSession) {
	saved := s.PromptVotes

	s.Phase = in.Phase
	s.Mode = in.Mode
	s.CurrentRound = in.CurrentRound
	s.TotalRounds = in.TotalRounds
	s.PsychicIndex = in.PsychicIndex
	s.Card = in.Card
	s.TargetPosition = in.TargetPosition
	s.TargetWidth = in.TargetWidth
	s.DialPosition = in.DialPosition
	s.PsychicClue = in.PsychicClue
	s.TotalScore = in.TotalScore
	s.RoundScores = in.RoundScores
	s.RoundClues = in.RoundClues
	s.Prompts = in.Prompts
	s.PromptVotes = in.PromptVotes
	s.GuessVotes = in.GuessVotes
	s.VotingTimeLeft = in.VotingTimeLeft

	if s.Phase == PhasePromptVoting && len(in.PromptVotes) == 0 {
		s.PromptVotes = saved
	}
}

// snapshot returns a deep copy of the session for queueing into send
// buffers. Queued messages are serialized later, off the room goroutine,
// so they must capture the state at queue time rather than alias slices
// the session keeps mutating.
func (s *GameSession) snapshot() *GameSession {
	out := *s
	if s.Card != nil {
		card := *s.Card
		out.Card = &card
	}
	out.Players = append([]string(nil), s.Players...)
	out.Prompts = append([]string(nil), s.Prompts...)
	out.PromptVotes = append([]PromptVote(nil), s.PromptVotes...)
	out.GuessVotes = append([]GuessVote(nil), s.GuessVotes...)
	out.RoundScores = append([]RoundScore(nil), s.RoundScores...)
	out.RoundClues = append([]RoundClue(nil), s.RoundClues...)
	return &out
}

// SessionDriver is the single surface through which player actions reach
// the state machine, shared by local pass-and-play and the networked
// room. Implementations report whether the action was applied; rejected
// actions are silent no-ops.
type SessionDriver interface {
	VotePrompt(player string, promptID int) bool
	LockVote(player string) bool
	UnlockVote(player string) bool
	AddPrompt(player, prompt string) bool
	SubmitClue(player, clue string) bool
	MoveDial(player string, pos float64) bool
	LockGuess(player string, pos float64) bool
	AdvanceRound(player string) bool
}

// LocalSession drives a session with no network relay: every player shares
// one screen, so anyone may advance past scoring and the voting countdown
// is ticked by the embedding caller.
type LocalSession struct {
	State *GameSession
}

func NewLocalSession(mode GameMode, players, prompts []string, baseRounds, countdownSecs int, rng *rand.Rand) *LocalSession {
	return &LocalSession{State: newGameSession(mode, players, prompts, baseRounds, countdownSecs, rng)}
}

func (l *LocalSession) VotePrompt(player string, promptID int) bool {
	return l.State.CastPromptVote(player, promptID)
}

func (l *LocalSession) LockVote(player string) bool {
	changed := l.State.LockPromptVote(player)
	if l.State.AllVotesLocked() {
		l.State.FinishVoting(l.State.VoteGen())
	}
	return changed
}

func (l *LocalSession) UnlockVote(player string) bool {
	return l.State.UnlockPromptVote(player)
}

func (l *LocalSession) AddPrompt(player, prompt string) bool {
	_, ok := l.State.AddVotingPrompt(player, prompt)
	return ok
}

func (l *LocalSession) SubmitClue(player, clue string) bool {
	return l.State.SubmitClue(player, clue)
}

func (l *LocalSession) MoveDial(player string, pos float64) bool {
	return l.State.MoveDial(player, pos)
}

func (l *LocalSession) LockGuess(player string, pos float64) bool {
	changed, _ := l.State.LockGuess(player, pos)
	return changed
}

func (l *LocalSession) AdvanceRound(string) bool {
	return l.State.Advance()
}

// Tick counts the voting window down by one second, closing it at zero.
func (l *LocalSession) Tick() {
	s := l.State
	if s.Phase != PhasePromptVoting {
		return
	}
	s.VotingTimeLeft--
	if s.VotingTimeLeft <= 0 {
		s.FinishVoting(s.VoteGen())
	}
}

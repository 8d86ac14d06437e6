package state

import (
	"github.com/light3739/SomniaMafia-sub000/internal/commitment"
)

// Role is the plaintext value a deck card ultimately decrypts to.
// RoleUnknown is the "not yet decrypted by this observer" placeholder, not a
// playable role.
type Role string

const (
	RoleMafia     Role = "mafia"
	RoleDoctor    Role = "doctor"
	RoleDetective Role = "detective"
	RoleCivilian  Role = "civilian"
	RoleUnknown   Role = "unknown"
)

// IsMafia reports whether the role counts toward the mafia faction.
func (r Role) IsMafia() bool {
	return r == RoleMafia
}

// IsTown reports whether the role counts toward the town faction.
func (r Role) IsTown() bool {
	switch r {
	case RoleDoctor, RoleDetective, RoleCivilian:
		return true
	case RoleMafia, RoleUnknown:
		return false
	}
	return false
}

// Valid reports whether r is a playable role value.
func (r Role) Valid() bool {
	switch r {
	case RoleMafia, RoleDoctor, RoleDetective, RoleCivilian:
		return true
	case RoleUnknown:
		return false
	}
	return false
}

type Phase string

const (
	PhaseLobby     Phase = "lobby"
	PhaseShuffling Phase = "shuffling"
	PhaseReveal    Phase = "reveal"
	PhaseDay       Phase = "day"
	PhaseVoting    Phase = "voting"
	PhaseNight     Phase = "night"
	PhaseEnded     Phase = "ended"
)

// NightActionType is the action committed during NIGHT by non-mafia players.
type NightActionType string

const (
	NightActionNone  NightActionType = "none"
	NightActionKill  NightActionType = "kill"
	NightActionHeal  NightActionType = "heal"
	NightActionCheck NightActionType = "check"
)

func (a NightActionType) Valid() bool {
	switch a {
	case NightActionNone, NightActionKill, NightActionHeal, NightActionCheck:
		return true
	}
	return false
}

type Winner string

const (
	WinnerTown  Winner = "town"
	WinnerMafia Winner = "mafia"
	WinnerDraw  Winner = "draw"
)

// KeyEnvelope carries one player's decryption key, encrypted off-chain for a
// specific recipient. The chain stores it opaquely and only tracks delivery.
type KeyEnvelope struct {
	To   string `json:"to"`
	Blob []byte `json:"blob"`
}

// Player is one room participant. Players are never deleted: eliminated or
// kicked players stay in the list with Active=false so the full game remains
// auditable.
type Player struct {
	Addr     string `json:"addr"`
	Nickname string `json:"nickname"`
	PubKey   []byte `json:"pubKey"`            // 32-byte ed25519 key registered on join
	SealPub  []byte `json:"sealPub,omitempty"` // ristretto255 key peers seal key shares to

	Active bool `json:"active"`
	Kicked bool `json:"kicked,omitempty"`

	DeckCommitted  bool `json:"deckCommitted,omitempty"`
	SharedKeys     bool `json:"sharedKeys,omitempty"`
	ConfirmedRole  bool `json:"confirmedRole,omitempty"`
	Voted          bool `json:"voted,omitempty"`
	NightCommitted bool `json:"nightCommitted,omitempty"`
	NightRevealed  bool `json:"nightRevealed,omitempty"`
	ClaimedMafia   bool `json:"claimedMafia,omitempty"`

	// Four parallel commit-reveal slots, one per schema.
	DeckCommit  *commitment.Commitment `json:"deckCommit,omitempty"`
	RoleCommit  *commitment.Commitment `json:"roleCommit,omitempty"`
	NightCommit *commitment.Commitment `json:"nightCommit,omitempty"`
	MafiaCommit *commitment.Commitment `json:"mafiaCommit,omitempty"`

	KeyEnvelopes []KeyEnvelope `json:"keyEnvelopes,omitempty"`

	// RevealedRole is set by the endgame role reveal; empty until then.
	RevealedRole Role `json:"revealedRole,omitempty"`
}

type Vote struct {
	Voter  string `json:"voter"`
	Target string `json:"target"`
}

// NightAction is a revealed (public) night action for the current night.
type NightAction struct {
	Actor  string          `json:"actor"`
	Action NightActionType `json:"action"`
	Target string          `json:"target,omitempty"`
}

// MafiaReveal is a revealed mafia elimination target for the current night.
type MafiaReveal struct {
	Actor  string `json:"actor"`
	Target string `json:"target"`
}

type RoomParams struct {
	MinPlayers int `json:"minPlayers"`
	MaxPlayers int `json:"maxPlayers"`

	// Per-phase timeouts in seconds; zero means the app default.
	ShuffleTimeoutSecs uint64 `json:"shuffleTimeoutSecs,omitempty"`
	RevealTimeoutSecs  uint64 `json:"revealTimeoutSecs,omitempty"`
	DayTimeoutSecs     uint64 `json:"dayTimeoutSecs,omitempty"`
	VoteTimeoutSecs    uint64 `json:"voteTimeoutSecs,omitempty"`
	NightTimeoutSecs   uint64 `json:"nightTimeoutSecs,omitempty"`
}

// Room is the aggregate root for one game. Terminal rooms (PhaseEnded) are
// kept for post-game audit.
type Room struct {
	ID     uint64     `json:"id"`
	Name   string     `json:"name"`
	Host   string     `json:"host"`
	Params RoomParams `json:"params"`

	// PrimeDec is the decimal cipher modulus fixed at room creation.
	PrimeDec string `json:"prime"`

	Phase          Phase `json:"phase"`
	DayCount       int   `json:"dayCount"`
	PhaseStartedAt int64 `json:"phaseStartedAt"`
	PhaseDeadline  int64 `json:"phaseDeadline,omitempty"`

	Players []*Player `json:"players"` // join order; index is shuffle turn order

	// Shuffle progress: index into Players of the turn holder. Equal to
	// len(Players) once every (non-kicked) player has taken their turn.
	CurrentShuffler int `json:"currentShuffler"`

	// Deck is the latest revealed deck, cards as decimal strings. Length is
	// fixed at the player count when the first shuffler reveals.
	Deck []string `json:"deck,omitempty"`

	Votes        []Vote        `json:"votes,omitempty"`
	NightActions []NightAction `json:"nightActions,omitempty"`
	MafiaReveals []MafiaReveal `json:"mafiaReveals,omitempty"`

	Winner Winner `json:"winner,omitempty"`
}

// Player returns the participant with the given address, or nil.
func (r *Room) Player(addr string) *Player {
	for _, p := range r.Players {
		if p.Addr == addr {
			return p
		}
	}
	return nil
}

// PlayerIndex returns the join-order index of addr, or -1.
func (r *Room) PlayerIndex(addr string) int {
	for i, p := range r.Players {
		if p.Addr == addr {
			return i
		}
	}
	return -1
}

func (r *Room) AliveCount() int {
	n := 0
	for _, p := range r.Players {
		if p.Active {
			n++
		}
	}
	return n
}

// AliveIndex returns addr's position among alive players in join order, or
// -1. It drives the waterfall trigger stagger.
func (r *Room) AliveIndex(addr string) int {
	i := 0
	for _, p := range r.Players {
		if !p.Active {
			continue
		}
		if p.Addr == addr {
			return i
		}
		i++
	}
	return -1
}

func (r *Room) ConfirmedCount() int {
	n := 0
	for _, p := range r.Players {
		if p.Active && p.ConfirmedRole {
			n++
		}
	}
	return n
}

func (r *Room) KeysSharedCount() int {
	n := 0
	for _, p := range r.Players {
		if p.Active && p.SharedKeys {
			n++
		}
	}
	return n
}

func (r *Room) VotedCount() int {
	n := 0
	for _, p := range r.Players {
		if p.Active && p.Voted {
			n++
		}
	}
	return n
}

// MafiaConsensus is the aggregate polled by clients during NIGHT.
type MafiaConsensus struct {
	CommittedCount  int    `json:"committedCount"`
	RevealedCount   int    `json:"revealedCount"`
	ConsensusTarget string `json:"consensusTarget,omitempty"`
}

// MafiaConsensusState counts commitments and reveals among currently-alive
// claimed-mafia players. Consensus requires every committer to have revealed
// and all revealed targets to be identical.
func (r *Room) MafiaConsensusState() MafiaConsensus {
	var agg MafiaConsensus
	for _, p := range r.Players {
		if !p.Active || !p.ClaimedMafia {
			continue
		}
		if p.MafiaCommit != nil {
			agg.CommittedCount++
			if p.MafiaCommit.Revealed {
				agg.RevealedCount++
			}
		}
	}
	if agg.CommittedCount == 0 || agg.RevealedCount != agg.CommittedCount {
		return agg
	}
	target := ""
	for _, mr := range r.MafiaReveals {
		p := r.Player(mr.Actor)
		if p == nil || !p.Active {
			continue
		}
		if target == "" {
			target = mr.Target
		} else if target != mr.Target {
			return agg
		}
	}
	agg.ConsensusTarget = target
	return agg
}

// ResetNightState clears per-night flags, reveal logs and the per-night
// commitment slots at night entry. Commitments are dropped rather than kept,
// otherwise an unrevealed commit from a timed-out night would block the next
// one.
func (r *Room) ResetNightState() {
	r.NightActions = nil
	r.MafiaReveals = nil
	for _, p := range r.Players {
		p.NightCommitted = false
		p.NightRevealed = false
		p.NightCommit = nil
		p.MafiaCommit = nil
	}
}

// ResetVotingState clears per-vote flags at voting entry.
func (r *Room) ResetVotingState() {
	r.Votes = nil
	for _, p := range r.Players {
		p.Voted = false
	}
}

package app

import (
	"fmt"
	"math"

	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/light3739/SomniaMafia-sub000/internal/state"
)

// Default per-phase timeouts in seconds. Rooms may override via RoomParams.
const (
	defaultShuffleTimeoutSecs uint64 = 120
	defaultRevealTimeoutSecs  uint64 = 180
	defaultDayTimeoutSecs     uint64 = 300
	defaultVoteTimeoutSecs    uint64 = 120
	defaultNightTimeoutSecs   uint64 = 120

	// Waterfall stagger for the day -> voting trigger: the alive player at
	// sorted index i may trigger after base + i*step seconds, so the
	// lowest-indexed live participant normally wins the race.
	dayGraceBaseSecs uint64 = 30
	dayGraceStepSecs uint64 = 10
)

func addInt64AndU64Checked(base int64, delta uint64, field string) (int64, error) {
	if delta > uint64(math.MaxInt64) {
		return 0, fmt.Errorf("%s overflows int64", field)
	}
	d := int64(delta)
	if base > math.MaxInt64-d {
		return 0, fmt.Errorf("%s overflows int64", field)
	}
	return base + d, nil
}

func phaseTimeoutSecs(r *state.Room, phase state.Phase) uint64 {
	pick := func(override, def uint64) uint64 {
		if override != 0 {
			return override
		}
		return def
	}
	switch phase {
	case state.PhaseShuffling:
		return pick(r.Params.ShuffleTimeoutSecs, defaultShuffleTimeoutSecs)
	case state.PhaseReveal:
		return pick(r.Params.RevealTimeoutSecs, defaultRevealTimeoutSecs)
	case state.PhaseDay:
		return pick(r.Params.DayTimeoutSecs, defaultDayTimeoutSecs)
	case state.PhaseVoting:
		return pick(r.Params.VoteTimeoutSecs, defaultVoteTimeoutSecs)
	case state.PhaseNight:
		return pick(r.Params.NightTimeoutSecs, defaultNightTimeoutSecs)
	case state.PhaseLobby, state.PhaseEnded:
		return 0
	}
	return 0
}

// enterPhase transitions the room, stamps the new deadline and clears
// per-phase progress state. It returns the PhaseChanged event.
func enterPhase(r *state.Room, phase state.Phase, nowUnix int64) (abci.Event, error) {
	from := r.Phase
	r.Phase = phase
	r.PhaseStartedAt = nowUnix

	to := phaseTimeoutSecs(r, phase)
	if to == 0 {
		r.PhaseDeadline = 0
	} else {
		deadline, err := addInt64AndU64Checked(nowUnix, to, "phase deadline")
		if err != nil {
			return abci.Event{}, err
		}
		r.PhaseDeadline = deadline
	}

	switch phase {
	case state.PhaseVoting:
		r.ResetVotingState()
	case state.PhaseNight:
		r.ResetNightState()
	}

	return abci.Event{
		Type: "PhaseChanged",
		Attributes: []abci.EventAttribute{
			{Key: "roomId", Value: fmt.Sprintf("%d", r.ID), Index: true},
			{Key: "from", Value: string(from), Index: true},
			{Key: "to", Value: string(phase), Index: true},
			{Key: "deadline", Value: fmt.Sprintf("%d", r.PhaseDeadline), Index: false},
			{Key: "dayCount", Value: fmt.Sprintf("%d", r.DayCount), Index: false},
		},
	}, nil
}

// requireBeforeDeadline rejects any mutating game op once the phase deadline
// has passed; only force-timeout is honored after it.
func requireBeforeDeadline(r *state.Room, nowUnix int64) error {
	if r.PhaseDeadline != 0 && nowUnix > r.PhaseDeadline {
		return errDeadlinePassed()
	}
	return nil
}

// evaluateWinner recomputes the win condition from an alive-role multiset.
// Decided is false while the game must continue.
func evaluateWinner(aliveRoles []state.Role) (winner state.Winner, decided bool) {
	if len(aliveRoles) == 0 {
		return state.WinnerDraw, true
	}
	mafia, town := 0, 0
	for _, role := range aliveRoles {
		if role.IsMafia() {
			mafia++
		} else if role.IsTown() {
			town++
		}
	}
	switch {
	case mafia == 0:
		return state.WinnerTown, true
	case mafia >= town:
		return state.WinnerMafia, true
	default:
		return "", false
	}
}

// eliminate marks a player dead. The player stays in the room's list so the
// game remains auditable.
func eliminate(p *state.Player) {
	p.Active = false
}

func playerEliminatedEvent(roomID uint64, addr, reason string) abci.Event {
	return abci.Event{
		Type: "PlayerEliminated",
		Attributes: []abci.EventAttribute{
			{Key: "roomId", Value: fmt.Sprintf("%d", roomID), Index: true},
			{Key: "player", Value: addr, Index: true},
			{Key: "reason", Value: reason, Index: true},
		},
	}
}

func playerKickedEvent(roomID uint64, addr, reason string) abci.Event {
	return abci.Event{
		Type: "PlayerKicked",
		Attributes: []abci.EventAttribute{
			{Key: "roomId", Value: fmt.Sprintf("%d", roomID), Index: true},
			{Key: "player", Value: addr, Index: true},
			{Key: "reason", Value: reason, Index: true},
		},
	}
}

func gameEndedEvent(roomID uint64, winner state.Winner) abci.Event {
	return abci.Event{
		Type: "GameEnded",
		Attributes: []abci.EventAttribute{
			{Key: "roomId", Value: fmt.Sprintf("%d", roomID), Index: true},
			{Key: "winner", Value: string(winner), Index: true},
		},
	}
}

// endRoom forces a terminal state outside the reveal-verified path (stalled
// protocol, too few players). The outcome is recorded as the given winner.
func endRoom(r *state.Room, winner state.Winner, nowUnix int64) ([]abci.Event, error) {
	r.Winner = winner
	ev, err := enterPhase(r, state.PhaseEnded, nowUnix)
	if err != nil {
		return nil, err
	}
	return []abci.Event{ev, gameEndedEvent(r.ID, winner)}, nil
}

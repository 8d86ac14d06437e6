package app

import (
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/light3739/SomniaMafia-sub000/internal/codec"
	"github.com/light3739/SomniaMafia-sub000/internal/state"
)

// handleForcePhaseTimeout is the liveness escape hatch: once a phase deadline
// has passed, any participant may force the room forward. What "forward"
// means depends on the phase.
func handleForcePhaseTimeout(st *state.State, env codec.TxEnvelope, nowUnix int64) (*abci.ExecTxResult, error) {
	var msg codec.ForcePhaseTimeoutTx
	if err := unmarshalTx(env, &msg); err != nil {
		return nil, err
	}
	r := st.Rooms[msg.RoomID]
	if r == nil {
		return nil, errRoomNotFound(msg.RoomID)
	}
	if err := requireRoomPlayerAuth(st, r, env, msg.Caller); err != nil {
		return nil, err
	}
	if r.Phase == state.PhaseLobby || r.Phase == state.PhaseEnded {
		return nil, fmt.Errorf("phase %s has no timeout", r.Phase)
	}
	if r.PhaseDeadline == 0 || nowUnix <= r.PhaseDeadline {
		return nil, errDeadlineNotReached()
	}

	res := okEvent("PhaseTimeoutForced", map[string]string{
		"roomId": fmt.Sprintf("%d", msg.RoomID),
		"caller": msg.Caller,
		"phase":  string(r.Phase),
	})

	var evs []abci.Event
	var err error
	switch r.Phase {
	case state.PhaseShuffling:
		evs, err = forceShuffleTimeout(r, nowUnix)
	case state.PhaseReveal:
		evs, err = forceRevealTimeout(r, nowUnix)
	case state.PhaseDay:
		var ev abci.Event
		ev, err = enterPhase(r, state.PhaseVoting, nowUnix)
		evs = []abci.Event{ev}
	case state.PhaseVoting:
		evs, err = finalizeVoting(r, nowUnix)
	case state.PhaseNight:
		evs, err = finalizeNight(r, nowUnix)
	}
	if err != nil {
		return nil, err
	}
	res.Events = append(res.Events, evs...)
	return res, nil
}

// forceShuffleTimeout kicks the stalled turn holder and hands the turn to
// the next player. A commit without a reveal is discarded along with its
// author, so the deck stays at the last fully revealed pass.
func forceShuffleTimeout(r *state.Room, nowUnix int64) ([]abci.Event, error) {
	if r.CurrentShuffler >= len(r.Players) {
		return nil, fmt.Errorf("shuffle already complete")
	}
	holder := r.Players[r.CurrentShuffler]
	holder.Active = false
	holder.Kicked = true
	if holder.DeckCommit != nil && !holder.DeckCommit.Revealed {
		holder.DeckCommit = nil
		holder.DeckCommitted = false
	}
	evs := []abci.Event{playerKickedEvent(r.ID, holder.Addr, "shuffle-timeout")}

	if r.AliveCount() < r.Params.MinPlayers {
		endEvs, err := endRoom(r, state.WinnerDraw, nowUnix)
		if err != nil {
			return nil, err
		}
		return append(evs, endEvs...), nil
	}

	advEvs, err := advanceShuffler(r, nowUnix)
	if err != nil {
		return nil, err
	}
	return append(evs, advEvs...), nil
}

// forceRevealTimeout handles a stalled key-exchange phase. A player who
// withheld their decryption keys or role commitment leaves an encryption
// layer nobody can remove, so their kick is unrecoverable and the room ends
// in a draw. If everyone delivered and only confirmations are missing, the
// laggards are force-confirmed and the game proceeds.
func forceRevealTimeout(r *state.Room, nowUnix int64) ([]abci.Event, error) {
	var evs []abci.Event
	kicked := false
	for _, p := range r.Players {
		if !p.Active {
			continue
		}
		if !p.SharedKeys || p.RoleCommit == nil {
			p.Active = false
			p.Kicked = true
			kicked = true
			evs = append(evs, playerKickedEvent(r.ID, p.Addr, "reveal-timeout"))
		}
	}
	if kicked {
		endEvs, err := endRoom(r, state.WinnerDraw, nowUnix)
		if err != nil {
			return nil, err
		}
		return append(evs, endEvs...), nil
	}

	for _, p := range r.Players {
		if p.Active && !p.ConfirmedRole {
			p.ConfirmedRole = true
		}
	}
	finEvs, err := maybeFinishReveal(r, nowUnix)
	if err != nil {
		return nil, err
	}
	return append(evs, finEvs...), nil
}

package app

import (
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/light3739/SomniaMafia-sub000/internal/codec"
	"github.com/light3739/SomniaMafia-sub000/internal/commitment"
	"github.com/light3739/SomniaMafia-sub000/internal/state"
)

func nightRoomAndPlayer(st *state.State, env codec.TxEnvelope, roomID uint64, addr string, nowUnix int64) (*state.Room, *state.Player, error) {
	r := st.Rooms[roomID]
	if r == nil {
		return nil, nil, errRoomNotFound(roomID)
	}
	if r.Phase != state.PhaseNight {
		return nil, nil, errWrongPhase(string(r.Phase), string(state.PhaseNight))
	}
	if err := requireRoomPlayerAuth(st, r, env, addr); err != nil {
		return nil, nil, err
	}
	if err := requireBeforeDeadline(r, nowUnix); err != nil {
		return nil, nil, err
	}
	p := r.Player(addr)
	if !p.Active {
		return nil, nil, errNotAlive(addr)
	}
	return r, p, nil
}

func handleCommitNightAction(st *state.State, env codec.TxEnvelope, nowUnix int64) (*abci.ExecTxResult, error) {
	var msg codec.CommitNightActionTx
	if err := unmarshalTx(env, &msg); err != nil {
		return nil, err
	}
	r, p, err := nightRoomAndPlayer(st, env, msg.RoomID, msg.Player, nowUnix)
	if err != nil {
		return nil, err
	}

	c, err := commitment.Commit(p.NightCommit, msg.Hash, nowUnix)
	if err != nil {
		return nil, err
	}
	p.NightCommit = c
	p.NightCommitted = true

	return okEvent("NightActionCommitted", map[string]string{
		"roomId": fmt.Sprintf("%d", r.ID),
		"player": msg.Player,
	}), nil
}

func handleRevealNightAction(st *state.State, env codec.TxEnvelope, nowUnix int64) (*abci.ExecTxResult, error) {
	var msg codec.RevealNightActionTx
	if err := unmarshalTx(env, &msg); err != nil {
		return nil, err
	}
	r, p, err := nightRoomAndPlayer(st, env, msg.RoomID, msg.Player, nowUnix)
	if err != nil {
		return nil, err
	}

	action := state.NightActionType(msg.Action)
	if !action.Valid() {
		return nil, fmt.Errorf("invalid night action %q", msg.Action)
	}
	if action == state.NightActionNone {
		if msg.Target != "" {
			return nil, fmt.Errorf("action none takes no target")
		}
	} else {
		target := r.Player(msg.Target)
		if target == nil {
			return nil, errNotParticipant(msg.Target)
		}
		if !target.Active {
			return nil, fmt.Errorf("night action target %s is not alive", msg.Target)
		}
	}

	payload := commitment.NightActionPayload{Action: msg.Action, Target: msg.Target}
	if err := p.NightCommit.Reveal(commitment.SchemaNightAction, payload, msg.Salt, nowUnix); err != nil {
		return nil, err
	}
	p.NightRevealed = true
	r.NightActions = append(r.NightActions, state.NightAction{
		Actor:  msg.Player,
		Action: action,
		Target: msg.Target,
	})

	res := okEvent("NightActionRevealed", map[string]string{
		"roomId": fmt.Sprintf("%d", r.ID),
		"player": msg.Player,
		"action": msg.Action,
		"target": msg.Target,
	})
	if action == state.NightActionCheck {
		// The chain cannot see true roles mid-game; the public claimed-mafia
		// bit is recorded with the check for post-game audit.
		target := r.Player(msg.Target)
		res.Events = append(res.Events, abci.Event{
			Type: "DetectiveCheckRecorded",
			Attributes: []abci.EventAttribute{
				{Key: "roomId", Value: fmt.Sprintf("%d", r.ID), Index: true},
				{Key: "detective", Value: msg.Player, Index: true},
				{Key: "target", Value: msg.Target, Index: true},
				{Key: "targetClaimedMafia", Value: fmt.Sprintf("%t", target.ClaimedMafia), Index: false},
			},
		})
	}

	evs, err := maybeFinalizeNight(r, nowUnix)
	if err != nil {
		return nil, err
	}
	res.Events = append(res.Events, evs...)
	return res, nil
}

func handleCommitMafiaTarget(st *state.State, env codec.TxEnvelope, nowUnix int64) (*abci.ExecTxResult, error) {
	var msg codec.CommitMafiaTargetTx
	if err := unmarshalTx(env, &msg); err != nil {
		return nil, err
	}
	r, p, err := nightRoomAndPlayer(st, env, msg.RoomID, msg.Player, nowUnix)
	if err != nil {
		return nil, err
	}

	c, err := commitment.Commit(p.MafiaCommit, msg.Hash, nowUnix)
	if err != nil {
		return nil, err
	}
	p.MafiaCommit = c
	// Submitting a mafia-target commitment is itself a public mafia claim;
	// lying here is exposed by the endgame role reveals.
	p.ClaimedMafia = true

	return okEvent("MafiaTargetCommitted", map[string]string{
		"roomId": fmt.Sprintf("%d", r.ID),
		"player": msg.Player,
	}), nil
}

func handleRevealMafiaTarget(st *state.State, env codec.TxEnvelope, nowUnix int64) (*abci.ExecTxResult, error) {
	var msg codec.RevealMafiaTargetTx
	if err := unmarshalTx(env, &msg); err != nil {
		return nil, err
	}
	r, p, err := nightRoomAndPlayer(st, env, msg.RoomID, msg.Player, nowUnix)
	if err != nil {
		return nil, err
	}

	target := r.Player(msg.Target)
	if target == nil {
		return nil, errNotParticipant(msg.Target)
	}
	if !target.Active {
		return nil, fmt.Errorf("mafia target %s is not alive", msg.Target)
	}

	payload := commitment.MafiaTargetPayload{Target: msg.Target}
	if err := p.MafiaCommit.Reveal(commitment.SchemaMafiaTarget, payload, msg.Salt, nowUnix); err != nil {
		return nil, err
	}
	r.MafiaReveals = append(r.MafiaReveals, state.MafiaReveal{Actor: msg.Player, Target: msg.Target})

	agg := r.MafiaConsensusState()
	res := okEvent("MafiaTargetRevealed", map[string]string{
		"roomId":    fmt.Sprintf("%d", r.ID),
		"player":    msg.Player,
		"committed": fmt.Sprintf("%d", agg.CommittedCount),
		"revealed":  fmt.Sprintf("%d", agg.RevealedCount),
	})

	evs, err := maybeFinalizeNight(r, nowUnix)
	if err != nil {
		return nil, err
	}
	res.Events = append(res.Events, evs...)
	return res, nil
}

// maybeFinalizeNight resolves the night as soon as the mafia consensus is
// reached and no committed night action remains unrevealed. The deadline
// path (force-timeout) finalizes with whatever reveals exist.
func maybeFinalizeNight(r *state.Room, nowUnix int64) ([]abci.Event, error) {
	agg := r.MafiaConsensusState()
	if agg.ConsensusTarget == "" {
		return nil, nil
	}
	for _, p := range r.Players {
		if !p.Active {
			continue
		}
		if p.NightCommitted && !p.NightRevealed {
			return nil, nil
		}
		if p.MafiaCommit != nil && !p.MafiaCommit.Revealed {
			return nil, nil
		}
	}
	return finalizeNight(r, nowUnix)
}

// finalizeNight applies the mafia kill unless a revealed heal covers the
// target, advances the day counter and returns to DAY.
func finalizeNight(r *state.Room, nowUnix int64) ([]abci.Event, error) {
	agg := r.MafiaConsensusState()

	var evs []abci.Event
	killed := ""
	if agg.ConsensusTarget != "" {
		healed := false
		for _, na := range r.NightActions {
			actor := r.Player(na.Actor)
			if actor == nil || !actor.Active {
				continue
			}
			if na.Action == state.NightActionHeal && na.Target == agg.ConsensusTarget {
				healed = true
				break
			}
		}
		target := r.Player(agg.ConsensusTarget)
		if !healed && target != nil && target.Active {
			eliminate(target)
			killed = agg.ConsensusTarget
			evs = append(evs, playerEliminatedEvent(r.ID, killed, "night-kill"))
		}
	}

	evs = append(evs, abci.Event{
		Type: "NightFinalized",
		Attributes: []abci.EventAttribute{
			{Key: "roomId", Value: fmt.Sprintf("%d", r.ID), Index: true},
			{Key: "dayCount", Value: fmt.Sprintf("%d", r.DayCount), Index: false},
			{Key: "killed", Value: killed, Index: true},
		},
	})

	r.DayCount++
	ev, err := enterPhase(r, state.PhaseDay, nowUnix)
	if err != nil {
		return nil, err
	}
	return append(evs, ev), nil
}

package app

import (
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/light3739/SomniaMafia-sub000/internal/codec"
	"github.com/light3739/SomniaMafia-sub000/internal/state"
)

func handleStartVoting(st *state.State, env codec.TxEnvelope, nowUnix int64) (*abci.ExecTxResult, error) {
	var msg codec.StartVotingTx
	if err := unmarshalTx(env, &msg); err != nil {
		return nil, err
	}
	r := st.Rooms[msg.RoomID]
	if r == nil {
		return nil, errRoomNotFound(msg.RoomID)
	}
	if r.Phase == state.PhaseVoting {
		// Duplicate waterfall triggers are rejected idempotently.
		return nil, fmt.Errorf("voting already started")
	}
	if r.Phase != state.PhaseDay {
		return nil, errWrongPhase(string(r.Phase), string(state.PhaseDay))
	}
	if err := requireRoomPlayerAuth(st, r, env, msg.Caller); err != nil {
		return nil, err
	}
	if err := requireBeforeDeadline(r, nowUnix); err != nil {
		return nil, err
	}
	caller := r.Player(msg.Caller)
	if !caller.Active {
		return nil, errNotAlive(msg.Caller)
	}

	// Waterfall trigger: the host may start voting immediately; any other
	// alive player only after a grace delay proportional to their alive
	// index, so concurrent triggers resolve to the lowest-indexed winner.
	if msg.Caller != r.Host {
		idx := r.AliveIndex(msg.Caller)
		delay := dayGraceBaseSecs + uint64(idx)*dayGraceStepSecs
		earliest, err := addInt64AndU64Checked(r.PhaseStartedAt, delay, "voting grace delay")
		if err != nil {
			return nil, err
		}
		if nowUnix < earliest {
			return nil, fmt.Errorf("voting trigger not yet allowed for index %d (wait until %d)", idx, earliest)
		}
	}

	ev, err := enterPhase(r, state.PhaseVoting, nowUnix)
	if err != nil {
		return nil, err
	}
	res := okEvent("VotingStarted", map[string]string{
		"roomId":   fmt.Sprintf("%d", msg.RoomID),
		"caller":   msg.Caller,
		"dayCount": fmt.Sprintf("%d", r.DayCount),
	})
	res.Events = append(res.Events, ev)
	return res, nil
}

func handleCastVote(st *state.State, env codec.TxEnvelope, nowUnix int64) (*abci.ExecTxResult, error) {
	var msg codec.CastVoteTx
	if err := unmarshalTx(env, &msg); err != nil {
		return nil, err
	}
	r := st.Rooms[msg.RoomID]
	if r == nil {
		return nil, errRoomNotFound(msg.RoomID)
	}
	if r.Phase != state.PhaseVoting {
		return nil, errWrongPhase(string(r.Phase), string(state.PhaseVoting))
	}
	if err := requireRoomPlayerAuth(st, r, env, msg.Player); err != nil {
		return nil, err
	}
	if err := requireBeforeDeadline(r, nowUnix); err != nil {
		return nil, err
	}
	voter := r.Player(msg.Player)
	if !voter.Active {
		return nil, errNotAlive(msg.Player)
	}
	if voter.Voted {
		return nil, fmt.Errorf("player %s already voted", msg.Player)
	}
	if msg.Target == msg.Player {
		return nil, fmt.Errorf("self-vote is not allowed")
	}
	target := r.Player(msg.Target)
	if target == nil {
		return nil, errNotParticipant(msg.Target)
	}
	if !target.Active {
		return nil, fmt.Errorf("vote target %s is not alive", msg.Target)
	}

	voter.Voted = true
	r.Votes = append(r.Votes, state.Vote{Voter: msg.Player, Target: msg.Target})

	res := okEvent("VoteCast", map[string]string{
		"roomId": fmt.Sprintf("%d", msg.RoomID),
		"voter":  msg.Player,
		"target": msg.Target,
	})

	if r.VotedCount() == r.AliveCount() {
		evs, err := finalizeVoting(r, nowUnix)
		if err != nil {
			return nil, err
		}
		res.Events = append(res.Events, evs...)
	}
	return res, nil
}

// finalizeVoting tallies votes; the plurality target is eliminated only with
// a strict majority of alive players behind it, ties eliminate nobody. The
// room then proceeds to NIGHT.
func finalizeVoting(r *state.Room, nowUnix int64) ([]abci.Event, error) {
	counts := map[string]int{}
	for _, v := range r.Votes {
		voter := r.Player(v.Voter)
		if voter == nil || !voter.Active {
			continue
		}
		counts[v.Target]++
	}

	best, bestCount, tie := "", 0, false
	for target, c := range counts {
		switch {
		case c > bestCount:
			best, bestCount, tie = target, c, false
		case c == bestCount && c > 0 && target != best:
			tie = true
		}
	}

	eliminated := ""
	alive := r.AliveCount()
	if !tie && best != "" && bestCount*2 > alive {
		p := r.Player(best)
		if p != nil && p.Active {
			eliminate(p)
			eliminated = best
		}
	}

	evs := []abci.Event{{
		Type: "VotingFinalized",
		Attributes: []abci.EventAttribute{
			{Key: "roomId", Value: fmt.Sprintf("%d", r.ID), Index: true},
			{Key: "votes", Value: fmt.Sprintf("%d", len(r.Votes)), Index: false},
			{Key: "eliminated", Value: eliminated, Index: true},
		},
	}}
	if eliminated != "" {
		evs = append(evs, playerEliminatedEvent(r.ID, eliminated, "vote"))
	}

	ev, err := enterPhase(r, state.PhaseNight, nowUnix)
	if err != nil {
		return nil, err
	}
	return append(evs, ev), nil
}

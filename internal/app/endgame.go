package app

import (
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/light3739/SomniaMafia-sub000/internal/codec"
	"github.com/light3739/SomniaMafia-sub000/internal/commitment"
	"github.com/light3739/SomniaMafia-sub000/internal/state"
)

func postRevealPhase(p state.Phase) bool {
	switch p {
	case state.PhaseDay, state.PhaseVoting, state.PhaseNight, state.PhaseEnded:
		return true
	}
	return false
}

// handleRevealRoleForEndgame opens a player's role commitment for win
// verification. Dead players may reveal too, and reveals remain valid after
// the room has ended, so a full audit is always possible.
func handleRevealRoleForEndgame(st *state.State, env codec.TxEnvelope, nowUnix int64) (*abci.ExecTxResult, error) {
	var msg codec.RevealRoleTx
	if err := unmarshalTx(env, &msg); err != nil {
		return nil, err
	}
	r := st.Rooms[msg.RoomID]
	if r == nil {
		return nil, errRoomNotFound(msg.RoomID)
	}
	if !postRevealPhase(r.Phase) {
		return nil, fmt.Errorf("roles cannot be revealed during %s", r.Phase)
	}
	if err := requireRoomPlayerAuth(st, r, env, msg.Player); err != nil {
		return nil, err
	}

	role := state.Role(msg.Role)
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", msg.Role)
	}
	p := r.Player(msg.Player)
	if p.RoleCommit == nil {
		return nil, fmt.Errorf("player %s never committed a role", msg.Player)
	}
	if err := p.RoleCommit.Reveal(commitment.SchemaRole, commitment.RolePayload{Role: msg.Role}, msg.Salt, nowUnix); err != nil {
		return nil, err
	}
	p.RevealedRole = role

	return okEvent("RoleRevealed", map[string]string{
		"roomId": fmt.Sprintf("%d", msg.RoomID),
		"player": msg.Player,
		"role":   msg.Role,
	}), nil
}

// handleFinalizeGame verifies the win condition from the revealed roles of
// all alive players and ends the room. It is rejected while any alive role
// is still sealed or while neither faction has won.
func handleFinalizeGame(st *state.State, env codec.TxEnvelope, nowUnix int64) (*abci.ExecTxResult, error) {
	var msg codec.FinalizeGameTx
	if err := unmarshalTx(env, &msg); err != nil {
		return nil, err
	}
	r := st.Rooms[msg.RoomID]
	if r == nil {
		return nil, errRoomNotFound(msg.RoomID)
	}
	switch r.Phase {
	case state.PhaseDay, state.PhaseVoting, state.PhaseNight:
	default:
		return nil, errWrongPhase(string(r.Phase), "day, voting or night")
	}
	if err := requireRoomPlayerAuth(st, r, env, msg.Caller); err != nil {
		return nil, err
	}

	var aliveRoles []state.Role
	for _, p := range r.Players {
		if !p.Active {
			continue
		}
		if p.RevealedRole == "" {
			return nil, fmt.Errorf("player %s has not revealed their role", p.Addr)
		}
		aliveRoles = append(aliveRoles, p.RevealedRole)
	}

	winner, decided := evaluateWinner(aliveRoles)
	if !decided {
		return nil, fmt.Errorf("no win condition met")
	}

	res := okEvent("GameFinalized", map[string]string{
		"roomId": fmt.Sprintf("%d", msg.RoomID),
		"caller": msg.Caller,
		"winner": string(winner),
	})
	evs, err := endRoom(r, winner, nowUnix)
	if err != nil {
		return nil, err
	}
	res.Events = append(res.Events, evs...)
	return res, nil
}

package app

import (
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/light3739/SomniaMafia-sub000/internal/codec"
	"github.com/light3739/SomniaMafia-sub000/internal/commitment"
	"github.com/light3739/SomniaMafia-sub000/internal/state"
)

func handleShareDecryptionKeys(st *state.State, env codec.TxEnvelope, nowUnix int64) (*abci.ExecTxResult, error) {
	var msg codec.ShareDecryptionKeysTx
	if err := unmarshalTx(env, &msg); err != nil {
		return nil, err
	}
	r := st.Rooms[msg.RoomID]
	if r == nil {
		return nil, errRoomNotFound(msg.RoomID)
	}
	if r.Phase != state.PhaseReveal {
		return nil, errWrongPhase(string(r.Phase), string(state.PhaseReveal))
	}
	if err := requireRoomPlayerAuth(st, r, env, msg.Player); err != nil {
		return nil, err
	}
	if err := requireBeforeDeadline(r, nowUnix); err != nil {
		return nil, err
	}
	p := r.Player(msg.Player)
	if !p.Active {
		return nil, errNotAlive(msg.Player)
	}
	if p.SharedKeys {
		return nil, fmt.Errorf("keys already shared")
	}

	// One envelope per other active player; recipients must be distinct
	// participants and must not include the sender.
	want := map[string]bool{}
	for _, other := range r.Players {
		if other.Active && other.Addr != msg.Player {
			want[other.Addr] = true
		}
	}
	if len(msg.Shares) != len(want) {
		return nil, fmt.Errorf("expected %d key envelopes, got %d", len(want), len(msg.Shares))
	}
	envelopes := make([]state.KeyEnvelope, 0, len(msg.Shares))
	for _, s := range msg.Shares {
		if !want[s.To] {
			return nil, fmt.Errorf("unexpected or duplicate key recipient %q", s.To)
		}
		if len(s.Blob) == 0 {
			return nil, fmt.Errorf("empty key envelope for %q", s.To)
		}
		want[s.To] = false
		envelopes = append(envelopes, state.KeyEnvelope{To: s.To, Blob: append([]byte(nil), s.Blob...)})
	}
	p.KeyEnvelopes = envelopes
	p.SharedKeys = true

	res := okEvent("KeysShared", map[string]string{
		"roomId":     fmt.Sprintf("%d", msg.RoomID),
		"player":     msg.Player,
		"recipients": fmt.Sprintf("%d", len(envelopes)),
	})
	evs, err := maybeFinishReveal(r, nowUnix)
	if err != nil {
		return nil, err
	}
	res.Events = append(res.Events, evs...)
	return res, nil
}

func handleCommitRole(st *state.State, env codec.TxEnvelope, nowUnix int64) (*abci.ExecTxResult, error) {
	var msg codec.CommitRoleTx
	if err := unmarshalTx(env, &msg); err != nil {
		return nil, err
	}
	r := st.Rooms[msg.RoomID]
	if r == nil {
		return nil, errRoomNotFound(msg.RoomID)
	}
	if r.Phase != state.PhaseReveal {
		return nil, errWrongPhase(string(r.Phase), string(state.PhaseReveal))
	}
	if err := requireRoomPlayerAuth(st, r, env, msg.Player); err != nil {
		return nil, err
	}
	if err := requireBeforeDeadline(r, nowUnix); err != nil {
		return nil, err
	}
	p := r.Player(msg.Player)
	if !p.Active {
		return nil, errNotAlive(msg.Player)
	}

	c, err := commitment.Commit(p.RoleCommit, msg.Hash, nowUnix)
	if err != nil {
		return nil, err
	}
	p.RoleCommit = c

	return okEvent("RoleCommitted", map[string]string{
		"roomId": fmt.Sprintf("%d", msg.RoomID),
		"player": msg.Player,
	}), nil
}

func handleConfirmRole(st *state.State, env codec.TxEnvelope, nowUnix int64) (*abci.ExecTxResult, error) {
	var msg codec.ConfirmRoleTx
	if err := unmarshalTx(env, &msg); err != nil {
		return nil, err
	}
	r := st.Rooms[msg.RoomID]
	if r == nil {
		return nil, errRoomNotFound(msg.RoomID)
	}
	if r.Phase != state.PhaseReveal {
		return nil, errWrongPhase(string(r.Phase), string(state.PhaseReveal))
	}
	if err := requireRoomPlayerAuth(st, r, env, msg.Player); err != nil {
		return nil, err
	}
	if err := requireBeforeDeadline(r, nowUnix); err != nil {
		return nil, err
	}
	p := r.Player(msg.Player)
	if !p.Active {
		return nil, errNotAlive(msg.Player)
	}
	if p.RoleCommit == nil {
		return nil, fmt.Errorf("role must be committed before confirming")
	}
	if !p.SharedKeys {
		return nil, fmt.Errorf("keys must be shared before confirming")
	}
	if p.ConfirmedRole {
		return nil, fmt.Errorf("role already confirmed")
	}
	p.ConfirmedRole = true

	res := okEvent("RoleConfirmed", map[string]string{
		"roomId": fmt.Sprintf("%d", msg.RoomID),
		"player": msg.Player,
	})
	evs, err := maybeFinishReveal(r, nowUnix)
	if err != nil {
		return nil, err
	}
	res.Events = append(res.Events, evs...)
	return res, nil
}

// maybeFinishReveal advances REVEAL -> DAY once every alive player has shared
// keys and confirmed their decrypted role.
func maybeFinishReveal(r *state.Room, nowUnix int64) ([]abci.Event, error) {
	alive := r.AliveCount()
	if r.KeysSharedCount() != alive || r.ConfirmedCount() != alive {
		return nil, nil
	}
	r.DayCount = 1
	ev, err := enterPhase(r, state.PhaseDay, nowUnix)
	if err != nil {
		return nil, err
	}
	return []abci.Event{ev}, nil
}

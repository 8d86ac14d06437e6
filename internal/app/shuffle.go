package app

import (
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/light3739/SomniaMafia-sub000/internal/codec"
	"github.com/light3739/SomniaMafia-sub000/internal/commitment"
	"github.com/light3739/SomniaMafia-sub000/internal/shuffle"
	"github.com/light3739/SomniaMafia-sub000/internal/state"
)

func handleCommitDeck(st *state.State, env codec.TxEnvelope, nowUnix int64) (*abci.ExecTxResult, error) {
	var msg codec.CommitDeckTx
	if err := unmarshalTx(env, &msg); err != nil {
		return nil, err
	}
	r := st.Rooms[msg.RoomID]
	if r == nil {
		return nil, errRoomNotFound(msg.RoomID)
	}
	if r.Phase != state.PhaseShuffling {
		return nil, errWrongPhase(string(r.Phase), string(state.PhaseShuffling))
	}
	if err := requireRoomPlayerAuth(st, r, env, msg.Player); err != nil {
		return nil, err
	}
	if err := requireBeforeDeadline(r, nowUnix); err != nil {
		return nil, err
	}
	if err := requireTurnHolder(r, msg.Player); err != nil {
		return nil, err
	}

	p := r.Player(msg.Player)
	c, err := commitment.Commit(p.DeckCommit, msg.Hash, nowUnix)
	if err != nil {
		return nil, err
	}
	p.DeckCommit = c
	p.DeckCommitted = true

	return okEvent("DeckCommitted", map[string]string{
		"roomId": fmt.Sprintf("%d", msg.RoomID),
		"player": msg.Player,
		"turn":   fmt.Sprintf("%d", r.CurrentShuffler),
	}), nil
}

func handleRevealDeck(st *state.State, env codec.TxEnvelope, nowUnix int64) (*abci.ExecTxResult, error) {
	var msg codec.RevealDeckTx
	if err := unmarshalTx(env, &msg); err != nil {
		return nil, err
	}
	r := st.Rooms[msg.RoomID]
	if r == nil {
		return nil, errRoomNotFound(msg.RoomID)
	}
	if r.Phase != state.PhaseShuffling {
		return nil, errWrongPhase(string(r.Phase), string(state.PhaseShuffling))
	}
	if err := requireRoomPlayerAuth(st, r, env, msg.Player); err != nil {
		return nil, err
	}
	if err := requireBeforeDeadline(r, nowUnix); err != nil {
		return nil, err
	}
	if err := requireTurnHolder(r, msg.Player); err != nil {
		return nil, err
	}

	if len(msg.Cards) != len(r.Players) {
		return nil, fmt.Errorf("deck length %d does not match player count %d", len(msg.Cards), len(r.Players))
	}
	p, err := roomPrime(r)
	if err != nil {
		return nil, err
	}
	if _, err := shuffle.DecodeDeck(msg.Cards, p); err != nil {
		return nil, err
	}

	player := r.Player(msg.Player)
	if err := player.DeckCommit.Reveal(commitment.SchemaDeck, commitment.DeckPayload{Cards: msg.Cards}, msg.Salt, nowUnix); err != nil {
		return nil, err
	}
	r.Deck = append([]string(nil), msg.Cards...)

	res := okEvent("DeckRevealed", map[string]string{
		"roomId": fmt.Sprintf("%d", msg.RoomID),
		"player": msg.Player,
		"turn":   fmt.Sprintf("%d", r.CurrentShuffler),
	})
	evs, err := advanceShuffler(r, nowUnix)
	if err != nil {
		return nil, err
	}
	res.Events = append(res.Events, evs...)
	return res, nil
}

func requireTurnHolder(r *state.Room, addr string) error {
	if r.CurrentShuffler >= len(r.Players) {
		return errNotYourTurn(addr)
	}
	holder := r.Players[r.CurrentShuffler]
	if holder.Addr != addr {
		return errNotYourTurn(addr)
	}
	if !holder.Active {
		return errNotAlive(addr)
	}
	return nil
}

// advanceShuffler moves the turn to the next active player, resetting the
// turn deadline, and completes the phase once every slot has been passed.
func advanceShuffler(r *state.Room, nowUnix int64) ([]abci.Event, error) {
	r.CurrentShuffler++
	for r.CurrentShuffler < len(r.Players) && !r.Players[r.CurrentShuffler].Active {
		r.CurrentShuffler++
	}
	if r.CurrentShuffler >= len(r.Players) {
		r.CurrentShuffler = len(r.Players)
		ev, err := enterPhase(r, state.PhaseReveal, nowUnix)
		if err != nil {
			return nil, err
		}
		return []abci.Event{ev}, nil
	}

	// Fresh TURN_TIMEOUT for the next shuffler.
	to := phaseTimeoutSecs(r, state.PhaseShuffling)
	deadline, err := addInt64AndU64Checked(nowUnix, to, "shuffle turn deadline")
	if err != nil {
		return nil, err
	}
	r.PhaseDeadline = deadline
	return []abci.Event{{
		Type: "ShuffleTurnAdvanced",
		Attributes: []abci.EventAttribute{
			{Key: "roomId", Value: fmt.Sprintf("%d", r.ID), Index: true},
			{Key: "turn", Value: fmt.Sprintf("%d", r.CurrentShuffler), Index: true},
			{Key: "shuffler", Value: r.Players[r.CurrentShuffler].Addr, Index: true},
			{Key: "deadline", Value: fmt.Sprintf("%d", deadline), Index: false},
		},
	}}, nil
}

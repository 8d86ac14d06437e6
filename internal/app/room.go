package app

import (
	"fmt"
	"math/big"

	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/light3739/SomniaMafia-sub000/internal/codec"
	"github.com/light3739/SomniaMafia-sub000/internal/keywrap"
	"github.com/light3739/SomniaMafia-sub000/internal/shuffle"
	"github.com/light3739/SomniaMafia-sub000/internal/sra"
	"github.com/light3739/SomniaMafia-sub000/internal/state"
)

func handleCreateRoom(st *state.State, env codec.TxEnvelope, nowUnix int64) (*abci.ExecTxResult, error) {
	var msg codec.CreateRoomTx
	if err := unmarshalTx(env, &msg); err != nil {
		return nil, err
	}
	if msg.Name == "" {
		return nil, fmt.Errorf("missing room name")
	}
	if msg.HostNickname == "" {
		return nil, fmt.Errorf("missing host nickname")
	}
	if err := requireSelfRegisterAuth(st, env, msg.Host, msg.HostPubKey); err != nil {
		return nil, err
	}
	if err := validateSealKey(msg.HostSealKey); err != nil {
		return nil, err
	}

	minPlayers := msg.MinPlayers
	if minPlayers == 0 {
		minPlayers = shuffle.MinPlayers
	}
	if minPlayers < shuffle.MinPlayers {
		return nil, fmt.Errorf("minPlayers must be at least %d", shuffle.MinPlayers)
	}
	if msg.MaxPlayers < minPlayers || msg.MaxPlayers > shuffle.MaxPlayers {
		return nil, fmt.Errorf("maxPlayers must be in [%d, %d]", minPlayers, shuffle.MaxPlayers)
	}

	prime := sra.DefaultPrime()
	if msg.ModulusDec != "" {
		p, ok := new(big.Int).SetString(msg.ModulusDec, 10)
		if !ok || p.Bit(0) == 0 || p.Cmp(big.NewInt(1<<16)) <= 0 {
			return nil, fmt.Errorf("invalid modulus override")
		}
		prime = p
	}

	id := st.NextRoomID
	st.NextRoomID++
	r := &state.Room{
		ID:   id,
		Name: msg.Name,
		Host: msg.Host,
		Params: state.RoomParams{
			MinPlayers:         minPlayers,
			MaxPlayers:         msg.MaxPlayers,
			ShuffleTimeoutSecs: msg.ShuffleTimeoutSecs,
			RevealTimeoutSecs:  msg.RevealTimeoutSecs,
			DayTimeoutSecs:     msg.DayTimeoutSecs,
			VoteTimeoutSecs:    msg.VoteTimeoutSecs,
			NightTimeoutSecs:   msg.NightTimeoutSecs,
		},
		PrimeDec:       prime.String(),
		Phase:          state.PhaseLobby,
		PhaseStartedAt: nowUnix,
		Players: []*state.Player{{
			Addr:     msg.Host,
			Nickname: msg.HostNickname,
			PubKey:   append([]byte(nil), msg.HostPubKey...),
			SealPub:  append([]byte(nil), msg.HostSealKey...),
			Active:   true,
		}},
	}
	st.Rooms[id] = r

	res := okEvent("RoomCreated", map[string]string{
		"roomId": fmt.Sprintf("%d", id),
		"name":   msg.Name,
		"host":   msg.Host,
	})
	res.Events = append(res.Events, abci.Event{
		Type: "PlayerJoined",
		Attributes: []abci.EventAttribute{
			{Key: "roomId", Value: fmt.Sprintf("%d", id), Index: true},
			{Key: "player", Value: msg.Host, Index: true},
			{Key: "nickname", Value: msg.HostNickname, Index: false},
		},
	})
	return res, nil
}

func handleJoinRoom(st *state.State, env codec.TxEnvelope, nowUnix int64) (*abci.ExecTxResult, error) {
	var msg codec.JoinRoomTx
	if err := unmarshalTx(env, &msg); err != nil {
		return nil, err
	}
	r := st.Rooms[msg.RoomID]
	if r == nil {
		return nil, errRoomNotFound(msg.RoomID)
	}
	if r.Phase != state.PhaseLobby {
		return nil, errWrongPhase(string(r.Phase), string(state.PhaseLobby))
	}
	if msg.Nickname == "" {
		return nil, fmt.Errorf("missing nickname")
	}
	if r.Player(msg.Player) != nil {
		return nil, fmt.Errorf("player %s already joined", msg.Player)
	}
	if len(r.Players) >= r.Params.MaxPlayers {
		return nil, fmt.Errorf("room is full")
	}
	if err := requireSelfRegisterAuth(st, env, msg.Player, msg.PubKey); err != nil {
		return nil, err
	}
	if err := validateSealKey(msg.SealKey); err != nil {
		return nil, err
	}

	r.Players = append(r.Players, &state.Player{
		Addr:     msg.Player,
		Nickname: msg.Nickname,
		PubKey:   append([]byte(nil), msg.PubKey...),
		SealPub:  append([]byte(nil), msg.SealKey...),
		Active:   true,
	})

	res := okEvent("PlayerJoined", map[string]string{
		"roomId":   fmt.Sprintf("%d", msg.RoomID),
		"player":   msg.Player,
		"nickname": msg.Nickname,
	})

	// Auto-start the shuffle when the room fills.
	if len(r.Players) == r.Params.MaxPlayers {
		evs, err := beginShuffle(r, nowUnix)
		if err != nil {
			return nil, err
		}
		res.Events = append(res.Events, evs...)
	}
	return res, nil
}

func handleStartShuffle(st *state.State, env codec.TxEnvelope, nowUnix int64) (*abci.ExecTxResult, error) {
	var msg codec.StartShuffleTx
	if err := unmarshalTx(env, &msg); err != nil {
		return nil, err
	}
	r := st.Rooms[msg.RoomID]
	if r == nil {
		return nil, errRoomNotFound(msg.RoomID)
	}
	if r.Phase != state.PhaseLobby {
		return nil, errWrongPhase(string(r.Phase), string(state.PhaseLobby))
	}
	if err := requireRoomPlayerAuth(st, r, env, msg.Caller); err != nil {
		return nil, err
	}
	if msg.Caller != r.Host {
		return nil, fmt.Errorf("only the host may start the shuffle")
	}
	if len(r.Players) < r.Params.MinPlayers {
		return nil, fmt.Errorf("need at least %d players, have %d", r.Params.MinPlayers, len(r.Players))
	}

	evs, err := beginShuffle(r, nowUnix)
	if err != nil {
		return nil, err
	}
	res := okEvent("ShuffleStarted", map[string]string{
		"roomId":      fmt.Sprintf("%d", msg.RoomID),
		"playerCount": fmt.Sprintf("%d", len(r.Players)),
	})
	res.Events = append(res.Events, evs...)
	return res, nil
}

func beginShuffle(r *state.Room, nowUnix int64) ([]abci.Event, error) {
	r.CurrentShuffler = 0
	ev, err := enterPhase(r, state.PhaseShuffling, nowUnix)
	if err != nil {
		return nil, err
	}
	return []abci.Event{ev}, nil
}

// validateSealKey accepts an absent seal key. Key-share blobs are opaque to
// the ledger, so sealing is a client convention; the chain only pins the
// published key's length.
func validateSealKey(key []byte) error {
	if len(key) != 0 && len(key) != keywrap.PublicKeySize {
		return fmt.Errorf("seal key must be %d bytes, got %d", keywrap.PublicKeySize, len(key))
	}
	return nil
}

func roomPrime(r *state.Room) (*big.Int, error) {
	p, ok := new(big.Int).SetString(r.PrimeDec, 10)
	if !ok {
		return nil, fmt.Errorf("room %d has corrupt modulus", r.ID)
	}
	return p, nil
}

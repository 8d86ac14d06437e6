package app

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/light3739/SomniaMafia-sub000/internal/commitment"
	"github.com/light3739/SomniaMafia-sub000/internal/state"
)

// roomSummary is the lobby-browser row.
type roomSummary struct {
	ID          uint64      `json:"id"`
	Name        string      `json:"name"`
	Host        string      `json:"host"`
	Phase       state.Phase `json:"phase"`
	PlayerCount int         `json:"playerCount"`
	MaxPlayers  int         `json:"maxPlayers"`
}

// roomSnapshot is the polled per-room view; clients reconcile against it.
type roomSnapshot struct {
	ID             uint64      `json:"id"`
	Name           string      `json:"name"`
	Host           string      `json:"host"`
	Phase          state.Phase `json:"phase"`
	DayCount       int         `json:"dayCount"`
	PhaseStartedAt int64       `json:"phaseStartedAt"`
	PhaseDeadline  int64       `json:"phaseDeadline"`

	PlayerCount     int `json:"playerCount"`
	AliveCount      int `json:"aliveCount"`
	CurrentShuffler int `json:"currentShuffler"`
	KeysShared      int `json:"keysShared"`
	Confirmed       int `json:"confirmed"`
	Voted           int `json:"voted"`

	Winner state.Winner `json:"winner,omitempty"`
}

type playerView struct {
	Addr          string     `json:"addr"`
	Nickname      string     `json:"nickname"`
	SealPub       []byte     `json:"sealPub,omitempty"`
	Active        bool       `json:"active"`
	Kicked        bool       `json:"kicked,omitempty"`
	SharedKeys    bool       `json:"sharedKeys"`
	ConfirmedRole bool       `json:"confirmedRole"`
	Voted         bool       `json:"voted"`
	ClaimedMafia  bool       `json:"claimedMafia"`
	RevealedRole  state.Role `json:"revealedRole,omitempty"`
}

type commitmentView struct {
	Hash     []byte `json:"hash"`
	Revealed bool   `json:"revealed"`
}

type playerCommitments struct {
	Addr  string          `json:"addr"`
	Deck  *commitmentView `json:"deck,omitempty"`
	Role  *commitmentView `json:"role,omitempty"`
	Night *commitmentView `json:"night,omitempty"`
	Mafia *commitmentView `json:"mafia,omitempty"`
}

type keyEnvelopeView struct {
	From string `json:"from"`
	To   string `json:"to"`
	Blob []byte `json:"blob"`
}

func (a *MafiaApp) Query(_ context.Context, req *abci.QueryRequest) (*abci.QueryResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Paths:
	// - /rooms
	// - /room/<id>
	// - /room/<id>/players
	// - /room/<id>/deck
	// - /room/<id>/consensus
	// - /room/<id>/keys
	// - /room/<id>/commitments
	path := strings.TrimSpace(req.Path)
	if path == "/rooms" {
		rooms := make([]roomSummary, 0, len(a.st.Rooms))
		for _, r := range a.st.Rooms {
			rooms = append(rooms, roomSummary{
				ID:          r.ID,
				Name:        r.Name,
				Host:        r.Host,
				Phase:       r.Phase,
				PlayerCount: len(r.Players),
				MaxPlayers:  r.Params.MaxPlayers,
			})
		}
		sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
		return a.queryOK(rooms)
	}

	if !strings.HasPrefix(path, "/room/") {
		return a.queryErr("unknown query path")
	}
	rest := strings.TrimPrefix(path, "/room/")
	idRaw, sub, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseUint(idRaw, 10, 64)
	if err != nil {
		return a.queryErr("invalid room id")
	}
	r, ok := a.st.Rooms[id]
	if !ok {
		return a.queryErr("room not found")
	}

	switch sub {
	case "":
		return a.queryOK(roomSnapshot{
			ID:              r.ID,
			Name:            r.Name,
			Host:            r.Host,
			Phase:           r.Phase,
			DayCount:        r.DayCount,
			PhaseStartedAt:  r.PhaseStartedAt,
			PhaseDeadline:   r.PhaseDeadline,
			PlayerCount:     len(r.Players),
			AliveCount:      r.AliveCount(),
			CurrentShuffler: r.CurrentShuffler,
			KeysShared:      r.KeysSharedCount(),
			Confirmed:       r.ConfirmedCount(),
			Voted:           r.VotedCount(),
			Winner:          r.Winner,
		})
	case "players":
		players := make([]playerView, 0, len(r.Players))
		for _, p := range r.Players {
			players = append(players, playerView{
				Addr:          p.Addr,
				Nickname:      p.Nickname,
				SealPub:       p.SealPub,
				Active:        p.Active,
				Kicked:        p.Kicked,
				SharedKeys:    p.SharedKeys,
				ConfirmedRole: p.ConfirmedRole,
				Voted:         p.Voted,
				ClaimedMafia:  p.ClaimedMafia,
				RevealedRole:  p.RevealedRole,
			})
		}
		return a.queryOK(players)
	case "deck":
		return a.queryOK(map[string]any{
			"cards":           r.Deck,
			"currentShuffler": r.CurrentShuffler,
			"modulus":         r.PrimeDec,
		})
	case "consensus":
		return a.queryOK(r.MafiaConsensusState())
	case "keys":
		var envs []keyEnvelopeView
		for _, p := range r.Players {
			for _, e := range p.KeyEnvelopes {
				envs = append(envs, keyEnvelopeView{From: p.Addr, To: e.To, Blob: e.Blob})
			}
		}
		return a.queryOK(envs)
	case "commitments":
		out := make([]playerCommitments, 0, len(r.Players))
		for _, p := range r.Players {
			out = append(out, playerCommitments{
				Addr:  p.Addr,
				Deck:  commitView(p.DeckCommit),
				Role:  commitView(p.RoleCommit),
				Night: commitView(p.NightCommit),
				Mafia: commitView(p.MafiaCommit),
			})
		}
		return a.queryOK(out)
	default:
		return a.queryErr("unknown query path")
	}
}

func commitView(c *commitment.Commitment) *commitmentView {
	if c == nil {
		return nil
	}
	return &commitmentView{Hash: c.Hash, Revealed: c.Revealed}
}

func (a *MafiaApp) queryOK(v any) (*abci.QueryResponse, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return a.queryErr("encode query result: " + err.Error())
	}
	return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
}

func (a *MafiaApp) queryErr(log string) (*abci.QueryResponse, error) {
	return &abci.QueryResponse{Code: 1, Log: log, Height: a.st.Height}, nil
}

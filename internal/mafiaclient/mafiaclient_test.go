package mafiaclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"testing"
	"time"

	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/stretchr/testify/require"

	"github.com/light3739/SomniaMafia-sub000/internal/app"
	"github.com/light3739/SomniaMafia-sub000/internal/keywrap"
	"github.com/light3739/SomniaMafia-sub000/internal/shuffle"
	"github.com/light3739/SomniaMafia-sub000/internal/sra"
	"github.com/light3739/SomniaMafia-sub000/internal/state"
)

// harness drives the app through its public ABCI surface, one block per
// deliver call.
type harness struct {
	t      *testing.T
	a      *app.MafiaApp
	height int64
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	a, err := app.New(t.TempDir(), nil)
	require.NoError(t, err)
	return &harness{t: t, a: a, now: time.Unix(1_700_000_000, 0)}
}

func (h *harness) deliver(txs ...[]byte) []*abci.ExecTxResult {
	h.t.Helper()
	h.height++
	res, err := h.a.FinalizeBlock(context.Background(), &abci.FinalizeBlockRequest{
		Height: h.height,
		Time:   h.now,
		Txs:    txs,
	})
	require.NoError(h.t, err)
	_, err = h.a.Commit(context.Background(), &abci.CommitRequest{})
	require.NoError(h.t, err)
	return res.TxResults
}

func (h *harness) mustDeliver(tx []byte) *abci.ExecTxResult {
	h.t.Helper()
	res := h.deliver(tx)[0]
	require.Zerof(h.t, res.Code, "tx rejected: %s", res.Log)
	return res
}

func (h *harness) query(path string, out any) {
	h.t.Helper()
	res, err := h.a.Query(context.Background(), &abci.QueryRequest{Path: path})
	require.NoError(h.t, err)
	require.Zerof(h.t, res.Code, "query %s: %s", path, res.Log)
	require.NoError(h.t, json.Unmarshal(res.Value, out))
}

func signTx(t *testing.T, w *Wallet, typ string, value any) []byte {
	t.Helper()
	tx, err := w.SignTx(typ, value)
	require.NoError(t, err)
	return tx
}

func eventAttr(events []abci.Event, typ, key string) string {
	for _, ev := range events {
		if ev.Type != typ {
			continue
		}
		for _, a := range ev.Attributes {
			if a.Key == key {
				return a.Value
			}
		}
	}
	return ""
}

func TestFullGame_FivePlayersRecoverRoleMultiset(t *testing.T) {
	const n = 5
	h := newHarness(t)
	prime := sra.ToyPrime()

	wallets := make([]*Wallet, n)
	agents := make([]*Agent, n)
	for i := range wallets {
		addr := fmt.Sprintf("player%d", i)
		w, err := NewWallet(addr)
		require.NoError(t, err)
		wallets[i] = w
		ag, err := New(addr, prime)
		require.NoError(t, err)
		agents[i] = ag
	}

	// Host creates, the rest join; the room auto-starts the shuffle when the
	// last seat fills.
	res := h.mustDeliver(signTx(t, wallets[0], "room/create", map[string]any{
		"host":         wallets[0].Addr(),
		"hostNickname": "host",
		"hostPubKey":   wallets[0].PubKey(),
		"hostSealKey":  agents[0].SealPub(),
		"name":         "e2e",
		"maxPlayers":   n,
		"modulus":      prime.String(),
	}))
	roomID, err := strconv.ParseUint(eventAttr(res.Events, "RoomCreated", "roomId"), 10, 64)
	require.NoError(t, err)
	for i := 1; i < n; i++ {
		h.mustDeliver(signTx(t, wallets[i], "room/join", map[string]any{
			"player":   wallets[i].Addr(),
			"roomId":   roomID,
			"nickname": fmt.Sprintf("nick%d", i),
			"pubKey":   wallets[i].PubKey(),
			"sealKey":  agents[i].SealPub(),
		}))
	}

	roomPath := fmt.Sprintf("/room/%d", roomID)
	var snap struct {
		Phase           state.Phase `json:"phase"`
		DayCount        int         `json:"dayCount"`
		CurrentShuffler int         `json:"currentShuffler"`
	}
	h.query(roomPath, &snap)
	require.Equal(t, state.PhaseShuffling, snap.Phase)

	// Each player in turn fetches the deck, layers on their encryption and a
	// fresh permutation, and commits then reveals.
	for i := 0; i < n; i++ {
		var deck struct {
			Cards []string `json:"cards"`
		}
		h.query(roomPath+"/deck", &deck)

		turn, err := agents[i].PrepareShuffleTurn(n, deck.Cards)
		require.NoError(t, err)
		h.mustDeliver(signTx(t, wallets[i], "shuffle/commit_deck", map[string]any{
			"player": wallets[i].Addr(), "roomId": roomID, "hash": turn.Hash,
		}))
		h.mustDeliver(signTx(t, wallets[i], "shuffle/reveal_deck", map[string]any{
			"player": wallets[i].Addr(), "roomId": roomID, "cards": turn.Cards, "salt": turn.Salt,
		}))
	}
	h.query(roomPath, &snap)
	require.Equal(t, state.PhaseReveal, snap.Phase)

	// Key exchange: everyone seals their decryption key to every other
	// player's published seal key and posts the envelopes.
	var roster []struct {
		Addr    string `json:"addr"`
		SealPub []byte `json:"sealPub"`
		Active  bool   `json:"active"`
	}
	h.query(roomPath+"/players", &roster)
	sealPubs := map[string][]byte{}
	for _, p := range roster {
		require.Len(t, p.SealPub, keywrap.PublicKeySize)
		sealPubs[p.Addr] = p.SealPub
	}
	for i := 0; i < n; i++ {
		shares := make([]map[string]any, 0, n-1)
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			blob, err := agents[i].SealKeyShareFor(sealPubs[wallets[j].Addr()])
			require.NoError(t, err)
			shares = append(shares, map[string]any{
				"to":   wallets[j].Addr(),
				"blob": blob,
			})
		}
		h.mustDeliver(signTx(t, wallets[i], "reveal/share_keys", map[string]any{
			"player": wallets[i].Addr(), "roomId": roomID, "shares": shares,
		}))
	}

	// Each agent collects the envelopes addressed to it and opens its card.
	var posted []struct {
		From string `json:"from"`
		To   string `json:"to"`
		Blob []byte `json:"blob"`
	}
	h.query(roomPath+"/keys", &posted)
	var finalDeck struct {
		Cards []string `json:"cards"`
	}
	h.query(roomPath+"/deck", &finalDeck)
	require.Len(t, finalDeck.Cards, n)

	recovered := map[state.Role]int{}
	for i, ag := range agents {
		var peers []string
		for _, env := range posted {
			if env.To != ag.Addr() {
				continue
			}
			require.NoError(t, ag.OpenKeyShare(env.From, env.Blob))
			peers = append(peers, env.From)
		}
		role, err := ag.DecryptOwnCard(finalDeck.Cards, i, peers)
		require.NoError(t, err)
		recovered[role]++

		hash, err := ag.PrepareRoleCommit()
		require.NoError(t, err)
		h.mustDeliver(signTx(t, wallets[i], "reveal/commit_role", map[string]any{
			"player": wallets[i].Addr(), "roomId": roomID, "hash": hash,
		}))
		h.mustDeliver(signTx(t, wallets[i], "reveal/confirm_role", map[string]any{
			"player": wallets[i].Addr(), "roomId": roomID,
		}))
	}

	// Every role card survived the five encryption layers.
	want, err := shuffle.InitialDeck(n)
	require.NoError(t, err)
	wantCounts := map[state.Role]int{}
	for _, r := range want {
		wantCounts[r]++
	}
	require.Equal(t, wantCounts, recovered)

	h.query(roomPath, &snap)
	require.Equal(t, state.PhaseDay, snap.Phase)
	require.Equal(t, 1, snap.DayCount)

	// Day 1 deadlocks in a ring vote, so the night begins.
	h.mustDeliver(signTx(t, wallets[0], "day/start_voting", map[string]any{
		"caller": wallets[0].Addr(), "roomId": roomID,
	}))
	for i := range wallets {
		h.mustDeliver(signTx(t, wallets[i], "vote/cast", map[string]any{
			"player": wallets[i].Addr(), "roomId": roomID, "target": wallets[(i+1)%n].Addr(),
		}))
	}
	h.query(roomPath, &snap)
	require.Equal(t, state.PhaseNight, snap.Phase)

	// Night 1: the mafia agent prepares a kill, a town agent prepares a
	// check on the mafia, and both run commit then reveal.
	mafiaIdx, checkerIdx, victimIdx := -1, -1, -1
	for i, ag := range agents {
		if ag.Role().IsMafia() {
			mafiaIdx = i
		}
	}
	require.GreaterOrEqual(t, mafiaIdx, 0)
	for i := range agents {
		if i == mafiaIdx {
			continue
		}
		if checkerIdx < 0 {
			checkerIdx = i
			continue
		}
		if victimIdx < 0 {
			victimIdx = i
		}
	}

	kill, err := agents[mafiaIdx].PrepareMafiaTarget(wallets[victimIdx].Addr())
	require.NoError(t, err)
	check, err := agents[checkerIdx].PrepareNightAction("check", wallets[mafiaIdx].Addr())
	require.NoError(t, err)

	h.mustDeliver(signTx(t, wallets[mafiaIdx], "night/commit_target", map[string]any{
		"player": wallets[mafiaIdx].Addr(), "roomId": roomID, "hash": kill.Hash,
	}))
	h.mustDeliver(signTx(t, wallets[checkerIdx], "night/commit_action", map[string]any{
		"player": wallets[checkerIdx].Addr(), "roomId": roomID, "hash": check.Hash,
	}))
	h.mustDeliver(signTx(t, wallets[mafiaIdx], "night/reveal_target", map[string]any{
		"player": wallets[mafiaIdx].Addr(), "roomId": roomID,
		"target": wallets[victimIdx].Addr(), "salt": kill.Salt,
	}))
	res = h.mustDeliver(signTx(t, wallets[checkerIdx], "night/reveal_action", map[string]any{
		"player": wallets[checkerIdx].Addr(), "roomId": roomID,
		"action": "check", "target": wallets[mafiaIdx].Addr(), "salt": check.Salt,
	}))
	require.Equal(t, wallets[victimIdx].Addr(), eventAttr(res.Events, "NightFinalized", "killed"))
	require.Equal(t, "true", eventAttr(res.Events, "DetectiveCheckRecorded", "targetClaimedMafia"))

	h.query(roomPath, &snap)
	require.Equal(t, state.PhaseDay, snap.Phase)
	require.Equal(t, 2, snap.DayCount)
	h.query(roomPath+"/players", &roster)
	for _, p := range roster {
		if p.Addr == wallets[victimIdx].Addr() {
			require.False(t, p.Active)
		}
	}

	// The endgame reveal matches the role each agent committed during setup.
	role, salt, err := agents[0].RoleReveal()
	require.NoError(t, err)
	h.mustDeliver(signTx(t, wallets[0], "endgame/reveal_role", map[string]any{
		"player": wallets[0].Addr(), "roomId": roomID, "role": role, "salt": salt,
	}))
}

func TestDecryptOwnCard_RequiresAllPeerKeys(t *testing.T) {
	prime := sra.ToyPrime()
	agents := make([]*Agent, 3)
	for i := range agents {
		ag, err := New(fmt.Sprintf("p%d", i), prime)
		require.NoError(t, err)
		agents[i] = ag
	}

	// Run the shuffle chain locally.
	var deck []string
	for _, ag := range agents {
		turn, err := ag.PrepareShuffleTurn(3, deck)
		require.NoError(t, err)
		deck = turn.Cards
	}

	peers := []string{"p1", "p2"}
	_, err := agents[0].DecryptOwnCard(deck, 0, peers)
	require.ErrorIs(t, err, ErrIncompleteKeySet)

	require.NoError(t, agents[0].AddPeerKey("p1", agents[1].DecryptionKeyBlob()))
	_, err = agents[0].DecryptOwnCard(deck, 0, peers)
	require.ErrorIs(t, err, ErrIncompleteKeySet)

	require.NoError(t, agents[0].AddPeerKey("p2", agents[2].DecryptionKeyBlob()))
	role, err := agents[0].DecryptOwnCard(deck, 0, peers)
	require.NoError(t, err)
	require.True(t, role.Valid())
}

func TestAddPeerKey_RejectsConflictsToleratesRedelivery(t *testing.T) {
	ag, err := New("p0", sra.ToyPrime())
	require.NoError(t, err)

	require.NoError(t, ag.AddPeerKey("p1", []byte("12345")))
	require.NoError(t, ag.AddPeerKey("p1", []byte("12345")))
	require.Error(t, ag.AddPeerKey("p1", []byte("54321")))
	require.Error(t, ag.AddPeerKey("p2", []byte("not-a-number")))
}

func TestReconciler_LedgerConfirmationDropsIntents(t *testing.T) {
	r := NewReconciler()
	r.Note(Intent{Type: "shuffle/commit_deck", Value: 1})
	r.Note(Intent{Type: "vote/cast", Value: 2})
	r.Note(Intent{Type: "vote/cast", Value: 3}) // replaces, not duplicates

	due := r.Reconcile(PlayerProgress{})
	require.Len(t, due, 2)

	// The ledger confirms the deck commit; only the vote remains due.
	due = r.Reconcile(PlayerProgress{DeckCommitted: true})
	require.Len(t, due, 1)
	require.Equal(t, "vote/cast", due[0].Type)
	require.Equal(t, 3, due[0].Value)

	due = r.Reconcile(PlayerProgress{DeckCommitted: true, Voted: true})
	require.Empty(t, due)

	// A phase change can make a pending intent moot before the ledger ever
	// confirms it; dropping it takes it off the due list.
	r.Note(Intent{Type: "night/commit_action", Value: 4})
	require.Len(t, r.Reconcile(PlayerProgress{}), 1)
	r.Drop("night/commit_action")
	require.Empty(t, r.Reconcile(PlayerProgress{}))
}

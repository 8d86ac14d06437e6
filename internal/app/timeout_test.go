package app

import (
	"strconv"
	"testing"

	"github.com/light3739/SomniaMafia-sub000/internal/commitment"
	"github.com/light3739/SomniaMafia-sub000/internal/state"
)

func parseRoomID(t *testing.T, s string) uint64 {
	t.Helper()
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		t.Fatalf("parse roomId %q: %v", s, err)
	}
	return id
}

func TestForceTimeout_RejectedBeforeDeadline(t *testing.T) {
	a, roomID, signers := setupRoom(t, 4)
	r := roomByID(t, a, roomID)

	res := mustFail(t, a.deliverTx(signers[1].signedTx(t, "room/force_timeout", map[string]any{
		"caller": signers[1].addr, "roomId": roomID,
	}), testHeight, r.PhaseDeadline))
	if res.Log != errDeadlineNotReached().Error() {
		t.Fatalf("unexpected rejection: %q", res.Log)
	}
}

func TestForceTimeout_ShufflingKicksStalledShuffler(t *testing.T) {
	a, roomID, signers := setupRoom(t, 4)
	r := roomByID(t, a, roomID)
	late := r.PhaseDeadline + 1

	res := mustOk(t, a.deliverTx(signers[1].signedTx(t, "room/force_timeout", map[string]any{
		"caller": signers[1].addr, "roomId": roomID,
	}), testHeight, late))
	kick := findEvent(res.Events, "PlayerKicked")
	if kick == nil || attr(kick, "player") != signers[0].addr {
		t.Fatalf("expected the stalled shuffler kicked, got %+v", res.Events)
	}

	r = roomByID(t, a, roomID)
	if r.Player(signers[0].addr).Active || !r.Player(signers[0].addr).Kicked {
		t.Fatalf("kicked shuffler still active")
	}
	if r.CurrentShuffler != 1 {
		t.Fatalf("expected turn to pass to index 1, got %d", r.CurrentShuffler)
	}
	if r.PhaseDeadline <= late {
		t.Fatalf("expected a fresh turn deadline")
	}

	// The remaining three can still complete the shuffle.
	cards := testDeck(t, 4)
	for _, s := range signers[1:] {
		shuffleTurn(t, a, roomID, s, cards, late+1)
	}
	if got := roomByID(t, a, roomID).Phase; got != state.PhaseReveal {
		t.Fatalf("expected reveal, got %s", got)
	}
}

func TestForceTimeout_ShufflingBelowMinimumDraws(t *testing.T) {
	a, roomID, signers := setupRoom(t, 3)
	r := roomByID(t, a, roomID)

	res := mustOk(t, a.deliverTx(signers[1].signedTx(t, "room/force_timeout", map[string]any{
		"caller": signers[1].addr, "roomId": roomID,
	}), testHeight, r.PhaseDeadline+1))
	ended := findEvent(res.Events, "GameEnded")
	if ended == nil || attr(ended, "winner") != string(state.WinnerDraw) {
		t.Fatalf("expected a draw once the room fell below minimum size")
	}
	if got := roomByID(t, a, roomID).Phase; got != state.PhaseEnded {
		t.Fatalf("expected ended, got %s", got)
	}
}

func TestForceTimeout_RevealKeyWithholderDraws(t *testing.T) {
	a, roomID, signers := setupRoom(t, 3)
	runShuffle(t, a, roomID, signers, now0)
	r := roomByID(t, a, roomID)

	// Only player 0 delivers keys and a role commitment.
	shares := []map[string]any{
		{"to": signers[1].addr, "blob": []byte{1}},
		{"to": signers[2].addr, "blob": []byte{2}},
	}
	mustOk(t, a.deliverTx(signers[0].signedTx(t, "reveal/share_keys", map[string]any{
		"player": signers[0].addr, "roomId": roomID, "shares": shares,
	}), testHeight, now0))
	salt := testSalt(30)
	hash := mustDigest(t, commitment.SchemaRole, commitment.RolePayload{Role: "civilian"}, salt)
	mustOk(t, a.deliverTx(signers[0].signedTx(t, "reveal/commit_role", map[string]any{
		"player": signers[0].addr, "roomId": roomID, "hash": hash,
	}), testHeight, now0))

	res := mustOk(t, a.deliverTx(signers[0].signedTx(t, "room/force_timeout", map[string]any{
		"caller": signers[0].addr, "roomId": roomID,
	}), testHeight, r.PhaseDeadline+1))

	kicks := 0
	for _, ev := range res.Events {
		if ev.Type == "PlayerKicked" {
			kicks++
		}
	}
	if kicks != 2 {
		t.Fatalf("expected 2 withholders kicked, got %d", kicks)
	}
	ended := findEvent(res.Events, "GameEnded")
	if ended == nil || attr(ended, "winner") != string(state.WinnerDraw) {
		t.Fatalf("withheld keys must end the room in a draw")
	}
}

func TestForceTimeout_RevealForceConfirmsLaggards(t *testing.T) {
	a, roomID, signers := setupRoom(t, 3)
	runShuffle(t, a, roomID, signers, now0)
	r := roomByID(t, a, roomID)

	// Everyone shares keys and commits a role; only player 0 confirms.
	for i, s := range signers {
		var shares []map[string]any
		for j, other := range signers {
			if j == i {
				continue
			}
			shares = append(shares, map[string]any{"to": other.addr, "blob": []byte{byte(i), byte(j)}})
		}
		mustOk(t, a.deliverTx(s.signedTx(t, "reveal/share_keys", map[string]any{
			"player": s.addr, "roomId": roomID, "shares": shares,
		}), testHeight, now0))
		salt := testSalt(40 + i)
		hash := mustDigest(t, commitment.SchemaRole, commitment.RolePayload{Role: "civilian"}, salt)
		mustOk(t, a.deliverTx(s.signedTx(t, "reveal/commit_role", map[string]any{
			"player": s.addr, "roomId": roomID, "hash": hash,
		}), testHeight, now0))
	}
	mustOk(t, a.deliverTx(signers[0].signedTx(t, "reveal/confirm_role", map[string]any{
		"player": signers[0].addr, "roomId": roomID,
	}), testHeight, now0))

	mustOk(t, a.deliverTx(signers[0].signedTx(t, "room/force_timeout", map[string]any{
		"caller": signers[0].addr, "roomId": roomID,
	}), testHeight, r.PhaseDeadline+1))

	r = roomByID(t, a, roomID)
	if r.Phase != state.PhaseDay || r.DayCount != 1 {
		t.Fatalf("expected day 1 after force-confirm, got %s day %d", r.Phase, r.DayCount)
	}
	if r.AliveCount() != 3 {
		t.Fatalf("force-confirm must not kick anyone")
	}
}

func TestForceTimeout_DayVotingAndNightPaths(t *testing.T) {
	a, roomID, signers, _, _ := dayRoom(t, 4)
	r := roomByID(t, a, roomID)

	// DAY times out into VOTING.
	dayEnd := r.PhaseDeadline + 1
	mustOk(t, a.deliverTx(signers[1].signedTx(t, "room/force_timeout", map[string]any{
		"caller": signers[1].addr, "roomId": roomID,
	}), testHeight, dayEnd))
	r = roomByID(t, a, roomID)
	if r.Phase != state.PhaseVoting {
		t.Fatalf("expected voting, got %s", r.Phase)
	}

	// VOTING times out; a lone vote is no majority, nobody is eliminated.
	castVote(t, a, roomID, signers[0], signers[1].addr, dayEnd+1)
	voteEnd := r.PhaseDeadline + 1
	res := mustOk(t, a.deliverTx(signers[1].signedTx(t, "room/force_timeout", map[string]any{
		"caller": signers[1].addr, "roomId": roomID,
	}), testHeight, voteEnd))
	fin := findEvent(res.Events, "VotingFinalized")
	if fin == nil || attr(fin, "eliminated") != "" {
		t.Fatalf("expected forced tally with no elimination, got %+v", res.Events)
	}
	r = roomByID(t, a, roomID)
	if r.Phase != state.PhaseNight {
		t.Fatalf("expected night, got %s", r.Phase)
	}

	// NIGHT times out with no consensus; nobody dies, next day begins.
	nightEnd := r.PhaseDeadline + 1
	res = mustOk(t, a.deliverTx(signers[1].signedTx(t, "room/force_timeout", map[string]any{
		"caller": signers[1].addr, "roomId": roomID,
	}), testHeight, nightEnd))
	if findEvent(res.Events, "NightFinalized") == nil {
		t.Fatalf("expected NightFinalized")
	}
	r = roomByID(t, a, roomID)
	if r.Phase != state.PhaseDay || r.DayCount != 2 {
		t.Fatalf("expected day 2, got %s day %d", r.Phase, r.DayCount)
	}
	if r.AliveCount() != 4 {
		t.Fatalf("expected all alive, got %d", r.AliveCount())
	}
}

func TestForceTimeout_NoDeadlineInLobbyOrEnded(t *testing.T) {
	a := newTestApp(t)
	s := newSigner(t, "host")
	res := mustOk(t, a.deliverTx(s.signedTx(t, "room/create", map[string]any{
		"host": "host", "hostNickname": "h", "hostPubKey": []byte(s.pub), "name": "r", "maxPlayers": 5,
	}), testHeight, now0))
	roomID := uint64(0)
	if ev := findEvent(res.Events, "RoomCreated"); ev != nil {
		roomID = parseRoomID(t, attr(ev, "roomId"))
	}
	mustFail(t, a.deliverTx(s.signedTx(t, "room/force_timeout", map[string]any{
		"caller": "host", "roomId": roomID,
	}), testHeight, now0+1_000_000))
}

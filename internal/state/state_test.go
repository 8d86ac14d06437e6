package state

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingReturnsFresh(t *testing.T) {
	st, err := Load(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, uint64(1), st.NextRoomID)
	require.Empty(t, st.Rooms)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	home := t.TempDir()
	st := NewState()
	st.Height = 7
	st.NextRoomID = 3
	st.Rooms[1] = &Room{
		ID:    1,
		Name:  "village",
		Host:  "alice",
		Phase: PhaseLobby,
		Players: []*Player{
			{Addr: "alice", Nickname: "Alice", Active: true},
		},
	}
	require.NoError(t, st.Save(home))

	got, err := Load(home)
	require.NoError(t, err)
	require.Equal(t, st.Height, got.Height)
	require.Equal(t, st.NextRoomID, got.NextRoomID)
	require.Equal(t, "village", got.Rooms[1].Name)
	require.Equal(t, st.AppHash(), got.AppHash())
}

func TestCloneIsDeep(t *testing.T) {
	st := NewState()
	st.Rooms[1] = &Room{ID: 1, Phase: PhaseDay, Players: []*Player{{Addr: "a", Active: true}}}

	cp, err := st.Clone()
	require.NoError(t, err)
	cp.Rooms[1].Phase = PhaseEnded
	cp.Rooms[1].Players[0].Active = false

	require.Equal(t, PhaseDay, st.Rooms[1].Phase)
	require.True(t, st.Rooms[1].Players[0].Active)
}

func TestAppHashChangesWithState(t *testing.T) {
	st := NewState()
	h1 := st.AppHash()
	st.Rooms[1] = &Room{ID: 1, Phase: PhaseLobby}
	h2 := st.AppHash()
	require.NotEqual(t, h1, h2)
}

func TestMafiaConsensusState(t *testing.T) {
	r := &Room{
		Players: []*Player{
			{Addr: "m1", Active: true, ClaimedMafia: true},
			{Addr: "m2", Active: true, ClaimedMafia: true},
			{Addr: "c1", Active: true},
		},
	}
	agg := r.MafiaConsensusState()
	require.Zero(t, agg.CommittedCount)
	require.Empty(t, agg.ConsensusTarget)
}

func TestAliveIndexSkipsDead(t *testing.T) {
	r := &Room{
		Players: []*Player{
			{Addr: "a", Active: false},
			{Addr: "b", Active: true},
			{Addr: "c", Active: true},
		},
	}
	require.Equal(t, -1, r.AliveIndex("a"))
	require.Equal(t, 0, r.AliveIndex("b"))
	require.Equal(t, 1, r.AliveIndex("c"))
}

package state

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

type State struct {
	Height int64 `json:"height"`

	NextRoomID uint64            `json:"nextRoomId"`
	NonceMax   map[string]uint64 `json:"nonceMax,omitempty"` // signer -> last accepted tx.nonce, replay protection
	Rooms      map[uint64]*Room  `json:"rooms"`
}

func NewState() *State {
	return &State{
		Height:     0,
		NextRoomID: 1,
		NonceMax:   map[string]uint64{},
		Rooms:      map[uint64]*Room{},
	}
}

func Load(home string) (*State, error) {
	path := filepath.Join(home, "state.json")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	st.normalize()
	return &st, nil
}

func (s *State) Save(home string) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return fmt.Errorf("mkdir home: %w", err)
	}
	path := filepath.Join(home, "state.json")
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

func (s *State) normalize() {
	if s.NonceMax == nil {
		s.NonceMax = map[string]uint64{}
	}
	if s.Rooms == nil {
		s.Rooms = map[uint64]*Room{}
	}
	if s.NextRoomID == 0 {
		s.NextRoomID = 1
	}
}

// Clone returns a deep copy of state suitable for staged tx execution.
func (s *State) Clone() (*State, error) {
	if s == nil {
		return nil, fmt.Errorf("state is nil")
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode state clone: %w", err)
	}
	var out State
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode state clone: %w", err)
	}
	out.normalize()
	return &out, nil
}

func (s *State) AppHash() []byte {
	// Deterministic JSON hash. encoding/json does not guarantee map key
	// order, so maps are normalized into sorted slices first.
	type nonceKV struct {
		Signer string `json:"signer"`
		Nonce  uint64 `json:"nonce"`
	}
	type roomKV struct {
		ID   uint64 `json:"id"`
		Room *Room  `json:"room"`
	}

	nonces := make([]nonceKV, 0, len(s.NonceMax))
	for k, v := range s.NonceMax {
		nonces = append(nonces, nonceKV{Signer: k, Nonce: v})
	}
	sort.Slice(nonces, func(i, j int) bool { return nonces[i].Signer < nonces[j].Signer })

	rooms := make([]roomKV, 0, len(s.Rooms))
	for id, r := range s.Rooms {
		rooms = append(rooms, roomKV{ID: id, Room: r})
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })

	normalized := struct {
		Height     int64     `json:"height"`
		NextRoomID uint64    `json:"nextRoomId"`
		NonceMax   []nonceKV `json:"nonceMax,omitempty"`
		Rooms      []roomKV  `json:"rooms"`
	}{
		Height:     s.Height,
		NextRoomID: s.NextRoomID,
		NonceMax:   nonces,
		Rooms:      rooms,
	}

	b, _ := json.Marshal(normalized)
	sum := sha256.Sum256(b)
	return sum[:]
}

// Package mafiaclient implements the player-side agent: SRA key custody,
// shuffle turn computation, decryption key collection and own-card recovery.
// The ledger only ever sees commitments and ciphertexts; everything secret
// lives here.
package mafiaclient

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/light3739/SomniaMafia-sub000/internal/commitment"
	"github.com/light3739/SomniaMafia-sub000/internal/keywrap"
	"github.com/light3739/SomniaMafia-sub000/internal/shuffle"
	"github.com/light3739/SomniaMafia-sub000/internal/sra"
	"github.com/light3739/SomniaMafia-sub000/internal/state"
)

// ErrIncompleteKeySet is returned while any peer's decryption key is still
// missing; a card under N layers cannot be opened with fewer than N keys.
var ErrIncompleteKeySet = errors.New("mafiaclient: incomplete key set")

// Agent is one player's in-memory secret state for a single room. It is not
// safe for concurrent use.
type Agent struct {
	addr  string
	prime *big.Int
	keys  sra.Keys
	wrap  *keywrap.PrivateKey

	peerKeys map[string]*big.Int

	role     state.Role
	roleSalt []byte
}

func New(addr string, prime *big.Int) (*Agent, error) {
	keys, err := sra.KeyGen(prime)
	if err != nil {
		return nil, fmt.Errorf("mafiaclient: keygen: %w", err)
	}
	wrap, err := keywrap.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("mafiaclient: keygen: %w", err)
	}
	return &Agent{
		addr:     addr,
		prime:    prime,
		keys:     keys,
		wrap:     wrap,
		peerKeys: map[string]*big.Int{},
	}, nil
}

func (a *Agent) Addr() string { return a.addr }

// DecryptionKeyBlob serializes the agent's decryption key for a key-share
// envelope. Production clients seal this blob to the recipient before
// posting it; the ledger treats it as opaque either way.
func (a *Agent) DecryptionKeyBlob() []byte {
	return []byte(a.keys.D.String())
}

// SealPub returns the ristretto255 key peers seal key shares to. It is
// published in the join transaction.
func (a *Agent) SealPub() []byte {
	return a.wrap.PublicKey()
}

// SealKeyShareFor wraps the agent's decryption key for one recipient.
func (a *Agent) SealKeyShareFor(recipientSealPub []byte) ([]byte, error) {
	return keywrap.Seal(recipientSealPub, a.DecryptionKeyBlob())
}

// OpenKeyShare unwraps a sealed key-share blob addressed to this agent and
// ingests the decryption key inside it.
func (a *Agent) OpenKeyShare(from string, blob []byte) error {
	plain, err := a.wrap.Open(blob)
	if err != nil {
		return fmt.Errorf("mafiaclient: key share from %s: %w", from, err)
	}
	return a.AddPeerKey(from, plain)
}

// ShuffleTurn is one prepared shuffle pass: the outgoing deck plus the
// commit-reveal material for it.
type ShuffleTurn struct {
	Cards []string
	Salt  []byte
	Hash  []byte
}

// PrepareShuffleTurn consumes the previous shuffler's deck (or builds the
// initial role deck when this agent shuffles first), adds this agent's
// encryption layer and a fresh permutation, and prepares the deck commitment.
func (a *Agent) PrepareShuffleTurn(playerCount int, prevDeck []string) (*ShuffleTurn, error) {
	var deck []*big.Int
	var err error
	if len(prevDeck) == 0 {
		roles, derr := shuffle.InitialDeck(playerCount)
		if derr != nil {
			return nil, derr
		}
		deck, err = shuffle.InitialCardValues(roles)
	} else {
		deck, err = shuffle.DecodeDeck(prevDeck, a.prime)
	}
	if err != nil {
		return nil, err
	}

	deck, err = shuffle.EncryptPass(deck, a.keys.E, a.prime)
	if err != nil {
		return nil, err
	}
	deck, err = shuffle.Permute(deck)
	if err != nil {
		return nil, err
	}

	cards := shuffle.EncodeDeck(deck)
	salt, err := commitment.NewSalt()
	if err != nil {
		return nil, err
	}
	hash, err := commitment.Digest(commitment.SchemaDeck, commitment.DeckPayload{Cards: cards}, salt)
	if err != nil {
		return nil, err
	}
	return &ShuffleTurn{Cards: cards, Salt: salt, Hash: hash}, nil
}

// AddPeerKey ingests a decryption key blob addressed to this agent. Keys may
// arrive in any order and re-delivery of the same key is harmless.
func (a *Agent) AddPeerKey(from string, blob []byte) error {
	d, ok := new(big.Int).SetString(string(blob), 10)
	if !ok {
		return fmt.Errorf("mafiaclient: malformed key blob from %s", from)
	}
	if prev, exists := a.peerKeys[from]; exists && prev.Cmp(d) != 0 {
		return fmt.Errorf("mafiaclient: conflicting key from %s", from)
	}
	a.peerKeys[from] = d
	return nil
}

// DecryptOwnCard opens the card at this agent's deck position. All peers in
// peerAddrs must have delivered their keys first; layers are peeled in map
// order, which is fine because the cipher commutes.
func (a *Agent) DecryptOwnCard(deck []string, myIndex int, peerAddrs []string) (state.Role, error) {
	for _, addr := range peerAddrs {
		if _, ok := a.peerKeys[addr]; !ok {
			return "", fmt.Errorf("%w: missing key from %s", ErrIncompleteKeySet, addr)
		}
	}
	if myIndex < 0 || myIndex >= len(deck) {
		return "", fmt.Errorf("mafiaclient: card index %d out of range", myIndex)
	}
	cards, err := shuffle.DecodeDeck(deck, a.prime)
	if err != nil {
		return "", err
	}

	v := cards[myIndex]
	v, err = sra.Decrypt(v, a.keys.D, a.prime)
	if err != nil {
		return "", err
	}
	for _, d := range a.peerKeys {
		v, err = sra.Decrypt(v, d, a.prime)
		if err != nil {
			return "", err
		}
	}

	role, err := shuffle.DecodeCard(v)
	if err != nil {
		return "", fmt.Errorf("mafiaclient: card did not decode to a role: %w", err)
	}
	a.role = role
	return role, nil
}

// Role returns the role recovered by DecryptOwnCard, or RoleUnknown.
func (a *Agent) Role() state.Role {
	if a.role == "" {
		return state.RoleUnknown
	}
	return a.role
}

// PrepareRoleCommit builds the role commitment for the recovered role and
// keeps the salt for the endgame reveal.
func (a *Agent) PrepareRoleCommit() ([]byte, error) {
	if a.role == "" {
		return nil, fmt.Errorf("mafiaclient: no role recovered yet")
	}
	salt, err := commitment.NewSalt()
	if err != nil {
		return nil, err
	}
	hash, err := commitment.Digest(commitment.SchemaRole, commitment.RolePayload{Role: string(a.role)}, salt)
	if err != nil {
		return nil, err
	}
	a.roleSalt = salt
	return hash, nil
}

// RoleReveal returns the reveal arguments for the committed role.
func (a *Agent) RoleReveal() (role string, salt []byte, err error) {
	if a.roleSalt == nil {
		return "", nil, fmt.Errorf("mafiaclient: role was never committed")
	}
	return string(a.role), a.roleSalt, nil
}

// PreparedCommit bundles a payload with its salt and digest so the caller
// can submit the commit now and the reveal later.
type PreparedCommit struct {
	Schema  commitment.Schema
	Payload any
	Salt    []byte
	Hash    []byte
}

// PrepareCommit salts and hashes a payload under the given schema.
func PrepareCommit(schema commitment.Schema, payload any) (*PreparedCommit, error) {
	salt, err := commitment.NewSalt()
	if err != nil {
		return nil, err
	}
	hash, err := commitment.Digest(schema, payload, salt)
	if err != nil {
		return nil, err
	}
	return &PreparedCommit{Schema: schema, Payload: payload, Salt: salt, Hash: hash}, nil
}

// PrepareNightAction readies the commit-then-reveal material for a night
// action ("none", "kill", "heal" or "check").
func (a *Agent) PrepareNightAction(action, target string) (*PreparedCommit, error) {
	return PrepareCommit(commitment.SchemaNightAction, commitment.NightActionPayload{
		Action: action,
		Target: target,
	})
}

// PrepareMafiaTarget readies the commit-then-reveal material for a mafia
// kill target. Posting the commit publicly marks the agent as mafia.
func (a *Agent) PrepareMafiaTarget(target string) (*PreparedCommit, error) {
	return PrepareCommit(commitment.SchemaMafiaTarget, commitment.MafiaTargetPayload{
		Target: target,
	})
}

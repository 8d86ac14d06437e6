// Package commitment implements the hash-commit / salted-reveal primitive
// shared by the deck shuffle, role confirmation, night actions and the mafia
// consensus target.
//
// A commitment binds (room, player, schema) to blake3(domain || payload ||
// salt) where the payload is encoded with deterministic CBOR. The encoding is
// fixed for the life of a room: the same logical payload always hashes to the
// same digest, independent of field order or client language.
package commitment

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

var (
	ErrAlreadyCommitted = errors.New("commitment: already committed")
	ErrNotCommitted     = errors.New("commitment: not committed")
	ErrAlreadyRevealed  = errors.New("commitment: already revealed")
	ErrInvalidReveal    = errors.New("commitment: reveal does not match commitment")
)

// Schema identifies one of the four commitment payload shapes.
type Schema string

const (
	SchemaDeck        Schema = "deck"
	SchemaRole        Schema = "role"
	SchemaNightAction Schema = "night-action"
	SchemaMafiaTarget Schema = "mafia-target"
)

const (
	domainPrefix = "mafia/v1/commit/"

	// SaltSize is the length of reveal salts in bytes.
	SaltSize = 32

	// DigestSize is the length of commitment hashes in bytes.
	DigestSize = 32
)

// DeckPayload commits a full permuted-and-encrypted deck. Cards are decimal
// strings in [0, p).
type DeckPayload struct {
	Cards []string `cbor:"1,keyasint"`
}

// RolePayload commits a player's decrypted role for ledger-side win checks.
type RolePayload struct {
	Role string `cbor:"1,keyasint"`
}

// NightActionPayload commits a doctor/detective/civilian night action.
type NightActionPayload struct {
	Action string `cbor:"1,keyasint"`
	Target string `cbor:"2,keyasint"`
}

// MafiaTargetPayload commits a mafia member's elimination target.
type MafiaTargetPayload struct {
	Target string `cbor:"1,keyasint"`
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("commitment: cbor enc mode: %v", err))
	}
}

// NewSalt draws a fresh random reveal salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("commitment: salt: %w", err)
	}
	return salt, nil
}

// Digest computes the commitment hash for a payload under its schema domain.
// Every component is length-prefixed before hashing so that no two distinct
// (schema, payload, salt) triples can collide by concatenation ambiguity.
func Digest(schema Schema, payload any, salt []byte) ([]byte, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("commitment: salt must be %d bytes", SaltSize)
	}
	enc, err := encMode.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("commitment: encode payload: %w", err)
	}
	h := blake3.New()
	writeLenPrefixed(h, []byte(domainPrefix+string(schema)))
	writeLenPrefixed(h, enc)
	writeLenPrefixed(h, salt)
	sum := h.Sum(nil)
	return sum[:DigestSize], nil
}

func writeLenPrefixed(h *blake3.Hasher, b []byte) {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(b)))
	_, _ = h.Write(n[:])
	_, _ = h.Write(b)
}

// Commitment is the ledger-side record: the hash, whether it has been
// consumed, and when. A commitment is revealed at most once.
type Commitment struct {
	Hash        []byte `json:"hash"`
	Revealed    bool   `json:"revealed"`
	CommittedAt int64  `json:"committedAt"`
	RevealedAt  int64  `json:"revealedAt,omitempty"`
}

// Commit records a new commitment. existing is the slot's current value;
// committing over an unrevealed commitment is rejected.
func Commit(existing *Commitment, hash []byte, now int64) (*Commitment, error) {
	if len(hash) != DigestSize {
		return nil, fmt.Errorf("commitment: hash must be %d bytes", DigestSize)
	}
	if existing != nil && !existing.Revealed {
		return nil, ErrAlreadyCommitted
	}
	return &Commitment{
		Hash:        append([]byte(nil), hash...),
		CommittedAt: now,
	}, nil
}

// Reveal consumes a commitment: the payload and salt must hash to exactly
// the stored digest under the given schema.
func (c *Commitment) Reveal(schema Schema, payload any, salt []byte, now int64) error {
	if c == nil {
		return ErrNotCommitted
	}
	if c.Revealed {
		return ErrAlreadyRevealed
	}
	digest, err := Digest(schema, payload, salt)
	if err != nil {
		return err
	}
	if !bytes.Equal(digest, c.Hash) {
		return ErrInvalidReveal
	}
	c.Revealed = true
	c.RevealedAt = now
	return nil
}

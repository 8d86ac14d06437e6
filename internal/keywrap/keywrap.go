// Package keywrap seals small secrets, in practice SRA decryption keys, to a
// recipient's public key so the ledger can carry them as opaque key-share
// envelopes.
//
// The construction is ECIES over ristretto255: an ephemeral Diffie-Hellman
// share keys a blake3 stream, and a blake3 tag authenticates the ciphertext.
// Every hashed component is length-prefixed under a fixed domain string.
package keywrap

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/gtank/ristretto255"
	"github.com/zeebo/blake3"
)

const (
	// PublicKeySize is the canonical ristretto255 element encoding length.
	PublicKeySize = 32

	tagSize  = 16
	overhead = PublicKeySize + tagSize

	streamDomain = "mafia/v1/keywrap/stream"
	tagDomain    = "mafia/v1/keywrap/tag"
)

// ErrOpen covers every failure mode of Open: truncated blob, non-canonical
// point, bad tag. Callers get no oracle beyond "it did not open".
var ErrOpen = errors.New("keywrap: cannot open envelope")

// PrivateKey is a recipient's unwrapping key. The public half is published
// alongside the player's wallet key when joining a room.
type PrivateKey struct {
	x   *ristretto255.Scalar
	pub *ristretto255.Element
}

func GenerateKey() (*PrivateKey, error) {
	x, err := randomScalar()
	if err != nil {
		return nil, err
	}
	pub := new(ristretto255.Element)
	pub.ScalarBaseMult(x)
	return &PrivateKey{x: x, pub: pub}, nil
}

// PublicKey returns the canonical encoding handed to senders.
func (k *PrivateKey) PublicKey() []byte {
	return k.pub.Bytes()
}

// Seal encrypts plaintext to the holder of recipientPub. The blob layout is
// ephemeral point || ciphertext || tag.
func Seal(recipientPub, plaintext []byte) ([]byte, error) {
	pub, err := decodePoint(recipientPub)
	if err != nil {
		return nil, fmt.Errorf("keywrap: recipient key: %w", err)
	}
	r, err := randomScalar()
	if err != nil {
		return nil, err
	}
	var ephPoint, sharedPoint ristretto255.Element
	ephPoint.ScalarBaseMult(r)
	sharedPoint.ScalarMult(r, pub)
	eph := ephPoint.Bytes()
	shared := sharedPoint.Bytes()

	ct := make([]byte, len(plaintext))
	xorStream(ct, plaintext, eph, shared)

	blob := make([]byte, 0, overhead+len(ct))
	blob = append(blob, eph...)
	blob = append(blob, ct...)
	blob = append(blob, authTag(eph, shared, ct)...)
	return blob, nil
}

// Open decrypts a blob sealed to this key.
func (k *PrivateKey) Open(blob []byte) ([]byte, error) {
	if len(blob) < overhead {
		return nil, ErrOpen
	}
	eph := blob[:PublicKeySize]
	ct := blob[PublicKeySize : len(blob)-tagSize]
	tag := blob[len(blob)-tagSize:]

	ephPoint, err := decodePoint(eph)
	if err != nil {
		return nil, ErrOpen
	}
	var sharedPoint ristretto255.Element
	sharedPoint.ScalarMult(k.x, ephPoint)
	shared := sharedPoint.Bytes()
	if subtle.ConstantTimeCompare(tag, authTag(eph, shared, ct)) != 1 {
		return nil, ErrOpen
	}
	pt := make([]byte, len(ct))
	xorStream(pt, ct, eph, shared)
	return pt, nil
}

func randomScalar() (*ristretto255.Scalar, error) {
	var uni [64]byte
	if _, err := rand.Read(uni[:]); err != nil {
		return nil, fmt.Errorf("keywrap: randomness: %w", err)
	}
	s := new(ristretto255.Scalar)
	s.FromUniformBytes(uni[:])
	return s, nil
}

func decodePoint(b []byte) (*ristretto255.Element, error) {
	if len(b) != PublicKeySize {
		return nil, fmt.Errorf("expected %d bytes, got %d", PublicKeySize, len(b))
	}
	p := new(ristretto255.Element)
	if _, err := p.SetCanonicalBytes(b); err != nil {
		return nil, fmt.Errorf("non-canonical point: %w", err)
	}
	return p, nil
}

func xorStream(dst, src, eph, shared []byte) {
	h := blake3.New()
	writeLenPrefixed(h, []byte(streamDomain))
	writeLenPrefixed(h, eph)
	writeLenPrefixed(h, shared)
	stream := make([]byte, len(src))
	_, _ = io.ReadFull(h.Digest(), stream)
	for i := range src {
		dst[i] = src[i] ^ stream[i]
	}
}

func authTag(eph, shared, ct []byte) []byte {
	h := blake3.New()
	writeLenPrefixed(h, []byte(tagDomain))
	writeLenPrefixed(h, eph)
	writeLenPrefixed(h, shared)
	writeLenPrefixed(h, ct)
	sum := h.Sum(nil)
	return sum[:tagSize]
}

func writeLenPrefixed(h *blake3.Hasher, b []byte) {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(b)))
	_, _ = h.Write(n[:])
	_, _ = h.Write(b)
}

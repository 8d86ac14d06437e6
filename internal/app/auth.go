package app

import (
	"crypto/ed25519"
	"fmt"
	"strconv"

	"github.com/light3739/SomniaMafia-sub000/internal/codec"
	"github.com/light3739/SomniaMafia-sub000/internal/state"
)

func requireSignedEnvelope(env codec.TxEnvelope) error {
	if env.Nonce == "" {
		return fmt.Errorf("missing tx.nonce")
	}
	if env.Signer == "" {
		return fmt.Errorf("missing tx.signer")
	}
	if len(env.Sig) != ed25519.SignatureSize {
		return fmt.Errorf("invalid tx.sig length: got %d want %d", len(env.Sig), ed25519.SignatureSize)
	}
	return nil
}

// bumpNonce enforces strictly-increasing nonces per signer on the staged
// state. A failed tx leaves the nonce untouched because the stage is
// discarded.
func bumpNonce(st *state.State, env codec.TxEnvelope) error {
	n, err := strconv.ParseUint(env.Nonce, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid tx.nonce: %q", env.Nonce)
	}
	if last, ok := st.NonceMax[env.Signer]; ok && n <= last {
		return fmt.Errorf("stale tx.nonce: got %d, last accepted %d", n, last)
	}
	st.NonceMax[env.Signer] = n
	return nil
}

// requireSelfRegisterAuth authenticates room creation and joining, where the
// signing key is carried in the tx itself and registered on success.
func requireSelfRegisterAuth(st *state.State, env codec.TxEnvelope, addr string, pubKey []byte) error {
	if addr == "" {
		return fmt.Errorf("missing player address")
	}
	if len(pubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("pubKey must be %d bytes", ed25519.PublicKeySize)
	}
	if err := requireSignedEnvelope(env); err != nil {
		return err
	}
	if env.Signer != addr {
		return fmt.Errorf("tx signer mismatch: signer=%q want=%q", env.Signer, addr)
	}
	msg := codec.TxSignBytes(env.Type, env.Value, env.Nonce, env.Signer)
	if !ed25519.Verify(ed25519.PublicKey(pubKey), msg, env.Sig) {
		return fmt.Errorf("invalid signature")
	}
	return bumpNonce(st, env)
}

// requireRoomPlayerAuth authenticates any in-room operation against the
// pubkey the player registered when joining.
func requireRoomPlayerAuth(st *state.State, r *state.Room, env codec.TxEnvelope, addr string) error {
	if addr == "" {
		return fmt.Errorf("missing player address")
	}
	p := r.Player(addr)
	if p == nil {
		return errNotParticipant(addr)
	}
	if err := requireSignedEnvelope(env); err != nil {
		return err
	}
	if env.Signer != addr {
		return fmt.Errorf("tx signer mismatch: signer=%q want=%q", env.Signer, addr)
	}
	if len(p.PubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("player %q missing pubKey", addr)
	}
	msg := codec.TxSignBytes(env.Type, env.Value, env.Nonce, env.Signer)
	if !ed25519.Verify(ed25519.PublicKey(p.PubKey), msg, env.Sig) {
		return fmt.Errorf("invalid signature")
	}
	return bumpNonce(st, env)
}

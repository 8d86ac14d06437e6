package codec

import (
	"encoding/json"
	"fmt"
)

// TxEnvelope is the transaction container.
//
// CometBFT transactions are opaque bytes. The localnet protocol uses
// JSON-encoded txs routed by Type.
type TxEnvelope struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`

	// Tx auth:
	// - Nonce: included in the signed message for replay protection (must
	//   increase per signer).
	// - Signer: player wallet address.
	// - Sig: Ed25519 signature over (type, nonce, signer, sha256(value)).
	Nonce  string `json:"nonce,omitempty"`
	Signer string `json:"signer,omitempty"`
	Sig    []byte `json:"sig,omitempty"`
}

func DecodeTxEnvelope(txBytes []byte) (TxEnvelope, error) {
	var env TxEnvelope
	if err := json.Unmarshal(txBytes, &env); err != nil {
		return TxEnvelope{}, fmt.Errorf("invalid tx json: %w", err)
	}
	if env.Type == "" {
		return TxEnvelope{}, fmt.Errorf("missing tx.type")
	}
	return env, nil
}

// ---- Rooms ----

type CreateRoomTx struct {
	Host         string `json:"host"`
	HostNickname string `json:"hostNickname"`
	HostPubKey   []byte `json:"hostPubKey"`            // base64 (32 bytes)
	HostSealKey  []byte `json:"hostSealKey,omitempty"` // ristretto255 envelope key (32 bytes)
	Name         string `json:"name"`
	MaxPlayers   int    `json:"maxPlayers"`
	MinPlayers   int    `json:"minPlayers,omitempty"` // default 3

	// ModulusDec overrides the cipher prime (decimal). Localnet/testing only;
	// defaults to the 1024-bit production prime.
	ModulusDec string `json:"modulus,omitempty"`

	ShuffleTimeoutSecs uint64 `json:"shuffleTimeoutSecs,omitempty"`
	RevealTimeoutSecs  uint64 `json:"revealTimeoutSecs,omitempty"`
	DayTimeoutSecs     uint64 `json:"dayTimeoutSecs,omitempty"`
	VoteTimeoutSecs    uint64 `json:"voteTimeoutSecs,omitempty"`
	NightTimeoutSecs   uint64 `json:"nightTimeoutSecs,omitempty"`
}

type JoinRoomTx struct {
	Player   string `json:"player"`
	RoomID   uint64 `json:"roomId"`
	Nickname string `json:"nickname"`
	PubKey   []byte `json:"pubKey"`            // base64 (32 bytes)
	SealKey  []byte `json:"sealKey,omitempty"` // ristretto255 envelope key (32 bytes)
}

// ---- Shuffle ----

type StartShuffleTx struct {
	Caller string `json:"caller"`
	RoomID uint64 `json:"roomId"`
}

type CommitDeckTx struct {
	Player string `json:"player"`
	RoomID uint64 `json:"roomId"`
	Hash   []byte `json:"hash"` // base64 (32 bytes)
}

type RevealDeckTx struct {
	Player string   `json:"player"`
	RoomID uint64   `json:"roomId"`
	Cards  []string `json:"cards"` // decimal strings
	Salt   []byte   `json:"salt"`  // base64 (32 bytes)
}

// ---- Key exchange & role confirmation ----

type KeyShare struct {
	To   string `json:"to"`
	Blob []byte `json:"blob"` // recipient-encrypted decryption key, opaque on-chain
}

type ShareDecryptionKeysTx struct {
	Player string     `json:"player"`
	RoomID uint64     `json:"roomId"`
	Shares []KeyShare `json:"shares"`
}

type CommitRoleTx struct {
	Player string `json:"player"`
	RoomID uint64 `json:"roomId"`
	Hash   []byte `json:"hash"`
}

type ConfirmRoleTx struct {
	Player string `json:"player"`
	RoomID uint64 `json:"roomId"`
}

// ---- Day / voting ----

type StartVotingTx struct {
	Caller string `json:"caller"`
	RoomID uint64 `json:"roomId"`
}

type CastVoteTx struct {
	Player string `json:"player"`
	RoomID uint64 `json:"roomId"`
	Target string `json:"target"`
}

// ---- Night ----

type CommitNightActionTx struct {
	Player string `json:"player"`
	RoomID uint64 `json:"roomId"`
	Hash   []byte `json:"hash"`
}

type RevealNightActionTx struct {
	Player string `json:"player"`
	RoomID uint64 `json:"roomId"`
	Action string `json:"action"` // none|kill|heal|check
	Target string `json:"target,omitempty"`
	Salt   []byte `json:"salt"`
}

type CommitMafiaTargetTx struct {
	Player string `json:"player"`
	RoomID uint64 `json:"roomId"`
	Hash   []byte `json:"hash"`
}

type RevealMafiaTargetTx struct {
	Player string `json:"player"`
	RoomID uint64 `json:"roomId"`
	Target string `json:"target"`
	Salt   []byte `json:"salt"`
}

// ---- Liveness & endgame ----

type ForcePhaseTimeoutTx struct {
	Caller string `json:"caller"`
	RoomID uint64 `json:"roomId"`
}

type RevealRoleTx struct {
	Player string `json:"player"`
	RoomID uint64 `json:"roomId"`
	Role   string `json:"role"`
	Salt   []byte `json:"salt"`
}

type FinalizeGameTx struct {
	Caller string `json:"caller"`
	RoomID uint64 `json:"roomId"`
}

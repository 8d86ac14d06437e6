package mafiaclient

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/light3739/SomniaMafia-sub000/internal/codec"
)

// Wallet holds a player's tx signing key and nonce counter.
type Wallet struct {
	addr  string
	pub   ed25519.PublicKey
	priv  ed25519.PrivateKey
	nonce uint64
}

func NewWallet(addr string) (*Wallet, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("mafiaclient: generate wallet key: %w", err)
	}
	return &Wallet{addr: addr, pub: pub, priv: priv}, nil
}

func (w *Wallet) Addr() string { return w.addr }

// PubKey returns the key registered on the ledger when joining a room.
func (w *Wallet) PubKey() []byte {
	return append([]byte(nil), w.pub...)
}

// SignTx wraps a payload in a signed envelope with the next nonce and
// returns the tx bytes ready for broadcast.
func (w *Wallet) SignTx(typ string, value any) ([]byte, error) {
	val, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("mafiaclient: encode tx value: %w", err)
	}
	w.nonce++
	nonce := strconv.FormatUint(w.nonce, 10)
	sig := ed25519.Sign(w.priv, codec.TxSignBytes(typ, val, nonce, w.addr))
	return json.Marshal(codec.TxEnvelope{
		Type:   typ,
		Value:  val,
		Nonce:  nonce,
		Signer: w.addr,
		Sig:    sig,
	})
}

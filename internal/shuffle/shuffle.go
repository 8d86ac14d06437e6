// Package shuffle builds the initial role deck and performs one player's
// permute-and-encrypt pass over it.
package shuffle

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/light3739/SomniaMafia-sub000/internal/sra"
	"github.com/light3739/SomniaMafia-sub000/internal/state"
)

// MinPlayers is the smallest room the role table supports.
const MinPlayers = 3

// MaxPlayers keeps the card encoding's slot byte unambiguous.
const MaxPlayers = 255

// MafiaCount returns the mafia head count for n players: max(1, n/4).
func MafiaCount(n int) int {
	m := n / 4
	if m < 1 {
		m = 1
	}
	return m
}

// InitialDeck generates the plaintext role deck for n players: MafiaCount(n)
// mafia, one doctor iff n >= 4, one detective iff n >= 5, civilians for the
// rest. Deck length is always n.
func InitialDeck(n int) ([]state.Role, error) {
	if n < MinPlayers {
		return nil, fmt.Errorf("shuffle: need at least %d players, got %d", MinPlayers, n)
	}
	if n > MaxPlayers {
		return nil, fmt.Errorf("shuffle: at most %d players, got %d", MaxPlayers, n)
	}
	deck := make([]state.Role, 0, n)
	for i := 0; i < MafiaCount(n); i++ {
		deck = append(deck, state.RoleMafia)
	}
	if n >= 4 {
		deck = append(deck, state.RoleDoctor)
	}
	if n >= 5 {
		deck = append(deck, state.RoleDetective)
	}
	for len(deck) < n {
		deck = append(deck, state.RoleCivilian)
	}
	return deck, nil
}

// roleCode maps each playable role to a small integer for card encoding.
func roleCode(r state.Role) (int64, error) {
	switch r {
	case state.RoleMafia:
		return 1, nil
	case state.RoleDoctor:
		return 2, nil
	case state.RoleDetective:
		return 3, nil
	case state.RoleCivilian:
		return 4, nil
	case state.RoleUnknown:
		return 0, fmt.Errorf("shuffle: cannot encode unknown role")
	}
	return 0, fmt.Errorf("shuffle: cannot encode role %q", r)
}

func roleFromCode(code int64) (state.Role, error) {
	switch code {
	case 1:
		return state.RoleMafia, nil
	case 2:
		return state.RoleDoctor, nil
	case 3:
		return state.RoleDetective, nil
	case 4:
		return state.RoleCivilian, nil
	}
	return state.RoleUnknown, fmt.Errorf("shuffle: unknown role code %d", code)
}

// CardValue encodes (role, slot) injectively as role<<8 | slot. Making every
// initial card distinct keeps equal roles from producing equal ciphertexts
// under the deterministic cipher.
func CardValue(role state.Role, slot int) (*big.Int, error) {
	code, err := roleCode(role)
	if err != nil {
		return nil, err
	}
	if slot < 0 || slot > MaxPlayers {
		return nil, fmt.Errorf("shuffle: slot %d out of range", slot)
	}
	return big.NewInt(code<<8 | int64(slot)), nil
}

// DecodeCard recovers the role from a fully decrypted card value.
func DecodeCard(v *big.Int) (state.Role, error) {
	if v == nil || v.Sign() < 0 || !v.IsInt64() {
		return state.RoleUnknown, fmt.Errorf("shuffle: card value out of range")
	}
	n := v.Int64()
	if n&0xff > int64(MaxPlayers) {
		return state.RoleUnknown, fmt.Errorf("shuffle: bad card slot")
	}
	return roleFromCode(n >> 8)
}

// InitialCardValues encodes the initial deck into cipher-domain values.
func InitialCardValues(roles []state.Role) ([]*big.Int, error) {
	out := make([]*big.Int, len(roles))
	for i, r := range roles {
		v, err := CardValue(r, i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Permute applies a uniform Fisher-Yates shuffle driven by crypto/rand and
// returns the permuted copy.
func Permute(deck []*big.Int) ([]*big.Int, error) {
	out := append([]*big.Int(nil), deck...)
	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return nil, fmt.Errorf("shuffle: permute: %w", err)
		}
		k := int(j.Int64())
		out[i], out[k] = out[k], out[i]
	}
	return out, nil
}

// EncryptPass encrypts every slot with the player's encryption exponent.
func EncryptPass(deck []*big.Int, e, p *big.Int) ([]*big.Int, error) {
	out := make([]*big.Int, len(deck))
	for i, v := range deck {
		ct, err := sra.Encrypt(v, e, p)
		if err != nil {
			return nil, fmt.Errorf("shuffle: slot %d: %w", i, err)
		}
		out[i] = ct
	}
	return out, nil
}

// EncodeDeck renders cipher-domain values as the decimal strings that cross
// the wire.
func EncodeDeck(deck []*big.Int) []string {
	out := make([]string, len(deck))
	for i, v := range deck {
		out[i] = v.String()
	}
	return out
}

// DecodeDeck parses a wire deck back into cipher-domain values, rejecting
// anything outside [0, p).
func DecodeDeck(cards []string, p *big.Int) ([]*big.Int, error) {
	out := make([]*big.Int, len(cards))
	for i, s := range cards {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("shuffle: card %d is not a decimal integer", i)
		}
		if v.Sign() < 0 || v.Cmp(p) >= 0 {
			return nil, fmt.Errorf("shuffle: card %d outside [0, p)", i)
		}
		out[i] = v
	}
	return out, nil
}

// Package sra implements the SRA commutative cipher used to deal role cards
// without a trusted dealer.
//
// Every player encrypts with their own exponent under one shared prime
// modulus. Because x^(e1*e2) = x^(e2*e1) (mod p), layers commute: a stack of
// encryptions can be peeled off in any order, which is what lets each player
// recover exactly their own card once everyone discloses a decryption key.
package sra

import (
	"fmt"
	"math/big"

	"github.com/light3739/SomniaMafia-sub000/internal/modmath"
)

// DefaultPrimeHex is the 1024-bit MODP safe prime from RFC 2409 (Oakley
// group 2). The protocol shape works with any odd prime; a small test
// modulus is available via ToyPrime.
const DefaultPrimeHex = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
	"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
	"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
	"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE65381" +
	"FFFFFFFFFFFFFFFF"

// DefaultPrime returns the production modulus.
func DefaultPrime() *big.Int {
	p, ok := new(big.Int).SetString(DefaultPrimeHex, 16)
	if !ok {
		panic("sra: bad default prime constant")
	}
	return p
}

// ToyPrime is the Mersenne prime 2^31-1. Its discrete log is trivially
// computable; tests only.
func ToyPrime() *big.Int {
	return big.NewInt(2147483647)
}

// Keys is a per-player, per-room ephemeral key pair with E*D = 1 mod p-1.
// D is disclosed to the other players during key exchange; E never leaves
// the owner.
type Keys struct {
	E *big.Int
	D *big.Int
}

// KeyGen draws a fresh encryption exponent coprime with p-1 and derives the
// matching decryption exponent.
func KeyGen(p *big.Int) (Keys, error) {
	if p == nil || p.Bit(0) == 0 || p.Cmp(big.NewInt(3)) <= 0 {
		return Keys{}, fmt.Errorf("sra: modulus must be an odd prime > 3")
	}
	phi := new(big.Int).Sub(p, big.NewInt(1))
	e, err := modmath.RandCoprime(phi)
	if err != nil {
		return Keys{}, fmt.Errorf("sra: keygen: %w", err)
	}
	d, err := modmath.ModInverse(e, phi)
	if err != nil {
		// RandCoprime guarantees gcd(e, phi) == 1; this is an assertion.
		return Keys{}, fmt.Errorf("sra: keygen: %w", err)
	}
	return Keys{E: e, D: d}, nil
}

// Encrypt computes v^e mod p.
func Encrypt(v, e, p *big.Int) (*big.Int, error) {
	if v == nil || v.Sign() < 0 || v.Cmp(p) >= 0 {
		return nil, fmt.Errorf("sra: plaintext outside [0, p)")
	}
	return modmath.ModPow(v, e, p)
}

// Decrypt computes v^d mod p. The same operation unwinds a foreign layer
// when called with another player's disclosed decryption exponent.
func Decrypt(v, d, p *big.Int) (*big.Int, error) {
	if v == nil || v.Sign() < 0 || v.Cmp(p) >= 0 {
		return nil, fmt.Errorf("sra: ciphertext outside [0, p)")
	}
	return modmath.ModPow(v, d, p)
}

// Package modmath provides the modular arithmetic underneath the commutative
// role cipher: modular exponentiation, modular inverses and coprime sampling
// over arbitrary-precision integers.
package modmath

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/cronokirby/saferith"
)

// ErrNoInverse is returned when a modular inverse does not exist, i.e.
// gcd(a, m) != 1. Seeing it outside of key generation indicates a bug.
var ErrNoInverse = errors.New("modmath: no modular inverse")

var (
	zero = big.NewInt(0)
	one  = big.NewInt(1)
	two  = big.NewInt(2)
)

// coprimeBound caps the rejection-sampling range of RandCoprime at 2^62.
// The exponent space must stay far away from toy sizes for the cipher keys
// to resist brute force.
var coprimeBound = new(big.Int).Lsh(one, 62)

const coprimeMaxDraws = 256

// ModPow returns base^exp mod modulus. exp == 0 yields 1 mod modulus.
//
// Odd moduli (the common case: the cipher prime) go through saferith's
// constant-time Montgomery exponentiation; even moduli fall back to
// math/big.
func ModPow(base, exp, modulus *big.Int) (*big.Int, error) {
	if modulus == nil || modulus.Cmp(one) <= 0 {
		return nil, fmt.Errorf("modmath: modulus must be > 1")
	}
	if base == nil || base.Sign() < 0 {
		return nil, fmt.Errorf("modmath: base must be >= 0")
	}
	if exp == nil || exp.Sign() < 0 {
		return nil, fmt.Errorf("modmath: exponent must be >= 0")
	}
	if exp.Sign() == 0 {
		return new(big.Int).Mod(one, modulus), nil
	}
	if modulus.Bit(0) == 0 {
		return new(big.Int).Exp(base, exp, modulus), nil
	}
	x := new(saferith.Nat).SetBytes(base.Bytes())
	e := new(saferith.Nat).SetBytes(exp.Bytes())
	m := saferith.ModulusFromNat(new(saferith.Nat).SetBytes(modulus.Bytes()))
	return new(saferith.Nat).Exp(x, e, m).Big(), nil
}

// GCD returns gcd(a, b) by the Euclidean algorithm.
func GCD(a, b *big.Int) *big.Int {
	x := new(big.Int).Abs(a)
	y := new(big.Int).Abs(b)
	for y.Sign() != 0 {
		x, y = y, x.Mod(x, y)
	}
	return x
}

// ModInverse returns a^-1 mod m via the extended Euclidean algorithm.
// It fails with ErrNoInverse when gcd(a, m) != 1.
func ModInverse(a, m *big.Int) (*big.Int, error) {
	if m == nil || m.Cmp(one) <= 0 {
		return nil, fmt.Errorf("modmath: modulus must be > 1")
	}
	r0 := new(big.Int).Set(m)
	r1 := new(big.Int).Mod(a, m)
	t0 := new(big.Int)
	t1 := new(big.Int).Set(one)
	q := new(big.Int)
	tmp := new(big.Int)
	for r1.Sign() != 0 {
		q.Div(r0, r1)
		tmp.Mul(q, r1)
		r0.Sub(r0, tmp)
		r0, r1 = r1, r0
		tmp.Mul(q, t1)
		t0.Sub(t0, tmp)
		t0, t1 = t1, t0
	}
	if r0.Cmp(one) != 0 {
		return nil, ErrNoInverse
	}
	return t0.Mod(t0, m), nil
}

// RandCoprime samples a uniform integer in [2, min(2^62, n)) until one is
// coprime with n. Expected O(1) draws; gives up after coprimeMaxDraws as a
// guard against pathological n.
func RandCoprime(n *big.Int) (*big.Int, error) {
	if n == nil || n.Cmp(two) <= 0 {
		return nil, fmt.Errorf("modmath: n must be > 2")
	}
	upper := new(big.Int).Set(coprimeBound)
	if n.Cmp(upper) < 0 {
		upper.Set(n)
	}
	span := new(big.Int).Sub(upper, two)
	for i := 0; i < coprimeMaxDraws; i++ {
		r, err := rand.Int(rand.Reader, span)
		if err != nil {
			return nil, fmt.Errorf("modmath: sample: %w", err)
		}
		c := r.Add(r, two)
		if GCD(c, n).Cmp(one) == 0 {
			return c, nil
		}
	}
	return nil, fmt.Errorf("modmath: no coprime found after %d draws", coprimeMaxDraws)
}

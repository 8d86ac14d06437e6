package sra

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyGenInverse(t *testing.T) {
	p := ToyPrime()
	phi := new(big.Int).Sub(p, big.NewInt(1))
	for i := 0; i < 10; i++ {
		k, err := KeyGen(p)
		require.NoError(t, err)
		prod := new(big.Int).Mul(k.E, k.D)
		require.Equal(t, int64(1), prod.Mod(prod, phi).Int64())
	}
}

func TestRoundTrip(t *testing.T) {
	p := ToyPrime()
	k, err := KeyGen(p)
	require.NoError(t, err)
	for _, v := range []int64{0, 1, 2, 257, 1024, 99999, 2147483646} {
		ct, err := Encrypt(big.NewInt(v), k.E, p)
		require.NoError(t, err)
		pt, err := Decrypt(ct, k.D, p)
		require.NoError(t, err)
		require.Equal(t, v, pt.Int64(), "v=%d", v)
	}
}

// Two layers applied in one order must peel off in either order.
func TestCommutativity(t *testing.T) {
	p := ToyPrime()
	k1, err := KeyGen(p)
	require.NoError(t, err)
	k2, err := KeyGen(p)
	require.NoError(t, err)

	for _, v := range []int64{2, 771, 123456, 7777777} {
		c1, err := Encrypt(big.NewInt(v), k1.E, p)
		require.NoError(t, err)
		c12, err := Encrypt(c1, k2.E, p)
		require.NoError(t, err)

		// d1 then d2
		a, err := Decrypt(c12, k1.D, p)
		require.NoError(t, err)
		a, err = Decrypt(a, k2.D, p)
		require.NoError(t, err)

		// d2 then d1
		b, err := Decrypt(c12, k2.D, p)
		require.NoError(t, err)
		b, err = Decrypt(b, k1.D, p)
		require.NoError(t, err)

		require.Equal(t, v, a.Int64())
		require.Equal(t, v, b.Int64())
	}
}

func TestCommutativityDefaultPrime(t *testing.T) {
	p := DefaultPrime()
	k1, err := KeyGen(p)
	require.NoError(t, err)
	k2, err := KeyGen(p)
	require.NoError(t, err)

	v := big.NewInt(424242)
	c, err := Encrypt(v, k1.E, p)
	require.NoError(t, err)
	c, err = Encrypt(c, k2.E, p)
	require.NoError(t, err)

	a, err := Decrypt(c, k2.D, p)
	require.NoError(t, err)
	a, err = Decrypt(a, k1.D, p)
	require.NoError(t, err)
	require.Zero(t, a.Cmp(v))
}

func TestEncryptRejectsOutOfDomain(t *testing.T) {
	p := ToyPrime()
	k, err := KeyGen(p)
	require.NoError(t, err)
	_, err = Encrypt(p, k.E, p)
	require.Error(t, err)
	_, err = Encrypt(big.NewInt(-1), k.E, p)
	require.Error(t, err)
}

package drgraph

import (
	"encoding/binary"

	"golang.org/x/crypto/chacha20"
)

// bucketPRNG is a deterministic source of uniform 32-bit words
// drawn from a ChaCha20 keystream. The same seed always produces the same
// sequence of draws, across runs, platforms, and compilers.
type bucketPRNG struct {
	cipher *chacha20.Cipher
}

// newBucketPRNG derives a ChaCha20 keystream from an 8-word (32-byte) seed.
// The seed fills the cipher key directly (little-endian word order); the
// nonce is fixed at zero since a fresh seed is derived per node index.
func newBucketPRNG(seed [8]uint32) *bucketPRNG {
	key := make([]byte, chacha20.KeySize)
	for i, w := range seed {
		binary.LittleEndian.PutUint32(key[i*4:], w)
	}
	nonce := make([]byte, chacha20.NonceSize)

	c, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		// key and nonce are fixed-size local buffers; construction cannot
		// fail for valid sizes.
		panic(err)
	}
	return &bucketPRNG{cipher: c}
}

// nextUint32 draws the next word from the keystream.
func (p *bucketPRNG) nextUint32() uint32 {
	var buf [4]byte
	p.cipher.XORKeyStream(buf[:], buf[:])
	return binary.LittleEndian.Uint32(buf[:])
}

// uniformBelow draws uniformly from [0, n) via modular reduction, matching
// the legacy `rng.gen::<usize>() % n` draw this graph's parent function is
// specified against.
func (p *bucketPRNG) uniformBelow(n uint32) uint32 {
	return p.nextUint32() % n
}

// uniformRange draws uniformly from [lo, hi] inclusive of both endpoints.
func (p *bucketPRNG) uniformRange(lo, hi uint32) uint32 {
	span := hi - lo + 1
	return lo + p.nextUint32()%span
}

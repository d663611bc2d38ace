// Package hasher provides the hash capability consumed by the DRG and
// Merkle-proof core: a stateful, resettable digest with domain-separated
// leaf and internal-node transforms.
package hasher

import (
	"hash"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr/poseidon2"
	"github.com/consensys/gnark/frontend"
)

// DigestSize is the canonical byte width of a Digest, matching the
// canonical encoding of a BLS12-381 scalar field element.
const DigestSize = fr.Bytes

// Digest is a fixed-width opaque hash output. The zero Digest is a legal
// placeholder (used by Default proofs); equality is by value.
type Digest [DigestSize]byte

// Bytes returns the canonical byte encoding of the digest.
func (d Digest) Bytes() []byte {
	return d[:]
}

// domain tags, placed as the first absorbed element so that a leaf digest
// can never collide with a node digest over the same bytes.
const leafDomainTag = 1

// Hasher wraps a Poseidon2 sponge over the BLS12-381 scalar field. It is
// stateful: Absorb feeds bytes into the sponge, Digest finalizes without
// resetting, and Reset returns it to the empty state for reuse. Hasher
// values are not safe for concurrent use — each goroutine must use its own
// instance.
type Hasher struct {
	sponge hash.Hash
}

// New returns a Hasher ready to absorb input.
func New() *Hasher {
	return &Hasher{sponge: poseidon2.NewMerkleDamgardHasher()}
}

// Absorb feeds arbitrary bytes into the sponge.
func (h *Hasher) Absorb(data []byte) {
	h.sponge.Write(data)
}

// Digest finalizes the absorbed input into a fixed-width digest. It does
// not reset the sponge; call Reset before reusing the instance.
func (h *Hasher) Digest() Digest {
	var d Digest
	sum := h.sponge.Sum(nil)
	copy(d[DigestSize-len(sum):], sum)
	return d
}

// Reset returns the hasher to its empty-absorb state.
func (h *Hasher) Reset() {
	h.sponge.Reset()
}

// Leaf applies the domain-separated leaf transform to a pre-hashed payload,
// marking it as occupying the leaf layer of a Merkle tree. It resets the
// hasher first so callers may chain calls without an explicit Reset.
func (h *Hasher) Leaf(item Digest) Digest {
	h.Reset()
	var tag fr.Element
	tag.SetInt64(leafDomainTag)
	tagBytes := tag.Bytes()
	h.Absorb(tagBytes[:])
	h.Absorb(item[:])
	return h.Digest()
}

// Node combines two child digests at the given tree layer into their
// parent digest. The layer index is absorbed as part of the input so that
// the same (left, right) pair hashes differently at each layer.
func (h *Hasher) Node(left, right Digest, layer int) Digest {
	h.Reset()
	var layerElem fr.Element
	layerElem.SetInt64(int64(layer))
	layerBytes := layerElem.Bytes()
	h.Absorb(layerBytes[:])
	h.Absorb(left[:])
	h.Absorb(right[:])
	return h.Digest()
}

// DigestToField embeds a digest as a scalar-field element for consumption
// by an arithmetic-circuit prover (the option-pair view).
func DigestToField(d Digest) frontend.Variable {
	return new(big.Int).SetBytes(d[:])
}

// FieldToDigest is the inverse of DigestToField, primarily useful in tests
// and debugging tooling that round-trip through frontend.Variable.
func FieldToDigest(v *big.Int) Digest {
	var elem fr.Element
	elem.SetBigInt(v)
	b := elem.Bytes()
	var d Digest
	copy(d[:], b[:])
	return d
}

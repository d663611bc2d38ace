// Package merkleproof implements the Merkle proof data model: construction
// from an external builder's raw proof, validation, canonical byte
// serialization, and the mapping between a proof's path bits and the
// leaf's node index.
package merkleproof

import (
	"fmt"

	"github.com/MuriData/muri-zkproof/pkg/hasher"
	"github.com/MuriData/muri-zkproof/pkg/merkletree"
	"github.com/consensys/gnark/frontend"
)

// PathElement is one step of a Merkle authentication path. IsRight == true
// means the running hash (starting from the leaf) is the right child at
// this level, i.e. Sibling is the left input to the parent hash.
type PathElement struct {
	Sibling hasher.Digest
	IsRight bool
}

// Proof is the core's Merkle proof value type: a leaf digest, an ordered
// path of sibling/side-bit pairs from leaf level upward, and a root digest.
// None of its fields are mutated after construction.
type Proof struct {
	path []PathElement
	root hasher.Digest
	leaf hasher.Digest
}

// FromRaw converts an external builder's raw proof into a Proof. The
// builder's "current is left" bits are inverted to this package's "current
// is right" convention.
func FromRaw(raw *merkletree.RawProof) *Proof {
	path := make([]PathElement, len(raw.PathBits))
	for i, isLeft := range raw.PathBits {
		path[i] = PathElement{Sibling: raw.Lemma[i+1], IsRight: !isLeft}
	}
	return &Proof{
		path: path,
		root: raw.Lemma[len(raw.Lemma)-1],
		leaf: raw.Lemma[0],
	}
}

// Default returns a placeholder Proof of path length n: n zero-digest
// sibling entries with IsRight false, a zero root, and a zero leaf. It is
// intended for fixed-length circuit slots and never validates; it must
// never be fed to Validate in production.
func Default(n int) *Proof {
	return &Proof{path: make([]PathElement, n)}
}

// Path returns the proof's authentication path, leaf-first.
func (p *Proof) Path() []PathElement { return p.path }

// Root returns the proof's root digest.
func (p *Proof) Root() hasher.Digest { return p.root }

// Leaf returns the proof's leaf digest.
func (p *Proof) Leaf() hasher.Digest { return p.leaf }

// Len returns the length of the proof: all path elements, plus 1 for the
// leaf and 1 for the root.
func (p *Proof) Len() int { return len(p.path) + 2 }

// PathIndex recovers the leaf's node index from a path's side-bits:
// reading from the root-adjacent end down to the leaf-adjacent end and
// treating each IsRight bit as 0 or 1 yields the index's binary
// representation.
func PathIndex(path []PathElement) int {
	acc := 0
	for i := len(path) - 1; i >= 0; i-- {
		acc <<= 1
		if path[i].IsRight {
			acc |= 1
		}
	}
	return acc
}

// Validate checks that the proof authenticates claimedIndex: the path's
// side-bits must decode to claimedIndex, and replaying the hash chain from
// the leaf through the path must reach the stored root. Both checks must
// hold; a false result is not an error — the caller decides whether it is
// fatal.
func (p *Proof) Validate(claimedIndex int, h *hasher.Hasher) bool {
	if PathIndex(p.path) != claimedIndex {
		return false
	}

	cur := p.leaf
	for i, elem := range p.path {
		var left, right hasher.Digest
		if elem.IsRight {
			left, right = elem.Sibling, cur
		} else {
			left, right = cur, elem.Sibling
		}
		cur = h.Node(left, right, i)
	}

	return cur == p.root
}

// ValidateData checks that data hashes to the proof's leaf digest, tying
// raw bytes to the leaf without recomputing the path.
func (p *Proof) ValidateData(data []byte, h *hasher.Hasher) bool {
	h.Reset()
	h.Absorb(data)
	preimage := h.Digest()
	return h.Leaf(preimage) == p.leaf
}

// Serialize produces the canonical byte layout: for each path entry
// (leaf-first) sibling.Bytes() || is_right-flag, then the leaf digest, then
// the root digest. The length is path.length*(DigestSize+1) + 2*DigestSize;
// a reader must know path.length out of band (or derive it from N).
func (p *Proof) Serialize() []byte {
	out := make([]byte, 0, len(p.path)*(hasher.DigestSize+1)+2*hasher.DigestSize)
	for _, elem := range p.path {
		out = append(out, elem.Sibling[:]...)
		if elem.IsRight {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
	}
	out = append(out, p.leaf[:]...)
	out = append(out, p.root[:]...)
	return out
}

// Deserialize is the exact inverse of Serialize; pathLen must be supplied
// out of band since the wire format carries no explicit length prefix.
func Deserialize(b []byte, pathLen int) (*Proof, error) {
	want := pathLen*(hasher.DigestSize+1) + 2*hasher.DigestSize
	if len(b) != want {
		return nil, fmt.Errorf("merkleproof: serialized length %d does not match expected %d for path length %d",
			len(b), want, pathLen)
	}

	path := make([]PathElement, pathLen)
	offset := 0
	for i := 0; i < pathLen; i++ {
		var sib hasher.Digest
		copy(sib[:], b[offset:offset+hasher.DigestSize])
		offset += hasher.DigestSize
		path[i] = PathElement{Sibling: sib, IsRight: b[offset] != 0}
		offset++
	}

	var leaf, root hasher.Digest
	copy(leaf[:], b[offset:offset+hasher.DigestSize])
	offset += hasher.DigestSize
	copy(root[:], b[offset:offset+hasher.DigestSize])

	return &Proof{path: path, root: root, leaf: leaf}, nil
}

// Pair is one entry of the option-pair view consumed by an
// arithmetic-circuit prover.
type Pair struct {
	Field   frontend.Variable
	IsRight bool
}

// AsPairs projects the proof's path (excluding leaf and root) to a
// sequence of (field_element, is_right) pairs via the hash capability's
// digest-to-field embedding. Every entry is present; there is no analogue
// of the option wrapping used for fixed-length circuit padding elsewhere,
// since this proof's path is already exactly path.length long.
func (p *Proof) AsPairs() []Pair {
	pairs := make([]Pair, len(p.path))
	for i, elem := range p.path {
		pairs[i] = Pair{Field: hasher.DigestToField(elem.Sibling), IsRight: elem.IsRight}
	}
	return pairs
}

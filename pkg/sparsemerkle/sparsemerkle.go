// Package sparsemerkle implements a fixed-depth Merkle tree that stores only
// the leaves actually written by a caller; every unwritten position is
// covered by a precomputed zero-subtree hash instead of a real node. It
// exists for depth-robust graphs large enough that materializing every
// internal node of a dense tree is wasteful, while the proof shape (a
// fixed-depth authentication path) still has to look identical to a dense
// tree's.
package sparsemerkle

import (
	"encoding/binary"
	"fmt"
	"io"
	"runtime"
	"sort"
	"sync"

	"github.com/MuriData/muri-zkproof/pkg/hasher"
)

// Tree is a fixed-depth sparse Merkle tree. Levels[0] holds the real leaves;
// Levels[Depth] holds the root (a single entry at index 0). Any position
// absent from a level's map is implicitly ZeroHashes[level].
type Tree struct {
	Root       hasher.Digest
	Depth      int
	NumLeaves  int
	Levels     []map[int]hasher.Digest
	ZeroHashes []hasher.Digest
}

// PrecomputeZeroHashes builds the zero-subtree hash chain:
//
//	zeroHashes[0] = zeroLeafHash
//	zeroHashes[i] = h.Node(zeroHashes[i-1], zeroHashes[i-1], i-1)
//
// The returned slice has length depth+1 (indices 0..depth).
func PrecomputeZeroHashes(depth int, zeroLeafHash hasher.Digest, h *hasher.Hasher) []hasher.Digest {
	zh := make([]hasher.Digest, depth+1)
	zh[0] = zeroLeafHash
	for i := 1; i <= depth; i++ {
		zh[i] = h.Node(zh[i-1], zh[i-1], i-1)
	}
	return zh
}

// ZeroLeafDigest hashes a zero-valued pre-image through Leaf, the canonical
// value that stands in for every padding position's leaf.
func ZeroLeafDigest(h *hasher.Hasher) hasher.Digest {
	return h.Leaf(hasher.Digest{})
}

// New builds a depth-fixed sparse tree from leaf pre-images, one per real
// leaf starting at index 0. leafPreimages must have length <= 2^depth. Leaf
// hashing runs on a worker pool; each worker owns a private *hasher.Hasher
// since the sponge carried by a shared Hasher is not safe for concurrent use.
func New(leafPreimages []hasher.Digest, depth int) *Tree {
	zeroH := hasher.New()
	zeroLeaf := ZeroLeafDigest(zeroH)
	zeroHashes := PrecomputeZeroHashes(depth, zeroLeaf, zeroH)

	levels := make([]map[int]hasher.Digest, depth+1)
	for i := range levels {
		levels[i] = make(map[int]hasher.Digest)
	}

	leafHashes := make([]hasher.Digest, len(leafPreimages))
	numWorkers := runtime.NumCPU()
	if numWorkers > len(leafPreimages) {
		numWorkers = len(leafPreimages)
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	var wg sync.WaitGroup
	work := make(chan int, len(leafPreimages))
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := hasher.New()
			for i := range work {
				leafHashes[i] = local.Leaf(leafPreimages[i])
			}
		}()
	}
	for i := range leafPreimages {
		work <- i
	}
	close(work)
	wg.Wait()

	for i, lh := range leafHashes {
		levels[0][i] = lh
	}

	nodeH := hasher.New()
	for lvl := 0; lvl < depth; lvl++ {
		parentIndices := make(map[int]bool)
		for idx := range levels[lvl] {
			parentIndices[idx/2] = true
		}
		for parentIdx := range parentIndices {
			left, ok := levels[lvl][parentIdx*2]
			if !ok {
				left = zeroHashes[lvl]
			}
			right, ok := levels[lvl][parentIdx*2+1]
			if !ok {
				right = zeroHashes[lvl]
			}
			levels[lvl+1][parentIdx] = nodeH.Node(left, right, lvl)
		}
	}

	root, ok := levels[depth][0]
	if !ok {
		root = zeroHashes[depth]
	}

	return &Tree{
		Root:       root,
		Depth:      depth,
		NumLeaves:  len(leafPreimages),
		Levels:     levels,
		ZeroHashes: zeroHashes,
	}
}

// GetLeaf returns the hash at leafIndex, falling back to the zero leaf hash
// for positions beyond the real leaves.
func (t *Tree) GetLeaf(leafIndex int) hasher.Digest {
	if h, ok := t.Levels[0][leafIndex]; ok {
		return h
	}
	return t.ZeroHashes[0]
}

// GetProof returns a fixed-size authentication path for leafIndex: exactly
// Depth (sibling, is_right) pairs, leaf-level first. IsRight follows
// pkg/merkleproof's convention: true means the running hash is the right
// child at that level.
func (t *Tree) GetProof(leafIndex int) ([]hasher.Digest, []bool) {
	siblings := make([]hasher.Digest, t.Depth)
	isRight := make([]bool, t.Depth)

	idx := leafIndex
	for lvl := 0; lvl < t.Depth; lvl++ {
		var siblingIdx int
		if idx%2 == 0 {
			siblingIdx = idx + 1
			isRight[lvl] = false
		} else {
			siblingIdx = idx - 1
			isRight[lvl] = true
		}

		if h, ok := t.Levels[lvl][siblingIdx]; ok {
			siblings[lvl] = h
		} else {
			siblings[lvl] = t.ZeroHashes[lvl]
		}
		idx /= 2
	}

	return siblings, isRight
}

// Save writes the tree to w in a deterministic binary format:
//
//	uint32(depth) | uint32(numLeaves)
//	for each level 0..depth: uint32(count), then per entry uint32(index) || digest bytes
//
// Zero hashes are not stored; they are recomputed on load from the zero leaf
// digest, which the caller must supply unchanged.
func (t *Tree) Save(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, uint32(t.Depth)); err != nil {
		return fmt.Errorf("sparsemerkle: write depth: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, uint32(t.NumLeaves)); err != nil {
		return fmt.Errorf("sparsemerkle: write numLeaves: %w", err)
	}
	for lvl := 0; lvl <= t.Depth; lvl++ {
		if err := writeLevel(w, t.Levels[lvl]); err != nil {
			return fmt.Errorf("sparsemerkle: write level %d: %w", lvl, err)
		}
	}
	return nil
}

// Load reads a tree written by Save. zeroLeafHash must match the value used
// to build the original tree.
func Load(r io.Reader, zeroLeafHash hasher.Digest, h *hasher.Hasher) (*Tree, error) {
	var depth, numLeaves uint32
	if err := binary.Read(r, binary.BigEndian, &depth); err != nil {
		return nil, fmt.Errorf("sparsemerkle: read depth: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &numLeaves); err != nil {
		return nil, fmt.Errorf("sparsemerkle: read numLeaves: %w", err)
	}

	zeroHashes := PrecomputeZeroHashes(int(depth), zeroLeafHash, h)

	levels := make([]map[int]hasher.Digest, depth+1)
	for lvl := 0; lvl <= int(depth); lvl++ {
		m, err := readLevel(r)
		if err != nil {
			return nil, fmt.Errorf("sparsemerkle: read level %d: %w", lvl, err)
		}
		levels[lvl] = m
	}

	root := zeroHashes[depth]
	if rt, ok := levels[depth][0]; ok {
		root = rt
	}

	return &Tree{
		Root:       root,
		Depth:      int(depth),
		NumLeaves:  int(numLeaves),
		Levels:     levels,
		ZeroHashes: zeroHashes,
	}, nil
}

func writeLevel(w io.Writer, m map[int]hasher.Digest) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(m))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	indices := make([]int, 0, len(m))
	for idx := range m {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	for _, idx := range indices {
		if err := binary.Write(w, binary.BigEndian, uint32(idx)); err != nil {
			return fmt.Errorf("write index %d: %w", idx, err)
		}
		d := m[idx]
		if _, err := w.Write(d[:]); err != nil {
			return fmt.Errorf("write digest %d: %w", idx, err)
		}
	}
	return nil
}

func readLevel(r io.Reader) (map[int]hasher.Digest, error) {
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}
	m := make(map[int]hasher.Digest, count)
	for j := 0; j < int(count); j++ {
		var idx uint32
		if err := binary.Read(r, binary.BigEndian, &idx); err != nil {
			return nil, fmt.Errorf("read index: %w", err)
		}
		var d hasher.Digest
		if _, err := io.ReadFull(r, d[:]); err != nil {
			return nil, fmt.Errorf("read digest: %w", err)
		}
		m[int(idx)] = d
	}
	return m, nil
}

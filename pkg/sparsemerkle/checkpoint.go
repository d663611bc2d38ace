package sparsemerkle

import (
	"encoding/binary"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/MuriData/muri-zkproof/pkg/hasher"
)

// A CheckpointedTree persists only selected levels of a Tree. At proof time
// the gaps between checkpoints are rebuilt in parallel: the bottom gap
// re-hashes leaf pre-images with a worker pool, while middle and upper gaps
// rebuild from stored checkpoint entries, one goroutine per gap. Graduated
// spacing (smaller gaps near the bottom, larger near the top) keeps wall
// clock close to the single slowest gap rather than the sum of all gaps.
type CheckpointScheme struct {
	Levels []int
}

// Preset schemes for depth-20 trees (a million-plus node DRG instance).
var (
	// SchemeCompact stores only level 10 and the root.
	SchemeCompact = CheckpointScheme{Levels: []int{10, 20}}

	// SchemeBalanced stores four checkpoint levels with graduated gaps.
	SchemeBalanced = CheckpointScheme{Levels: []int{4, 9, 15, 20}}

	// SchemeFast stores four checkpoint levels with a smaller bottom gap,
	// trading space for faster proof rebuilds.
	SchemeFast = CheckpointScheme{Levels: []int{3, 7, 12, 20}}
)

// CheckpointedTree holds only the entries at checkpoint levels plus the
// precomputed zero-subtree hash chain.
type CheckpointedTree struct {
	Root       hasher.Digest
	Depth      int
	NumLeaves  int
	Scheme     CheckpointScheme
	Levels     map[int]map[int]hasher.Digest
	ZeroHashes []hasher.Digest
}

// RebuildProofResult is the output of CheckpointedTree.RebuildProof.
type RebuildProofResult struct {
	Siblings []hasher.Digest
	IsRight  []bool
	Leaf     hasher.Digest
}

// segment is a contiguous range of tree levels [lo, hi) rebuilt from the
// entries stored (or recomputed) at level lo.
type segment struct {
	lo, hi        int
	needsPreimage bool
}

// SaveCheckpointed writes only the checkpoint-level entries of a full Tree.
func (t *Tree) SaveCheckpointed(w io.Writer, scheme CheckpointScheme) error {
	if err := validateScheme(scheme, t.Depth); err != nil {
		return err
	}

	if err := binary.Write(w, binary.BigEndian, uint32(t.Depth)); err != nil {
		return fmt.Errorf("sparsemerkle: write depth: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, uint32(t.NumLeaves)); err != nil {
		return fmt.Errorf("sparsemerkle: write numLeaves: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(scheme.Levels))); err != nil {
		return fmt.Errorf("sparsemerkle: write level count: %w", err)
	}
	for _, lvl := range scheme.Levels {
		if err := binary.Write(w, binary.BigEndian, uint32(lvl)); err != nil {
			return fmt.Errorf("sparsemerkle: write level number: %w", err)
		}
	}

	for _, lvl := range scheme.Levels {
		if err := writeLevel(w, t.Levels[lvl]); err != nil {
			return fmt.Errorf("sparsemerkle: write checkpoint level %d: %w", lvl, err)
		}
	}
	return nil
}

// LoadCheckpointedSMT reads a tree written by SaveCheckpointed. zeroLeafHash
// must match the value used to build the original tree.
func LoadCheckpointedSMT(r io.Reader, zeroLeafHash hasher.Digest, h *hasher.Hasher) (*CheckpointedTree, error) {
	var depth, numLeaves, numLevels uint32
	if err := binary.Read(r, binary.BigEndian, &depth); err != nil {
		return nil, fmt.Errorf("sparsemerkle: read depth: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &numLeaves); err != nil {
		return nil, fmt.Errorf("sparsemerkle: read numLeaves: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &numLevels); err != nil {
		return nil, fmt.Errorf("sparsemerkle: read level count: %w", err)
	}

	checkpointLevels := make([]int, numLevels)
	for i := range checkpointLevels {
		var lvl uint32
		if err := binary.Read(r, binary.BigEndian, &lvl); err != nil {
			return nil, fmt.Errorf("sparsemerkle: read level number: %w", err)
		}
		checkpointLevels[i] = int(lvl)
	}

	zeroHashes := PrecomputeZeroHashes(int(depth), zeroLeafHash, h)

	levels := make(map[int]map[int]hasher.Digest, numLevels)
	for _, lvl := range checkpointLevels {
		m, err := readLevel(r)
		if err != nil {
			return nil, fmt.Errorf("sparsemerkle: read checkpoint level %d: %w", lvl, err)
		}
		levels[lvl] = m
	}

	root := zeroHashes[depth]
	if rootLevel, ok := levels[int(depth)]; ok {
		if rt, ok := rootLevel[0]; ok {
			root = rt
		}
	}

	return &CheckpointedTree{
		Root:       root,
		Depth:      int(depth),
		NumLeaves:  int(numLeaves),
		Scheme:     CheckpointScheme{Levels: checkpointLevels},
		Levels:     levels,
		ZeroHashes: zeroHashes,
	}, nil
}

// RebuildProof reconstructs a full depth-sized authentication path by
// rebuilding the gaps between checkpoint levels in parallel.
//
// readPreimage supplies a leaf pre-image for the bottom gap; it is called
// only for indices in [0, NumLeaves). h.Leaf/h.Node re-derive hashes exactly
// as the original tree did.
func (ct *CheckpointedTree) RebuildProof(leafIndex int, readPreimage func(int) hasher.Digest, h *hasher.Hasher) *RebuildProofResult {
	siblings := make([]hasher.Digest, ct.Depth)
	isRight := make([]bool, ct.Depth)

	idx := leafIndex
	for lvl := 0; lvl < ct.Depth; lvl++ {
		isRight[lvl] = idx%2 != 0
		idx /= 2
	}

	segments := ct.buildSegments()

	type segResult struct {
		siblings map[int]hasher.Digest
		leaf     *hasher.Digest
	}
	results := make([]segResult, len(segments))

	var wg sync.WaitGroup
	for si, seg := range segments {
		wg.Add(1)
		go func(si int, seg segment) {
			defer wg.Done()
			gapDepth := seg.hi - seg.lo
			if gapDepth == 0 {
				return
			}

			subtreeAtHi := leafIndex >> seg.hi
			baseStart := subtreeAtHi << gapDepth
			subtreeSize := 1 << gapDepth

			var baseEntries map[int]hasher.Digest
			var segLeaf *hasher.Digest

			if seg.needsPreimage {
				baseEntries, segLeaf = ct.rebuildBottomEntries(baseStart, subtreeSize, leafIndex, readPreimage, len(segments))
			} else {
				baseEntries = make(map[int]hasher.Digest)
				if stored, ok := ct.Levels[seg.lo]; ok {
					for i := 0; i < subtreeSize; i++ {
						absIdx := baseStart + i
						if d, ok := stored[absIdx]; ok {
							baseEntries[absIdx] = d
						}
					}
				}
				if seg.lo == 0 {
					if d, ok := baseEntries[leafIndex]; ok {
						segLeaf = &d
					} else {
						z := ct.ZeroHashes[0]
						segLeaf = &z
					}
				}
			}

			local := hasher.New()
			segSiblings := ct.buildGap(baseEntries, seg.lo, gapDepth, leafIndex, local)

			results[si].siblings = segSiblings
			results[si].leaf = segLeaf
		}(si, seg)
	}
	wg.Wait()

	var leaf *hasher.Digest
	for _, res := range results {
		for lvl, sib := range res.siblings {
			siblings[lvl] = sib
		}
		if res.leaf != nil {
			leaf = res.leaf
		}
	}

	zero := hasher.Digest{}
	for i, s := range siblings {
		if s == zero {
			siblings[i] = ct.ZeroHashes[i]
		}
	}
	if leaf == nil {
		z := ct.ZeroHashes[0]
		leaf = &z
	}

	return &RebuildProofResult{Siblings: siblings, IsRight: isRight, Leaf: *leaf}
}

// buildSegments partitions the tree levels into contiguous segments bounded
// by consecutive checkpoint levels.
func (ct *CheckpointedTree) buildSegments() []segment {
	_, hasLevel0 := ct.Levels[0]
	var segments []segment
	prev := 0
	for _, cp := range ct.Scheme.Levels {
		if cp > prev {
			segments = append(segments, segment{
				lo:            prev,
				hi:            cp,
				needsPreimage: prev == 0 && !hasLevel0,
			})
		}
		prev = cp
	}
	return segments
}

// rebuildBottomEntries hashes leaf pre-images in parallel for the bottom
// gap, returning the base-level entries and the leaf hash at leafIndex.
func (ct *CheckpointedTree) rebuildBottomEntries(
	baseStart, subtreeSize, leafIndex int,
	readPreimage func(int) hasher.Digest,
	numSegments int,
) (map[int]hasher.Digest, *hasher.Digest) {
	hashes := make([]*hasher.Digest, subtreeSize)

	numWorkers := runtime.NumCPU()
	if numSegments > 1 && numWorkers > numSegments {
		numWorkers -= numSegments - 1
	}
	if numWorkers > subtreeSize {
		numWorkers = subtreeSize
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	var leafWg sync.WaitGroup
	work := make(chan int, subtreeSize)
	for w := 0; w < numWorkers; w++ {
		leafWg.Add(1)
		go func() {
			defer leafWg.Done()
			local := hasher.New()
			for localIdx := range work {
				absIdx := baseStart + localIdx
				if absIdx < ct.NumLeaves {
					d := local.Leaf(readPreimage(absIdx))
					hashes[localIdx] = &d
				}
			}
		}()
	}
	for i := 0; i < subtreeSize; i++ {
		work <- i
	}
	close(work)
	leafWg.Wait()

	baseEntries := make(map[int]hasher.Digest, subtreeSize)
	for i, h := range hashes {
		if h != nil {
			baseEntries[baseStart+i] = *h
		}
	}

	localOffset := leafIndex - baseStart
	var leaf *hasher.Digest
	if localOffset >= 0 && localOffset < subtreeSize && hashes[localOffset] != nil {
		leaf = hashes[localOffset]
	} else {
		z := ct.ZeroHashes[0]
		leaf = &z
	}

	return baseEntries, leaf
}

// buildGap constructs intermediate levels from baseEntries and extracts the
// sibling hash at each level for leafIndex's authentication path.
func (ct *CheckpointedTree) buildGap(
	baseEntries map[int]hasher.Digest,
	baseLvl, gapDepth, leafIndex int,
	h *hasher.Hasher,
) map[int]hasher.Digest {
	segSiblings := make(map[int]hasher.Digest, gapDepth)
	currentEntries := baseEntries

	for relLvl := 0; relLvl < gapDepth; relLvl++ {
		absLvl := baseLvl + relLvl

		nodeIdx := leafIndex >> absLvl
		sibIdx := nodeIdx ^ 1
		if d, ok := currentEntries[sibIdx]; ok {
			segSiblings[absLvl] = d
		} else {
			segSiblings[absLvl] = ct.ZeroHashes[absLvl]
		}

		nextEntries := make(map[int]hasher.Digest)
		parentIndices := make(map[int]bool)
		for idx := range currentEntries {
			parentIndices[idx/2] = true
		}
		for parentIdx := range parentIndices {
			left, ok := currentEntries[parentIdx*2]
			if !ok {
				left = ct.ZeroHashes[absLvl]
			}
			right, ok := currentEntries[parentIdx*2+1]
			if !ok {
				right = ct.ZeroHashes[absLvl]
			}
			nextEntries[parentIdx] = h.Node(left, right, absLvl)
		}
		currentEntries = nextEntries
	}

	return segSiblings
}

func validateScheme(scheme CheckpointScheme, depth int) error {
	if len(scheme.Levels) == 0 {
		return fmt.Errorf("sparsemerkle: checkpoint scheme has no levels")
	}
	if scheme.Levels[len(scheme.Levels)-1] != depth {
		return fmt.Errorf("sparsemerkle: checkpoint scheme must end with tree depth %d, got %d",
			depth, scheme.Levels[len(scheme.Levels)-1])
	}
	for i := 1; i < len(scheme.Levels); i++ {
		if scheme.Levels[i] <= scheme.Levels[i-1] {
			return fmt.Errorf("sparsemerkle: checkpoint levels must be sorted ascending: %d <= %d",
				scheme.Levels[i], scheme.Levels[i-1])
		}
	}
	if scheme.Levels[0] < 0 {
		return fmt.Errorf("sparsemerkle: checkpoint levels must be non-negative")
	}
	return nil
}

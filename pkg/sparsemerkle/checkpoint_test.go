package sparsemerkle

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/MuriData/muri-zkproof/pkg/hasher"
)

const presetDepth = 20 // matches the depth the preset schemes are tuned for

func schemeName(idx int) string { return fmt.Sprintf("scheme_%d", idx) }

// TestCheckpointedRebuildProof verifies that RebuildProof reproduces the
// full tree's GetProof output for every preset scheme.
func TestCheckpointedRebuildProof(t *testing.T) {
	schemes := []CheckpointScheme{SchemeCompact, SchemeBalanced, SchemeFast}

	for si, scheme := range schemes {
		t.Run(schemeName(si), func(t *testing.T) {
			for _, n := range []int{1, 4, 8, 16} {
				t.Run(fmtLeaves(n), func(t *testing.T) {
					preimages := randomPreimages(t, n)
					full := New(preimages, presetDepth)

					var buf bytes.Buffer
					if err := full.SaveCheckpointed(&buf, scheme); err != nil {
						t.Fatalf("SaveCheckpointed: %v", err)
					}

					zeroH := hasher.New()
					zeroLeaf := ZeroLeafDigest(zeroH)
					ct, err := LoadCheckpointedSMT(bytes.NewReader(buf.Bytes()), zeroLeaf, hasher.New())
					if err != nil {
						t.Fatalf("LoadCheckpointedSMT: %v", err)
					}

					if ct.Root != full.Root {
						t.Fatal("root mismatch")
					}

					readPreimage := func(i int) hasher.Digest { return preimages[i] }
					rebuildH := hasher.New()

					for leafIdx := 0; leafIdx < n && leafIdx < 8; leafIdx++ {
						fullSib, fullIsRight := full.GetProof(leafIdx)
						result := ct.RebuildProof(leafIdx, readPreimage, rebuildH)

						for lvl := 0; lvl < presetDepth; lvl++ {
							if fullSib[lvl] != result.Siblings[lvl] {
								t.Fatalf("leaf %d: sibling mismatch at level %d", leafIdx, lvl)
							}
							if fullIsRight[lvl] != result.IsRight[lvl] {
								t.Fatalf("leaf %d: side-bit mismatch at level %d", leafIdx, lvl)
							}
						}

						if full.GetLeaf(leafIdx) != result.Leaf {
							t.Fatalf("leaf %d: leaf hash mismatch", leafIdx)
						}
					}
				})
			}
		})
	}
}

// TestCheckpointedSaveLoad verifies serialization round-trip fidelity for
// every preset scheme.
func TestCheckpointedSaveLoad(t *testing.T) {
	preimages := randomPreimages(t, 8)
	full := New(preimages, presetDepth)

	for si, scheme := range []CheckpointScheme{SchemeCompact, SchemeBalanced, SchemeFast} {
		t.Run(schemeName(si), func(t *testing.T) {
			var buf bytes.Buffer
			if err := full.SaveCheckpointed(&buf, scheme); err != nil {
				t.Fatalf("SaveCheckpointed: %v", err)
			}
			raw := buf.Bytes()

			zeroH := hasher.New()
			zeroLeaf := ZeroLeafDigest(zeroH)
			ct, err := LoadCheckpointedSMT(bytes.NewReader(raw), zeroLeaf, hasher.New())
			if err != nil {
				t.Fatalf("LoadCheckpointedSMT: %v", err)
			}

			if ct.Depth != presetDepth {
				t.Fatalf("depth: got %d want %d", ct.Depth, presetDepth)
			}
			if ct.NumLeaves != len(preimages) {
				t.Fatalf("numLeaves: got %d want %d", ct.NumLeaves, len(preimages))
			}
			if ct.Root != full.Root {
				t.Fatal("root mismatch")
			}

			for _, lvl := range scheme.Levels {
				stored := ct.Levels[lvl]
				want := full.Levels[lvl]
				if len(stored) != len(want) {
					t.Fatalf("level %d: count %d != %d", lvl, len(stored), len(want))
				}
				for idx, d := range stored {
					wantD, ok := want[idx]
					if !ok || d != wantD {
						t.Fatalf("level %d index %d: mismatch", lvl, idx)
					}
				}
			}
		})
	}
}

// TestCheckpointedPaddingLeaf verifies proofs for leaf indices beyond
// NumLeaves rebuild correctly from zero-subtree hashes.
func TestCheckpointedPaddingLeaf(t *testing.T) {
	preimages := randomPreimages(t, 4)
	full := New(preimages, presetDepth)

	var buf bytes.Buffer
	if err := full.SaveCheckpointed(&buf, SchemeBalanced); err != nil {
		t.Fatalf("SaveCheckpointed: %v", err)
	}
	zeroH := hasher.New()
	zeroLeaf := ZeroLeafDigest(zeroH)
	ct, err := LoadCheckpointedSMT(bytes.NewReader(buf.Bytes()), zeroLeaf, hasher.New())
	if err != nil {
		t.Fatalf("LoadCheckpointedSMT: %v", err)
	}

	readPreimage := func(i int) hasher.Digest { return preimages[i] }
	rebuildH := hasher.New()

	for _, paddingIdx := range []int{100, 1000, 65536} {
		t.Run(fmt.Sprintf("idx_%d", paddingIdx), func(t *testing.T) {
			fullSib, fullIsRight := full.GetProof(paddingIdx)
			result := ct.RebuildProof(paddingIdx, readPreimage, rebuildH)

			for lvl := 0; lvl < presetDepth; lvl++ {
				if fullSib[lvl] != result.Siblings[lvl] {
					t.Fatalf("padding leaf %d: sibling mismatch at level %d", paddingIdx, lvl)
				}
				if fullIsRight[lvl] != result.IsRight[lvl] {
					t.Fatalf("padding leaf %d: side-bit mismatch at level %d", paddingIdx, lvl)
				}
			}
			if result.Leaf != zeroLeaf {
				t.Fatalf("padding leaf %d: expected zero leaf hash", paddingIdx)
			}
		})
	}
}

// TestCheckpointedSchemeLeavesOnly verifies a scheme that stores level 0
// directly, so RebuildProof never calls readPreimage.
func TestCheckpointedSchemeLeavesOnly(t *testing.T) {
	leavesOnly := CheckpointScheme{Levels: []int{0, 10, presetDepth}}

	preimages := randomPreimages(t, 8)
	full := New(preimages, presetDepth)

	var buf bytes.Buffer
	if err := full.SaveCheckpointed(&buf, leavesOnly); err != nil {
		t.Fatalf("SaveCheckpointed: %v", err)
	}
	zeroH := hasher.New()
	zeroLeaf := ZeroLeafDigest(zeroH)
	ct, err := LoadCheckpointedSMT(bytes.NewReader(buf.Bytes()), zeroLeaf, hasher.New())
	if err != nil {
		t.Fatalf("LoadCheckpointedSMT: %v", err)
	}

	readPreimage := func(i int) hasher.Digest {
		t.Fatal("readPreimage should not be called when level 0 is stored")
		return hasher.Digest{}
	}
	rebuildH := hasher.New()

	for leafIdx := 0; leafIdx < 8; leafIdx++ {
		fullSib, _ := full.GetProof(leafIdx)
		result := ct.RebuildProof(leafIdx, readPreimage, rebuildH)

		for lvl := 0; lvl < presetDepth; lvl++ {
			if fullSib[lvl] != result.Siblings[lvl] {
				t.Fatalf("leaf %d: sibling mismatch at level %d", leafIdx, lvl)
			}
		}
		if full.GetLeaf(leafIdx) != result.Leaf {
			t.Fatalf("leaf %d: leaf hash mismatch", leafIdx)
		}
	}
}

// TestCheckpointedEmpty verifies the checkpoint system round-trips a tree
// with zero real leaves.
func TestCheckpointedEmpty(t *testing.T) {
	full := New(nil, presetDepth)

	var buf bytes.Buffer
	if err := full.SaveCheckpointed(&buf, SchemeBalanced); err != nil {
		t.Fatalf("SaveCheckpointed: %v", err)
	}
	zeroH := hasher.New()
	zeroLeaf := ZeroLeafDigest(zeroH)
	ct, err := LoadCheckpointedSMT(bytes.NewReader(buf.Bytes()), zeroLeaf, hasher.New())
	if err != nil {
		t.Fatalf("LoadCheckpointedSMT: %v", err)
	}

	if ct.Root != full.Root {
		t.Fatal("root mismatch for empty tree")
	}
}

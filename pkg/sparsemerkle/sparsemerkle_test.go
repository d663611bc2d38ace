package sparsemerkle

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/MuriData/muri-zkproof/pkg/hasher"
)

const testDepth = 6 // 64 leaf slots; small enough to keep tests fast

func randomPreimages(t *testing.T, n int) []hasher.Digest {
	t.Helper()
	out := make([]hasher.Digest, n)
	for i := range out {
		if _, err := rand.Read(out[i][1:]); err != nil {
			t.Fatalf("rand.Read: %v", err)
		}
	}
	return out
}

func fmtLeaves(n int) string { return fmt.Sprintf("leaves=%d", n) }

// TestParallelMatchesSequential verifies that New's worker-pool leaf hashing
// produces the same leaf and root hashes as hashing sequentially.
func TestParallelMatchesSequential(t *testing.T) {
	for _, n := range []int{1, 2, 4, 16} {
		t.Run(fmtLeaves(n), func(t *testing.T) {
			preimages := randomPreimages(t, n)

			tree := New(preimages, testDepth)

			seq := hasher.New()
			for i, pre := range preimages {
				want := seq.Leaf(pre)
				got := tree.GetLeaf(i)
				if got != want {
					t.Fatalf("leaf %d mismatch", i)
				}
			}

			zero := hasher.Digest{}
			if tree.Root == zero {
				t.Fatal("root hash is zero-valued")
			}

			siblings, isRight := tree.GetProof(0)
			if len(siblings) != testDepth || len(isRight) != testDepth {
				t.Fatalf("proof length = %d/%d, want %d", len(siblings), len(isRight), testDepth)
			}
		})
	}
}

// TestGetProofReplay checks that replaying GetProof's siblings against the
// tree's leaf hash reaches the tree root.
func TestGetProofReplay(t *testing.T) {
	preimages := randomPreimages(t, 5)
	tree := New(preimages, testDepth)
	h := hasher.New()

	for i := 0; i < 1<<testDepth; i++ {
		siblings, isRight := tree.GetProof(i)
		cur := tree.GetLeaf(i)
		for lvl := 0; lvl < testDepth; lvl++ {
			var left, right hasher.Digest
			if isRight[lvl] {
				left, right = siblings[lvl], cur
			} else {
				left, right = cur, siblings[lvl]
			}
			cur = h.Node(left, right, lvl)
		}
		if cur != tree.Root {
			t.Fatalf("leaf %d: replayed root mismatch", i)
		}
	}
}

// TestSaveLoadRoundTrip verifies Save/Load fidelity across level maps, root,
// and proofs.
func TestSaveLoadRoundTrip(t *testing.T) {
	for _, n := range []int{1, 4, 9} {
		t.Run(fmtLeaves(n), func(t *testing.T) {
			preimages := randomPreimages(t, n)
			original := New(preimages, testDepth)

			zeroH := hasher.New()
			zeroLeaf := ZeroLeafDigest(zeroH)

			var buf bytes.Buffer
			if err := original.Save(&buf); err != nil {
				t.Fatalf("Save: %v", err)
			}

			loaded, err := Load(&buf, zeroLeaf, hasher.New())
			if err != nil {
				t.Fatalf("Load: %v", err)
			}

			if loaded.Depth != original.Depth {
				t.Fatalf("depth: got %d, want %d", loaded.Depth, original.Depth)
			}
			if loaded.NumLeaves != original.NumLeaves {
				t.Fatalf("numLeaves: got %d, want %d", loaded.NumLeaves, original.NumLeaves)
			}
			if loaded.Root != original.Root {
				t.Fatal("root mismatch after round trip")
			}

			for lvl := 0; lvl <= original.Depth; lvl++ {
				origMap := original.Levels[lvl]
				loadMap := loaded.Levels[lvl]
				if len(origMap) != len(loadMap) {
					t.Fatalf("level %d: entry count %d != %d", lvl, len(loadMap), len(origMap))
				}
				for idx, want := range origMap {
					got, ok := loadMap[idx]
					if !ok || got != want {
						t.Fatalf("level %d index %d: mismatch", lvl, idx)
					}
				}
			}
		})
	}
}

// TestSaveLoadEmpty verifies an empty tree (zero real leaves) round-trips
// with the all-zero-hash root.
func TestSaveLoadEmpty(t *testing.T) {
	original := New(nil, testDepth)

	zeroH := hasher.New()
	zeroLeaf := ZeroLeafDigest(zeroH)

	if original.Root != original.ZeroHashes[testDepth] {
		t.Fatal("empty tree root should equal the top zero hash")
	}

	var buf bytes.Buffer
	if err := original.Save(&buf); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(&buf, zeroLeaf, hasher.New())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Root != original.Root {
		t.Fatal("root mismatch for empty tree")
	}
}

// Package drgraph implements the bucket-sampling depth-robust graph: a
// pure, deterministic parent function over N node indices, plus the bridge
// that turns raw node data into leaf digests for an external Merkle tree
// builder.
package drgraph

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/MuriData/muri-zkproof/config"
	"github.com/MuriData/muri-zkproof/pkg/hasher"
	"github.com/MuriData/muri-zkproof/pkg/merkletree"
)

// BucketGraph is an immutable (nodes, base_degree, seed) triple. Every
// parent index of node i is <= i (the "forward" property); parent lists are
// always sorted ascending and have length exactly base_degree.
type BucketGraph struct {
	nodes      int
	baseDegree int
	seed       [7]uint32
}

// NewBucketGraph constructs a BucketGraph. expansionDegree must be zero —
// this core implements only base graphs; any other value is a programmer
// error and panics: these are precondition violations, not data-dependent
// failures.
func NewBucketGraph(nodes, baseDegree, expansionDegree int, seed [7]uint32) *BucketGraph {
	if expansionDegree != 0 {
		panic(fmt.Sprintf("drgraph: expansion_degree must be 0, got %d", expansionDegree))
	}
	if nodes < 2 {
		panic(fmt.Sprintf("drgraph: nodes must be >= 2, got %d", nodes))
	}
	if baseDegree < 1 {
		panic(fmt.Sprintf("drgraph: base_degree must be >= 1, got %d", baseDegree))
	}
	return &BucketGraph{nodes: nodes, baseDegree: baseDegree, seed: seed}
}

// Size returns the number of nodes in the graph.
func (g *BucketGraph) Size() int { return g.nodes }

// Degree returns the base degree of the graph.
func (g *BucketGraph) Degree() int { return g.baseDegree }

// Seed returns the graph's 7-word seed.
func (g *BucketGraph) Seed() [7]uint32 { return g.seed }

// Forward reports whether every parent index is <= the node it precedes.
// BucketGraph always satisfies this, by construction.
func (g *BucketGraph) Forward() bool { return true }

// ParameterSetIdentifier returns a canonical string identifying this
// graph's shape for cache keying in the outer protocol. The seed is
// intentionally excluded: parameter generation depends only on size and
// degree.
func (g *BucketGraph) ParameterSetIdentifier() string {
	return fmt.Sprintf("drgraph::BucketGraph{size: %d; degree: %d}", g.nodes, g.baseDegree)
}

// TreeDepth returns the Merkle tree depth for a graph of the given size:
// ceil(log2(size)).
func TreeDepth(size int) int {
	return int(math.Ceil(math.Log2(float64(size))))
}

// Parents returns a sorted, length-d list of node i's predecessor indices.
// Repeated calls with the same (graph, i) return identical results.
func (g *BucketGraph) Parents(i int) []int {
	m := g.baseDegree

	switch i {
	case 0, 1:
		// Node 0 self-references (no predecessor exists); node 1 has only
		// node 0 to depend on. This is the one place the no-self-loop rule
		// is waived.
		parents := make([]int, m)
		return parents
	}

	var seed [8]uint32
	copy(seed[:7], g.seed[:])
	seed[7] = uint32(i)
	rng := newBucketPRNG(seed)

	parents := make([]int, m)
	for k := 0; k < m; k++ {
		// logi = floor(log2(i*d)), computed in single precision as the
		// legacy implementation did.
		logi := int(math.Floor(float64(float32(math.Log2(float64(i * m))))))
		j := rng.uniformBelow(uint32(logi))
		jj := min(i*m+k, 1<<(j+1))
		lo := max(jj/2, 2)
		backDist := int(rng.uniformRange(uint32(lo), uint32(jj)))
		out := (i*m + k - backDist) / m

		// Remove the self-reference and redirect to the immediately
		// preceding node.
		if out == i {
			out = i - 1
		}
		if out > i {
			panic(fmt.Sprintf("drgraph: parent %d exceeds node %d", out, i))
		}
		parents[k] = out
	}

	sort.Ints(parents)
	return parents
}

// MerkleTree slices data into Size() nodes of node_size bytes each, hashes
// each node into a leaf pre-image digest, and hands the sequence to the
// external Merkle tree builder. It does not apply the leaf domain-
// separation transform itself — that is pkg/merkletree's responsibility at
// its leaf layer.
func (g *BucketGraph) MerkleTree(data []byte, nodeSize int, h *hasher.Hasher) (*merkletree.Tree, error) {
	want := nodeSize * g.nodes
	if len(data) != want {
		return nil, fmt.Errorf("%w: got %d bytes, want %d (node_size=%d * nodes=%d)",
			ErrShapeMismatch, len(data), want, nodeSize, g.nodes)
	}
	if !isSupportedNodeSize(nodeSize) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedNodeSize, nodeSize)
	}

	preimages := make([]hasher.Digest, g.nodes)
	for i := 0; i < g.nodes; i++ {
		chunk := data[i*nodeSize : (i+1)*nodeSize]
		h.Reset()
		h.Absorb(chunk)
		preimages[i] = h.Digest()
	}
	h.Reset()

	return merkletree.New(preimages, h), nil
}

// isSupportedNodeSize reports whether size is one of config.SupportedNodeSizes.
func isSupportedNodeSize(size int) bool {
	for _, s := range config.SupportedNodeSizes {
		if size == s {
			return true
		}
	}
	return false
}

// NewSeed produces a uniformly random 7-word seed from an OS entropy
// source. Failure here is fatal at construction time only — callers that
// cannot tolerate an error should log.Fatal it immediately.
func NewSeed() ([7]uint32, error) {
	var seed [7]uint32
	var buf [28]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return seed, fmt.Errorf("drgraph: read OS entropy: %w", err)
	}
	for i := range seed {
		seed[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return seed, nil
}


// Package config holds the tunable constants shared across the graph and
// Merkle tree packages: default node sizes, the degree bounds a caller is
// expected to stay within, and the checkpoint depth above which a sparse
// tree should be used instead of a dense one.
package config

const (
	// DefaultNodeSize is the pre-image size (bytes) used when a caller does
	// not have a protocol-specific reason to pick one of the other
	// supported sizes.
	DefaultNodeSize = 32

	// MinBaseDegree and MaxBaseDegree bound the base_degree values the
	// bucket-sampling parent function is exercised and tested against.
	MinBaseDegree = 2
	MaxBaseDegree = 12

	// SparseTreeThreshold is the node count above which BucketGraph.MerkleTree
	// callers should prefer pkg/sparsemerkle's checkpointed tree over a fully
	// materialized pkg/merkletree.Tree.
	SparseTreeThreshold = 1 << 16

	// DefaultCheckpointDepth is the depth the preset checkpoint schemes in
	// pkg/sparsemerkle are tuned for.
	DefaultCheckpointDepth = 20
)

// SupportedNodeSizes lists the node_size values BucketGraph.MerkleTree
// accepts.
var SupportedNodeSizes = [...]int{16, 32, 64}

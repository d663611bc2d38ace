package drgraph

import "errors"

// ErrShapeMismatch is returned by BucketGraph.MerkleTree when the supplied
// data is not exactly node_size * nodes bytes long.
var ErrShapeMismatch = errors.New("drgraph: data length does not match node_size * nodes")

// ErrUnsupportedNodeSize is returned by BucketGraph.MerkleTree when
// node_size is not one of 16, 32, or 64.
var ErrUnsupportedNodeSize = errors.New("drgraph: node_size must be 16, 32, or 64")

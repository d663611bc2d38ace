// Command drgdemo builds a bucket-sampling depth-robust graph over random
// node data, commits it to a Merkle tree, and opens and validates a proof
// for one node. It is a smoke test for pkg/drgraph, pkg/merkletree, and
// pkg/merkleproof wired together, not a production tool.
package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"log"

	"github.com/MuriData/muri-zkproof/config"
	"github.com/MuriData/muri-zkproof/pkg/drgraph"
	"github.com/MuriData/muri-zkproof/pkg/hasher"
	"github.com/MuriData/muri-zkproof/pkg/merkleproof"
)

func main() {
	nodes := flag.Int("nodes", 64, "number of nodes in the graph")
	degree := flag.Int("degree", 6, "base degree of the graph")
	nodeSize := flag.Int("node-size", config.DefaultNodeSize, "bytes per node (16, 32, or 64)")
	openIndex := flag.Int("open", 0, "node index to open a Merkle proof for")
	flag.Parse()

	seed, err := drgraph.NewSeed()
	if err != nil {
		log.Fatalf("generate seed: %v", err)
	}

	g := drgraph.NewBucketGraph(*nodes, *degree, 0, seed)
	fmt.Printf("graph: %s\n", g.ParameterSetIdentifier())

	data := make([]byte, *nodeSize**nodes)
	if _, err := rand.Read(data); err != nil {
		log.Fatalf("generate node data: %v", err)
	}

	h := hasher.New()
	tree, err := g.MerkleTree(data, *nodeSize, h)
	if err != nil {
		log.Fatalf("build Merkle tree: %v", err)
	}
	fmt.Printf("tree: %d leaves, depth %d\n", tree.LeafCount(), tree.Depth())

	parents := g.Parents(*openIndex)
	fmt.Printf("node %d: parents = %v\n", *openIndex, parents)

	raw, err := tree.GenProof(*openIndex)
	if err != nil {
		log.Fatalf("generate proof for node %d: %v", *openIndex, err)
	}
	proof := merkleproof.FromRaw(raw)

	if !proof.Validate(*openIndex, h) {
		log.Fatalf("proof for node %d failed to validate", *openIndex)
	}
	fmt.Printf("proof for node %d: %d path elements, validated against root %x\n",
		*openIndex, len(proof.Path()), proof.Root().Bytes())
}

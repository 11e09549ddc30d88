// Copyright 2017 Cameron Bergoon
// https://github.com/cbergoon/merkletree
// Licensed under the MIT License, see LICENCE file for details.
// This code has been cleaned up, refactored, and turned into generics.

// Package merkle provides an implementation of a merkle tree used to commit
// a block header to the ordered set of transactions inside the block.
package merkle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
)

// Hashable represents the behavior concrete data must exhibit to be used in
// the merkle tree.
type Hashable[T any] interface {
	Hash() (signature.Hash, error)
	Equals(other T) bool
}

// ErrDuplicateLeaf is returned when two values hash the same. Duplicating the
// last leaf of an odd level would otherwise give such a list the same root as
// the list without the copy.
var ErrDuplicateLeaf = errors.New("duplicate leaf")

// Proof order values. A proof hash either comes before (left) or after
// (right) the running hash when the pair is concatenated.
const (
	ProofLeft  int64 = 0
	ProofRight int64 = 1
)

// =============================================================================

// Tree represents a merkle tree that uses data of some type T that exhibits the
// behavior defined by the Hashable constraint. An empty tree has a zero root.
type Tree[T Hashable[T]] struct {
	Root       *Node[T]
	Leafs      []*Node[T]
	MerkleRoot signature.Hash
}

// NewTree constructs a new merkle tree from the specified values. The order
// of the values is significant.
func NewTree[T Hashable[T]](values []T) (*Tree[T], error) {
	var t Tree[T]

	if err := t.Generate(values); err != nil {
		return nil, err
	}

	return &t, nil
}

// RootHash is a convenience function that returns the merkle root for the
// specified values.
func RootHash[T Hashable[T]](values []T) (signature.Hash, error) {
	t, err := NewTree(values)
	if err != nil {
		return signature.Hash{}, err
	}

	return t.MerkleRoot, nil
}

// Generate constructs the leafs and nodes of the tree from the specified
// data. If the tree has been generated previously, the tree is re-generated
// from scratch.
func (t *Tree[T]) Generate(values []T) error {
	t.Root = nil
	t.Leafs = nil
	t.MerkleRoot = signature.ZeroHash

	if len(values) == 0 {
		return nil
	}

	leafs := make([]*Node[T], 0, len(values)+1)
	seen := make(map[signature.Hash]struct{}, len(values))
	for i, value := range values {
		hash, err := value.Hash()
		if err != nil {
			return err
		}

		if _, exists := seen[hash]; exists {
			return fmt.Errorf("%w: value[%d] %s", ErrDuplicateLeaf, i, hash)
		}
		seen[hash] = struct{}{}

		leafs = append(leafs, &Node[T]{
			Hash:  hash,
			Value: value,
			leaf:  true,
		})
	}

	// An odd number of leafs gets the last one duplicated.
	if len(leafs)%2 == 1 {
		last := leafs[len(leafs)-1]
		leafs = append(leafs, &Node[T]{
			Hash:  last.Hash,
			Value: last.Value,
			leaf:  true,
			dup:   true,
		})
	}

	t.Leafs = leafs
	t.Root = buildIntermediate(leafs)
	t.MerkleRoot = t.Root.Hash

	return nil
}

// Values returns a slice of the values stored in the tree in their original
// order, without the duplicated leaf.
func (t *Tree[T]) Values() []T {
	values := make([]T, 0, len(t.Leafs))
	for _, node := range t.Leafs {
		if node.dup {
			continue
		}
		values = append(values, node.Value)
	}

	return values
}

// Proof returns the set of hashes and the order of concatenating those
// hashes for proving a value is in the tree.
//
// Hash the value in question and start with that as the running hash. For
// each proof hash, concatenate it before the running hash when the order is
// ProofLeft and after it when the order is ProofRight, then hash the pair.
// The final running hash must match the merkle root.
func (t *Tree[T]) Proof(data T) ([]signature.Hash, []int64, error) {
	for _, node := range t.Leafs {
		if !node.Value.Equals(data) {
			continue
		}

		var proof []signature.Hash
		var order []int64
		for parent := node.Parent; parent != nil; parent = parent.Parent {
			if parent.Left == node {
				proof = append(proof, parent.Right.Hash)
				order = append(order, ProofRight)
			} else {
				proof = append(proof, parent.Left.Hash)
				order = append(order, ProofLeft)
			}
			node = parent
		}

		return proof, order, nil
	}

	return nil, nil, errors.New("unable to find data in tree")
}

// Verify recalculates the hashes at each level of the tree and checks the
// result matches the stored merkle root.
func (t *Tree[T]) Verify() error {
	if t.Root == nil {
		if !t.MerkleRoot.IsZero() {
			return errors.New("empty tree with non-zero root")
		}
		return nil
	}

	calculated, err := t.Root.verify()
	if err != nil {
		return err
	}

	if calculated != t.MerkleRoot {
		return errors.New("root hash invalid")
	}

	return nil
}

// String returns a string representation of the tree. Only leaf nodes are
// included in the output.
func (t *Tree[T]) String() string {
	var sb strings.Builder
	for _, l := range t.Leafs {
		sb.WriteString(l.String())
		sb.WriteString("\n")
	}

	return sb.String()
}

// VerifyProof checks that the leaf hash combined with the proof produces the
// specified merkle root.
func VerifyProof(root signature.Hash, leaf signature.Hash, proof []signature.Hash, order []int64) bool {
	if len(proof) != len(order) {
		return false
	}

	running := leaf
	for i, p := range proof {
		switch order[i] {
		case ProofLeft:
			running = signature.Sum(p[:], running[:])
		case ProofRight:
			running = signature.Sum(running[:], p[:])
		default:
			return false
		}
	}

	return running == root
}

// =============================================================================

// Node represents a node, root, or leaf in the tree. It stores pointers to its
// immediate relationships, a hash, the data if it is a leaf, and other metadata.
type Node[T Hashable[T]] struct {
	Parent *Node[T]
	Left   *Node[T]
	Right  *Node[T]
	Hash   signature.Hash
	Value  T
	leaf   bool
	dup    bool
}

// verify walks down the tree until hitting a leaf, calculating the hash at
// each level and returning the resulting hash of the node.
func (n *Node[T]) verify() (signature.Hash, error) {
	if n.leaf {
		return n.Value.Hash()
	}

	left, err := n.Left.verify()
	if err != nil {
		return signature.Hash{}, err
	}

	right, err := n.Right.verify()
	if err != nil {
		return signature.Hash{}, err
	}

	return signature.Sum(left[:], right[:]), nil
}

// String returns a string representation of the node.
func (n *Node[T]) String() string {
	return fmt.Sprintf("%t %t %s %v", n.leaf, n.dup, n.Hash, n.Value)
}

// =============================================================================

// buildIntermediate constructs the intermediate and root levels of the tree
// for a given list of nodes and returns the root node.
func buildIntermediate[T Hashable[T]](nl []*Node[T]) *Node[T] {
	var nodes []*Node[T]

	for i := 0; i < len(nl); i += 2 {
		left, right := i, i+1
		if right == len(nl) {
			right = i
		}

		n := Node[T]{
			Left:  nl[left],
			Right: nl[right],
			Hash:  signature.Sum(nl[left].Hash[:], nl[right].Hash[:]),
		}

		nodes = append(nodes, &n)
		nl[left].Parent = &n
		nl[right].Parent = &n

		if len(nl) == 2 {
			return &n
		}
	}

	return buildIntermediate(nodes)
}

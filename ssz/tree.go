package ssz

import (
	"fmt"
	"math/bits"

	"github.com/protolambda/ztyp/tree"

	"github.com/kysee/zk-lightclient/types"
)

// Node is a binary Merkle tree node. Leaves carry a chunk; branches carry their
// children and the cached hash of both.
type Node struct {
	root        types.Root
	left, right *Node
}

func NewLeaf(r types.Root) *Node {
	return &Node{root: r}
}

func NewBranch(left, right *Node) *Node {
	return &Node{root: HashPair(left.root, right.root), left: left, right: right}
}

// zeroNode returns an empty subtree of the given height.
func zeroNode(height uint8) *Node {
	if height == 0 {
		return NewLeaf(types.Root{})
	}
	child := zeroNode(height - 1)
	return &Node{root: tree.ZeroHashes[height], left: child, right: child}
}

// Container builds the tree of an SSZ container from its field subtrees.
func Container(fields ...*Node) *Node {
	if len(fields) == 0 {
		return NewLeaf(types.Root{})
	}
	depth := tree.CoverDepth(uint64(len(fields)))
	level := append([]*Node(nil), fields...)
	for d := uint8(0); d < depth; d++ {
		if len(level)%2 == 1 {
			level = append(level, zeroNode(d))
		}
		next := make([]*Node, len(level)/2)
		for i := range next {
			next[i] = NewBranch(level[2*i], level[2*i+1])
		}
		level = next
	}
	return level[0]
}

// ContainerFromRoots is Container over already hashed fields.
func ContainerFromRoots(roots ...types.Root) *Node {
	fields := make([]*Node, len(roots))
	for i, r := range roots {
		fields[i] = NewLeaf(r)
	}
	return Container(fields...)
}

func (n *Node) Root() types.Root {
	return n.root
}

func (n *Node) IsLeaf() bool {
	return n.left == nil
}

// Gindex is the generalized index of position index at the given depth.
func Gindex(depth uint8, index uint64) uint64 {
	return 1<<depth | index
}

// ConcatGindices addresses a node of a nested subtree from the outer root.
func ConcatGindices(gindices ...uint64) uint64 {
	out := uint64(1)
	for _, g := range gindices {
		d := gindexDepth(g)
		out = out<<d | (g ^ 1<<d)
	}
	return out
}

func gindexDepth(g uint64) uint8 {
	return uint8(bits.Len64(g) - 1)
}

// Getter walks from the root to the node at gindex.
func (n *Node) Getter(gindex uint64) (*Node, error) {
	if gindex == 0 {
		return nil, fmt.Errorf("invalid generalized index 0")
	}
	depth := gindexDepth(gindex)
	cur := n
	for d := int(depth) - 1; d >= 0; d-- {
		if cur.IsLeaf() {
			return nil, fmt.Errorf("generalized index %d runs past a leaf at depth %d", gindex, int(depth)-1-d)
		}
		if gindex>>uint(d)&1 == 0 {
			cur = cur.left
		} else {
			cur = cur.right
		}
	}
	return cur, nil
}

// Branch returns the sibling hashes proving the node at gindex, ordered from the
// leaf level up to the root.
func (n *Node) Branch(gindex uint64) ([]types.Root, error) {
	if gindex == 0 {
		return nil, fmt.Errorf("invalid generalized index 0")
	}
	depth := gindexDepth(gindex)
	branch := make([]types.Root, depth)
	cur := n
	for d := int(depth) - 1; d >= 0; d-- {
		if cur.IsLeaf() {
			return nil, fmt.Errorf("generalized index %d runs past a leaf", gindex)
		}
		if gindex>>uint(d)&1 == 0 {
			branch[d] = cur.right.root
			cur = cur.left
		} else {
			branch[d] = cur.left.root
			cur = cur.right
		}
	}
	return branch, nil
}

// VerifyBranch recomputes the root from leaf and its branch at gindex.
func VerifyBranch(leaf types.Root, branch []types.Root, gindex uint64, root types.Root) bool {
	if int(gindexDepth(gindex)) != len(branch) {
		return false
	}
	value := leaf
	for i, sibling := range branch {
		if gindex>>uint(i)&1 == 1 {
			value = HashPair(sibling, value)
		} else {
			value = HashPair(value, sibling)
		}
	}
	return value == root
}

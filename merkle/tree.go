package merkle

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Tree is a Cartesian Merkle Tree: a binary search tree on keys that is
// simultaneously a max-heap on key-derived priorities, with every node
// carrying a Merkle commitment over its subtree. Because priorities are a
// hash of the key and the node hash is symmetric in its child arguments, any
// insertion order of the same key set commits to the same root.
//
// The engine is recursive; depth is O(log n) in expectation since priorities
// are hash outputs, but the worst case over an adversarially correlated
// priority set is O(n). Hosts with shallow stacks should bound tree size or
// rewrite the descent over an explicit stack.
//
// Mutations are not safe for concurrent use. Readers are safe against a tree
// that no goroutine is mutating.
type Tree struct {
	hasher Hasher
	root   *node
	size   int
}

// NewTree makes an empty tree hashing through h.
func NewTree(h Hasher) *Tree {
	return &Tree{hasher: h}
}

// Size returns the number of nodes, counting duplicates.
func (t *Tree) Size() int {
	return t.size
}

// RootHash returns the commitment to the whole key set, or zero for an empty
// tree.
func (t *Tree) RootHash() fr.Element {
	return childHash(t.root)
}

// Insert adds key to the set. Duplicate keys are admitted and produce
// duplicate nodes, tie-broken to the right.
func (t *Tree) Insert(key fr.Element) {
	t.root = t.insert(t.root, newNode(t.hasher, key))
	t.size++
}

func (t *Tree) insert(cur, n *node) *node {
	if cur == nil {
		return n
	}
	if n.key.Cmp(&cur.key) < 0 {
		cur.left = t.insert(cur.left, n)
		cur.refreshHash(t.hasher)
		if cur.left.priority.Cmp(&cur.priority) > 0 {
			cur = rotateRight(t.hasher, cur)
		}
	} else {
		cur.right = t.insert(cur.right, n)
		cur.refreshHash(t.hasher)
		if cur.right.priority.Cmp(&cur.priority) > 0 {
			cur = rotateLeft(t.hasher, cur)
		}
	}
	return cur
}

// Search reports whether key is in the set.
func (t *Tree) Search(key fr.Element) bool {
	cur := t.root
	for cur != nil {
		switch c := key.Cmp(&cur.key); {
		case c < 0:
			cur = cur.left
		case c > 0:
			cur = cur.right
		default:
			return true
		}
	}
	return false
}

// Remove deletes one occurrence of key and reports whether anything was
// removed. A miss leaves the tree untouched.
func (t *Tree) Remove(key fr.Element) bool {
	root, removed := t.remove(t.root, key)
	if !removed {
		return false
	}
	t.root = root
	t.size--
	return true
}

func (t *Tree) remove(cur *node, key fr.Element) (*node, bool) {
	if cur == nil {
		return nil, false
	}
	switch c := key.Cmp(&cur.key); {
	case c < 0:
		left, removed := t.remove(cur.left, key)
		if !removed {
			return cur, false
		}
		cur.left = left
		cur.refreshHash(t.hasher)
		return cur, true
	case c > 0:
		right, removed := t.remove(cur.right, key)
		if !removed {
			return cur, false
		}
		cur.right = right
		cur.refreshHash(t.hasher)
		return cur, true
	}

	// Found. A node with two children is rotated toward a leaf along its
	// higher-priority child, which keeps the heap order on the way down.
	switch {
	case cur.left == nil && cur.right == nil:
		return nil, true
	case cur.left == nil:
		return cur.right, true
	case cur.right == nil:
		return cur.left, true
	}
	if cur.left.priority.Cmp(&cur.right.priority) >= 0 {
		cur = rotateRight(t.hasher, cur)
		right, _ := t.remove(cur.right, key)
		cur.right = right
		cur.refreshHash(t.hasher)
	} else {
		cur = rotateLeft(t.hasher, cur)
		left, _ := t.remove(cur.left, key)
		cur.left = left
		cur.refreshHash(t.hasher)
	}
	return cur, true
}

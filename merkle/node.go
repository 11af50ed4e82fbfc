package merkle

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// node is one treap node. Children are exclusively owned by their parent;
// rotations transfer ownership by local rewiring.
type node struct {
	key      fr.Element
	priority fr.Element
	hash     fr.Element

	left  *node
	right *node
}

func newNode(h Hasher, key fr.Element) *node {
	n := &node{key: key, priority: h.Priority(key)}
	n.refreshHash(h)
	return n
}

// childHash returns the Merkle hash of a possibly absent subtree. The zero
// field element is the empty-subtree sentinel and never collides with the
// hash of a real node.
func childHash(n *node) fr.Element {
	if n == nil {
		return fr.Element{}
	}
	return n.hash
}

func (n *node) refreshHash(h Hasher) {
	n.hash = h.NodeHash(n.key, childHash(n.left), childHash(n.right))
}

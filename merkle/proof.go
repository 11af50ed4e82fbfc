package merkle

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Proof certifies membership or non-membership of Key in the set committed
// to by Root.
//
// Siblings is a flat sequence: the first two slots are the child hashes at
// the node where the descent for Key ended (the target node for an existence
// proof, the deepest visited node for a non-existence proof), followed by
// one (ancestor key, sibling hash) pair per level on the way back to the
// root. For a non-existence proof, NonExistenceKey identifies that deepest
// node; the position Key would occupy below it was empty when Root was
// committed.
//
// DirectionBits records, per recorded pair, whether the hasher's canonical
// (min, max) reordering swapped the ascending hash with its sibling. The
// symmetric node hash makes the bits redundant for verification, but they
// are part of the wire format and both ends must treat them identically.
type Proof struct {
	Root            fr.Element
	Existence       bool
	Key             fr.Element
	NonExistenceKey fr.Element
	DirectionBits   *big.Int
	SiblingsLength  uint32
	Siblings        []fr.Element
}

// ProofBuilder accumulates the sibling sequence and direction word during a
// proof descent. Both tree realizations build proofs through it, so the
// normative bit encoding lives in one place: the leaf-context pair sets the
// low bit without shifting, every later pair shifts left then sets.
type ProofBuilder struct {
	p *Proof
}

func NewProofBuilder(root, key fr.Element) *ProofBuilder {
	return &ProofBuilder{p: &Proof{
		Root:          root,
		Key:           key,
		DirectionBits: new(big.Int),
	}}
}

// MarkExistence flags the proof as an existence proof.
func (b *ProofBuilder) MarkExistence() {
	b.p.Existence = true
}

// MarkNonExistence records the vantage node whose empty child position the
// descent dead-ended on.
func (b *ProofBuilder) MarkNonExistence(vantageKey fr.Element) {
	b.p.NonExistenceKey = vantageKey
}

// AppendLeafContext records the first sibling pair, the two child hashes of
// the node the descent ended at. It contributes a direction bit without
// shifting the accumulator first.
func (b *ProofBuilder) AppendLeafContext(lh, rh fr.Element) {
	b.p.Siblings = append(b.p.Siblings, lh, rh)
	if lh.Cmp(&rh) > 0 {
		b.p.DirectionBits.SetBit(b.p.DirectionBits, 0, 1)
	}
}

// AppendAncestor records an (ancestor key, sibling hash) pair on the unwind
// toward the root. rising is the hash ascending from the level below.
func (b *ProofBuilder) AppendAncestor(key, rising, sibling fr.Element) {
	b.p.Siblings = append(b.p.Siblings, key, sibling)
	b.p.DirectionBits.Lsh(b.p.DirectionBits, 1)
	if rising.Cmp(&sibling) > 0 {
		b.p.DirectionBits.SetBit(b.p.DirectionBits, 0, 1)
	}
}

// Build finalizes the sibling count and returns the proof.
func (b *ProofBuilder) Build() *Proof {
	b.p.SiblingsLength = uint32(len(b.p.Siblings))
	return b.p
}

// Prove builds a proof for key against the current root. The proof is bound
// to this root: verifying it against any later root fails.
func (t *Tree) Prove(key fr.Element) *Proof {
	b := NewProofBuilder(t.RootHash(), key)
	if t.root == nil {
		// Empty tree: a non-existence proof with no siblings and a zero
		// vantage key.
		return b.Build()
	}
	t.prove(t.root, key, b)
	return b.Build()
}

func (t *Tree) prove(n *node, key fr.Element, b *ProofBuilder) {
	c := key.Cmp(&n.key)
	if c == 0 {
		b.MarkExistence()
		b.AppendLeafContext(childHash(n.left), childHash(n.right))
		return
	}
	child, sibling := n.left, n.right
	if c > 0 {
		child, sibling = sibling, child
	}
	if child == nil {
		// The descent dead-ends here: n is the vantage node of a
		// non-existence proof. Its own children already represent it, so it
		// is not re-recorded as an ancestor on the unwind.
		b.MarkNonExistence(n.key)
		b.AppendLeafContext(childHash(n.left), childHash(n.right))
		return
	}
	t.prove(child, key, b)
	b.AppendAncestor(n.key, child.hash, childHash(sibling))
}

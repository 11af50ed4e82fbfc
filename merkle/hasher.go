package merkle

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// Hasher derives node priorities and subtree commitments from field
// elements. Implementations must be deterministic and must compare field
// elements by canonical magnitude (fr.Element.Cmp) so that the same key set
// always commits to the same root.
type Hasher interface {
	// Priority maps a key to its heap priority.
	Priority(key fr.Element) fr.Element

	// NodeHash commits to a node given its key and the hashes of its two
	// children (zero for an absent child). The two child hashes are
	// interchangeable: the pair is sorted to (min, max) before hashing, so a
	// node hashes identically regardless of which side a child hangs on.
	NodeHash(key, lh, rh fr.Element) fr.Element
}

// MiMCHasher is the default Hasher, MiMC over the BN254 scalar field.
type MiMCHasher struct{}

var _ Hasher = MiMCHasher{}

func NewMiMCHasher() MiMCHasher {
	return MiMCHasher{}
}

func (MiMCHasher) Priority(key fr.Element) fr.Element {
	h := mimc.NewMiMC()
	kb := key.Bytes()
	_, _ = h.Write(kb[:])
	var out fr.Element
	out.SetBytes(h.Sum(nil))
	return out
}

func (MiMCHasher) NodeHash(key, lh, rh fr.Element) fr.Element {
	if lh.Cmp(&rh) > 0 {
		lh, rh = rh, lh
	}
	h := mimc.NewMiMC()
	kb := key.Bytes()
	ab := lh.Bytes()
	bb := rh.Bytes()
	_, _ = h.Write(kb[:])
	_, _ = h.Write(ab[:])
	_, _ = h.Write(bb[:])
	var out fr.Element
	out.SetBytes(h.Sum(nil))
	return out
}

package merkle

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// ProofVerifier reconstructs roots from proofs. It is a pure function of
// (proof, expected root, key) and needs only the Hasher the tree was built
// with.
type ProofVerifier struct {
	hasher Hasher
}

func NewProofVerifier(h Hasher) ProofVerifier {
	return ProofVerifier{hasher: h}
}

// Verify reports whether proof certifies key's membership status in the set
// committed to by expRoot. Structurally malformed proofs panic; see
// VerifyWithReason.
func (v ProofVerifier) Verify(proof *Proof, expRoot fr.Element, key fr.Element) bool {
	return v.VerifyWithReason(proof, expRoot, key) == nil
}

var two = big.NewInt(2)

// VerifyWithReason is Verify with the mismatch spelled out. A verification
// miss is an informative result, returned as a ProofVerificationFailedError.
// A proof that violates the wire format itself (odd sibling count, a single
// sibling, or a length field disagreeing with the slice) is a caller bug and
// panics.
func (v ProofVerifier) VerifyWithReason(proof *Proof, expRoot fr.Element, key fr.Element) error {
	if proof == nil {
		return NewProofVerificationFailedError(fmt.Errorf("nil proof"))
	}
	if int(proof.SiblingsLength) != len(proof.Siblings) {
		panic(fmt.Sprintf("merkle: proof sibling count %d does not match declared length %d",
			len(proof.Siblings), proof.SiblingsLength))
	}
	if proof.SiblingsLength%2 != 0 {
		panic(fmt.Sprintf("merkle: proof has odd sibling count %d", proof.SiblingsLength))
	}

	// A proof only ever speaks about the root it was minted under.
	if !proof.Root.Equal(&expRoot) {
		return NewProofVerificationFailedError(fmt.Errorf(
			"proof bound to root %s, verification requested against %s",
			proof.Root.String(), expRoot.String()))
	}

	if proof.SiblingsLength == 0 {
		// Only the empty tree produces sibling-free proofs.
		if proof.Existence {
			return NewProofVerificationFailedError(fmt.Errorf("existence proof without siblings"))
		}
		return nil
	}

	// The leaf commitment is recomputed from the caller's queried key (or
	// the vantage key for non-existence), so an existence proof lifted onto
	// a different key cannot reconstruct the root.
	leafKey := key
	if !proof.Existence {
		leafKey = proof.NonExistenceKey
	}
	h := v.hasher.NodeHash(leafKey, proof.Siblings[0], proof.Siblings[1])

	// Fold ancestors leaf-side first, consuming one direction bit per pair
	// by div/rem 2. The symmetric node hash makes both branches compute the
	// same value; the bit is consumed anyway so that builder and verifier
	// iterate identically.
	bits := new(big.Int)
	if proof.DirectionBits != nil {
		bits.Set(proof.DirectionBits)
	}
	var bit big.Int
	for i := 2; i+1 < len(proof.Siblings); i += 2 {
		ancKey, sibling := proof.Siblings[i], proof.Siblings[i+1]
		bits.DivMod(bits, two, &bit)
		if bit.Sign() == 0 {
			h = v.hasher.NodeHash(ancKey, h, sibling)
		} else {
			h = v.hasher.NodeHash(ancKey, sibling, h)
		}
	}

	if !h.Equal(&expRoot) {
		return NewProofVerificationFailedError(fmt.Errorf(
			"reconstructed root %s does not match expected %s", h.String(), expRoot.String()))
	}
	return nil
}

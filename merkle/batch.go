package merkle

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// VerifyBatch checks one proof per key, all against the same frozen root,
// concurrently. It returns nil when every proof verifies, otherwise the
// first failure annotated with its index.
func VerifyBatch(h Hasher, expRoot fr.Element, keys []fr.Element, proofs []*Proof) error {
	if len(keys) != len(proofs) {
		return errors.Errorf("got %d keys but %d proofs", len(keys), len(proofs))
	}
	v := NewProofVerifier(h)
	var eg errgroup.Group
	for i := range proofs {
		i := i
		eg.Go(func() error {
			if err := v.VerifyWithReason(proofs[i], expRoot, keys[i]); err != nil {
				return errors.Wrapf(err, "proof %d", i)
			}
			return nil
		})
	}
	return eg.Wait()
}

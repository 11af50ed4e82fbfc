package arena

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/pkg/errors"

	"github.com/cmtcrypto/cmt/logger"
	"github.com/cmtcrypto/cmt/merkle"
)

// Tree is the index-addressed realization of the Cartesian Merkle Tree.
// Nodes live in a Store table keyed by uint64 indices; removed indices are
// recycled through a free-list stack, which keeps the table dense and
// allocation O(1) after churn. Given the same key sequence and Hasher, roots
// and proofs are bit-identical to the transient merkle.Tree.
//
// Mutations must be serialized by the caller; the engine itself holds no
// locks. Every mutation journals the new root under the next version, so
// proofs minted earlier can still be checked against the root they were
// bound to.
type Tree struct {
	hasher merkle.Hasher
	eng    Store
}

func NewTree(h merkle.Hasher, eng Store) *Tree {
	return &Tree{hasher: h, eng: eng}
}

func (t *Tree) Eng() Store {
	return t.eng
}

// RootHash returns the committed root, zero when the tree is empty.
func (t *Tree) RootHash(ctx logger.ContextInterface, tr Transaction) (fr.Element, error) {
	root, err := t.eng.RootIndex(ctx, tr)
	if err != nil {
		return fr.Element{}, errors.Wrap(err, "looking up root index")
	}
	return t.hashAt(ctx, tr, root)
}

// LatestRoot returns the newest journaled (version, root) pair. A
// NoLatestRootFoundError means no mutation has happened yet.
func (t *Tree) LatestRoot(ctx logger.ContextInterface, tr Transaction) (uint64, fr.Element, error) {
	return t.eng.LookupLatestRoot(ctx, tr)
}

// Insert adds key to the set, allocating a slot off the free list when one
// is available.
func (t *Tree) Insert(ctx logger.ContextInterface, tr Transaction, key fr.Element) error {
	idx, err := t.allocate(ctx, tr)
	if err != nil {
		return err
	}
	n := Node{Key: key, Priority: t.hasher.Priority(key)}
	n.MerkleHash = t.hasher.NodeHash(key, fr.Element{}, fr.Element{})
	if err := t.eng.StoreNode(ctx, tr, idx, n); err != nil {
		return errors.Wrap(err, "storing new node")
	}

	root, err := t.eng.RootIndex(ctx, tr)
	if err != nil {
		return errors.Wrap(err, "looking up root index")
	}
	newRoot, err := t.insertAt(ctx, tr, root, idx, &n)
	if err != nil {
		return err
	}
	if err := t.eng.SetRootIndex(ctx, tr, newRoot); err != nil {
		return errors.Wrap(err, "updating root index")
	}
	return t.journalRoot(ctx, tr)
}

func (t *Tree) insertAt(ctx logger.ContextInterface, tr Transaction, cur, idx uint64, n *Node) (uint64, error) {
	if cur == 0 {
		return idx, nil
	}
	cn, err := t.eng.LookupNode(ctx, tr, cur)
	if err != nil {
		return 0, errors.Wrapf(err, "looking up node %d", cur)
	}
	if n.Key.Cmp(&cn.Key) < 0 {
		child, err := t.insertAt(ctx, tr, cn.LeftIndex, idx, n)
		if err != nil {
			return 0, err
		}
		cn.LeftIndex = child
		if err := t.refreshHash(ctx, tr, cur, &cn); err != nil {
			return 0, err
		}
		ch, err := t.eng.LookupNode(ctx, tr, child)
		if err != nil {
			return 0, errors.Wrapf(err, "looking up node %d", child)
		}
		if ch.Priority.Cmp(&cn.Priority) > 0 {
			return t.rotateRight(ctx, tr, cur, &cn)
		}
		return cur, nil
	}
	child, err := t.insertAt(ctx, tr, cn.RightIndex, idx, n)
	if err != nil {
		return 0, err
	}
	cn.RightIndex = child
	if err := t.refreshHash(ctx, tr, cur, &cn); err != nil {
		return 0, err
	}
	ch, err := t.eng.LookupNode(ctx, tr, child)
	if err != nil {
		return 0, errors.Wrapf(err, "looking up node %d", child)
	}
	if ch.Priority.Cmp(&cn.Priority) > 0 {
		return t.rotateLeft(ctx, tr, cur, &cn)
	}
	return cur, nil
}

// Search reports whether key is in the set.
func (t *Tree) Search(ctx logger.ContextInterface, tr Transaction, key fr.Element) (bool, error) {
	cur, err := t.eng.RootIndex(ctx, tr)
	if err != nil {
		return false, errors.Wrap(err, "looking up root index")
	}
	for cur != 0 {
		cn, err := t.eng.LookupNode(ctx, tr, cur)
		if err != nil {
			return false, errors.Wrapf(err, "looking up node %d", cur)
		}
		switch c := key.Cmp(&cn.Key); {
		case c < 0:
			cur = cn.LeftIndex
		case c > 0:
			cur = cn.RightIndex
		default:
			return true, nil
		}
	}
	return false, nil
}

// Remove deletes one occurrence of key, pushing its slot onto the free list.
// It reports whether anything was removed; a miss journals nothing.
func (t *Tree) Remove(ctx logger.ContextInterface, tr Transaction, key fr.Element) (bool, error) {
	root, err := t.eng.RootIndex(ctx, tr)
	if err != nil {
		return false, errors.Wrap(err, "looking up root index")
	}
	newRoot, removed, err := t.removeAt(ctx, tr, root, key)
	if err != nil {
		return false, err
	}
	if !removed {
		return false, nil
	}
	if err := t.eng.SetRootIndex(ctx, tr, newRoot); err != nil {
		return false, errors.Wrap(err, "updating root index")
	}
	return true, t.journalRoot(ctx, tr)
}

func (t *Tree) removeAt(ctx logger.ContextInterface, tr Transaction, cur uint64, key fr.Element) (uint64, bool, error) {
	if cur == 0 {
		return 0, false, nil
	}
	cn, err := t.eng.LookupNode(ctx, tr, cur)
	if err != nil {
		return 0, false, errors.Wrapf(err, "looking up node %d", cur)
	}
	switch c := key.Cmp(&cn.Key); {
	case c < 0:
		child, removed, err := t.removeAt(ctx, tr, cn.LeftIndex, key)
		if err != nil || !removed {
			return cur, removed, err
		}
		cn.LeftIndex = child
		return cur, true, t.refreshHash(ctx, tr, cur, &cn)
	case c > 0:
		child, removed, err := t.removeAt(ctx, tr, cn.RightIndex, key)
		if err != nil || !removed {
			return cur, removed, err
		}
		cn.RightIndex = child
		return cur, true, t.refreshHash(ctx, tr, cur, &cn)
	}

	// Found. Detach a leaf directly, splice a single child through, and
	// rotate a two-child node toward a leaf along its higher-priority child.
	switch {
	case cn.LeftIndex == 0 && cn.RightIndex == 0:
		return 0, true, t.free(ctx, tr, cur)
	case cn.LeftIndex == 0:
		child := cn.RightIndex
		return child, true, t.free(ctx, tr, cur)
	case cn.RightIndex == 0:
		child := cn.LeftIndex
		return child, true, t.free(ctx, tr, cur)
	}

	ln, err := t.eng.LookupNode(ctx, tr, cn.LeftIndex)
	if err != nil {
		return 0, false, errors.Wrapf(err, "looking up node %d", cn.LeftIndex)
	}
	rn, err := t.eng.LookupNode(ctx, tr, cn.RightIndex)
	if err != nil {
		return 0, false, errors.Wrapf(err, "looking up node %d", cn.RightIndex)
	}
	var top uint64
	if ln.Priority.Cmp(&rn.Priority) >= 0 {
		top, err = t.rotateRight(ctx, tr, cur, &cn)
	} else {
		top, err = t.rotateLeft(ctx, tr, cur, &cn)
	}
	if err != nil {
		return 0, false, err
	}
	tn, err := t.eng.LookupNode(ctx, tr, top)
	if err != nil {
		return 0, false, errors.Wrapf(err, "looking up node %d", top)
	}
	if tn.RightIndex == cur {
		child, _, err := t.removeAt(ctx, tr, tn.RightIndex, key)
		if err != nil {
			return 0, false, err
		}
		tn.RightIndex = child
	} else {
		child, _, err := t.removeAt(ctx, tr, tn.LeftIndex, key)
		if err != nil {
			return 0, false, err
		}
		tn.LeftIndex = child
	}
	return top, true, t.refreshHash(ctx, tr, top, &tn)
}

// Prove builds a proof for key against the current root, in the shared wire
// format of the transient engine.
func (t *Tree) Prove(ctx logger.ContextInterface, tr Transaction, key fr.Element) (*merkle.Proof, error) {
	root, err := t.eng.RootIndex(ctx, tr)
	if err != nil {
		return nil, errors.Wrap(err, "looking up root index")
	}
	rootHash, err := t.hashAt(ctx, tr, root)
	if err != nil {
		return nil, err
	}
	b := merkle.NewProofBuilder(rootHash, key)
	if root == 0 {
		return b.Build(), nil
	}
	if err := t.proveAt(ctx, tr, root, key, b); err != nil {
		return nil, err
	}
	return b.Build(), nil
}

func (t *Tree) proveAt(ctx logger.ContextInterface, tr Transaction, cur uint64, key fr.Element, b *merkle.ProofBuilder) error {
	cn, err := t.eng.LookupNode(ctx, tr, cur)
	if err != nil {
		return errors.Wrapf(err, "looking up node %d", cur)
	}
	c := key.Cmp(&cn.Key)
	if c == 0 {
		lh, rh, err := t.childHashes(ctx, tr, &cn)
		if err != nil {
			return err
		}
		b.MarkExistence()
		b.AppendLeafContext(lh, rh)
		return nil
	}
	childIdx, siblingIdx := cn.LeftIndex, cn.RightIndex
	if c > 0 {
		childIdx, siblingIdx = siblingIdx, childIdx
	}
	if childIdx == 0 {
		lh, rh, err := t.childHashes(ctx, tr, &cn)
		if err != nil {
			return err
		}
		b.MarkNonExistence(cn.Key)
		b.AppendLeafContext(lh, rh)
		return nil
	}
	if err := t.proveAt(ctx, tr, childIdx, key, b); err != nil {
		return err
	}
	rising, err := t.hashAt(ctx, tr, childIdx)
	if err != nil {
		return err
	}
	sibling, err := t.hashAt(ctx, tr, siblingIdx)
	if err != nil {
		return err
	}
	b.AppendAncestor(cn.Key, rising, sibling)
	return nil
}

// rotateRight lifts xn's left child above it. xn must already reflect the
// caller's pending child updates; both rewired nodes are stored with fresh
// hashes, sinking node first. A missing pivot child is a caller bug.
func (t *Tree) rotateRight(ctx logger.ContextInterface, tr Transaction, xi uint64, xn *Node) (uint64, error) {
	yi := xn.LeftIndex
	if yi == 0 {
		panic(fmt.Sprintf("arena: rotateRight on node %d without left child", xi))
	}
	yn, err := t.eng.LookupNode(ctx, tr, yi)
	if err != nil {
		return 0, errors.Wrapf(err, "looking up node %d", yi)
	}
	xn.LeftIndex = yn.RightIndex
	yn.RightIndex = xi
	if err := t.refreshHash(ctx, tr, xi, xn); err != nil {
		return 0, err
	}
	if err := t.refreshHash(ctx, tr, yi, &yn); err != nil {
		return 0, err
	}
	return yi, nil
}

func (t *Tree) rotateLeft(ctx logger.ContextInterface, tr Transaction, xi uint64, xn *Node) (uint64, error) {
	yi := xn.RightIndex
	if yi == 0 {
		panic(fmt.Sprintf("arena: rotateLeft on node %d without right child", xi))
	}
	yn, err := t.eng.LookupNode(ctx, tr, yi)
	if err != nil {
		return 0, errors.Wrapf(err, "looking up node %d", yi)
	}
	xn.RightIndex = yn.LeftIndex
	yn.LeftIndex = xi
	if err := t.refreshHash(ctx, tr, xi, xn); err != nil {
		return 0, err
	}
	if err := t.refreshHash(ctx, tr, yi, &yn); err != nil {
		return 0, err
	}
	return yi, nil
}

func (t *Tree) refreshHash(ctx logger.ContextInterface, tr Transaction, idx uint64, n *Node) error {
	lh, rh, err := t.childHashes(ctx, tr, n)
	if err != nil {
		return err
	}
	n.MerkleHash = t.hasher.NodeHash(n.Key, lh, rh)
	return errors.Wrapf(t.eng.StoreNode(ctx, tr, idx, *n), "storing node %d", idx)
}

func (t *Tree) childHashes(ctx logger.ContextInterface, tr Transaction, n *Node) (fr.Element, fr.Element, error) {
	lh, err := t.hashAt(ctx, tr, n.LeftIndex)
	if err != nil {
		return fr.Element{}, fr.Element{}, err
	}
	rh, err := t.hashAt(ctx, tr, n.RightIndex)
	if err != nil {
		return fr.Element{}, fr.Element{}, err
	}
	return lh, rh, nil
}

func (t *Tree) hashAt(ctx logger.ContextInterface, tr Transaction, idx uint64) (fr.Element, error) {
	if idx == 0 {
		return fr.Element{}, nil
	}
	n, err := t.eng.LookupNode(ctx, tr, idx)
	if err != nil {
		return fr.Element{}, errors.Wrapf(err, "looking up node %d", idx)
	}
	return n.MerkleHash, nil
}

// allocate pops the free list, clearing the reused slot's link so no stale
// chain survives, and falls back to post-incrementing next_node_index.
func (t *Tree) allocate(ctx logger.ContextInterface, tr Transaction) (uint64, error) {
	head, err := t.eng.DeletedHead(ctx, tr)
	if err != nil {
		return 0, errors.Wrap(err, "looking up free list head")
	}
	if head != 0 {
		next, err := t.eng.LookupDeleted(ctx, tr, head)
		if err != nil {
			return 0, errors.Wrapf(err, "looking up free list link %d", head)
		}
		if err := t.eng.RemoveDeleted(ctx, tr, head); err != nil {
			return 0, errors.Wrapf(err, "clearing free list link %d", head)
		}
		if err := t.eng.SetDeletedHead(ctx, tr, next); err != nil {
			return 0, errors.Wrap(err, "updating free list head")
		}
		return head, nil
	}
	next, err := t.eng.NextNodeIndex(ctx, tr)
	if err != nil {
		return 0, errors.Wrap(err, "looking up next node index")
	}
	if err := t.eng.SetNextNodeIndex(ctx, tr, next+1); err != nil {
		return 0, errors.Wrap(err, "updating next node index")
	}
	return next, nil
}

func (t *Tree) free(ctx logger.ContextInterface, tr Transaction, idx uint64) error {
	if err := t.eng.DeleteNode(ctx, tr, idx); err != nil {
		return errors.Wrapf(err, "deleting node %d", idx)
	}
	head, err := t.eng.DeletedHead(ctx, tr)
	if err != nil {
		return errors.Wrap(err, "looking up free list head")
	}
	if err := t.eng.StoreDeleted(ctx, tr, idx, head); err != nil {
		return errors.Wrapf(err, "pushing free list link %d", idx)
	}
	return errors.Wrap(t.eng.SetDeletedHead(ctx, tr, idx), "updating free list head")
}

func (t *Tree) journalRoot(ctx logger.ContextInterface, tr Transaction) error {
	version, _, err := t.eng.LookupLatestRoot(ctx, tr)
	switch err.(type) {
	case nil:
	case NoLatestRootFoundError:
		version = 0
	default:
		return errors.Wrap(err, "looking up latest root")
	}
	root, err := t.RootHash(ctx, tr)
	if err != nil {
		return err
	}
	return errors.Wrapf(t.eng.StoreRoot(ctx, tr, version+1, root), "journaling root version %d", version+1)
}

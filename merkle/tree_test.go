package merkle

import (
	"math/rand"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"
)

func elt(u uint64) fr.Element {
	var e fr.Element
	e.SetUint64(u)
	return e
}

func insertAll(tree *Tree, keys ...uint64) {
	for _, k := range keys {
		tree.Insert(elt(k))
	}
}

func inOrderKeys(n *node, ret []string) []string {
	if n == nil {
		return ret
	}
	ret = inOrderKeys(n.left, ret)
	ret = append(ret, n.key.String())
	return inOrderKeys(n.right, ret)
}

// checkInvariants walks every node checking the BST bounds, the max-heap
// order on priorities, and that each stored hash matches a recomputation
// from the children.
func checkInvariants(t *testing.T, tree *Tree) {
	t.Helper()
	var walk func(n *node, min, max *fr.Element)
	walk = func(n *node, min, max *fr.Element) {
		if n == nil {
			return
		}
		if min != nil {
			require.True(t, n.key.Cmp(min) >= 0,
				"bst order violated at key %s\n%s", n.key.String(), spew.Sdump(inOrderKeys(tree.root, nil)))
		}
		if max != nil {
			require.True(t, n.key.Cmp(max) < 0,
				"bst order violated at key %s\n%s", n.key.String(), spew.Sdump(inOrderKeys(tree.root, nil)))
		}
		for _, child := range []*node{n.left, n.right} {
			if child != nil {
				require.True(t, n.priority.Cmp(&child.priority) >= 0,
					"heap order violated at key %s", n.key.String())
			}
		}
		expected := tree.hasher.NodeHash(n.key, childHash(n.left), childHash(n.right))
		require.True(t, expected.Equal(&n.hash), "stale hash at key %s", n.key.String())
		walk(n.left, min, &n.key)
		walk(n.right, &n.key, max)
	}
	walk(tree.root, nil, nil)
}

func TestTreeBasic(t *testing.T) {
	tree := NewTree(NewMiMCHasher())
	insertAll(tree, 50, 30, 70)

	require.True(t, tree.Search(elt(50)))
	require.True(t, tree.Search(elt(30)))
	require.True(t, tree.Search(elt(70)))
	require.False(t, tree.Search(elt(100)))

	root := tree.RootHash()
	require.False(t, root.IsZero())
	require.Equal(t, 3, tree.Size())
	checkInvariants(t, tree)
}

func TestTreeRemove(t *testing.T) {
	tree := NewTree(NewMiMCHasher())
	insertAll(tree, 50, 30, 70)
	before := tree.RootHash()

	require.True(t, tree.Remove(elt(70)))
	require.False(t, tree.Search(elt(70)))
	require.True(t, tree.Search(elt(50)))
	require.True(t, tree.Search(elt(30)))

	after := tree.RootHash()
	require.False(t, after.Equal(&before))
	checkInvariants(t, tree)

	// A miss is a no-op result, not an error.
	require.False(t, tree.Remove(elt(70)))
	unchanged := tree.RootHash()
	require.True(t, unchanged.Equal(&after))
}

func TestTreeInsertOrderIndependence(t *testing.T) {
	a := NewTree(NewMiMCHasher())
	insertAll(a, 50, 30, 70)
	b := NewTree(NewMiMCHasher())
	insertAll(b, 30, 70, 50)

	ra, rb := a.RootHash(), b.RootHash()
	require.True(t, ra.Equal(&rb))

	// Any permutation of a larger random key set commits to the same root.
	rnd := rand.New(rand.NewSource(7))
	keys := make([]uint64, 64)
	seen := make(map[uint64]bool)
	for i := range keys {
		k := rnd.Uint64()
		for seen[k] {
			k = rnd.Uint64()
		}
		seen[k] = true
		keys[i] = k
	}

	reference := NewTree(NewMiMCHasher())
	insertAll(reference, keys...)
	expected := reference.RootHash()
	checkInvariants(t, reference)

	for round := 0; round < 5; round++ {
		rnd.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
		tree := NewTree(NewMiMCHasher())
		insertAll(tree, keys...)
		root := tree.RootHash()
		require.True(t, root.Equal(&expected), "permutation %d changed the root", round)
	}
}

func TestTreeRemoveMatchesFreshBuild(t *testing.T) {
	// Removing a key must land on the exact root of a tree that never
	// contained it.
	keys := []uint64{50, 30, 70, 20, 40, 60, 80, 55, 65}
	for _, victim := range keys {
		tree := NewTree(NewMiMCHasher())
		insertAll(tree, keys...)
		require.True(t, tree.Remove(elt(victim)))
		checkInvariants(t, tree)

		fresh := NewTree(NewMiMCHasher())
		for _, k := range keys {
			if k != victim {
				fresh.Insert(elt(k))
			}
		}
		got, want := tree.RootHash(), fresh.RootHash()
		require.True(t, got.Equal(&want), "removing %d diverged from fresh build", victim)
	}
}

func TestTreeRemoveInsertRestoresRoot(t *testing.T) {
	rnd := rand.New(rand.NewSource(11))
	keys := make([]uint64, 32)
	for i := range keys {
		keys[i] = uint64(i)*977 + 13
	}
	tree := NewTree(NewMiMCHasher())
	insertAll(tree, keys...)
	before := tree.RootHash()

	for round := 0; round < 10; round++ {
		k := keys[rnd.Intn(len(keys))]
		require.True(t, tree.Remove(elt(k)))
		tree.Insert(elt(k))
		after := tree.RootHash()
		require.True(t, after.Equal(&before))
	}
	checkInvariants(t, tree)
}

func TestTreeInvariantsUnderChurn(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	tree := NewTree(NewMiMCHasher())
	live := make(map[uint64]int)

	for op := 0; op < 500; op++ {
		k := uint64(rnd.Intn(200))
		if rnd.Intn(3) == 0 {
			removed := tree.Remove(elt(k))
			require.Equal(t, live[k] > 0, removed)
			if removed {
				live[k]--
			}
		} else {
			tree.Insert(elt(k))
			live[k]++
		}
	}
	checkInvariants(t, tree)

	total := 0
	for k, n := range live {
		require.Equal(t, n > 0, tree.Search(elt(k)))
		total += n
	}
	require.Equal(t, total, tree.Size())
}

func TestTreeEmpty(t *testing.T) {
	tree := NewTree(NewMiMCHasher())
	root := tree.RootHash()
	require.True(t, root.IsZero())
	require.False(t, tree.Search(elt(1)))
	require.False(t, tree.Remove(elt(1)))
	require.Equal(t, 0, tree.Size())
}

func TestTreeSingleNode(t *testing.T) {
	hasher := NewMiMCHasher()
	tree := NewTree(hasher)
	tree.Insert(elt(42))

	root := tree.RootHash()
	expected := hasher.NodeHash(elt(42), fr.Element{}, fr.Element{})
	require.True(t, root.Equal(&expected))
	checkInvariants(t, tree)
}

func TestTreeDuplicateKeys(t *testing.T) {
	tree := NewTree(NewMiMCHasher())
	tree.Insert(elt(9))
	single := tree.RootHash()

	tree.Insert(elt(9))
	require.Equal(t, 2, tree.Size())
	double := tree.RootHash()
	require.False(t, double.Equal(&single))
	require.True(t, tree.Search(elt(9)))
	checkInvariants(t, tree)

	require.True(t, tree.Remove(elt(9)))
	require.True(t, tree.Search(elt(9)))
	one := tree.RootHash()
	require.True(t, one.Equal(&single))

	require.True(t, tree.Remove(elt(9)))
	require.False(t, tree.Search(elt(9)))
	require.Equal(t, 0, tree.Size())
}

func TestPriorityDeterminism(t *testing.T) {
	a := NewMiMCHasher().Priority(elt(123))
	b := NewMiMCHasher().Priority(elt(123))
	require.True(t, a.Equal(&b))
	c := NewMiMCHasher().Priority(elt(124))
	require.False(t, c.Equal(&a))
}

func TestRotationsRequireChild(t *testing.T) {
	hasher := NewMiMCHasher()
	lonely := newNode(hasher, elt(1))
	require.Panics(t, func() { rotateRight(hasher, lonely) })
	require.Panics(t, func() { rotateLeft(hasher, lonely) })
}

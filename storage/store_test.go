package storage

import (
	"context"
	cryptorand "crypto/rand"
	"path/filepath"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/cmtcrypto/cmt/arena"
	"github.com/cmtcrypto/cmt/logger"
	"github.com/cmtcrypto/cmt/merkle"
)

func newTestStore(t *testing.T) (*Store, *sqlx.DB) {
	t.Helper()
	treeID := make([]byte, 16)
	_, err := cryptorand.Read(treeID)
	require.NoError(t, err)

	dir := t.TempDir()
	db, err := sqlx.Open("sqlite3", filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	cfg, err := NewConfig(treeID, 1<<10, filepath.Join(dir, "lev"))
	require.NoError(t, err)
	eng, err := NewStore(db, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	require.NoError(t, eng.Reset())
	return eng, db
}

func newLoggerContextTodoForTesting(t testing.TB) logger.ContextInterface {
	return logger.NewContext(context.TODO(), logger.NewTestLogger(t))
}

func run(t testing.TB, eng *Store, f func(tx *sqlx.Tx)) {
	tx := eng.Tx()
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		require.NoError(t, tx.Commit())
	}()
	f(tx)
}

func elt(u uint64) fr.Element {
	var e fr.Element
	e.SetUint64(u)
	return e
}

func TestStoreFreshScalars(t *testing.T) {
	eng, _ := newTestStore(t)
	ctx := newLoggerContextTodoForTesting(t)

	run(t, eng, func(tx *sqlx.Tx) {
		root, err := eng.RootIndex(ctx, tx)
		require.NoError(t, err)
		require.Zero(t, root)

		next, err := eng.NextNodeIndex(ctx, tx)
		require.NoError(t, err)
		require.Equal(t, uint64(1), next)

		head, err := eng.DeletedHead(ctx, tx)
		require.NoError(t, err)
		require.Zero(t, head)

		_, _, err = eng.LookupLatestRoot(ctx, tx)
		require.IsType(t, arena.NewNoLatestRootFoundError(), err)
	})
}

func TestStoreNodeRoundtrip(t *testing.T) {
	eng, _ := newTestStore(t)
	ctx := newLoggerContextTodoForTesting(t)

	run(t, eng, func(tx *sqlx.Tx) {
		_, err := eng.LookupNode(ctx, tx, 1)
		require.IsType(t, arena.NewNodeNotFoundError(), err)

		n := arena.Node{Key: elt(5), Priority: elt(6), MerkleHash: elt(7), LeftIndex: 2, RightIndex: 0}
		require.NoError(t, eng.StoreNode(ctx, tx, 1, n))

		got, err := eng.LookupNode(ctx, tx, 1)
		require.NoError(t, err)
		require.Equal(t, n, got)

		// A cold read must hit leveldb, not just the cache.
		eng.cache.Purge()
		got, err = eng.LookupNode(ctx, tx, 1)
		require.NoError(t, err)
		require.Equal(t, n, got)

		require.NoError(t, eng.DeleteNode(ctx, tx, 1))
		_, err = eng.LookupNode(ctx, tx, 1)
		require.IsType(t, arena.NewNodeNotFoundError(), err)
	})
}

func TestStoreTreeMatchesInMemory(t *testing.T) {
	eng, _ := newTestStore(t)
	ctx := newLoggerContextTodoForTesting(t)
	hasher := merkle.NewMiMCHasher()

	persisted := arena.NewTree(hasher, eng)
	reference := arena.NewTree(hasher, arena.NewInMemoryStore())

	keys := []uint64{50, 30, 70, 20, 80, 60, 40, 55}
	run(t, eng, func(tx *sqlx.Tx) {
		for _, k := range keys {
			require.NoError(t, persisted.Insert(ctx, tx, elt(k)))
			require.NoError(t, reference.Insert(ctx, nil, elt(k)))
		}
		for _, k := range []uint64{30, 60} {
			removed, err := persisted.Remove(ctx, tx, elt(k))
			require.NoError(t, err)
			require.True(t, removed)
			removed, err = reference.Remove(ctx, nil, elt(k))
			require.NoError(t, err)
			require.True(t, removed)
		}

		want, err := reference.RootHash(ctx, nil)
		require.NoError(t, err)
		got, err := persisted.RootHash(ctx, tx)
		require.NoError(t, err)
		require.True(t, got.Equal(&want))

		proof, err := persisted.Prove(ctx, tx, elt(70))
		require.NoError(t, err)
		require.True(t, merkle.NewProofVerifier(hasher).Verify(proof, got, elt(70)))
	})
}

func TestStoreSurvivesReopen(t *testing.T) {
	ctx := newLoggerContextTodoForTesting(t)
	hasher := merkle.NewMiMCHasher()

	treeID := make([]byte, 16)
	_, err := cryptorand.Read(treeID)
	require.NoError(t, err)
	dir := t.TempDir()
	db, err := sqlx.Open("sqlite3", filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	cfg, err := NewConfig(treeID, 1<<10, filepath.Join(dir, "lev"))
	require.NoError(t, err)

	eng, err := NewStore(db, cfg)
	require.NoError(t, err)
	require.NoError(t, eng.Reset())

	tree := arena.NewTree(hasher, eng)
	var want fr.Element
	run(t, eng, func(tx *sqlx.Tx) {
		for _, k := range []uint64{10, 20, 30} {
			require.NoError(t, tree.Insert(ctx, tx, elt(k)))
		}
		want, err = tree.RootHash(ctx, tx)
		require.NoError(t, err)
	})
	require.NoError(t, eng.Close())

	reopened, err := NewStore(db, cfg)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	tree = arena.NewTree(hasher, reopened)
	run(t, reopened, func(tx *sqlx.Tx) {
		got, err := tree.RootHash(ctx, tx)
		require.NoError(t, err)
		require.True(t, got.Equal(&want))

		found, err := tree.Search(ctx, tx, elt(20))
		require.NoError(t, err)
		require.True(t, found)
	})
}

func TestStoreRootJournal(t *testing.T) {
	eng, _ := newTestStore(t)
	ctx := newLoggerContextTodoForTesting(t)

	run(t, eng, func(tx *sqlx.Tx) {
		require.NoError(t, eng.StoreRoot(ctx, tx, 1, elt(111)))
		require.NoError(t, eng.StoreRoot(ctx, tx, 2, elt(222)))

		root, err := eng.LookupRoot(ctx, tx, 1)
		require.NoError(t, err)
		want := elt(111)
		require.True(t, root.Equal(&want))

		version, latest, err := eng.LookupLatestRoot(ctx, tx)
		require.NoError(t, err)
		require.Equal(t, uint64(2), version)
		want = elt(222)
		require.True(t, latest.Equal(&want))

		_, err = eng.LookupRoot(ctx, tx, 3)
		require.IsType(t, arena.NewInvalidVersionError(3), err)
	})
}

func TestStoreFreeListLinks(t *testing.T) {
	eng, _ := newTestStore(t)
	ctx := newLoggerContextTodoForTesting(t)

	run(t, eng, func(tx *sqlx.Tx) {
		next, err := eng.LookupDeleted(ctx, tx, 4)
		require.NoError(t, err)
		require.Zero(t, next)

		require.NoError(t, eng.StoreDeleted(ctx, tx, 4, 0))
		require.NoError(t, eng.StoreDeleted(ctx, tx, 9, 4))
		// Re-pushing an index overwrites its link.
		require.NoError(t, eng.StoreDeleted(ctx, tx, 4, 9))

		next, err = eng.LookupDeleted(ctx, tx, 4)
		require.NoError(t, err)
		require.Equal(t, uint64(9), next)

		require.NoError(t, eng.RemoveDeleted(ctx, tx, 4))
		next, err = eng.LookupDeleted(ctx, tx, 4)
		require.NoError(t, err)
		require.Zero(t, next)
	})
}

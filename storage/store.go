package storage

import (
	"database/sql"
	"encoding/binary"

	sq "github.com/Masterminds/squirrel"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmoiron/sqlx"
	"github.com/keybase/go-codec/codec"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/cmtcrypto/cmt/arena"
	"github.com/cmtcrypto/cmt/logger"
)

// Store is the persistent arena.Store: the three scalars, the free-list
// links and the root journal live in SQL; the node table lives in LevelDB
// keyed by tree id and big-endian index, fronted by an LRU read cache.
//
// Transactions cover the SQL side only. Node writes go straight to LevelDB,
// so a caller that rolls back a SQL transaction is expected to rebuild the
// tree state before reusing the store; the scalars are the source of truth
// for which node indices are live.
type Store struct {
	db      *sqlx.DB
	leveldb *leveldb.DB
	cache   *lru.Cache[uint64, arena.Node]

	cfg Config
}

var _ arena.Store = (*Store)(nil)

func NewStore(db *sqlx.DB, cfg Config) (*Store, error) {
	ldb, err := leveldb.OpenFile(cfg.LevelDBPath, &opt.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "opening leveldb at %s", cfg.LevelDBPath)
	}
	cache, err := lru.New[uint64, arena.Node](cfg.CacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "creating node cache")
	}
	return &Store{db: db, leveldb: ldb, cache: cache, cfg: cfg}, nil
}

func (s *Store) Close() error {
	return errors.Wrap(s.leveldb.Close(), "closing leveldb")
}

func (s *Store) Tx() *sqlx.Tx {
	return s.db.MustBegin()
}

// Reset drops and recreates the schema and seeds the scalar row for this
// tree: empty root, next node index 1, empty free list.
func (s *Store) Reset() error {
	tx := s.db.MustBegin()
	tx.MustExec(`DROP TABLE IF EXISTS tree_state`)
	tx.MustExec(`CREATE TABLE tree_state(
		tree_id bytea,
		root_index bigint,
		next_node_index bigint,
		deleted_head bigint,
		PRIMARY KEY (tree_id)
	);`)
	tx.MustExec(`DROP TABLE IF EXISTS deleted_indices`)
	tx.MustExec(`CREATE TABLE deleted_indices(
		tree_id bytea,
		idx bigint,
		next_idx bigint,
		PRIMARY KEY (tree_id, idx)
	);`)
	tx.MustExec(`DROP TABLE IF EXISTS roots`)
	tx.MustExec(`CREATE TABLE roots(
		tree_id bytea,
		version bigint,
		root bytea,
		PRIMARY KEY (tree_id, version)
	);`)
	q := s.db.Rebind(`INSERT INTO tree_state(tree_id, root_index, next_node_index, deleted_head) VALUES(?, 0, 1, 0)`)
	tx.MustExec(q, s.cfg.TreeID)
	return errors.Wrap(tx.Commit(), "committing reset")
}

func requireTx(tr arena.Transaction) (*sqlx.Tx, error) {
	tx, ok := tr.(*sqlx.Tx)
	if !ok {
		return nil, errors.New("require sqlx tx")
	}
	return tx, nil
}

func (s *Store) scalar(tr arena.Transaction, column string) (uint64, error) {
	tx, err := requireTx(tr)
	if err != nil {
		return 0, err
	}
	var v int64
	q := s.db.Rebind(`SELECT ` + column + ` FROM tree_state WHERE tree_id=?`)
	if err := tx.Get(&v, q, s.cfg.TreeID); err != nil {
		return 0, errors.Wrapf(err, "reading %s", column)
	}
	return uint64(v), nil
}

func (s *Store) setScalar(tr arena.Transaction, column string, v uint64) error {
	tx, err := requireTx(tr)
	if err != nil {
		return err
	}
	q, args, err := sq.Update("tree_state").
		Set(column, int64(v)).
		Where(sq.Eq{"tree_id": s.cfg.TreeID}).
		ToSql()
	if err != nil {
		return errors.Wrapf(err, "building %s update", column)
	}
	q = s.db.Rebind(q)
	_, err = tx.Exec(q, args...)
	return errors.Wrapf(err, "writing %s", column)
}

func (s *Store) RootIndex(_ logger.ContextInterface, tr arena.Transaction) (uint64, error) {
	return s.scalar(tr, "root_index")
}

func (s *Store) SetRootIndex(_ logger.ContextInterface, tr arena.Transaction, idx uint64) error {
	return s.setScalar(tr, "root_index", idx)
}

func (s *Store) NextNodeIndex(_ logger.ContextInterface, tr arena.Transaction) (uint64, error) {
	return s.scalar(tr, "next_node_index")
}

func (s *Store) SetNextNodeIndex(_ logger.ContextInterface, tr arena.Transaction, idx uint64) error {
	return s.setScalar(tr, "next_node_index", idx)
}

func (s *Store) DeletedHead(_ logger.ContextInterface, tr arena.Transaction) (uint64, error) {
	return s.scalar(tr, "deleted_head")
}

func (s *Store) SetDeletedHead(_ logger.ContextInterface, tr arena.Transaction, idx uint64) error {
	return s.setScalar(tr, "deleted_head", idx)
}

func (s *Store) nodeKey(idx uint64) []byte {
	k := make([]byte, 0, len(s.cfg.TreeID)+9)
	k = append(k, s.cfg.TreeID...)
	k = append(k, 'n')
	var ib [8]byte
	binary.BigEndian.PutUint64(ib[:], idx)
	return append(k, ib[:]...)
}

func codecHandle() *codec.MsgpackHandle {
	var mh codec.MsgpackHandle
	mh.WriteExt = true
	mh.Canonical = true
	return &mh
}

func (s *Store) LookupNode(_ logger.ContextInterface, _ arena.Transaction, idx uint64) (arena.Node, error) {
	if n, found := s.cache.Get(idx); found {
		return n, nil
	}
	raw, err := s.leveldb.Get(s.nodeKey(idx), nil)
	if err == leveldb.ErrNotFound {
		return arena.Node{}, arena.NewNodeNotFoundError()
	}
	if err != nil {
		return arena.Node{}, errors.Wrapf(err, "reading node %d", idx)
	}
	var n arena.Node
	if err := codec.NewDecoderBytes(raw, codecHandle()).Decode(&n); err != nil {
		return arena.Node{}, errors.Wrapf(err, "decoding node %d", idx)
	}
	s.cache.Add(idx, n)
	return n, nil
}

func (s *Store) StoreNode(_ logger.ContextInterface, _ arena.Transaction, idx uint64, n arena.Node) error {
	var raw []byte
	if err := codec.NewEncoderBytes(&raw, codecHandle()).Encode(&n); err != nil {
		return errors.Wrapf(err, "encoding node %d", idx)
	}
	if err := s.leveldb.Put(s.nodeKey(idx), raw, nil); err != nil {
		return errors.Wrapf(err, "writing node %d", idx)
	}
	s.cache.Add(idx, n)
	return nil
}

func (s *Store) DeleteNode(_ logger.ContextInterface, _ arena.Transaction, idx uint64) error {
	if err := s.leveldb.Delete(s.nodeKey(idx), nil); err != nil {
		return errors.Wrapf(err, "deleting node %d", idx)
	}
	s.cache.Remove(idx)
	return nil
}

func (s *Store) LookupDeleted(_ logger.ContextInterface, tr arena.Transaction, idx uint64) (uint64, error) {
	tx, err := requireTx(tr)
	if err != nil {
		return 0, err
	}
	var next int64
	q := s.db.Rebind(`SELECT next_idx FROM deleted_indices WHERE tree_id=? AND idx=?`)
	err = tx.Get(&next, q, s.cfg.TreeID, int64(idx))
	switch err {
	case nil:
		return uint64(next), nil
	case sql.ErrNoRows:
		return 0, nil
	default:
		return 0, errors.Wrapf(err, "reading free list link %d", idx)
	}
}

func (s *Store) StoreDeleted(_ logger.ContextInterface, tr arena.Transaction, idx uint64, next uint64) error {
	tx, err := requireTx(tr)
	if err != nil {
		return err
	}
	q, args, err := sq.Insert("deleted_indices").
		Columns("tree_id", "idx", "next_idx").
		Values(s.cfg.TreeID, int64(idx), int64(next)).
		Suffix("on conflict (tree_id, idx) do update set next_idx = excluded.next_idx").
		ToSql()
	if err != nil {
		return errors.Wrap(err, "building free list insert")
	}
	q = s.db.Rebind(q)
	_, err = tx.Exec(q, args...)
	return errors.Wrapf(err, "writing free list link %d", idx)
}

func (s *Store) RemoveDeleted(_ logger.ContextInterface, tr arena.Transaction, idx uint64) error {
	tx, err := requireTx(tr)
	if err != nil {
		return err
	}
	q := s.db.Rebind(`DELETE FROM deleted_indices WHERE tree_id=? AND idx=?`)
	_, err = tx.Exec(q, s.cfg.TreeID, int64(idx))
	return errors.Wrapf(err, "removing free list link %d", idx)
}

func (s *Store) StoreRoot(_ logger.ContextInterface, tr arena.Transaction, version uint64, root fr.Element) error {
	tx, err := requireTx(tr)
	if err != nil {
		return err
	}
	rb := root.Bytes()
	q, args, err := sq.Insert("roots").
		Columns("tree_id", "version", "root").
		Values(s.cfg.TreeID, int64(version), rb[:]).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "building root insert")
	}
	q = s.db.Rebind(q)
	_, err = tx.Exec(q, args...)
	return errors.Wrapf(err, "journaling root version %d", version)
}

func (s *Store) LookupRoot(_ logger.ContextInterface, tr arena.Transaction, version uint64) (fr.Element, error) {
	tx, err := requireTx(tr)
	if err != nil {
		return fr.Element{}, err
	}
	var raw []byte
	q := s.db.Rebind(`SELECT root FROM roots WHERE tree_id=? AND version=?`)
	err = tx.Get(&raw, q, s.cfg.TreeID, int64(version))
	switch err {
	case nil:
		var root fr.Element
		root.SetBytes(raw)
		return root, nil
	case sql.ErrNoRows:
		return fr.Element{}, arena.NewInvalidVersionError(version)
	default:
		return fr.Element{}, errors.Wrapf(err, "reading root version %d", version)
	}
}

type rootRow struct {
	Version int64  `db:"version"`
	Root    []byte `db:"root"`
}

func (s *Store) LookupLatestRoot(_ logger.ContextInterface, tr arena.Transaction) (uint64, fr.Element, error) {
	tx, err := requireTx(tr)
	if err != nil {
		return 0, fr.Element{}, err
	}
	var row rootRow
	q := s.db.Rebind(`SELECT version, root FROM roots WHERE tree_id=? ORDER BY version DESC LIMIT 1`)
	err = tx.Get(&row, q, s.cfg.TreeID)
	switch err {
	case nil:
		var root fr.Element
		root.SetBytes(row.Root)
		return uint64(row.Version), root, nil
	case sql.ErrNoRows:
		return 0, fr.Element{}, arena.NewNoLatestRootFoundError()
	default:
		return 0, fr.Element{}, errors.Wrap(err, "reading latest root")
	}
}

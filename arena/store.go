package arena

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/cmtcrypto/cmt/logger"
)

// Transaction references a store transaction. Implementations assert it to
// their own type; the in-memory store ignores it.
type Transaction interface{}

// Store is the backing table for the index-addressed tree: three scalars,
// the node table, the free-list links, and a journal of committed roots.
// You can put this on a DB; the storage package does.
//
// A fresh store holds root_index = 0, next_node_index = 1, deleted_head = 0
// and empty tables.
type Store interface {
	RootIndex(ctx logger.ContextInterface, tr Transaction) (uint64, error)
	SetRootIndex(ctx logger.ContextInterface, tr Transaction, idx uint64) error

	NextNodeIndex(ctx logger.ContextInterface, tr Transaction) (uint64, error)
	SetNextNodeIndex(ctx logger.ContextInterface, tr Transaction, idx uint64) error

	DeletedHead(ctx logger.ContextInterface, tr Transaction) (uint64, error)
	SetDeletedHead(ctx logger.ContextInterface, tr Transaction, idx uint64) error

	// LookupNode returns the node stored at idx, or a NodeNotFoundError.
	LookupNode(ctx logger.ContextInterface, tr Transaction, idx uint64) (Node, error)
	StoreNode(ctx logger.ContextInterface, tr Transaction, idx uint64, n Node) error
	DeleteNode(ctx logger.ContextInterface, tr Transaction, idx uint64) error

	// Free-list links: each freed slot records the next freed index, 0
	// terminating the stack.
	LookupDeleted(ctx logger.ContextInterface, tr Transaction, idx uint64) (uint64, error)
	StoreDeleted(ctx logger.ContextInterface, tr Transaction, idx uint64, next uint64) error
	RemoveDeleted(ctx logger.ContextInterface, tr Transaction, idx uint64) error

	// Root journal. Versions are assigned by the tree engine, one per
	// mutation, starting at 1.
	StoreRoot(ctx logger.ContextInterface, tr Transaction, version uint64, root fr.Element) error
	// LookupRoot returns an InvalidVersionError for an unknown version.
	LookupRoot(ctx logger.ContextInterface, tr Transaction, version uint64) (fr.Element, error)
	// LookupLatestRoot returns a NoLatestRootFoundError when no mutation was
	// journaled yet.
	LookupLatestRoot(ctx logger.ContextInterface, tr Transaction) (uint64, fr.Element, error)
}

package arena

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/cmtcrypto/cmt/logger"
)

// InMemoryStore is a map-backed Store, used for tests and as the transient
// twin of the persistent engine. It ignores Transaction arguments, so it
// can't be used for concurrency tests.
type InMemoryStore struct {
	rootIndex     uint64
	nextNodeIndex uint64
	deletedHead   uint64

	Nodes   map[uint64]Node
	Deleted map[uint64]uint64

	roots         map[uint64]fr.Element
	latestVersion uint64
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		nextNodeIndex: 1,
		Nodes:         make(map[uint64]Node),
		Deleted:       make(map[uint64]uint64),
		roots:         make(map[uint64]fr.Element),
	}
}

func (s *InMemoryStore) RootIndex(_ logger.ContextInterface, _ Transaction) (uint64, error) {
	return s.rootIndex, nil
}

func (s *InMemoryStore) SetRootIndex(_ logger.ContextInterface, _ Transaction, idx uint64) error {
	s.rootIndex = idx
	return nil
}

func (s *InMemoryStore) NextNodeIndex(_ logger.ContextInterface, _ Transaction) (uint64, error) {
	return s.nextNodeIndex, nil
}

func (s *InMemoryStore) SetNextNodeIndex(_ logger.ContextInterface, _ Transaction, idx uint64) error {
	s.nextNodeIndex = idx
	return nil
}

func (s *InMemoryStore) DeletedHead(_ logger.ContextInterface, _ Transaction) (uint64, error) {
	return s.deletedHead, nil
}

func (s *InMemoryStore) SetDeletedHead(_ logger.ContextInterface, _ Transaction, idx uint64) error {
	s.deletedHead = idx
	return nil
}

func (s *InMemoryStore) LookupNode(_ logger.ContextInterface, _ Transaction, idx uint64) (Node, error) {
	n, found := s.Nodes[idx]
	if !found {
		return Node{}, NewNodeNotFoundError()
	}
	return n, nil
}

func (s *InMemoryStore) StoreNode(_ logger.ContextInterface, _ Transaction, idx uint64, n Node) error {
	s.Nodes[idx] = n
	return nil
}

func (s *InMemoryStore) DeleteNode(_ logger.ContextInterface, _ Transaction, idx uint64) error {
	delete(s.Nodes, idx)
	return nil
}

func (s *InMemoryStore) LookupDeleted(_ logger.ContextInterface, _ Transaction, idx uint64) (uint64, error) {
	return s.Deleted[idx], nil
}

func (s *InMemoryStore) StoreDeleted(_ logger.ContextInterface, _ Transaction, idx uint64, next uint64) error {
	s.Deleted[idx] = next
	return nil
}

func (s *InMemoryStore) RemoveDeleted(_ logger.ContextInterface, _ Transaction, idx uint64) error {
	delete(s.Deleted, idx)
	return nil
}

func (s *InMemoryStore) StoreRoot(_ logger.ContextInterface, _ Transaction, version uint64, root fr.Element) error {
	s.roots[version] = root
	if version > s.latestVersion {
		s.latestVersion = version
	}
	return nil
}

func (s *InMemoryStore) LookupRoot(_ logger.ContextInterface, _ Transaction, version uint64) (fr.Element, error) {
	root, found := s.roots[version]
	if !found {
		return fr.Element{}, NewInvalidVersionError(version)
	}
	return root, nil
}

func (s *InMemoryStore) LookupLatestRoot(_ logger.ContextInterface, _ Transaction) (uint64, fr.Element, error) {
	if s.latestVersion == 0 {
		return 0, fr.Element{}, NewNoLatestRootFoundError()
	}
	return s.latestVersion, s.roots[s.latestVersion], nil
}

package storage

import "github.com/pkg/errors"

// Config shapes a persistent Store. Several trees can share one SQL
// database and one LevelDB directory as long as their TreeIDs differ.
type Config struct {
	// TreeID namespaces every row and LevelDB key.
	TreeID []byte

	// CacheSize is the node read cache capacity, in nodes.
	CacheSize int

	// LevelDBPath is the directory holding the node table.
	LevelDBPath string
}

const defaultCacheSize = 1 << 16

func NewConfig(treeID []byte, cacheSize int, levelDBPath string) (Config, error) {
	if len(treeID) == 0 {
		return Config{}, errors.New("tree id must be non-empty")
	}
	if levelDBPath == "" {
		return Config{}, errors.New("leveldb path must be non-empty")
	}
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	return Config{TreeID: treeID, CacheSize: cacheSize, LevelDBPath: levelDBPath}, nil
}

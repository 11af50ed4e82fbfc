package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/cmtcrypto/cmt/arena"
	"github.com/cmtcrypto/cmt/logger"
	"github.com/cmtcrypto/cmt/merkle"
	"github.com/cmtcrypto/cmt/storage"
)

var (
	driver = flag.String("driver", "sqlite3", "sql driver (sqlite3 or postgres)")
	dsn    = flag.String("dsn", "", "sql dsn; defaults to a file under -dir for sqlite3")
	dir    = flag.String("dir", "db", "directory for sqlite and leveldb files")
)

func inner() error {
	ctx := logger.NewContext(context.Background(), logger.New("demo"))

	source := *dsn
	if source == "" && *driver == "sqlite3" {
		if err := os.MkdirAll(*dir, 0o755); err != nil {
			return err
		}
		source = filepath.Join(*dir, "demo.db")
	}
	db, err := sqlx.Open(*driver, source)
	if err != nil {
		return err
	}

	cfg, err := storage.NewConfig([]byte("demo-tree"), 1<<12, filepath.Join(*dir, "lev"))
	if err != nil {
		return err
	}
	eng, err := storage.NewStore(db, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()
	if err := eng.Reset(); err != nil {
		return err
	}

	hasher := merkle.NewMiMCHasher()
	tree := arena.NewTree(hasher, eng)

	tx := eng.Tx()
	keys := []uint64{50, 30, 70, 20, 80, 60}
	for _, k := range keys {
		var key fr.Element
		key.SetUint64(k)
		if err := tree.Insert(ctx, tx, key); err != nil {
			return err
		}
	}
	root, err := tree.RootHash(ctx, tx)
	if err != nil {
		return err
	}
	ctx.Info("inserted %d keys, root %s", len(keys), root.String())

	var probe fr.Element
	probe.SetUint64(70)
	proof, err := tree.Prove(ctx, tx, probe)
	if err != nil {
		return err
	}
	verifier := merkle.NewProofVerifier(hasher)
	ctx.Info("proof for 70: existence=%v verified=%v",
		proof.Existence, verifier.Verify(proof, root, probe))

	removed, err := tree.Remove(ctx, tx, probe)
	if err != nil {
		return err
	}
	newRoot, err := tree.RootHash(ctx, tx)
	if err != nil {
		return err
	}
	ctx.Info("removed 70: %v, root now %s", removed, newRoot.String())
	ctx.Info("old proof against old root still verifies: %v",
		verifier.Verify(proof, root, probe))

	if err := tx.Commit(); err != nil {
		return err
	}

	fmt.Println(newRoot.String())
	return nil
}

func main() {
	flag.Parse()
	if err := inner(); err != nil {
		panic(err)
	}
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shruggr/ordsite/lib"
)

// Inscribed content is immutable, so the store is a pure cache: memory
// first, then the content table, then the indexer, writing back on the
// way out.

var getContent *sql.Stmt
var setContent *sql.Stmt
var hot *lru.Cache[string, *lib.Inscription]

func initStore(db *sql.DB) {
	var err error
	if hot, err = lru.New[string, *lib.Inscription](256); err != nil {
		log.Fatal(err)
	}
	if db == nil {
		return
	}
	if _, err = db.Exec(`CREATE TABLE IF NOT EXISTS content(
		outpoint TEXT PRIMARY KEY,
		content_type TEXT NOT NULL,
		body BYTEA NOT NULL
	)`); err != nil {
		log.Fatal(err)
	}
	if getContent, err = db.Prepare(`SELECT content_type, body
		FROM content
		WHERE outpoint=$1`,
	); err != nil {
		log.Fatal(err)
	}
	if setContent, err = db.Prepare(`INSERT INTO content(outpoint, content_type, body)
		VALUES($1, $2, $3)
		ON CONFLICT(outpoint) DO NOTHING`,
	); err != nil {
		log.Fatal(err)
	}
}

func loadContent(ctx context.Context, outpoint lib.Outpoint) (*lib.Inscription, error) {
	key := outpoint.String()
	if ins, ok := hot.Get(key); ok {
		return ins, nil
	}
	if getContent != nil {
		ins := &lib.Inscription{}
		err := getContent.QueryRowContext(ctx, key).Scan(&ins.Type, &ins.Body)
		if err == nil {
			hot.Add(key, ins)
			return ins, nil
		}
		if err != sql.ErrNoRows {
			return nil, err
		}
	}

	tx, err := indexer.RawTx(ctx, outpoint.Txid)
	if err != nil {
		return nil, err
	}
	if int(outpoint.Vout) >= len(tx.Outputs) {
		return nil, &lib.HttpError{
			StatusCode: 400,
			Err:        fmt.Errorf("vout %d out of range", outpoint.Vout),
		}
	}
	ins := lib.ParseInscription(*tx.Outputs[outpoint.Vout].LockingScript)
	if ins == nil {
		return nil, &lib.HttpError{StatusCode: 404, Err: lib.ErrNotFound}
	}
	if setContent != nil {
		if _, err := setContent.ExecContext(ctx, key, ins.Type, ins.Body); err != nil {
			log.Printf("[STORE] cache write %s: %v", key, err)
		}
	}
	hot.Add(key, ins)
	return ins, nil
}

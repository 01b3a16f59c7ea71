package engine

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cockroachdb/pebble"
)

// Engine wraps the pebble store holding the controller's durable state:
// the identity pin and the chunk snapshot journal.
type Engine struct {
	Db *pebble.DB
}

// NewEngine opens the store at basePath, falling back to suffixed paths
// when another process holds the file lock.
func NewEngine(basePath string) (*Engine, error) {
	maxRetries := 5

	var db *pebble.DB
	var err error

	for i := 0; i <= maxRetries; i++ {
		dbPath := basePath
		if i > 0 {
			dbPath = fmt.Sprintf("%s_%d", basePath, i)
		}

		db, err = pebble.Open(dbPath, &pebble.Options{})
		if err == nil {
			log.Printf("[INFO] Using Pebble DB at path: %s", dbPath)
			return &Engine{Db: db}, nil
		}

		errMsg := strings.ToLower(err.Error())
		if strings.Contains(errMsg, "lock") ||
			strings.Contains(errMsg, "resource temporarily unavailable") ||
			strings.Contains(errMsg, "used by another process") {
			log.Printf("[WARN] DB at %s is locked, trying next", dbPath)
			continue
		}

		return nil, fmt.Errorf("failed to open Pebble DB at %s: %w", dbPath, err)
	}

	return nil, errors.New("all fallback Pebble DB paths are locked")
}

func (e *Engine) Close() {
	if e.Db != nil {
		e.Db.Close()
	}
}

func (e *Engine) get(key string) ([]byte, error) {
	val, closer, err := e.Db.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (e *Engine) set(key string, val []byte) error {
	return e.Db.Set([]byte(key), val, pebble.Sync)
}

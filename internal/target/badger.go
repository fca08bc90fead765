package target

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"kvbench/internal/workload"
)

// BadgerConfig configures the embedded target
type BadgerConfig struct {
	DataPath   string
	InMemory   bool
	SyncWrites bool
}

// BadgerExecutor runs operations against an embedded badger database
type BadgerExecutor struct {
	db *badger.DB
}

var _ Executor = (*BadgerExecutor)(nil)

func NewBadgerExecutor(config BadgerConfig) (*BadgerExecutor, error) {
	path := config.DataPath
	if config.InMemory {
		path = ""
	}
	opts := badger.DefaultOptions(path).
		WithInMemory(config.InMemory).
		WithSyncWrites(config.SyncWrites).
		WithLogger(nil) // Disable badger's default logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &BadgerExecutor{db: db}, nil
}

func (e *BadgerExecutor) Execute(ctx context.Context, op Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch op.Kind {
	case workload.OpRead:
		_, err := e.get([]byte(op.Key))
		return err
	case workload.OpInsert, workload.OpUpdate:
		return e.db.Update(func(txn *badger.Txn) error {
			return txn.Set([]byte(op.Key), op.Value)
		})
	case workload.OpDelete:
		return e.db.Update(func(txn *badger.Txn) error {
			return txn.Delete([]byte(op.Key))
		})
	case workload.OpScan:
		_, err := e.scan([]byte(op.Key), len(op.ScanKeys))
		return err
	case workload.OpReadModifyWrite:
		return e.readModifyWrite([]byte(op.Key), op.Value)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedOperation, op.Kind)
	}
}

func (e *BadgerExecutor) get(key []byte) ([]byte, error) {
	var value []byte
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

// scan reads up to limit records in key order starting at start
func (e *BadgerExecutor) scan(start []byte, limit int) (int, error) {
	if limit <= 0 {
		limit = 1
	}

	read := 0
	err := e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = limit
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(start); it.Valid() && read < limit; it.Next() {
			if _, err := it.Item().ValueCopy(nil); err != nil {
				return err
			}
			read++
		}
		return nil
	})
	return read, err
}

// readModifyWrite reads and rewrites key in a single transaction. A missing
// key fails the operation.
func (e *BadgerExecutor) readModifyWrite(key, value []byte) error {
	err := e.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Set(key, value)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}

// InsertBatch writes records in one transaction. The load phase uses it
// when available.
func (e *BadgerExecutor) InsertBatch(ctx context.Context, ops []Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wb := e.db.NewWriteBatch()
	defer wb.Cancel()

	for _, op := range ops {
		if err := wb.Set([]byte(op.Key), op.Value); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// Stats reports the on-disk footprint of the database
func (e *BadgerExecutor) Stats() map[string]interface{} {
	lsmSize, vlogSize := e.db.Size()
	return map[string]interface{}{
		"tables":     len(e.db.Tables()),
		"lsm_size":   lsmSize,
		"vlog_size":  vlogSize,
		"total_size": lsmSize + vlogSize,
	}
}

func (e *BadgerExecutor) Close() error {
	return e.db.Close()
}

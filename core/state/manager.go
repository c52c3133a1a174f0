package state

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"escrowd/storage"
)

// ErrTxClosed is returned when a committed or discarded transaction is used.
var ErrTxClosed = errors.New("state: transaction closed")

// Manager owns the ledger key space. Reads go straight to the committed
// database; writes are staged in a Tx and applied atomically on Commit. Only
// one Tx is open at a time.
type Manager struct {
	db     storage.Database
	writer sync.Mutex
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

type rawReader interface {
	getRaw(key []byte) ([]byte, bool, error)
}

func (m *Manager) getRaw(key []byte) ([]byte, bool, error) {
	value, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Begin opens a write transaction. It blocks until any other open transaction
// is committed or discarded. Callers must always Commit or Discard.
func (m *Manager) Begin() *Tx {
	m.writer.Lock()
	return &Tx{mgr: m, staged: make(map[string][]byte)}
}

// Update runs fn inside a transaction and commits when fn returns nil. Any
// error (or panic) discards every staged write.
func (m *Manager) Update(fn func(*Tx) error) error {
	tx := m.Begin()
	defer tx.Discard()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	return kvGet(m, key, out)
}

// KVGetList retrieves an RLP-encoded list of byte slices stored under key.
func (m *Manager) KVGetList(key []byte) ([][]byte, error) {
	return kvGetList(m, key)
}

// Sequence returns the next value the named counter will hand out without
// advancing it.
func (m *Manager) Sequence(name string) (uint64, error) {
	return sequence(m, name)
}

// Tx is a staged write set over the committed ledger. Reads through a Tx
// observe its own staged writes.
type Tx struct {
	mgr    *Manager
	staged map[string][]byte
	order  []string
	closed bool
}

func (tx *Tx) getRaw(key []byte) ([]byte, bool, error) {
	if tx.closed {
		return nil, false, ErrTxClosed
	}
	if value, ok := tx.staged[string(key)]; ok {
		return value, true, nil
	}
	return tx.mgr.getRaw(key)
}

func (tx *Tx) putRaw(key, value []byte) error {
	if tx.closed {
		return ErrTxClosed
	}
	k := string(key)
	if _, ok := tx.staged[k]; !ok {
		tx.order = append(tx.order, k)
	}
	tx.staged[k] = append([]byte(nil), value...)
	return nil
}

// Pending reports how many keys are staged.
func (tx *Tx) Pending() int {
	return len(tx.order)
}

// Commit writes every staged key in a single storage batch and releases the
// writer lock. On failure nothing is applied.
func (tx *Tx) Commit() error {
	if tx.closed {
		return ErrTxClosed
	}
	defer tx.close()
	if len(tx.order) == 0 {
		return nil
	}
	batch := tx.mgr.db.NewBatch()
	for _, k := range tx.order {
		batch.Put([]byte(k), tx.staged[k])
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	return nil
}

// Discard drops every staged write and releases the writer lock. Calling
// Discard on a closed transaction is a no-op.
func (tx *Tx) Discard() {
	if tx.closed {
		return
	}
	tx.close()
}

func (tx *Tx) close() {
	tx.closed = true
	tx.staged = nil
	tx.order = nil
	tx.mgr.writer.Unlock()
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before it reaches the database.
func (tx *Tx) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return tx.putRaw(kvKey(key), encoded)
}

// KVGet mirrors Manager.KVGet but observes staged writes.
func (tx *Tx) KVGet(key []byte, out interface{}) (bool, error) {
	return kvGet(tx, key, out)
}

// KVGetList mirrors Manager.KVGetList but observes staged writes.
func (tx *Tx) KVGetList(key []byte) ([][]byte, error) {
	return kvGetList(tx, key)
}

// KVAppend appends value to the RLP-encoded list stored under key. Duplicate
// values are ignored to keep the index deterministic.
func (tx *Tx) KVAppend(key []byte, value []byte) error {
	list, err := tx.KVGetList(key)
	if err != nil {
		return err
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	return tx.KVPut(key, list)
}

// NextSequence returns the current value of the named counter and advances it
// by one. Values are never reused.
func (tx *Tx) NextSequence(name string) (uint64, error) {
	current, err := sequence(tx, name)
	if err != nil {
		return 0, err
	}
	if current == ^uint64(0) {
		return 0, fmt.Errorf("state: sequence %s exhausted", name)
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], current+1)
	if err := tx.putRaw(sequenceKey(name), buf[:]); err != nil {
		return 0, err
	}
	return current, nil
}

// Sequence mirrors Manager.Sequence but observes staged writes.
func (tx *Tx) Sequence(name string) (uint64, error) {
	return sequence(tx, name)
}

func kvGet(r rawReader, key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := r.getRaw(kvKey(key))
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func kvGetList(r rawReader, key []byte) ([][]byte, error) {
	var list [][]byte
	ok, err := kvGet(r, key, &list)
	if err != nil {
		return nil, err
	}
	if !ok {
		return [][]byte{}, nil
	}
	return list, nil
}

func sequence(r rawReader, name string) (uint64, error) {
	data, ok, err := r.getRaw(sequenceKey(name))
	if err != nil || !ok {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("state: corrupt sequence %s", name)
	}
	return binary.BigEndian.Uint64(data), nil
}

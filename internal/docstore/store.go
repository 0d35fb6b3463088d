package docstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Client is the result of opening the document store. It is either
// Initialized or NotConfigured; callers switch on the concrete type.
type Client interface {
	client()
}

// Initialized carries a usable store.
type Initialized struct {
	Store *Store
}

// NotConfigured means no store location was given, so there is nothing to read.
type NotConfigured struct {
	Reason string
}

func (Initialized) client()   {}
func (NotConfigured) client() {}

// Document is a single stored record of a collection.
type Document struct {
	ID   string
	Data []byte
}

// Decode gob-decodes the document body into v.
func (d Document) Decode(v any) error {
	return decodeGob(d.Data, v)
}

// Store is a goleveldb-backed collection store. Keys are laid out as
// "d:<collection>:<id>" where id is a zero-padded hex sequence, so a prefix
// scan returns documents in insertion order.
type Store struct {
	db *leveldb.DB

	mu  sync.Mutex
	seq uint64
}

const seqKey = "s:seq"

// Open opens the store at path. An empty path yields NotConfigured.
func Open(path string) (Client, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return NotConfigured{Reason: "store.path is empty"}, nil
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.loadSeq(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return Initialized{Store: s}, nil
}

func (s *Store) loadSeq() error {
	b, err := s.db.Get([]byte(seqKey), nil)
	if err == leveldb.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read sequence: %w", err)
	}
	if len(b) != 8 {
		return fmt.Errorf("read sequence: corrupt value of %d bytes", len(b))
	}
	s.seq = binary.BigEndian.Uint64(b)
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func docPrefix(collection string) []byte {
	return []byte("d:" + collection + ":")
}

// Create stores v as a new document of collection and returns its id.
func (s *Store) Create(ctx context.Context, collection string, v any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b, err := encodeGob(v)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.seq + 1
	id := fmt.Sprintf("%016x", next)

	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], next)

	batch := new(leveldb.Batch)
	batch.Put(append(docPrefix(collection), id...), b)
	batch.Put([]byte(seqKey), seqBuf[:])
	if err := s.db.Write(batch, nil); err != nil {
		return "", fmt.Errorf("write %s/%s: %w", collection, id, err)
	}
	s.seq = next
	return id, nil
}

// ListAll returns every document of collection in stored order.
func (s *Store) ListAll(ctx context.Context, collection string) ([]Document, error) {
	prefix := docPrefix(collection)
	it := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()

	var out []Document
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// iterator buffers are reused between calls
		out = append(out, Document{
			ID:   string(bytes.TrimPrefix(it.Key(), prefix)),
			Data: append([]byte(nil), it.Value()...),
		})
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Delete(append(docPrefix(collection), id...), nil)
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	dec := gob.NewDecoder(bytes.NewReader(b))
	return dec.Decode(v)
}

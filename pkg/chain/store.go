package chain

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"encoding/json"
	"errors"
	"time"

	"github.com/boltdb/bolt"
	"golang.org/x/xerrors"

	"example.com/tokenledger/pkg/contracts/loan"
	"example.com/tokenledger/pkg/tokens"
)

const (
	stateBucket    = "state"
	eventsBucket   = "events"
	receiptsBucket = "receipts"

	ledgerKey   = "ledger"
	loanKey     = "loan"
	randomKey   = "randkey"
	lastHashKey = "l" // Key to store the last receipt's hash
)

var (
	ErrReceiptNotFound = errors.New("receipt not found")
	ErrNoSnapshot      = errors.New("no snapshot stored")
)

// Store keeps contract state, the notification journal and the receipt
// chain in a BoltDB file.
type Store struct {
	db *bolt.DB
}

// Commit is everything one successful invocation writes.
type Commit struct {
	Ledger  tokens.Snapshot
	Loan    loan.State
	Random  [32]byte
	Events  []Notification
	Receipt *Receipt
}

// OpenStore opens or creates the database at path.
func OpenStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, xerrors.Errorf("open store %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{stateBucket, eventsBucket, receiptsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return xerrors.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close safely closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Commit writes state, journal entries and the receipt in one transaction.
func (s *Store) Commit(c Commit) error {
	ledgerData, err := encodeGob(c.Ledger)
	if err != nil {
		return xerrors.Errorf("encode ledger snapshot: %w", err)
	}
	loanData, err := encodeGob(c.Loan)
	if err != nil {
		return xerrors.Errorf("encode loan state: %w", err)
	}
	receiptData, err := c.Receipt.Serialize()
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		state := tx.Bucket([]byte(stateBucket))
		if err := state.Put([]byte(ledgerKey), ledgerData); err != nil {
			return err
		}
		if err := state.Put([]byte(loanKey), loanData); err != nil {
			return err
		}
		if err := state.Put([]byte(randomKey), c.Random[:]); err != nil {
			return err
		}

		events := tx.Bucket([]byte(eventsBucket))
		for _, n := range c.Events {
			data, err := json.Marshal(n)
			if err != nil {
				return xerrors.Errorf("encode notification %d: %w", n.Seq, err)
			}
			if err := events.Put(seqKey(n.Seq), data); err != nil {
				return err
			}
		}

		receipts := tx.Bucket([]byte(receiptsBucket))
		if err := receipts.Put(c.Receipt.Hash, receiptData); err != nil {
			return err
		}
		return receipts.Put([]byte(lastHashKey), c.Receipt.Hash)
	})
}

func (s *Store) LoadLedger() (tokens.Snapshot, error) {
	var snap tokens.Snapshot
	err := s.loadState(ledgerKey, &snap)
	return snap, err
}

func (s *Store) LoadLoan() (loan.State, error) {
	var st loan.State
	err := s.loadState(loanKey, &st)
	return st, err
}

func (s *Store) LoadRandom() ([32]byte, error) {
	var out [32]byte
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(stateBucket)).Get([]byte(randomKey))
		if data == nil {
			return ErrNoSnapshot
		}
		if len(data) != len(out) {
			return xerrors.Errorf("random value has %d bytes", len(data))
		}
		copy(out[:], data)
		return nil
	})
	return out, err
}

func (s *Store) loadState(key string, out interface{}) error {
	return s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(stateBucket)).Get([]byte(key))
		if data == nil {
			return ErrNoSnapshot
		}
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(out); err != nil {
			return xerrors.Errorf("decode %s state: %w", key, err)
		}
		return nil
	})
}

// Tip returns the latest receipt, or nil when the chain is empty.
func (s *Store) Tip() (*Receipt, error) {
	var tip *Receipt
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(receiptsBucket))
		hash := b.Get([]byte(lastHashKey))
		if hash == nil {
			return nil
		}
		data := b.Get(hash)
		if data == nil {
			return ErrReceiptNotFound
		}
		r, err := DeserializeReceipt(data)
		if err != nil {
			return err
		}
		tip = r
		return nil
	})
	return tip, err
}

// Receipt retrieves a receipt by its hash
func (s *Store) Receipt(hash []byte) (*Receipt, error) {
	var r *Receipt
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(receiptsBucket)).Get(hash)
		if data == nil {
			return ErrReceiptNotFound
		}
		decoded, err := DeserializeReceipt(data)
		if err != nil {
			return err
		}
		r = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Iterator walks the receipt chain from the tip back to genesis.
func (s *Store) Iterator() (*ReceiptIterator, error) {
	tip, err := s.Tip()
	if err != nil {
		return nil, err
	}
	it := &ReceiptIterator{store: s}
	if tip != nil {
		it.currentHash = tip.Hash
	}
	return it, nil
}

// ReceiptIterator is used to iterate over receipts, newest first
type ReceiptIterator struct {
	currentHash []byte
	store       *Store
}

// Next returns the next receipt, or nil once genesis has been returned.
func (it *ReceiptIterator) Next() (*Receipt, error) {
	if len(it.currentHash) == 0 {
		return nil, nil
	}
	r, err := it.store.Receipt(it.currentHash)
	if err != nil {
		return nil, err
	}
	it.currentHash = r.PrevHash
	return r, nil
}

// Events returns up to limit notifications with Seq >= since, oldest first.
// limit <= 0 means no limit.
func (s *Store) Events(since uint64, limit int) ([]Notification, error) {
	var out []Notification
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(eventsBucket)).Cursor()
		for k, v := c.Seek(seqKey(since)); k != nil; k, v = c.Next() {
			var n Notification
			if err := json.Unmarshal(v, &n); err != nil {
				return xerrors.Errorf("decode notification %x: %w", k, err)
			}
			out = append(out, n)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// LastSeq returns the highest journaled sequence number, 0 when empty.
func (s *Store) LastSeq() (uint64, error) {
	var last uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		k, _ := tx.Bucket([]byte(eventsBucket)).Cursor().Last()
		if k != nil {
			last = binary.BigEndian.Uint64(k)
		}
		return nil
	})
	return last, err
}

func seqKey(seq uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], seq)
	return k[:]
}

func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

package chain

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/gob"
	"encoding/json"

	"golang.org/x/xerrors"

	"example.com/tokenledger/pkg/tokens"
)

// Notification is one journaled event with its global sequence number.
type Notification struct {
	Seq  uint64          `json:"seq"`
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

func newNotification(seq uint64, e tokens.Event) (Notification, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return Notification{}, xerrors.Errorf("encode %s event: %w", e.EventName(), err)
	}
	return Notification{Seq: seq, Name: e.EventName(), Data: data}, nil
}

// Receipt records one successful mutating call. Receipts form a hash chain
// starting at the genesis receipt (height 0, empty PrevHash).
type Receipt struct {
	Height    uint64           `json:"height"`
	Timestamp int64            `json:"timestamp"`
	Caller    tokens.AccountID `json:"caller"`
	Method    string           `json:"method"`
	Events    []Notification   `json:"events"`
	PrevHash  []byte           `json:"prev_hash"`
	Hash      []byte           `json:"hash"`
}

// NewReceipt creates a receipt and seals it with its hash
func NewReceipt(height uint64, timestamp int64, caller tokens.AccountID, method string, events []Notification, prevHash []byte) *Receipt {
	r := &Receipt{
		Height:    height,
		Timestamp: timestamp,
		Caller:    caller,
		Method:    method,
		Events:    events,
		PrevHash:  prevHash,
	}
	r.Hash = r.computeHash()
	return r
}

func (r *Receipt) IsGenesis() bool {
	return r.Height == 0 && len(r.PrevHash) == 0
}

// computeHash hashes every field except Hash itself.
func (r *Receipt) computeHash() []byte {
	var buf bytes.Buffer
	var n [8]byte

	putUint := func(v uint64) {
		binary.BigEndian.PutUint64(n[:], v)
		buf.Write(n[:])
	}
	putBytes := func(b []byte) {
		putUint(uint64(len(b)))
		buf.Write(b)
	}

	putBytes(r.PrevHash)
	putUint(r.Height)
	putUint(uint64(r.Timestamp))
	buf.Write(r.Caller[:])
	putBytes([]byte(r.Method))
	putUint(uint64(len(r.Events)))
	for _, e := range r.Events {
		putUint(e.Seq)
		putBytes([]byte(e.Name))
		putBytes(e.Data)
	}

	hash := sha256.Sum256(buf.Bytes())
	return hash[:]
}

// Validate checks the receipt against its predecessor. prev is nil for
// the genesis receipt.
func (r *Receipt) Validate(prev *Receipt) error {
	if !bytes.Equal(r.Hash, r.computeHash()) {
		return xerrors.Errorf("invalid receipt hash at height %d: got %x", r.Height, r.Hash)
	}
	if prev == nil {
		if !r.IsGenesis() {
			return xerrors.Errorf("receipt at height %d has no predecessor", r.Height)
		}
		return nil
	}
	if r.Height != prev.Height+1 {
		return xerrors.Errorf("invalid receipt height: got %d, expected %d", r.Height, prev.Height+1)
	}
	if !bytes.Equal(r.PrevHash, prev.Hash) {
		return xerrors.Errorf("invalid previous receipt hash: got %x, expected %x", r.PrevHash, prev.Hash)
	}
	if len(r.Events) > 0 && len(prev.Events) > 0 {
		last := prev.Events[len(prev.Events)-1].Seq
		if r.Events[0].Seq <= last {
			return xerrors.Errorf("receipt at height %d reuses notification sequence %d", r.Height, r.Events[0].Seq)
		}
	}
	return nil
}

// Serialize converts a receipt to bytes
func (r *Receipt) Serialize() ([]byte, error) {
	var result bytes.Buffer
	if err := gob.NewEncoder(&result).Encode(r); err != nil {
		return nil, xerrors.Errorf("encode receipt: %w", err)
	}
	return result.Bytes(), nil
}

// DeserializeReceipt converts bytes into a Receipt
func DeserializeReceipt(data []byte) (*Receipt, error) {
	var r Receipt
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&r); err != nil {
		return nil, xerrors.Errorf("decode receipt: %w", err)
	}
	return &r, nil
}

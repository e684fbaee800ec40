// Package randkey holds the randomness extension call contract and a
// contract that stores the most recently fetched value.
package randkey

import (
	crand "crypto/rand"
	"errors"

	"golang.org/x/xerrors"

	"example.com/tokenledger/pkg/tokens"
)

// ErrFailGetRandomSource is the single failure of the extension: the
// randomness source was unavailable.
var ErrFailGetRandomSource = errors.New("random source unavailable")

const EventRandomUpdated = "RandomUpdated"

// Source fetches 32 bytes of randomness from the host.
type Source interface {
	FetchRandom() ([32]byte, error)
}

type SourceFunc func() ([32]byte, error)

func (f SourceFunc) FetchRandom() ([32]byte, error) { return f() }

// FromStatusCode maps a host status code onto the extension's error.
func FromStatusCode(code uint32) error {
	switch code {
	case 0:
		return nil
	case 1:
		return ErrFailGetRandomSource
	default:
		return xerrors.Errorf("unknown random extension status code %d", code)
	}
}

// CryptoSource reads from crypto/rand.
type CryptoSource struct{}

func (CryptoSource) FetchRandom() ([32]byte, error) {
	var b [32]byte
	if _, err := crand.Read(b[:]); err != nil {
		return b, xerrors.Errorf("read random value: %v: %w", err, ErrFailGetRandomSource)
	}
	return b, nil
}

// RandomUpdated is raised when Update stores a new value.
type RandomUpdated struct {
	New [32]byte `json:"new"`
}

func (RandomUpdated) EventName() string { return EventRandomUpdated }

type Randkey struct {
	value  [32]byte
	source Source
	sink   tokens.EventSink
}

func New(initial [32]byte, source Source, sink tokens.EventSink) *Randkey {
	if sink == nil {
		sink = tokens.EventSinkFunc(func(tokens.Event) {})
	}
	return &Randkey{value: initial, source: source, sink: sink}
}

// Default starts from the zero value.
func Default(source Source, sink tokens.EventSink) *Randkey {
	return New([32]byte{}, source, sink)
}

func (r *Randkey) Get() [32]byte {
	return r.value
}

// Update fetches a fresh value. On failure the stored value is kept.
func (r *Randkey) Update() error {
	v, err := r.source.FetchRandom()
	if err != nil {
		return err
	}
	r.value = v
	r.sink.Emit(RandomUpdated{New: v})
	return nil
}

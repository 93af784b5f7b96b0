package circuit

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/mikelxc/zkredit/internal/attest"
)

// ErrAlreadyCommitted is returned when a program commits output twice.
var ErrAlreadyCommitted = errors.New("public values already committed")

// Input is the ordered, typed read side of the channel between the proving
// host and a program. Reads never block on external I/O.
type Input interface {
	ReadUint64() (uint64, error)
	ReadAddress() (common.Address, error)
	ReadHash() (common.Hash, error)
	ReadSignature() ([attest.SignatureLength]byte, error)
}

// Output receives the public values of a successful run, exactly once.
type Output interface {
	Commit(data []byte) error
}

// Stdin is the host side of the input channel. Each value is framed as one
// RLP item, in the order the program reads them.
type Stdin struct {
	buf bytes.Buffer
	err error
}

func (s *Stdin) write(v any) *Stdin {
	if s.err == nil {
		s.err = rlp.Encode(&s.buf, v)
	}
	return s
}

func (s *Stdin) WriteUint64(v uint64) *Stdin { return s.write(v) }
func (s *Stdin) WriteAddress(a common.Address) *Stdin { return s.write(a) }
func (s *Stdin) WriteHash(h common.Hash) *Stdin { return s.write(h) }
func (s *Stdin) WriteSignature(sig [attest.SignatureLength]byte) *Stdin {
	return s.write(sig)
}

// Bytes returns the framed stream.
func (s *Stdin) Bytes() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.buf.Bytes(), nil
}

// Reader opens the program side of the stream.
func (s *Stdin) Reader() (*Reader, error) {
	b, err := s.Bytes()
	if err != nil {
		return nil, err
	}
	return NewReader(bytes.NewReader(b)), nil
}

// Reader decodes an RLP-framed input stream.
type Reader struct {
	s *rlp.Stream
}

func NewReader(r io.Reader) *Reader {
	return &Reader{s: rlp.NewStream(r, 0)}
}

func (r *Reader) ReadUint64() (uint64, error) {
	v, err := r.s.Uint64()
	if err != nil {
		return 0, fmt.Errorf("read uint64: %w", err)
	}
	return v, nil
}

func (r *Reader) ReadAddress() (common.Address, error) {
	var a common.Address
	if err := r.s.Decode(&a); err != nil {
		return a, fmt.Errorf("read address: %w", err)
	}
	return a, nil
}

func (r *Reader) ReadHash() (common.Hash, error) {
	var h common.Hash
	if err := r.s.Decode(&h); err != nil {
		return h, fmt.Errorf("read bytes32: %w", err)
	}
	return h, nil
}

func (r *Reader) ReadSignature() ([attest.SignatureLength]byte, error) {
	var sig [attest.SignatureLength]byte
	if err := r.s.Decode(&sig); err != nil {
		return sig, fmt.Errorf("read signature: %w", err)
	}
	return sig, nil
}

// Stdout collects the committed public values.
type Stdout struct {
	data      []byte
	committed bool
}

func (o *Stdout) Commit(data []byte) error {
	if o.committed {
		return ErrAlreadyCommitted
	}
	o.data = append([]byte(nil), data...)
	o.committed = true
	return nil
}

// Committed reports whether a run produced output.
func (o *Stdout) Committed() bool { return o.committed }

// Data returns the committed bytes, nil if nothing was committed.
func (o *Stdout) Data() []byte { return o.data }

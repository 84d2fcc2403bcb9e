package remote

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/eigerco/kvtree/pkg/db"
)

// ALPN is the protocol negotiated on every connection.
const ALPN = "kvtree/1"

var (
	ErrRemote       = errors.New("remote: server error")
	ErrInvalidFrame = errors.New("remote: invalid frame")
	ErrUnknownOp    = errors.New("remote: unknown operation")
	ErrServerKey    = errors.New("remote: unexpected server key")
)

type opCode uint8

const (
	opGet opCode = iota + 1
	opPut
	opDelete
	opDeleteRange
	opSeek
	opCommit
	opCompact
	opPreload
)

func (o opCode) String() string {
	switch o {
	case opGet:
		return "get"
	case opPut:
		return "put"
	case opDelete:
		return "delete"
	case opDeleteRange:
		return "delete_range"
	case opSeek:
		return "seek"
	case opCommit:
		return "commit"
	case opCompact:
		return "compact"
	case opPreload:
		return "preload"
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

type seekMode uint8

const (
	seekFirst seekMode = iota
	seekLast
	seekGE
	seekLT
)

// Upper ends travel with an explicit flag because a nil end (unbounded) and
// an empty end (empty range) mean different things.
type request struct {
	Op     opCode `msgpack:"op"`
	Key    []byte `msgpack:"key"`
	Value  []byte `msgpack:"value"`
	End    []byte `msgpack:"end"`
	HasEnd bool   `msgpack:"has_end"`

	Mode  seekMode `msgpack:"mode"`
	Lower []byte   `msgpack:"lower"`

	Ops []batchOp `msgpack:"ops"`
}

type batchOp struct {
	Op     opCode `msgpack:"op"`
	Key    []byte `msgpack:"key"`
	Value  []byte `msgpack:"value"`
	End    []byte `msgpack:"end"`
	HasEnd bool   `msgpack:"has_end"`
}

type errCode uint8

const (
	codeOK errCode = iota
	codeNotFound
	codeBatchDone
	codeClosed
	codeInternal
)

type response struct {
	Code  errCode `msgpack:"code"`
	Error string  `msgpack:"error,omitempty"`
	Found bool    `msgpack:"found"`
	Key   []byte  `msgpack:"key"`
	Value []byte  `msgpack:"value"`
}

// end returns the range end carried by a request, nil when unbounded.
func end(value []byte, bounded bool) []byte {
	if !bounded {
		return nil
	}
	if value == nil {
		return []byte{}
	}
	return value
}

func errorResponse(err error) *response {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return &response{Code: codeNotFound}
	case errors.Is(err, db.ErrBatchDone):
		return &response{Code: codeBatchDone}
	case errors.Is(err, db.ErrClosed):
		return &response{Code: codeClosed}
	}
	return &response{Code: codeInternal, Error: err.Error()}
}

// err maps a response code back to the matching db error.
func (r *response) err() error {
	switch r.Code {
	case codeOK:
		return nil
	case codeNotFound:
		return db.ErrNotFound
	case codeBatchDone:
		return db.ErrBatchDone
	case codeClosed:
		return db.ErrClosed
	}
	return fmt.Errorf("%w: %s", ErrRemote, r.Error)
}

func encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func decode(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	return nil
}

package remote

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/eigerco/kvtree/pkg/db"
	"github.com/eigerco/kvtree/pkg/log"
)

// DefaultRequestTimeout bounds one request round trip.
const DefaultRequestTimeout = 10 * time.Second

var ErrDialFailed = errors.New("remote: dial failed")

// ClientConfig contains the configuration for a Client
type ClientConfig struct {
	// ServerKey pins the server's public key when set.
	ServerKey ed25519.PublicKey
	// RequestTimeout defaults to DefaultRequestTimeout.
	RequestTimeout time.Duration
	// MaxFrameSize defaults to DefaultMaxFrameSize.
	MaxFrameSize uint32
}

// Client is a db.KVStore served by a remote Server. Requests are never
// retried; transport failures are returned to the caller.
type Client struct {
	conn   quic.Connection
	config ClientConfig
	closed atomic.Bool
}

var _ db.KVStore = (*Client)(nil)

// Dial connects to the server at addr.
func Dial(ctx context.Context, addr string, config ClientConfig) (*Client, error) {
	if config.RequestTimeout == 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	if config.MaxFrameSize == 0 {
		config.MaxFrameSize = DefaultMaxFrameSize
	}

	tlsConf := &tls.Config{
		NextProtos: []string{ALPN},
		MinVersion: tls.VersionTLS13,
		// The server certificate is self-signed; it is checked below instead.
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return fmt.Errorf("%w: no peer certificate provided", ErrInvalidCertificate)
			}
			c, err := x509.ParseCertificate(rawCerts[0])
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
			}
			key, err := ValidateCertificate(c)
			if err != nil {
				return err
			}
			if config.ServerKey != nil && !key.Equal(config.ServerKey) {
				return ErrServerKey
			}
			return nil
		},
	}

	conn, err := quic.DialAddr(ctx, addr, tlsConf, &quic.Config{
		MaxIdleTimeout: MaxIdleTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDialFailed, err)
	}
	log.Remote.Debug().Str("addr", addr).Msg("connected")
	return &Client{conn: conn, config: config}, nil
}

// call runs one request on its own stream.
func (c *Client) call(req *request) (*response, error) {
	if c.closed.Load() {
		return nil, db.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.config.RequestTimeout)
	defer cancel()

	data, err := encode(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	stream, err := c.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	if err := writeFrame(ctx, stream, data); err != nil {
		stream.CancelWrite(0)
		stream.CancelRead(0)
		return nil, err
	}
	if err := stream.Close(); err != nil {
		stream.CancelRead(0)
		return nil, fmt.Errorf("failed to close stream: %w", err)
	}

	out, err := readFrame(ctx, stream, c.config.MaxFrameSize)
	if err != nil {
		stream.CancelRead(0)
		return nil, err
	}

	var resp response
	if err := decode(out, &resp); err != nil {
		return nil, err
	}
	return &resp, resp.err()
}

func (c *Client) Get(key []byte) ([]byte, error) {
	resp, err := c.call(&request{Op: opGet, Key: key})
	if err != nil {
		return nil, err
	}
	if resp.Value == nil {
		return []byte{}, nil
	}
	return resp.Value, nil
}

func (c *Client) Put(key, value []byte) error {
	_, err := c.call(&request{Op: opPut, Key: key, Value: value})
	return err
}

func (c *Client) Delete(key []byte) error {
	_, err := c.call(&request{Op: opDelete, Key: key})
	return err
}

func (c *Client) DeleteRange(start, end []byte) error {
	_, err := c.call(&request{Op: opDeleteRange, Key: start, End: end, HasEnd: end != nil})
	return err
}

func (c *Client) NewBatch() db.Batch {
	return &Batch{client: c}
}

func (c *Client) NewIterator(start, end []byte) (db.Iterator, error) {
	if c.closed.Load() {
		return nil, db.ErrClosed
	}
	return &Iterator{client: c, lower: db.Copy(start), upper: db.Copy(end)}, nil
}

func (c *Client) Compact() error {
	_, err := c.call(&request{Op: opCompact})
	return err
}

func (c *Client) Preload() error {
	_, err := c.call(&request{Op: opPreload})
	return err
}

// Close closes the connection. The remote store stays open.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	log.Remote.Debug().Msg("connection closed")
	return c.conn.CloseWithError(0, "")
}

// Batch records operations locally and sends them in one commit request.
type Batch struct {
	client *Client
	ops    []batchOp
	done   bool
}

func (b *Batch) Put(key, value []byte) error {
	if b.done {
		return db.ErrBatchDone
	}
	b.ops = append(b.ops, batchOp{Op: opPut, Key: db.Copy(key), Value: db.Copy(value)})
	return nil
}

func (b *Batch) Delete(key []byte) error {
	if b.done {
		return db.ErrBatchDone
	}
	b.ops = append(b.ops, batchOp{Op: opDelete, Key: db.Copy(key)})
	return nil
}

func (b *Batch) DeleteRange(start, end []byte) error {
	if b.done {
		return db.ErrBatchDone
	}
	b.ops = append(b.ops, batchOp{Op: opDeleteRange, Key: db.Copy(start), End: db.Copy(end), HasEnd: end != nil})
	return nil
}

func (b *Batch) Commit() error {
	if b.done {
		return db.ErrBatchDone
	}
	if len(b.ops) > 0 {
		if _, err := b.client.call(&request{Op: opCommit, Ops: b.ops}); err != nil {
			return err
		}
	}
	b.done = true
	b.ops = nil
	return nil
}

func (b *Batch) Close() error {
	b.done = true
	b.ops = nil
	return nil
}

// Iterator positions itself with one seek request per call; the server keeps
// no iterator state between requests.
type Iterator struct {
	client       *Client
	lower, upper []byte
	key, value   []byte
	valid        bool
	err          error
}

func (it *Iterator) seek(mode seekMode, key []byte) bool {
	resp, err := it.client.call(&request{
		Op:     opSeek,
		Mode:   mode,
		Key:    key,
		Lower:  it.lower,
		End:    it.upper,
		HasEnd: it.upper != nil,
	})
	if err != nil {
		if it.err == nil {
			it.err = err
		}
		it.valid, it.key, it.value = false, nil, nil
		return false
	}
	it.valid, it.key, it.value = resp.Found, resp.Key, resp.Value
	if it.valid && it.value == nil {
		it.value = []byte{}
	}
	return it.valid
}

func (it *Iterator) First() bool { return it.seek(seekFirst, nil) }

func (it *Iterator) Last() bool { return it.seek(seekLast, nil) }

func (it *Iterator) SeekGE(key []byte) bool { return it.seek(seekGE, key) }

func (it *Iterator) SeekLT(key []byte) bool { return it.seek(seekLT, key) }

func (it *Iterator) Next() bool {
	if !it.valid {
		return it.First()
	}
	return it.SeekGE(db.KeySuccessor(it.key))
}

func (it *Iterator) Prev() bool {
	if !it.valid {
		return it.Last()
	}
	return it.SeekLT(it.key)
}

func (it *Iterator) Key() []byte { return db.Copy(it.key) }

func (it *Iterator) Value() ([]byte, error) {
	if !it.valid {
		return nil, db.ErrIteratorInvalid
	}
	return db.Copy(it.value), nil
}

func (it *Iterator) Valid() bool { return it.valid }

// Err returns the first request error hit while iterating.
func (it *Iterator) Err() error { return it.err }

// Close reports the first request error hit while iterating.
func (it *Iterator) Close() error {
	it.valid, it.key, it.value = false, nil, nil
	return it.err
}

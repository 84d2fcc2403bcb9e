package remote

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/kvtree/pkg/db"
	"github.com/eigerco/kvtree/pkg/db/dbtest"
	"github.com/eigerco/kvtree/pkg/db/mocks"
	"github.com/eigerco/kvtree/pkg/db/pebble"
)

// serve starts a server over store on a loopback port.
func serve(t *testing.T, store db.KVStore) *Server {
	t.Helper()
	srv, err := NewServer(store, ServerConfig{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() }) //nolint:errcheck // test cleanup
	return srv
}

func dial(t *testing.T, srv *Server, config ClientConfig) (*Client, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return Dial(ctx, srv.Addr().String(), config)
}

func TestRemoteKVStore(t *testing.T) {
	dbtest.RunStoreTests(t, func(t *testing.T) db.KVStore {
		backing, err := pebble.NewKVStore()
		require.NoError(t, err)
		t.Cleanup(func() { backing.Close() }) //nolint:errcheck // test cleanup

		srv := serve(t, backing)
		client, err := dial(t, srv, ClientConfig{ServerKey: srv.PublicKey()})
		require.NoError(t, err)
		return client
	})
}

func TestServerKeyPinning(t *testing.T) {
	backing, err := pebble.NewKVStore()
	require.NoError(t, err)
	defer backing.Close() //nolint:errcheck // test cleanup

	srv := serve(t, backing)

	other, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	_, err = dial(t, srv, ClientConfig{ServerKey: other})
	assert.ErrorIs(t, err, ErrDialFailed)

	client, err := dial(t, srv, ClientConfig{})
	require.NoError(t, err)
	require.NoError(t, client.Close())
}

func TestBackendErrorsCrossTheWire(t *testing.T) {
	store := mocks.NewMockKVStore()
	store.On("Get", []byte("missing")).Return(nil, db.ErrNotFound)
	store.On("Put", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	store.On("Compact").Return(db.ErrClosed)

	srv := serve(t, store)
	client, err := dial(t, srv, ClientConfig{})
	require.NoError(t, err)
	defer client.Close() //nolint:errcheck // test cleanup

	_, err = client.Get([]byte("missing"))
	assert.ErrorIs(t, err, db.ErrNotFound)

	err = client.Put([]byte("k"), []byte("v"))
	assert.ErrorIs(t, err, ErrRemote)
	assert.Contains(t, err.Error(), "disk full")

	assert.ErrorIs(t, client.Compact(), db.ErrClosed)
	store.AssertExpectations(t)
}

func TestIteratorRequestError(t *testing.T) {
	store := mocks.NewMockKVStore()
	store.On("NewIterator", mock.Anything, mock.Anything).Return(nil, errors.New("no snapshot"))

	srv := serve(t, store)
	client, err := dial(t, srv, ClientConfig{})
	require.NoError(t, err)
	defer client.Close() //nolint:errcheck // test cleanup

	iter, err := client.NewIterator(nil, nil)
	require.NoError(t, err)
	assert.False(t, iter.First())
	assert.False(t, iter.Valid())
	assert.ErrorIs(t, iter.(*Iterator).Err(), ErrRemote)
	assert.ErrorIs(t, iter.Close(), ErrRemote)
}

func TestFrames(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, writeFrame(ctx, &buf, []byte("hello")))
	assert.Equal(t, uint32(5), binary.LittleEndian.Uint32(buf.Bytes()[:4]))

	got, err := readFrame(ctx, &buf, 16)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	buf.Reset()
	require.NoError(t, writeFrame(ctx, &buf, bytes.Repeat([]byte("x"), 32)))
	_, err = readFrame(ctx, &buf, 16)
	assert.ErrorIs(t, err, ErrInvalidFrame)

	// truncated content
	buf.Reset()
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(10)))
	buf.WriteString("abc")
	_, err = readFrame(ctx, &buf, 16)
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = readFrame(cancelled, blockingReader{}, 16)
	assert.ErrorIs(t, err, context.Canceled)
}

type blockingReader struct{}

func (blockingReader) Read([]byte) (int, error) {
	select {}
}

func TestWireErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "not_found", err: db.ErrNotFound, want: db.ErrNotFound},
		{name: "batch_done", err: db.ErrBatchDone, want: db.ErrBatchDone},
		{name: "closed", err: db.ErrClosed, want: db.ErrClosed},
		{name: "wrapped", err: errors.Join(errors.New("ctx"), db.ErrNotFound), want: db.ErrNotFound},
		{name: "opaque", err: errors.New("boom"), want: ErrRemote},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := encode(errorResponse(tc.err))
			require.NoError(t, err)

			var resp response
			require.NoError(t, decode(data, &resp))
			assert.ErrorIs(t, resp.err(), tc.want)
		})
	}

	var req request
	assert.ErrorIs(t, decode([]byte{0xc1}, &req), ErrInvalidFrame)
}

func TestRangeEndSurvivesEncoding(t *testing.T) {
	for _, r := range []request{
		{Op: opDeleteRange, Key: []byte("a")},
		{Op: opDeleteRange, Key: []byte("a"), End: []byte{}, HasEnd: true},
		{Op: opDeleteRange, Key: []byte("a"), End: []byte("b"), HasEnd: true},
	} {
		data, err := encode(&r)
		require.NoError(t, err)

		var got request
		require.NoError(t, decode(data, &got))
		want := end(r.End, r.HasEnd)
		if want == nil {
			assert.Nil(t, end(got.End, got.HasEnd))
		} else {
			assert.Equal(t, want, end(got.End, got.HasEnd))
			assert.NotNil(t, end(got.End, got.HasEnd))
		}
	}
}

func TestCertificates(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	cert, err := GenerateCertificate(priv, time.Hour)
	require.NoError(t, err)

	key, err := ValidateCertificate(cert.Leaf)
	require.NoError(t, err)
	assert.True(t, key.Equal(priv.Public()))
	assert.Equal(t, EncodePubKeyToDNS(key), cert.Leaf.DNSNames[0])

	// DNS name for a different key
	other, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	tampered := *cert.Leaf
	tampered.DNSNames = []string{EncodePubKeyToDNS(other)}
	_, err = ValidateCertificate(&tampered)
	assert.ErrorIs(t, err, ErrInvalidCertificate)

	expired := *cert.Leaf
	expired.NotAfter = time.Now().Add(-time.Hour)
	_, err = ValidateCertificate(&expired)
	assert.ErrorIs(t, err, ErrInvalidCertificate)

	wrongAlg := *cert.Leaf
	wrongAlg.SignatureAlgorithm = x509.ECDSAWithSHA256
	_, err = ValidateCertificate(&wrongAlg)
	assert.ErrorIs(t, err, ErrInvalidCertificate)
}

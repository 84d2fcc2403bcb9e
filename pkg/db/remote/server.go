package remote

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/eigerco/kvtree/pkg/db"
	"github.com/eigerco/kvtree/pkg/log"
)

// MaxIdleTimeout defines the maximum duration a connection can be idle
// before timing out
const MaxIdleTimeout = 30 * time.Minute

var (
	ErrListenerFailed = errors.New("remote: failed to start listener")
	ErrNotStarted     = errors.New("remote: server not started")
)

// ServerConfig contains the configuration for a Server
type ServerConfig struct {
	ListenAddr string             // Address to listen on
	PrivateKey ed25519.PrivateKey // Server key, generated when nil
	// CertValidity defaults to DefaultCertValidity.
	CertValidity time.Duration
	// MaxFrameSize defaults to DefaultMaxFrameSize.
	MaxFrameSize uint32
}

// Server exposes a db.KVStore over QUIC. Every stream carries one request
// and its response. The server does not own the store.
type Server struct {
	store    db.KVStore
	config   ServerConfig
	cert     *tls.Certificate
	listener *quic.Listener

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{} // For clean shutdown of accept loop
	wg     sync.WaitGroup
}

func NewServer(store db.KVStore, config ServerConfig) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("store required")
	}
	if config.PrivateKey == nil {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate server key: %w", err)
		}
		config.PrivateKey = priv
	}
	if config.CertValidity == 0 {
		config.CertValidity = DefaultCertValidity
	}
	if config.MaxFrameSize == 0 {
		config.MaxFrameSize = DefaultMaxFrameSize
	}

	cert, err := GenerateCertificate(config.PrivateKey, config.CertValidity)
	if err != nil {
		return nil, err
	}
	return &Server{store: store, config: config, cert: cert}, nil
}

// PublicKey returns the key clients may pin.
func (s *Server) PublicKey() ed25519.PublicKey {
	return s.config.PrivateKey.Public().(ed25519.PublicKey)
}

// Addr returns the listening address, nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start begins accepting connections in the background.
func (s *Server) Start() error {
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{*s.cert},
		NextProtos:   []string{ALPN},
		MinVersion:   tls.VersionTLS13,
	}

	listener, err := quic.ListenAddr(s.config.ListenAddr, tlsConfig, &quic.Config{
		MaxIdleTimeout: MaxIdleTimeout,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrListenerFailed, err)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.listener = listener
	s.done = make(chan struct{})
	go func() {
		s.acceptLoop()
		close(s.done)
	}()

	log.Remote.Info().Str("addr", listener.Addr().String()).Msg("server listening")
	return nil
}

// Stop closes the listener and waits for in-flight requests to finish.
func (s *Server) Stop() error {
	if s.listener == nil {
		return ErrNotStarted
	}
	s.cancel()

	err := s.listener.Close()
	<-s.done
	s.wg.Wait()

	log.Remote.Info().Msg("server stopped")
	if err != nil {
		return fmt.Errorf("failed to close listener: %w", err)
	}
	return nil
}

// acceptLoop continuously accepts incoming connections
func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			log.Remote.Warn().Err(err).Msg("failed to accept connection")
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) handleConnection(conn quic.Connection) {
	log.Remote.Debug().Str("peer", conn.RemoteAddr().String()).Msg("connection accepted")
	for {
		stream, err := conn.AcceptStream(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				if cerr := conn.CloseWithError(0, "server stopping"); cerr != nil {
					log.Remote.Debug().Err(cerr).Msg("failed to close connection")
				}
			}
			log.Remote.Debug().Err(err).Str("peer", conn.RemoteAddr().String()).Msg("connection closed")
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.handleStream(stream); err != nil {
				log.Remote.Warn().Err(err).Msg("stream failed")
			}
		}()
	}
}

func (s *Server) handleStream(stream quic.Stream) error {
	defer stream.Close() //nolint:errcheck // closes our write side only

	data, err := readFrame(s.ctx, stream, s.config.MaxFrameSize)
	if err != nil {
		stream.CancelRead(0)
		return err
	}

	var req request
	var resp *response
	if err := decode(data, &req); err != nil {
		resp = errorResponse(err)
	} else {
		resp = s.dispatch(&req)
	}

	out, err := encode(resp)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	return writeFrame(s.ctx, stream, out)
}

func (s *Server) dispatch(req *request) *response {
	var err error
	switch req.Op {
	case opGet:
		var value []byte
		value, err = s.store.Get(req.Key)
		if err == nil {
			return &response{Found: true, Value: value}
		}
	case opPut:
		err = s.store.Put(req.Key, req.Value)
	case opDelete:
		err = s.store.Delete(req.Key)
	case opDeleteRange:
		err = s.store.DeleteRange(req.Key, end(req.End, req.HasEnd))
	case opSeek:
		return s.seek(req)
	case opCommit:
		err = s.commit(req.Ops)
	case opCompact:
		err = s.store.Compact()
	case opPreload:
		err = s.store.Preload()
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownOp, req.Op)
	}

	if err != nil {
		log.Remote.Debug().Err(err).Stringer("op", req.Op).Msg("request failed")
		return errorResponse(err)
	}
	return &response{}
}

// seek answers one positioning call on a fresh iterator.
func (s *Server) seek(req *request) *response {
	it, err := s.store.NewIterator(req.Lower, end(req.End, req.HasEnd))
	if err != nil {
		return errorResponse(err)
	}

	var found bool
	switch req.Mode {
	case seekFirst:
		found = it.First()
	case seekLast:
		found = it.Last()
	case seekGE:
		found = it.SeekGE(req.Key)
	case seekLT:
		found = it.SeekLT(req.Key)
	}

	resp := &response{Found: found}
	if found {
		resp.Key = it.Key()
		resp.Value, err = it.Value()
		if err != nil {
			it.Close() //nolint:errcheck // value error takes precedence
			return errorResponse(err)
		}
	}
	if err := it.Close(); err != nil {
		return errorResponse(err)
	}
	return resp
}

// commit applies ops as one backend batch.
func (s *Server) commit(ops []batchOp) error {
	b := s.store.NewBatch()
	defer b.Close() //nolint:errcheck // releases the batch after commit

	for _, op := range ops {
		var err error
		switch op.Op {
		case opPut:
			err = b.Put(op.Key, op.Value)
		case opDelete:
			err = b.Delete(op.Key)
		case opDeleteRange:
			err = b.DeleteRange(op.Key, end(op.End, op.HasEnd))
		default:
			err = fmt.Errorf("%w in batch: %s", ErrUnknownOp, op.Op)
		}
		if err != nil {
			return err
		}
	}
	return b.Commit()
}

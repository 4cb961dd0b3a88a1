// Package network is the QUIC ingress of the registry. Clients open one
// bidirectional stream per request and receive one reply, or push
// envelopes on unidirectional streams without waiting.
package network

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"TokenRegistry/internal/envelope"
	"TokenRegistry/internal/host"
	"TokenRegistry/internal/logger"
	"TokenRegistry/internal/registry"
)

const (
	// requestTimeout bounds the handling of one request stream.
	requestTimeout = 30 * time.Second
)

// Registry executes triggers and returns stored responses.
type Registry interface {
	Submit(ctx context.Context, data []byte) (*registry.Response, error)
	Response(unit string) (*registry.Response, error)
}

// Config holds the configuration for a Server.
type Config struct {
	PrivateKey ed25519.PrivateKey // PrivateKey is the node's TLS identity
	ListenAddr string             // ListenAddr is the address to listen on (e.g., ":9000")
	DedupTTL   time.Duration      // DedupTTL is how long pushed envelopes are remembered
}

// Server accepts QUIC connections and serves registry requests.
type Server struct {
	listenAddr string       // listenAddr is the address to listen on
	tlsConfig  *tls.Config  // tlsConfig is the TLS configuration
	quicConfig *quic.Config // quicConfig is the QUIC configuration
	registry   Registry     // registry handles requests

	listener *quic.Listener // listener is the QUIC listener
	dedup    *Dedup         // dedup filters repeated pushes

	ctx    context.Context    // ctx is the server's context
	cancel context.CancelFunc // cancel cancels the server's context
	wg     sync.WaitGroup     // wg waits for goroutines to finish
}

// NewServer creates a QUIC server for reg.
func NewServer(cfg Config, reg Registry) (*Server, error) {
	if cfg.PrivateKey == nil {
		return nil, fmt.Errorf("private key is required")
	}

	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("listen address is required")
	}

	tlsConfig, err := newTLSConfig(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		listenAddr: cfg.ListenAddr,
		tlsConfig:  tlsConfig,
		quicConfig: newQUICConfig(),
		registry:   reg,
		dedup:      NewDedup(cfg.DedupTTL),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Addr returns the listener's address. Returns empty string if not started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// Start starts accepting connections.
func (s *Server) Start() error {
	listener, err := quic.ListenAddr(s.listenAddr, s.tlsConfig, s.quicConfig)
	if err != nil {
		return fmt.Errorf("listen:\n%w", err)
	}

	s.listener = listener

	s.wg.Add(1)
	go s.acceptLoop()

	logger.Info("quic ingress started", "addr", s.Addr())

	return nil
}

// Close stops the server and waits for in-flight requests.
func (s *Server) Close() error {
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	s.wg.Wait()
	s.dedup.Close()

	return nil
}

// acceptLoop accepts incoming connections.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept(s.ctx)
		if err != nil {
			return // Listener closed
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

// serveConn serves one client connection until it closes.
func (s *Server) serveConn(conn *quic.Conn) {
	pubKey, err := extractPublicKey(conn.ConnectionState().TLS)
	if err != nil {
		conn.CloseWithError(1, "bad identity")
		return
	}

	peer := hex.EncodeToString(pubKey[:8])
	logger.Debug("client connected", "peer", peer, "addr", conn.RemoteAddr().String())

	stop := context.AfterFunc(s.ctx, func() { conn.CloseWithError(0, "shutting down") })
	defer stop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptPushes(conn, peer)
	}()

	for {
		stream, err := conn.AcceptStream(s.ctx)
		if err != nil {
			logger.Debug("client disconnected", "peer", peer, "error", err)
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleRequest(stream, peer)
		}()
	}
}

// acceptPushes accepts unidirectional streams carrying envelopes.
func (s *Server) acceptPushes(conn *quic.Conn, peer string) {
	for {
		stream, err := conn.AcceptUniStream(s.ctx)
		if err != nil {
			return
		}

		data, err := readMessage(stream)
		if err != nil {
			logger.Debug("push read error", "peer", peer, "error", err)
			continue
		}

		if !s.dedup.Check(data) {
			logger.Debug("dedup filtered", "peer", peer, "bytes", len(data))
			continue
		}

		if _, err := s.registry.Submit(s.ctx, data); err != nil {
			logger.Warn("push rejected", "peer", peer, "error", err)
		}
	}
}

// handleRequest reads one request frame and writes one reply frame.
func (s *Server) handleRequest(stream *quic.Stream, peer string) {
	defer stream.Close()

	stream.SetDeadline(time.Now().Add(requestTimeout))

	data, err := readMessage(stream)
	if err != nil {
		return
	}

	reply := s.dispatch(data)

	if err := writeMessage(stream, reply); err != nil {
		logger.Debug("reply write error", "peer", peer, "error", err)
	}
}

// dispatch executes a request frame and builds the reply frame.
func (s *Server) dispatch(data []byte) []byte {
	op, body, err := unframe(data)
	if err != nil {
		return frame(statusRejected, []byte(err.Error()))
	}

	ctx, cancel := context.WithTimeout(s.ctx, requestTimeout)
	defer cancel()

	var resp *registry.Response

	switch op {
	case opSubmit:
		resp, err = s.registry.Submit(ctx, body)
	case opResponse:
		resp, err = s.registry.Response(string(body))
	default:
		return frame(statusRejected, []byte(fmt.Sprintf("unknown op %d", op)))
	}

	switch {
	case errors.Is(err, envelope.ErrMalformed):
		return frame(statusRejected, []byte(err.Error()))
	case errors.Is(err, host.ErrUnknownUnit):
		return frame(statusNotFound, nil)
	case err != nil:
		logger.Error("request failed", "op", op, "error", err)
		return frame(statusFailed, []byte("request failed"))
	}

	encoded, err := json.Marshal(resp)
	if err != nil {
		return frame(statusFailed, []byte("encode response"))
	}

	return frame(statusOK, encoded)
}

// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/custodian-sys/custodian/consensus"
	"github.com/custodian-sys/custodian/lib/clock"
	"github.com/custodian-sys/custodian/lib/codec"
	"github.com/custodian-sys/custodian/lib/digest"
	"github.com/custodian-sys/custodian/lib/guard"
	"github.com/custodian-sys/custodian/lib/identity"
	"github.com/custodian-sys/custodian/lib/ratelimit"
)

// idleTimeout is how long a connection may sit between frames before
// the server closes it.
const idleTimeout = 5 * time.Minute

// writeTimeout is how long we wait for a response frame to be written.
const writeTimeout = 10 * time.Second

// ServerConfig wires the server's collaborators. All fields except
// Logger are required.
type ServerConfig struct {
	// SocketPath is the Unix socket to listen on. Any stale socket
	// file at this path is removed before listening.
	SocketPath string

	AllowList *identity.AllowList
	Limiter   *ratelimit.Limiter
	Scanner   *guard.Scanner
	Engine    *consensus.Engine
	Metrics   *consensus.Metrics
	Clock     clock.Clock
	Logger    *slog.Logger
}

// Server serves the consensus protocol on a Unix socket. Each
// connection is authenticated once from its kernel peer credentials,
// then handles a loop of framed requests until the client disconnects
// or a frame fails a gate that forces the connection closed.
type Server struct {
	cfg ServerConfig

	// activeConnections tracks in-flight connection handlers for
	// graceful shutdown. Serve waits for all of them before returning.
	activeConnections sync.WaitGroup
}

// NewServer creates a server from its wired collaborators.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{cfg: cfg}
}

// Serve accepts connections until ctx is cancelled, then stops
// accepting and waits for active connections to finish. The socket
// file is removed on return.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.cfg.SocketPath, err)
	}

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.SocketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.cfg.SocketPath)
	}()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.cfg.Logger.Info("consensus socket listening", "path", s.cfg.SocketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.cfg.Logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// handleConnection authenticates the peer once, then serves framed
// requests until the connection ends.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		s.cfg.Logger.Error("connection is not a unix socket", "type", fmt.Sprintf("%T", conn))
		return
	}

	creds, err := identity.PeerCredentials(unixConn)
	if err != nil {
		s.cfg.Logger.Error("reading peer credentials failed", "error", err)
		return
	}
	s.cfg.Metrics.Handshakes.Add(1)

	peer, err := s.cfg.AllowList.Authenticate(creds)
	if err != nil {
		s.cfg.Metrics.AuthRejections.Add(1)
		s.cfg.Logger.Warn("connection rejected",
			"uid", creds.UID,
			"gid", creds.GID,
			"pid", creds.PID,
			"error", err,
		)
		s.writeFailure(conn, consensus.NewError(consensus.KindAuthRejected, "identity not admitted"))
		return
	}

	s.cfg.Logger.Debug("peer authenticated",
		"node", peer.Node,
		"role", peer.Role,
		"uid", creds.UID,
		"pid", creds.PID,
	)

	for {
		if ctx.Err() != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(idleTimeout))

		frame, err := ReadFrame(conn)
		if err != nil {
			if errors.Is(err, ErrFrameTooLarge) {
				// The oversized body was never consumed, so the stream
				// is desynchronized: answer and close.
				s.cfg.Metrics.OversizedPayloads.Add(1)
				s.cfg.Logger.Warn("oversized frame refused",
					"node", peer.Node,
					"error", err,
				)
				s.writeFailure(conn, consensus.NewError(consensus.KindPayloadTooLarge, "frame exceeds %d-byte ceiling", MaxFrameSize))
			} else if !errors.Is(err, io.EOF) {
				s.cfg.Logger.Debug("connection read failed", "node", peer.Node, "error", err)
			}
			return
		}

		s.handleFrame(conn, peer, frame)
	}
}

// handleFrame runs one frame through the admission gates and, if it
// survives them, dispatches the decoded request.
func (s *Server) handleFrame(conn net.Conn, peer identity.NodeIdentity, frame []byte) {
	if admitted, retryAfter := s.cfg.Limiter.Admit(peer.Node, s.cfg.Clock.Now()); !admitted {
		s.cfg.Metrics.RateLimited.Add(1)
		s.writeFailure(conn, consensus.RateLimitedError(retryAfter))
		return
	}

	// The deny-list runs against the raw frame bytes, before any
	// parsing, so an embedded command is caught regardless of how the
	// surrounding structure encodes it. Every hit is audit-logged.
	if match := s.cfg.Scanner.Scan(frame); match != nil {
		s.cfg.Metrics.DangerousPayloads.Add(1)
		s.cfg.Logger.Warn("dangerous payload refused",
			"node", peer.Node,
			"uid", peer.Credentials.UID,
			"pid", peer.Credentials.PID,
			"pattern", match.Pattern,
			"size", len(frame),
		)
		s.writeFailure(conn, consensus.NewError(consensus.KindDangerousPayload, "payload matched deny-list pattern %q", match.Pattern))
		return
	}

	var request Request
	if err := codec.Unmarshal(frame, &request); err != nil {
		s.writeResponse(conn, Response{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}

	switch request.Action {
	case ActionSubmitObservation:
		observation := consensus.Observation{
			Round:         request.Round,
			TrustScore:    request.TrustScore,
			Facts:         request.Facts,
			PayloadDigest: digest.Sum(frame),
			ClientTime:    request.ClientTime,
		}
		status, err := s.cfg.Engine.Submit(peer.Node, observation)
		if err != nil {
			s.writeFailure(conn, err)
			return
		}
		s.writeSuccess(conn, status)

	case ActionQueryRoundStatus:
		status, err := s.cfg.Engine.Status(request.Round)
		if err != nil {
			s.writeFailure(conn, err)
			return
		}
		s.writeSuccess(conn, status)

	case ActionQueryMetrics:
		if peer.Role != identity.RoleControl {
			s.writeFailure(conn, consensus.NewError(consensus.KindAuthRejected, "metrics queries require the control role"))
			return
		}
		s.writeSuccess(conn, s.cfg.Metrics.Snapshot())

	case "":
		s.writeResponse(conn, Response{Error: "missing required field: action"})

	default:
		s.writeResponse(conn, Response{Error: fmt.Sprintf("unknown action %q", request.Action)})
	}
}

// writeSuccess sends {ok: true} with the result marshaled into the
// data field.
func (s *Server) writeSuccess(conn net.Conn, result any) {
	data, err := codec.Marshal(result)
	if err != nil {
		s.writeResponse(conn, Response{Error: fmt.Sprintf("internal: marshaling response: %v", err)})
		return
	}
	s.writeResponse(conn, Response{OK: true, Data: data})
}

// writeFailure sends a failure response, carrying the kind and
// retry-after interval when the error is classified.
func (s *Server) writeFailure(conn net.Conn, err error) {
	response := Response{Error: err.Error()}
	var classified *consensus.Error
	if errors.As(err, &classified) {
		response.Kind = classified.Kind
		response.Error = classified.Message
		response.RetryAfterMS = classified.RetryAfter.Milliseconds()
	}
	s.writeResponse(conn, response)
}

// writeResponse frames and writes a response. Write failures are
// logged at debug level: the connection is closing or the client is
// gone either way.
func (s *Server) writeResponse(conn net.Conn, response Response) {
	body, err := codec.Marshal(response)
	if err != nil {
		s.cfg.Logger.Error("marshaling response failed", "error", err)
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := WriteFrame(conn, body); err != nil {
		s.cfg.Logger.Debug("writing response failed", "error", err)
	}
}

// Package server multiplexes the wire protocol (spec §6) and the admin HTTP
// surface on a single TCP listener, following the teacher's own grpc/server.go
// split of gRPC and HTTP traffic on one port — here the wire protocol stands
// in for gRPC as the "everything else" cmux branch.
package server

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/soheilhy/cmux"

	"github.com/dqlited/dqlited/internal/catalog"
	"github.com/dqlited/dqlited/internal/consensus"
	"github.com/dqlited/dqlited/internal/gateway"
	"github.com/dqlited/dqlited/internal/pool"
	"github.com/dqlited/dqlited/internal/wire"
)

const headerSize = 8

// Server owns one listening port shared between client wire-protocol
// connections and the admin HTTP handler.
type Server struct {
	addr         string
	catalog      *catalog.Catalog
	pool         *pool.Pool
	collaborator consensus.Collaborator
	adminHandler http.Handler

	listener   net.Listener
	mux        cmux.CMux
	httpServer *http.Server

	nextClientID atomic.Uint64
}

// New constructs a Server; call Start to begin listening on addr.
func New(addr string, cat *catalog.Catalog, p *pool.Pool, collaborator consensus.Collaborator, adminHandler http.Handler) *Server {
	return &Server{
		addr:         addr,
		catalog:      cat,
		pool:         p,
		collaborator: collaborator,
		adminHandler: adminHandler,
	}
}

// Start binds addr and begins serving both listener branches in background
// goroutines. Returns once the listener is bound, before either branch has
// necessarily accepted a connection.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = lis
	s.mux = cmux.New(lis)

	httpListener := s.mux.Match(cmux.HTTP1Fast())
	wireListener := s.mux.Match(cmux.Any())

	s.httpServer = &http.Server{Handler: s.adminHandler}

	go func() {
		if err := s.httpServer.Serve(httpListener); err != nil &&
			err != http.ErrServerClosed && err != cmux.ErrListenerClosed {
			log.Error().Err(err).Msg("server: admin http listener stopped")
		}
	}()

	go s.acceptWire(wireListener)

	go func() {
		if err := s.mux.Serve(); err != nil && err != cmux.ErrListenerClosed {
			log.Error().Err(err).Msg("server: cmux stopped")
		}
	}()

	log.Info().Str("address", s.addr).Msg("server: listening (wire protocol + admin http)")
	return nil
}

func (s *Server) acceptWire(lis net.Listener) {
	for {
		conn, err := lis.Accept()
		if err != nil {
			if err != cmux.ErrListenerClosed {
				log.Debug().Err(err).Msg("server: wire listener stopped accepting")
			}
			return
		}
		clientID := s.nextClientID.Add(1)
		go s.handleConn(clientID, conn)
	}
}

func (s *Server) handleConn(clientID uint64, conn net.Conn) {
	defer conn.Close()

	gw := gateway.New(clientID, s.catalog, s.pool, s.collaborator)
	defer gw.Close()

	r := bufio.NewReader(conn)
	for {
		msg, err := readMessage(r)
		if err != nil {
			if err != io.EOF {
				log.Debug().Err(err).Uint64("client", clientID).Msg("server: connection read failed")
			}
			return
		}

		resp, err := gw.HandleRequest(context.Background(), msg)
		if err != nil {
			log.Warn().Err(err).Uint64("client", clientID).Msg("server: protocol error, closing connection")
			return
		}

		out, err := wire.Encode(resp)
		if err != nil {
			log.Error().Err(err).Uint64("client", clientID).Msg("server: failed to encode response")
			return
		}
		if _, err := conn.Write(out); err != nil {
			log.Debug().Err(err).Uint64("client", clientID).Msg("server: write failed")
			return
		}
	}
}

func readMessage(r *bufio.Reader) (wire.Message, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return wire.Message{}, err
	}
	h, err := wire.DecodeHeader(header)
	if err != nil {
		return wire.Message{}, err
	}
	body := make([]byte, h.BodyLen())
	if _, err := io.ReadFull(r, body); err != nil {
		return wire.Message{}, err
	}
	return wire.Message{Type: h.Type, Body: body}, nil
}

// Stop closes the shared listener, unwinding cmux's Serve loop and both
// accept loops hanging off it, and gives the admin HTTP server a bounded
// window to finish in-flight requests. The wire protocol has no drain
// handshake, and Stop does not close wire connections already accepted:
// each is served until its client disconnects or a read or write fails.
func (s *Server) Stop() {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(ctx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

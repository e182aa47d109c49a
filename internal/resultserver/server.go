// File: internal/resultserver/server.go
package resultserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/netutil"

	"github.com/speedtracer/breaky/internal/config"
)

const (
	handledBacklog  = 64
	shutdownTimeout = 5 * time.Second
)

// RequestOutcome tells the poller why ServeOneRequest returned.
type RequestOutcome int

const (
	OutcomeNone RequestOutcome = iota
	OutcomeHandled
	OutcomeTimedOut
)

func (o RequestOutcome) String() string {
	switch o {
	case OutcomeHandled:
		return "handled"
	case OutcomeTimedOut:
		return "timed out"
	default:
		return "none"
	}
}

// Server hosts the test content and receives the verdict POST. It accepts
// one connection at a time and closes every connection after one request.
type Server struct {
	httpServer *http.Server
	listener   net.Listener

	handled  chan struct{}
	serveErr chan error
	inFlight atomic.Int32

	mu           sync.Mutex
	verdict      Verdict
	requestCount int
}

func newServer(docRoot string) *Server {
	s := &Server{
		handled:  make(chan struct{}, handledBacklog),
		serveErr: make(chan error, 1),
	}
	s.httpServer = &http.Server{
		Handler:           s.trackRequests(NewRouter(s, docRoot)),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	s.httpServer.SetKeepAlivesEnabled(false)
	return s
}

// Start binds cfg's address and begins serving in the background.
func Start(cfg config.ServerConfig) (*Server, error) {
	addr := cfg.ListenAddress()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &BindError{Addr: addr, Err: err}
	}
	s := newServer(cfg.DocRoot)
	s.listener = netutil.LimitListener(ln, 1)

	log.Printf("ResultServer: Listening on %s, serving files from '%s'", ln.Addr(), cfg.DocRoot)
	go func() {
		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("ResultServer: Serve failed: %v", err)
			s.serveErr <- err
		}
		close(s.serveErr)
	}()
	return s, nil
}

// Handler exposes the full request pipeline, mostly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Port is the bound TCP port, which differs from the configured one when
// the configuration asked for port 0.
func (s *Server) Port() int {
	if tcp, ok := s.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// ServeOneRequest blocks until a request has been handled or timeout passes
// without one. A request that is still being read or answered when the
// timeout passes is waited for. It is the only place the driver waits.
func (s *Server) ServeOneRequest(ctx context.Context, timeout time.Duration) (RequestOutcome, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	expired := timer.C

	for {
		select {
		case <-s.handled:
			return OutcomeHandled, nil
		case <-expired:
			if s.inFlight.Load() == 0 {
				return OutcomeTimedOut, nil
			}
			log.Printf("ResultServer: Timeout passed with a request in flight, waiting for it")
			expired = nil
		case err, ok := <-s.serveErr:
			if !ok {
				return OutcomeNone, ErrServerStopped
			}
			return OutcomeNone, fmt.Errorf("result server: %w", err)
		case <-ctx.Done():
			return OutcomeNone, context.Cause(ctx)
		}
	}
}

func (s *Server) Verdict() Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verdict
}

// Decided reports whether a decisive POST has been handled.
func (s *Server) Decided() bool {
	return s.Verdict().Decided()
}

// TakeRequestCount returns the number of requests handled since the last call
// and resets the count.
func (s *Server) TakeRequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.requestCount
	s.requestCount = 0
	return n
}

// Close stops accepting requests and waits briefly for in-flight replies.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown result server: %w", err)
	}
	return nil
}

// record keeps the first decisive verdict; later ones are logged and dropped.
func (s *Server) record(v Verdict) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.verdict.Decided() {
		log.Printf("ResultServer: Ignoring %s from %s, already decided %s by %s", v.Status, v.Path, s.verdict.Status, s.verdict.Path)
		return
	}
	s.verdict = v
}

func (s *Server) requestHandled() {
	s.mu.Lock()
	s.requestCount++
	s.mu.Unlock()

	select {
	case s.handled <- struct{}{}:
	default:
	}
}

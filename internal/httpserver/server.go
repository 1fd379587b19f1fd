// Package httpserver implements spec section 4.9's HTTP server: path-exact
// handler registration, optional TLS, and scatter-buffer request body
// accumulation, wired to the host/port and certificate configuration.
package httpserver

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/privacysandbox/pbs/pkg/pbserrors"
)

// Config configures a Server's bind address and TLS posture.
type Config struct {
	Address         string
	UseTLS          bool
	CertificatePath string
	PrivateKeyPath  string
}

// Server wraps a path-exact router with optional TLS and HTTP/2 (h2c for
// cleartext), matching the "path registration maps (method, path) -> handler;
// dispatch is exact-match with 404 on miss" contract of spec section 4.9.
type Server struct {
	cfg    Config
	router *mux.Router
	log    logrus.FieldLogger

	httpSrv *http.Server
}

// New constructs a Server. All RegisterResourceHandler calls must complete
// before Run, per spec section 5's "routing table is read-only after
// startup" rule.
func New(cfg Config, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{cfg: cfg, router: mux.NewRouter(), log: log}
}

// RegisterResourceHandler registers an exact (method, path) route. The
// router's NotFoundHandler (mux's default) returns 404 for any unmatched
// combination.
func (s *Server) RegisterResourceHandler(method, path string, handler http.HandlerFunc) {
	s.router.HandleFunc(path, handler).Methods(method)
}

// Init validates TLS configuration, producing InvalidCertPath/InvalidKeyPath
// when TLS is enabled but a path is missing or does not exist.
func (s *Server) Init() error {
	if !s.cfg.UseTLS {
		return nil
	}
	if s.cfg.CertificatePath == "" {
		return pbserrors.New(pbserrors.InvalidCertPath, "certificate path is required when TLS is enabled")
	}
	if _, err := os.Stat(s.cfg.CertificatePath); err != nil {
		return pbserrors.New(pbserrors.InvalidCertPath, "certificate path %q: %v", s.cfg.CertificatePath, err)
	}
	if s.cfg.PrivateKeyPath == "" {
		return pbserrors.New(pbserrors.InvalidKeyPath, "private key path is required when TLS is enabled")
	}
	if _, err := os.Stat(s.cfg.PrivateKeyPath); err != nil {
		return pbserrors.New(pbserrors.InvalidKeyPath, "private key path %q: %v", s.cfg.PrivateKeyPath, err)
	}
	return nil
}

// Run starts serving in a background goroutine and returns immediately.
// Cleartext traffic is served over HTTP/2 via h2c; TLS traffic negotiates
// HTTP/2 through the standard library's ALPN support.
func (s *Server) Run() error {
	var handler http.Handler = s.router
	if !s.cfg.UseTLS {
		handler = h2c.NewHandler(s.router, &http2.Server{})
	}

	s.httpSrv = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.UseTLS {
			err = s.httpSrv.ListenAndServeTLS(s.cfg.CertificatePath, s.cfg.PrivateKeyPath)
		} else {
			err = s.httpSrv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("http server exited")
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(50 * time.Millisecond):
		return nil
	}
}

// Stop gracefully shuts the server down, waiting for in-flight requests to
// complete or ctx to expire.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

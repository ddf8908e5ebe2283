package serve

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/workstream-im/chat-service/internal/config"
)

// RunningServer is a bound HTTP listener plus its shutdown hook.
type RunningServer struct {
	Port      int
	server    *http.Server
	closeOnce sync.Once
}

// Close gracefully shuts the server down.
func (r *RunningServer) Close(ctx context.Context) error {
	var shutdownErr error
	r.closeOnce.Do(func() {
		if err := r.server.Shutdown(ctx); err != nil && err != context.Canceled {
			shutdownErr = err
		}
	})
	return shutdownErr
}

// StartHTTPServer binds the listener described by cfg and serves handler on
// it. Port 0 asks the OS for a free port; the bound port is reported on the
// returned RunningServer.
func StartHTTPServer(cfg config.ListenerConfig, handler http.Handler) (*RunningServer, error) {
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("listen failed: %w", err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	serveLis := lis
	if cfg.EnableTLS {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			_ = lis.Close()
			return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
		}
		serveLis = tls.NewListener(lis, &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{"h2", "http/1.1"},
			MinVersion:   tls.VersionTLS12,
		})
	}

	go func() {
		if err := srv.Serve(serveLis); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", "err", err)
		}
	}()

	return &RunningServer{
		Port:   lis.Addr().(*net.TCPAddr).Port,
		server: srv,
	}, nil
}

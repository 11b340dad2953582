package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync/atomic"

	"kickback-engine/pkg/config"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ProvideHTTPServer = fx.Module("http.server",
	fx.Provide(NewHttpServer),
	fx.Invoke(Run),
)

type Server struct {
	server   *http.Server
	cert     atomic.Pointer[tls.Certificate]
	certPath string
	keyPath  string
	watcher  *fsnotify.Watcher
}

type Params struct {
	fx.In
	Config  *config.Config
	Handler *gin.Engine
}

// NewHttpServer serves Handler on HTTP_SERVER.ADDR. With TLS enabled the key
// pair must load at startup; later changes on disk are picked up without a
// restart.
func NewHttpServer(p Params) (*Server, error) {
	cfg := p.Config
	srv := &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Addr),
			Handler:      p.Handler,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
		certPath: cfg.TLS.CertPath,
		keyPath:  cfg.TLS.KeyPath,
	}

	if cfg.TLS.Enable {
		if err := srv.loadCert(); err != nil {
			return nil, fmt.Errorf("load tls key pair: %w", err)
		}
		srv.server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
				return srv.cert.Load(), nil
			},
		}
	}

	return srv, nil
}

func (s *Server) loadCert() error {
	cert, err := tls.LoadX509KeyPair(s.certPath, s.keyPath)
	if err != nil {
		return err
	}
	s.cert.Store(&cert)
	return nil
}

// watchTLSFiles watches the directories holding the key pair so that atomic
// symlink swaps are seen as well as in-place writes. A failed reload keeps
// serving the previous certificate.
func (s *Server) watchTLSFiles() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dirs := map[string]struct{}{filepath.Dir(s.certPath): {}, filepath.Dir(s.keyPath): {}}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return err
		}
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.loadCert(); err != nil {
					zap.L().Warn("failed to reload TLS cert, keeping previous", zap.String("event", event.String()), zap.Error(err))
					continue
				}
				zap.L().Info("TLS certificate reloaded", zap.String("event", event.String()))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				zap.L().Error("tls watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

func Run(lc fx.Lifecycle, srv *Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.server.Addr)
			if err != nil {
				return err
			}

			if srv.server.TLSConfig != nil {
				if err := srv.watchTLSFiles(); err != nil {
					zap.L().Warn("tls hot reload disabled", zap.Error(err))
				}
			}

			go func() {
				var err error
				if srv.server.TLSConfig != nil {
					zap.L().Info("Starting HTTP server with tls", zap.String("addr", ln.Addr().String()))
					err = srv.server.ServeTLS(ln, "", "")
				} else {
					zap.L().Info("Starting HTTP server without tls", zap.String("addr", ln.Addr().String()))
					err = srv.server.Serve(ln)
				}
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					zap.L().Error("HTTP server stopped", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			zap.L().Info("Shutting down HTTP server gracefully...")
			if srv.watcher != nil {
				_ = srv.watcher.Close()
			}
			return srv.server.Shutdown(ctx)
		},
	})
}

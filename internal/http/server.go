package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"moff.io/wallet-bridge/internal/appkit"
	"moff.io/wallet-bridge/internal/bridge"
	"moff.io/wallet-bridge/internal/config"
	"moff.io/wallet-bridge/internal/transport"
	"moff.io/wallet-bridge/pkg/errors"
	"moff.io/wallet-bridge/pkg/log"
	"moff.io/wallet-bridge/pkg/log/middleware"
)

const shutdownTimeout = 5 * time.Second

// Server exposes the modal facade to host tooling.
type Server struct {
	conf     config.HTTP
	kit      *appkit.AppKit
	hub      *bridge.Hub
	selector *transport.Selector
	limiter  Limiter
	router   *gin.Engine
}

type ServerOption func(*Server)

// WithOnRampLimiter throttles the on-ramp endpoints per client ip.
func WithOnRampLimiter(l Limiter) ServerOption {
	return func(s *Server) { s.limiter = l }
}

func NewServer(conf config.HTTP, kit *appkit.AppKit, hub *bridge.Hub, selector *transport.Selector, opts ...ServerOption) *Server {
	if selector == nil {
		selector = transport.NewSelector(nil)
	}
	s := &Server{conf: conf, kit: kit, hub: hub, selector: selector}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(middleware.RecoveredHTTPLog())

	// The bridge socket outlives any request timeout.
	router.GET("/v1/bridge", func(ctx *gin.Context) {
		s.hub.ServeHTTP(ctx.Writer, ctx.Request)
	})

	v1 := router.Group("/v1", middleware.TimeoutHTTP(s.conf.RequestTimeout))
	v1.GET("/health", s.health)
	v1.POST("/appkit/init", s.initAppKit)
	v1.GET("/configs/:key", s.getConfig)
	v1.POST("/configs/:key", s.createConfig)
	v1.GET("/chains", s.listChains)
	v1.GET("/session", s.session)
	v1.DELETE("/storage", s.clearStorage)

	modal := v1.Group("/modal")
	modal.POST("/open", s.modalAction(s.kit.Open))
	modal.POST("/close", s.modalAction(s.kit.Close))
	modal.POST("/activity", s.modalAction(s.kit.OpenActivity))
	modal.POST("/buy", s.modalAction(s.kit.OpenBuyCrypto))

	onRamp := v1.Group("/onramp", rateLimited(s.limiter))
	onRamp.POST("", s.openOnRamp)
	onRamp.GET("/qr", s.onRampQRCode)
	v1.POST("/transports/select", s.selectTransport)
	return router
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.conf.Address, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("http - listening on %s", s.conf.Address)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown http server")
	}
	log.Info("http - server stopped")
	return nil
}

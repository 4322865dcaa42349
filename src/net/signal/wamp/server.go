package wamp

import (
	"context"
	"crypto/tls"
	"net/http"

	"github.com/gammazero/nexus/v3/router"
	"github.com/gammazero/nexus/v3/wamp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Server hosts a WAMP router over WebSockets. Connected clients make RPC
// requests to one-another through it, and WAMP channels publish to it.
type Server struct {
	address    string
	router     router.Router
	httpServer *http.Server
	secure     bool
	logger     *logrus.Entry
}

// NewServer instantiates a new Server which can be run at a specified address.
// With an empty certFile the server speaks plain WebSockets.
func NewServer(address string,
	realm string,
	certFile string,
	keyFile string,
	logger *logrus.Entry) (*Server, error) {

	routerConfig := &router.Config{
		RealmConfigs: []*router.RealmConfig{
			{
				URI:           wamp.URI(realm),
				AnonymousAuth: true,
			},
		},
	}

	nxr, err := router.NewRouter(routerConfig, logger)
	if err != nil {
		return nil, errors.Wrap(err, "creating router")
	}

	httpServer := &http.Server{
		Handler: router.NewWebsocketServer(nxr),
		Addr:    address,
	}

	if certFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			nxr.Close()
			return nil, errors.Wrap(err, "loading X509 key pair")
		}
		httpServer.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
		}
	}

	return &Server{
		address:    address,
		router:     nxr,
		httpServer: httpServer,
		secure:     certFile != "",
		logger:     logger,
	}, nil
}

// Run serves WebSockets until Shutdown is called.
func (s *Server) Run() error {
	var err error
	if s.secure {
		// The certificates are already loaded in the TLSConfig
		err = s.httpServer.ListenAndServeTLS("", "")
	} else {
		err = s.httpServer.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		s.logger.WithError(err).Error("Run")
		return err
	}
	return nil
}

// Shutdown stops the websocket server, and the wamp router
func (s *Server) Shutdown() {
	defer s.router.Close()

	if err := s.httpServer.Shutdown(context.Background()); err != nil {
		s.logger.WithError(err).Error("Shutting down http server")
	}
}

// Addr returns the address of the server
func (s *Server) Addr() string {
	return s.address
}

// Router returns the underlying router, which in-process clients can connect
// to directly.
func (s *Server) Router() router.Router {
	return s.router
}

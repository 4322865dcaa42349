package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mosaicnetworks/tabsync/src/net/signal/wamp"
	"github.com/spf13/cobra"
)

var (
	routerTLS bool
)

// NewRouterCmd returns the command that runs a WAMP router. The router relays
// envelopes between wamp channels and signalling messages between webrtc
// channels.
func NewRouterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "router",
		Short:   "Run a WAMP router for wamp and webrtc channels",
		PreRunE: loadConfig,
		RunE:    runRouter,
	}
	AddRouterFlags(cmd)
	return cmd
}

//AddRouterFlags adds flags to the Router command
func AddRouterFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", _config.Tabsync.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Tabsync.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("router-addr", _config.Tabsync.RouterAddr, "Listen IP:Port of the router")
	cmd.Flags().String("realm", _config.Tabsync.Realm, "Administrative routing domain")
	cmd.Flags().BoolVar(&routerTLS, "tls", false, "Serve wss:// with cert.pem and key.pem from the datadir")
}

// runRouter starts the WAMP server and waits for a SIGINT or SIGTERM
func runRouter(cmd *cobra.Command, args []string) error {
	certFile, keyFile := "", ""
	if routerTLS {
		certFile = _config.Tabsync.CertFile()
		keyFile = _config.Tabsync.KeyFile()
	}

	logger := _config.Tabsync.Logger()

	server, err := wamp.NewServer(
		_config.Tabsync.RouterAddr,
		_config.Tabsync.Realm,
		certFile,
		keyFile,
		logger,
	)
	if err != nil {
		return err
	}

	go server.Run()

	logger.WithField("addr", server.Addr()).Info("Router running")

	//Prepare sigCh to relay SIGINT and SIGTERM system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh

	server.Shutdown()

	return nil
}

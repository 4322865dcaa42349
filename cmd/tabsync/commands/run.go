package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mosaicnetworks/tabsync/src/store"
	"github.com/mosaicnetworks/tabsync/src/tabsync"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a tabsync context
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run a context and edit its state from stdin (key=value)",
		PreRunE: loadConfig,
		RunE:    runTabsync,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runTabsync(cmd *cobra.Command, args []string) error {
	st := store.New(func() store.State { return store.State{} })

	if !_config.Quiet {
		st.Subscribe(func(state, prev store.State) {
			out, err := json.Marshal(state)
			if err != nil {
				return
			}
			fmt.Println(string(out))
		})
	}

	engine := tabsync.NewTabsync(&_config.Tabsync, st)

	if err := engine.Init(); err != nil {
		_config.Tabsync.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	go engine.Run()

	go readAssignments(engine)

	//Prepare sigCh to relay SIGINT and SIGTERM system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh

	engine.Shutdown()

	return nil
}

// readAssignments applies key=value lines from stdin to the shared state.
func readAssignments(engine *tabsync.Tabsync) {
	logger := _config.Tabsync.Logger()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		key, value, err := parseAssignment(line)
		if err != nil {
			logger.WithError(err).Warn("Ignoring input")
			continue
		}

		if err := engine.Node.Set(store.Assign(store.State{key: value})); err != nil {
			logger.WithError(err).Error("Set")
		}
	}
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.Tabsync.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Tabsync.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().Bool("log-files", _config.LogFiles, "Mirror info and debug logs to files in the datadir")
	cmd.Flags().Bool("quiet", _config.Quiet, "Do not print state changes")

	// Channel
	cmd.Flags().String("channel", _config.Tabsync.Channel, "wamp, tcp or webrtc")
	cmd.Flags().String("addr", _config.Tabsync.Addr, "Address of the context for wamp and webrtc channels")
	cmd.Flags().String("origin", _config.Tabsync.Origin, "Origin of the context")
	cmd.Flags().StringSlice("peers", _config.Tabsync.Peers, "Addresses of neighbouring contexts")
	cmd.Flags().StringP("listen", "l", _config.Tabsync.BindAddr, "Listen IP:Port for the tcp channel")
	cmd.Flags().StringP("advertise", "a", _config.Tabsync.AdvertiseAddr, "Advertise IP:Port for the tcp channel")
	cmd.Flags().DurationP("timeout", "t", _config.Tabsync.TCPTimeout, "Dial, write and call timeout")
	cmd.Flags().Int("max-pool", _config.Tabsync.MaxPool, "Connection pool size max")

	// Router
	cmd.Flags().String("router-addr", _config.Tabsync.RouterAddr, "IP:Port of the WAMP router")
	cmd.Flags().Bool("router-secure", _config.Tabsync.RouterSecure, "Connect to the router with wss://")
	cmd.Flags().String("realm", _config.Tabsync.Realm, "Administrative routing domain")
	cmd.Flags().Bool("skip-verify", _config.Tabsync.SkipVerify, "Skip verification of the router's certificate")
	cmd.Flags().String("ice-addr", _config.Tabsync.ICEAddress, "URL of a STUN or TURN server")
	cmd.Flags().String("ice-username", _config.Tabsync.ICEUsername, "Username for the ICE server")
	cmd.Flags().String("ice-password", _config.Tabsync.ICEPassword, "Password for the ICE server")

	// Service
	cmd.Flags().Bool("no-service", _config.Tabsync.NoService, "Disable the HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.Tabsync.ServiceAddr, "Listen IP:Port for HTTP service")

	// Journal
	cmd.Flags().Bool("journal", _config.Tabsync.Journal, "Record envelopes in a badger journal")
	cmd.Flags().String("journal-dir", _config.Tabsync.JournalDir, "Journal directory")
	cmd.Flags().Int("journal-capacity", _config.Tabsync.JournalCapacity, "Size of the in-memory journal")

	// Node configuration
	cmd.Flags().String("name", _config.Tabsync.Node.Name, "Channel name shared by the contexts")
	cmd.Flags().StringSlice("target-origins", _config.Tabsync.Node.TargetOriginURLs, "Origin allow-list (* for any)")
	cmd.Flags().StringSlice("target-frames", _config.Tabsync.Node.TargetElementIFrameIDs, "Element ids of the frames to post to")
	cmd.Flags().Duration("main-timeout", _config.Tabsync.Node.MainTimeout, "Wait for a reply before becoming leader")
	cmd.Flags().Bool("unsync", _config.Tabsync.Node.Unsync, "Never broadcast local changes")
	cmd.Flags().Bool("skip-serialization", _config.Tabsync.Node.SkipSerialization, "Do not clone the state before posting")
	cmd.Flags().Bool("gossip", _config.Tabsync.Node.Gossip, "Forward accepted envelopes to own peers")
	cmd.Flags().Bool("election", _config.Tabsync.Node.Election, "Elect a leader and assign participant ids")
	cmd.Flags().Duration("dedup-ttl", _config.Tabsync.Node.DedupTTL, "How long processed ids are remembered")
	cmd.Flags().Int("dedup-capacity", _config.Tabsync.Node.DedupCapacity, "Max number of processed ids remembered")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --journal-dir, this will
	// update the default journal dir to be inside the new datadir
	_config.Tabsync.SetDataDir(_config.Tabsync.DataDir)

	if _config.LogFiles {
		addFileHooks(_config.Tabsync.Logger().Logger, _config.Tabsync.DataDir)
	}

	logFields := logrus.Fields{
		"tabsync.DataDir":       _config.Tabsync.DataDir,
		"tabsync.Channel":       _config.Tabsync.Channel,
		"tabsync.Addr":          _config.Tabsync.Addr,
		"tabsync.Origin":        _config.Tabsync.Origin,
		"tabsync.Peers":         _config.Tabsync.Peers,
		"tabsync.BindAddr":      _config.Tabsync.BindAddr,
		"tabsync.AdvertiseAddr": _config.Tabsync.AdvertiseAddr,
		"tabsync.RouterAddr":    _config.Tabsync.RouterAddr,
		"tabsync.Realm":         _config.Tabsync.Realm,
		"tabsync.ServiceAddr":   _config.Tabsync.ServiceAddr,
		"tabsync.Journal":       _config.Tabsync.Journal,
		"tabsync.LogLevel":      _config.Tabsync.LogLevel,
		"node.Name":             _config.Tabsync.Node.Name,
		"node.TargetOrigins":    _config.Tabsync.Node.TargetOriginURLs,
		"node.MainTimeout":      _config.Tabsync.Node.MainTimeout,
		"node.Gossip":           _config.Tabsync.Node.Gossip,
		"node.Election":         _config.Tabsync.Node.Election,
	}

	if _config.Tabsync.Journal {
		logFields["tabsync.JournalDir"] = _config.Tabsync.JournalDir
	}

	_config.Tabsync.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/tabsync.toml (.json, .yaml also work)
	viper.SetConfigName("tabsync")               // name of config file (without extension)
	viper.AddConfigPath(_config.Tabsync.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Tabsync.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Tabsync.Logger().Debugf("No config file found in: %s", _config.Tabsync.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}

// addFileHooks mirrors info and debug logs to tabsync_info.log and
// tabsync_debug.log.
func addFileHooks(logger *logrus.Logger, dir string) {
	pathMap := lfshook.PathMap{}

	for level, name := range map[logrus.Level]string{
		logrus.InfoLevel:  "tabsync_info.log",
		logrus.DebugLevel: "tabsync_debug.log",
	} {
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			logger.Infof("Failed to open %s file, using default stderr", path)
			continue
		}
		f.Close()
		pathMap[level] = path
	}

	logger.Hooks.Add(lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	))
}

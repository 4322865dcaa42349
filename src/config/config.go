package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/mosaicnetworks/tabsync/src/common"
	"github.com/mosaicnetworks/tabsync/src/node"
	webrtc "github.com/pion/webrtc/v2"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultJournalDir is the default name of the folder containing the
	// Badger journal.
	DefaultJournalDir = "journal_db"

	// DefaultCertFile is the default name of the file containing the TLS
	// certificate of the WAMP router.
	DefaultCertFile = "cert.pem"

	// DefaultKeyFile is the default name of the file containing the private
	// key of the WAMP router's certificate.
	DefaultKeyFile = "key.pem"
)

// Channel kinds.
const (
	// InmemChannel attaches the context to an in-process window graph.
	InmemChannel = "inmem"
	// WAMPChannel publishes envelopes through a WAMP router.
	WAMPChannel = "wamp"
	// TCPChannel streams envelopes over TCP connections.
	TCPChannel = "tcp"
	// WebRTCChannel streams envelopes over WebRTC data channels, signalled
	// through a WAMP router.
	WebRTCChannel = "webrtc"
)

// Default configuration values.
const (
	DefaultLogLevel        = "debug"
	DefaultChannel         = WAMPChannel
	DefaultOrigin          = "http://localhost"
	DefaultBindAddr        = "127.0.0.1:1337"
	DefaultServiceAddr     = "127.0.0.1:8000"
	DefaultRouterAddr      = "127.0.0.1:2443"
	DefaultRealm           = "tabsync"
	DefaultSkipVerify      = false
	DefaultTCPTimeout      = 1000 * time.Millisecond
	DefaultMaxPool         = 2
	DefaultJournal         = false
	DefaultJournalCapacity = 1000
	DefaultICEAddress      = "stun:stun.l.google.com:19302"
	DefaultICEUsername     = ""
	DefaultICEPassword     = ""
	DefaultPrefix          = "tabsync"
	DefaultNoService       = false
	DefaultRouterSecure    = false
)

// Config contains all the configuration properties of a tabsync context.
type Config struct {
	// DataDir is the top-level directory containing tabsync configuration and
	// data.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// Channel selects the transport: inmem, wamp, tcp or webrtc.
	Channel string `mapstructure:"channel"`

	// Addr is the address of the context. With WAMP and WebRTC it is the
	// identifier other contexts use to reach this one; a random one is picked
	// when empty. With TCP it is ignored in favour of AdvertiseAddr.
	Addr string `mapstructure:"addr"`

	// Origin is the origin of the local context, checked by peers against
	// their allow-list.
	Origin string `mapstructure:"origin"`

	// BindAddr is the local address:port where the TCP channel listens.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// contexts with the TCP channel.
	AdvertiseAddr string `mapstructure:"advertise"`

	// Peers are additional neighbours, as addresses with the local origin.
	// They are merged with the ones found in peers.json.
	Peers []string `mapstructure:"peers"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// RouterAddr is the host:port of the WAMP router, used by the wamp and
	// webrtc channels.
	RouterAddr string `mapstructure:"router-addr"`

	// RouterSecure selects wss:// instead of ws:// to reach the router.
	RouterSecure bool `mapstructure:"router-secure"`

	// Realm is an administrative domain within the WAMP router. Envelopes and
	// WebRTC signalling messages are only routed within a realm.
	Realm string `mapstructure:"realm"`

	// SkipVerify controls whether the router client verifies the server's
	// certificate chain and host name. This should be used only for testing.
	SkipVerify bool `mapstructure:"skip-verify"`

	// MaxPool controls how many connections are pooled per peer by stream
	// channels.
	MaxPool int `mapstructure:"max-pool"`

	// TCPTimeout is the dial and write timeout of stream channels, and the
	// response timeout of WAMP calls.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// Journal activates the Badger envelope journal. The journal is wiped
	// every time the context starts.
	Journal bool `mapstructure:"journal"`

	// JournalDir is the directory containing the journal files.
	JournalDir string `mapstructure:"journal-dir"`

	// JournalCapacity bounds the in-memory journal used when Journal is
	// false.
	JournalCapacity int `mapstructure:"journal-capacity"`

	// ICE address is the URI of a server providing services for ICE, such as
	// STUN and TURN.
	ICEAddress string `mapstructure:"ice-addr"`

	// ICEUsername is the username used to authenticate with the ICE server.
	ICEUsername string `mapstructure:"ice-username"`

	// ICEPassword is the password used to authenticate with the ICE server.
	ICEPassword string `mapstructure:"ice-password"`

	// Node holds the synchronization options.
	Node node.Config `mapstructure:",squash"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	nodeConf := node.DefaultConfig()
	nodeConf.Logger = nil

	config := &Config{
		DataDir:         DefaultDataDir(),
		LogLevel:        DefaultLogLevel,
		Channel:         DefaultChannel,
		Origin:          DefaultOrigin,
		BindAddr:        DefaultBindAddr,
		NoService:       DefaultNoService,
		ServiceAddr:     DefaultServiceAddr,
		RouterAddr:      DefaultRouterAddr,
		RouterSecure:    DefaultRouterSecure,
		Realm:           DefaultRealm,
		SkipVerify:      DefaultSkipVerify,
		MaxPool:         DefaultMaxPool,
		TCPTimeout:      DefaultTCPTimeout,
		Journal:         DefaultJournal,
		JournalDir:      DefaultJournalDirPath(),
		JournalCapacity: DefaultJournalCapacity,
		ICEAddress:      DefaultICEAddress,
		ICEUsername:     DefaultICEUsername,
		ICEPassword:     DefaultICEPassword,
		Node:            *nodeConf,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests. It uses the inmem channel and no HTTP service.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.Channel = InmemChannel
	config.NoService = true
	config.Node.TargetOriginURLs = []string{"*"}
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level tabsync directory, and updates the journal
// directory if it is currently set to the default value.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.JournalDir == DefaultJournalDirPath() {
		c.JournalDir = filepath.Join(dataDir, DefaultJournalDir)
	}
}

// CertFile returns the full path of the file containing the router's TLS
// certificate.
func (c *Config) CertFile() string {
	return filepath.Join(c.DataDir, DefaultCertFile)
}

// KeyFile returns the full path of the file containing the router's TLS key.
func (c *Config) KeyFile() string {
	return filepath.Join(c.DataDir, DefaultKeyFile)
}

// RouterURL returns the WebSocket URL of the WAMP router.
func (c *Config) RouterURL() string {
	if c.RouterSecure {
		return "wss://" + c.RouterAddr
	}
	return "ws://" + c.RouterAddr
}

// ICEServers returns a list of ICE servers used by the WebRTCStreamLayer to
// connect to peers. The list contains a single item which is based on the
// configuration passed through the config object.
func (c *Config) ICEServers() []webrtc.ICEServer {
	return []webrtc.ICEServer{
		{
			URLs:           []string{c.ICEAddress},
			Username:       c.ICEUsername,
			Credential:     c.ICEPassword,
			CredentialType: webrtc.ICECredentialTypePassword,
		},
	}
}

// NodeConfig returns the synchronization options with the logger set.
func (c *Config) NodeConfig() *node.Config {
	conf := c.Node
	conf.Logger = c.Logger().Logger
	return &conf
}

// Logger returns a formatted logrus Entry, with prefix set to "tabsync".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", DefaultPrefix)
}

// DefaultJournalDirPath returns the default path for the badger journal.
func DefaultJournalDirPath() string {
	return filepath.Join(DefaultDataDir(), DefaultJournalDir)
}

// DefaultDataDir return the default directory name for top-level tabsync
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Tabsync")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Tabsync")
		} else {
			return filepath.Join(home, ".tabsync")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}

package node

import (
	"testing"
	"time"

	"github.com/mosaicnetworks/tabsync/src/common"
	"github.com/mosaicnetworks/tabsync/src/dedup"
	"github.com/mosaicnetworks/tabsync/src/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// DefaultMainTimeout is how long a node waits for an authoritative reply
// before promoting itself.
const DefaultMainTimeout = 100 * time.Millisecond

// PartializeFunc projects the full state to the subset that is shared.
type PartializeFunc func(store.State) store.State

// MergeFunc combines the local state with a received one.
type MergeFunc func(local, remote store.State) store.State

// Config contains the configuration of a Node.
type Config struct {
	// Name is the channel discriminator. Nodes with different names ignore
	// each other. It defaults to the store's name.
	Name string `mapstructure:"name"`

	// TargetOriginURLs is the origin allow-list, for inbound and outbound
	// messages. "*" accepts any origin. Empty means the channel's own origin.
	TargetOriginURLs []string `mapstructure:"target-origins"`

	// TargetElementIFrameIDs restricts the embedded frames envelopes are
	// posted to.
	TargetElementIFrameIDs []string `mapstructure:"target-frames"`

	MainTimeout       time.Duration `mapstructure:"main-timeout"`
	Unsync            bool          `mapstructure:"unsync"`
	SkipSerialization bool          `mapstructure:"skip-serialization"`
	Gossip            bool          `mapstructure:"gossip"`
	Election          bool          `mapstructure:"election"`
	DedupTTL          time.Duration `mapstructure:"dedup-ttl"`
	DedupCapacity     int           `mapstructure:"dedup-capacity"`

	Partialize   PartializeFunc  `mapstructure:"-"`
	Merge        MergeFunc       `mapstructure:"-"`
	OnBecomeMain func(id int)    `mapstructure:"-"`
	OnTabsChange func(ids []int) `mapstructure:"-"`

	// Registry receives the node's metrics. A private registry is created
	// when nil.
	Registry *prometheus.Registry `mapstructure:"-"`

	Logger *logrus.Logger `mapstructure:"-"`
}

// DefaultConfig returns the default node configuration.
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		MainTimeout:   DefaultMainTimeout,
		Gossip:        true,
		Election:      true,
		DedupTTL:      dedup.DefaultTTL,
		DedupCapacity: dedup.DefaultCapacity,
		Merge:         ShallowMerge,
		Logger:        logger,
	}
}

// TestConfig returns the default configuration with a logger that writes to
// the test log, and wildcard origins.
func TestConfig(t testing.TB) *Config {
	config := DefaultConfig()
	config.TargetOriginURLs = []string{"*"}
	config.Logger = common.NewTestLogger(t, common.TestLogLevel)
	return config
}

func (c *Config) merge() MergeFunc {
	if c.Merge == nil {
		return ShallowMerge
	}
	return c.Merge
}

func (c *Config) mainTimeout() time.Duration {
	if c.MainTimeout <= 0 {
		return DefaultMainTimeout
	}
	return c.MainTimeout
}

// Package config defines the configuration of a tabsync context.
//
// Regardless of how tabsync is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// options, tabsync relies on a data directory, defined by Config.DataDir,
// where it expects to find a few additional files:
//
//  peers.json // (optional) the neighbours of a networked context (cf. package peers).
//  cert.pem // (optional) an x509 certificate for the WAMP router.
//  tabsync.toml // (optional) configuration file read by the CLI.
package config

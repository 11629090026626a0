// Package config holds the validated configuration structs for dispatchd's
// two binaries, following dbspgraph's MasterConfig/WorkerConfig +
// Validate() pattern.
package config

import (
	"io/ioutil"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// ServerConfig encapsulates the configuration options for the dispatchd
// server.
type ServerConfig struct {
	// ListenAddress is the TCP address for the client request/reply
	// endpoint (spec §6's server request/reply endpoint).
	ListenAddress string

	// BroadcastAddress is the TCP address the broadcast publisher binds.
	BroadcastAddress string

	// BootstrapAddress is the TCP address the HELLO-ack bootstrap RPC
	// listens on.
	BootstrapAddress string

	// MetricsAddress is the TCP address the /metrics HTTP endpoint binds.
	// Empty disables the metrics server.
	MetricsAddress string

	// Logger is the base logger entry new components derive from. If nil,
	// a null logger is used.
	Logger *logrus.Entry
}

// Validate the config options, defaulting Logger to a null logger.
func (cfg *ServerConfig) Validate() error {
	var err error
	if cfg.ListenAddress == "" {
		err = multierror.Append(err, xerrors.Errorf("listen address not specified"))
	}
	if cfg.BroadcastAddress == "" {
		err = multierror.Append(err, xerrors.Errorf("broadcast address not specified"))
	}
	if cfg.BootstrapAddress == "" {
		err = multierror.Append(err, xerrors.Errorf("bootstrap address not specified"))
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return err
}

// WorkerConfig encapsulates the configuration options for the reference
// worker binary.
type WorkerConfig struct {
	// ListenAddress is the address this worker advertises to the server
	// during registration, and where it serves INVOKE requests.
	ListenAddress string

	// ServerAddress is the dispatchd server's request/reply endpoint.
	ServerAddress string

	// BroadcastAddress is the dispatchd server's broadcast endpoint.
	BroadcastAddress string

	// BootstrapAddress is the dispatchd server's HELLO-ack endpoint.
	BootstrapAddress string

	Logger *logrus.Entry
}

// Validate the config options, defaulting Logger to a null logger.
func (cfg *WorkerConfig) Validate() error {
	var err error
	if cfg.ListenAddress == "" {
		err = multierror.Append(err, xerrors.Errorf("worker listen address not specified"))
	}
	if cfg.ServerAddress == "" {
		err = multierror.Append(err, xerrors.Errorf("server address not specified"))
	}
	if cfg.BroadcastAddress == "" {
		err = multierror.Append(err, xerrors.Errorf("broadcast address not specified"))
	}
	if cfg.BootstrapAddress == "" {
		err = multierror.Append(err, xerrors.Errorf("bootstrap address not specified"))
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return err
}

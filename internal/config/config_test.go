package config_test

import (
	"testing"

	gc "gopkg.in/check.v1"

	"github.com/dispatchd/dispatchd/internal/config"
)

func Test(t *testing.T) {
	gc.TestingT(t)
}

var _ = gc.Suite(new(ConfigTestSuite))

type ConfigTestSuite struct{}

func (s *ConfigTestSuite) TestServerConfigValidateRejectsMissingAddresses(c *gc.C) {
	cfg := config.ServerConfig{}
	err := cfg.Validate()
	c.Assert(err, gc.Not(gc.IsNil))
	c.Assert(cfg.Logger, gc.Not(gc.IsNil))
}

func (s *ConfigTestSuite) TestServerConfigValidateAccepts(c *gc.C) {
	cfg := config.ServerConfig{
		ListenAddress:    "127.0.0.1:1234",
		BroadcastAddress: "127.0.0.1:5240",
		BootstrapAddress: "127.0.0.1:5241",
	}
	c.Assert(cfg.Validate(), gc.IsNil)
}

func (s *ConfigTestSuite) TestWorkerConfigValidateRejectsMissingAddresses(c *gc.C) {
	cfg := config.WorkerConfig{}
	c.Assert(cfg.Validate(), gc.Not(gc.IsNil))
}

package server

import (
	"fmt"

	"github.com/openmined/syncmirror/internal/server/auth"
)

const DefaultAddr = "127.0.0.1:8080"

type Config struct {
	Http    HttpConfig  `mapstructure:"http"`
	DataDir string      `mapstructure:"data_dir"`
	Auth    auth.Config `mapstructure:"auth"`
}

type HttpConfig struct {
	Addr     string `mapstructure:"addr"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

func (c *Config) Validate() error {
	if c.Http.Addr == "" {
		c.Http.Addr = DefaultAddr
	}
	if c.DataDir == "" {
		return fmt.Errorf("`data_dir` is required")
	}
	if (c.Http.CertFile == "") != (c.Http.KeyFile == "") {
		return fmt.Errorf("both `http.cert_file` and `http.key_file` are required for tls")
	}
	return c.Auth.Validate()
}

package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/openmined/syncmirror/internal/utils"
	"github.com/spf13/viper"
)

const (
	BackendDir   = "dir"
	BackendS3    = "s3"
	BackendMinio = "minio"
	BackendHTTP  = "http"

	EnvPrefix = "SYNCMIRROR"
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigDir   = filepath.Join(home, ".syncmirror")
	DefaultConfigPath  = filepath.Join(DefaultConfigDir, "config.json")
	DefaultLogFilePath = filepath.Join(DefaultConfigDir, "logs", "syncmirror.log")
	DefaultTokenFile   = filepath.Join(DefaultConfigDir, "tokens.json")
	DefaultLocalDir    = filepath.Join(home, "SyncMirror")
	DefaultServerURL   = "http://127.0.0.1:8080"
	DefaultRemoteRoot  = ".db"
	DefaultBackend     = BackendDir

	backends = []string{BackendDir, BackendS3, BackendMinio, BackendHTTP}
)

type Config struct {
	LocalDir     string `json:"local_dir" mapstructure:"local_dir"`
	RemoteRoot   string `json:"remote_root" mapstructure:"remote_root"`
	MetadataFile string `json:"metadata_file,omitempty" mapstructure:"metadata_file"`
	MachineID    string `json:"machine_id,omitempty" mapstructure:"machine_id"`
	IgnoreFile   string `json:"ignore_file,omitempty" mapstructure:"ignore_file"`
	LogFile      string `json:"log_file,omitempty" mapstructure:"log_file"`

	Backend string      `json:"backend" mapstructure:"backend"`
	Dir     DirConfig   `json:"dir" mapstructure:"dir"`
	S3      S3Config    `json:"s3" mapstructure:"s3"`
	Minio   MinioConfig `json:"minio" mapstructure:"minio"`
	HTTP    HTTPConfig  `json:"http" mapstructure:"http"`

	Path string `json:"-" mapstructure:"-"`
}

type DirConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

type S3Config struct {
	Bucket    string `json:"bucket" mapstructure:"bucket"`
	Region    string `json:"region" mapstructure:"region"`
	Endpoint  string `json:"endpoint,omitempty" mapstructure:"endpoint"`
	AccessKey string `json:"access_key,omitempty" mapstructure:"access_key"`
	SecretKey string `json:"secret_key,omitempty" mapstructure:"secret_key"`
}

type MinioConfig struct {
	Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
	Bucket    string `json:"bucket" mapstructure:"bucket"`
	AccessKey string `json:"access_key,omitempty" mapstructure:"access_key"`
	SecretKey string `json:"secret_key,omitempty" mapstructure:"secret_key"`
	Secure    bool   `json:"secure" mapstructure:"secure"`
}

type HTTPConfig struct {
	ServerURL string `json:"server_url" mapstructure:"server_url"`
	TokenFile string `json:"token_file,omitempty" mapstructure:"token_file"`
}

// Validate fills in defaults and resolves paths. Backend specific fields are
// checked by the backend itself when it is opened.
func (c *Config) Validate() error {
	var err error

	if c.LocalDir == "" {
		c.LocalDir = DefaultLocalDir
	}
	if c.LocalDir, err = utils.ResolvePath(c.LocalDir); err != nil {
		return fmt.Errorf("local dir: %w", err)
	}

	if c.RemoteRoot == "" {
		c.RemoteRoot = DefaultRemoteRoot
	}
	if strings.ContainsAny(c.RemoteRoot, `/\`) {
		return fmt.Errorf("remote root %q must be a single folder name", c.RemoteRoot)
	}

	for _, p := range []*string{&c.MetadataFile, &c.IgnoreFile, &c.LogFile, &c.Path} {
		if *p == "" {
			continue
		}
		if *p, err = utils.ResolvePath(*p); err != nil {
			return err
		}
	}

	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	c.Backend = strings.ToLower(c.Backend)
	if !slices.Contains(backends, c.Backend) {
		return fmt.Errorf("unknown backend %q, expected one of %s", c.Backend, strings.Join(backends, ", "))
	}

	switch c.Backend {
	case BackendDir:
		if c.Dir.Path == "" {
			return errors.New("`dir.path` is required for the dir backend")
		}
		if c.Dir.Path, err = utils.ResolvePath(c.Dir.Path); err != nil {
			return fmt.Errorf("dir path: %w", err)
		}
		if c.Dir.Path == c.LocalDir {
			return errors.New("`dir.path` must differ from the local dir")
		}
	case BackendHTTP:
		if c.HTTP.ServerURL == "" {
			c.HTTP.ServerURL = DefaultServerURL
		}
		if err := validateURL(c.HTTP.ServerURL); err != nil {
			return fmt.Errorf("server url: %w", err)
		}
		if c.HTTP.TokenFile == "" {
			c.HTTP.TokenFile = DefaultTokenFile
		}
		if c.HTTP.TokenFile, err = utils.ResolvePath(c.HTTP.TokenFile); err != nil {
			return fmt.Errorf("token file: %w", err)
		}
	}

	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// Save writes the config as JSON to path, or to c.Path when path is empty.
func (c *Config) Save(path string) error {
	if path == "" {
		path = c.Path
	}
	if path == "" {
		return errors.New("config path is required")
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return utils.AtomicWrite(path, bytes.NewReader(data), 0o600)
}

// LoadClientConfig reads the JSON config at path, overlaid with SYNCMIRROR_*
// environment variables. A .env file in the working directory is loaded
// first. The result is not validated.
func LoadClientConfig(path string) (*Config, error) {
	LoadDotEnv()

	v := NewViper()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config read '%s': %w", path, err)
	}
	return Decode(v, path)
}

// LoadDotEnv loads .env from the working directory without overriding
// variables that are already set.
func LoadDotEnv() {
	if utils.FileExists(".env") {
		_ = godotenv.Load(".env")
	}
}

// NewViper returns a viper instance with the defaults and env bindings of
// every config key.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("local_dir", DefaultLocalDir)
	v.SetDefault("remote_root", DefaultRemoteRoot)
	v.SetDefault("backend", DefaultBackend)
	v.SetDefault("http.server_url", DefaultServerURL)

	// AutomaticEnv only sees keys viper already knows about.
	for _, key := range []string{
		"metadata_file", "machine_id", "ignore_file", "log_file",
		"dir.path",
		"s3.bucket", "s3.region", "s3.endpoint", "s3.access_key", "s3.secret_key",
		"minio.endpoint", "minio.bucket", "minio.access_key", "minio.secret_key", "minio.secure",
		"http.token_file",
	} {
		v.BindEnv(key)
	}
	return v
}

// Decode unmarshals the settings of v into a Config.
func Decode(v *viper.Viper, path string) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	cfg.Path = path
	return &cfg, nil
}

// Package config loads the YAML configuration of the netengine command-line
// tools, fills in defaults, validates the result and watches the file for
// changes.
package config

import (
	"io/fs"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/cyberinferno/go-netengine/endpoint"
	"github.com/cyberinferno/go-netengine/socket"
)

const (
	// EnvPath names the environment variable overriding the config file path.
	EnvPath = "NETENGINE_CONFIG"
	// DefaultFileName is used when neither a path nor EnvPath is given.
	DefaultFileName = "netengine.yaml"

	defaultPort           = 1111
	defaultConnectTimeout = 10 * time.Second
)

// Config is the root of the configuration file.
type Config struct {
	Logger   *LoggerConfig   `yaml:"Logger"`
	Service  *ServiceConfig  `yaml:"Service"`
	Server   *ServerConfig   `yaml:"Server"`
	Client   *ClientConfig   `yaml:"Client"`
	Resolver *ResolverConfig `yaml:"Resolver"`
}

// LoggerConfig logger settings
type LoggerConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir,omitempty"`
}

// ServiceConfig service settings; zero threads means one per CPU
type ServiceConfig struct {
	Threads int `yaml:"threads"`
}

// SocketConfig per-connection socket options
type SocketConfig struct {
	KeepAlive          bool `yaml:"keepAlive"`
	NoDelay            bool `yaml:"noDelay"`
	ReceiveBufferSize  int  `yaml:"receiveBufferSize"`
	SendBufferSize     int  `yaml:"sendBufferSize"`
	ReceiveBufferLimit int  `yaml:"receiveBufferLimit"`
	SendBufferLimit    int  `yaml:"sendBufferLimit"`
}

// ServerConfig listener settings
type ServerConfig struct {
	Host         string        `yaml:"host,omitempty"`
	Port         int           `yaml:"port"`
	ReuseAddress bool          `yaml:"reuseAddress"`
	ReusePort    bool          `yaml:"reusePort"`
	Socket       *SocketConfig `yaml:"Socket"`
}

// ClientConfig outbound connection settings
type ClientConfig struct {
	Address        string        `yaml:"address"`
	Port           int           `yaml:"port"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	Socket         *SocketConfig `yaml:"Socket"`
}

// ResolverConfig name resolution settings. An empty RedisAddr keeps the
// cache in process.
type ResolverConfig struct {
	TTL       time.Duration `yaml:"ttl"`
	RedisAddr string        `yaml:"redisAddr,omitempty"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Path returns the config file path to use: the EnvPath variable if set,
// otherwise path, otherwise DefaultFileName.
func Path(path string) string {
	if p, ok := os.LookupEnv(EnvPath); ok && p != "" {
		return p
	}

	if path != "" {
		return path
	}

	return DefaultFileName
}

// Load reads, defaults and validates the configuration at Path(path). A
// missing file yields the defaults.
//
// Parameters:
//   - path: Config file path; may be empty
//
// Returns:
//   - The loaded configuration
//   - An error if the file cannot be read, parsed or validated
func Load(path string) (*Config, error) {
	return load(Path(path))
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}

	c := &Config{}
	if err = yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file %s", path)
	}

	c.applyDefaults()
	if err = c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config file %s", path)
	}

	return c, nil
}

// Save writes c to path as YAML.
func (c *Config) Save(path string) error {
	buf, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	return errors.Wrap(os.WriteFile(path, buf, 0o664), "failed to write config file")
}

func (c *Config) applyDefaults() {
	if c.Logger == nil {
		c.Logger = &LoggerConfig{}
	}

	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}

	if c.Service == nil {
		c.Service = &ServiceConfig{}
	}

	if c.Server == nil {
		c.Server = &ServerConfig{Port: defaultPort, ReuseAddress: true}
	}

	if c.Server.Socket == nil {
		c.Server.Socket = &SocketConfig{}
	}

	if c.Client == nil {
		c.Client = &ClientConfig{Address: "127.0.0.1", Port: defaultPort}
	}

	if c.Client.ConnectTimeout == 0 {
		c.Client.ConnectTimeout = defaultConnectTimeout
	}

	if c.Client.Socket == nil {
		c.Client.Socket = &SocketConfig{}
	}

	if c.Resolver == nil {
		c.Resolver = &ResolverConfig{}
	}

	if c.Resolver.TTL == 0 {
		c.Resolver.TTL = 30 * time.Second
	}
}

// Validate checks c and every section.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Logger, validation.Required),
		validation.Field(&c.Service, validation.Required),
		validation.Field(&c.Server, validation.Required),
		validation.Field(&c.Client, validation.Required),
		validation.Field(&c.Resolver, validation.Required),
	)
}

func (c *LoggerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Level, validation.In("trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled")),
	)
}

func (c *ServiceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Threads, validation.Min(0), validation.Max(1024)),
	)
}

func (c *SocketConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ReceiveBufferSize, validation.Min(0)),
		validation.Field(&c.SendBufferSize, validation.Min(0)),
		validation.Field(&c.ReceiveBufferLimit, validation.Min(0)),
		validation.Field(&c.SendBufferLimit, validation.Min(0)),
	)
}

func (c *ServerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Host, is.IP),
		validation.Field(&c.Port, validation.Min(0), validation.Max(65535)),
		validation.Field(&c.Socket),
	)
}

func (c *ClientConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Address, validation.Required, is.Host),
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.ConnectTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.Socket),
	)
}

func (c *ResolverConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TTL, validation.Min(time.Duration(0))),
		validation.Field(&c.RedisAddr, is.DialString),
	)
}

// Options converts the section into socket options.
func (c *SocketConfig) Options() socket.Options {
	return socket.Options{
		KeepAlive:          c.KeepAlive,
		NoDelay:            c.NoDelay,
		ReceiveBufferSize:  c.ReceiveBufferSize,
		SendBufferSize:     c.SendBufferSize,
		ReceiveBufferLimit: c.ReceiveBufferLimit,
		SendBufferLimit:    c.SendBufferLimit,
	}
}

// Options returns the socket options for the listener and its sessions.
func (c *ServerConfig) Options() socket.Options {
	o := c.Socket.Options()
	o.ReuseAddress = c.ReuseAddress
	o.ReusePort = c.ReusePort
	return o
}

// Endpoint returns the listening endpoint: the wildcard address when Host is
// empty.
func (c *ServerConfig) Endpoint() (endpoint.Endpoint, error) {
	if c.Host == "" {
		return endpoint.Any(c.Port, endpoint.ProtocolAny), nil
	}

	return endpoint.New(c.Host, c.Port)
}

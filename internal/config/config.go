package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	DefaultListen = ":8080"
	DefaultDomain = "localhost:8080"
	DefaultStore  = "sqlite"
	DefaultDSN    = "./huddle.db"
	DefaultSTUN   = "stun:stun.l.google.com:19302"
)

// Config holds settings for both the coordinator and the terminal client.
type Config struct {
	// Server side.
	Listen      string
	StoreDriver string // "sqlite" or "memory"
	StoreDSN    string

	// Client side.
	Domain   string
	Insecure bool // ws:// and http:// instead of wss:// and https://

	// ICE servers for the media path.
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// Options carry CLI flag overrides; zero values defer to env and defaults.
type Options struct {
	ConfigFile  string
	Listen      string
	StoreDriver string
	StoreDSN    string
	Domain      string
	Insecure    bool
	STUNServer  string
	TURNServer  string
	TURNUser    string
	TURNPass    string
}

// Load reads configuration with flags > environment > config file > defaults
// precedence. Environment variables use the HUDDLE_ prefix, e.g.
// HUDDLE_STUN_SERVER.
func Load(opts Options) (*Config, error) {
	v := viper.New()

	v.SetDefault("listen", DefaultListen)
	v.SetDefault("store.driver", DefaultStore)
	v.SetDefault("store.dsn", DefaultDSN)
	v.SetDefault("domain", DefaultDomain)
	v.SetDefault("insecure", false)
	v.SetDefault("stun.server", DefaultSTUN)
	v.SetDefault("turn.server", "")
	v.SetDefault("turn.user", "")
	v.SetDefault("turn.pass", "")

	v.SetEnvPrefix("huddle")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Listen:      v.GetString("listen"),
		StoreDriver: v.GetString("store.driver"),
		StoreDSN:    v.GetString("store.dsn"),
		Domain:      v.GetString("domain"),
		Insecure:    v.GetBool("insecure"),
		STUNServer:  v.GetString("stun.server"),
		TURNServer:  v.GetString("turn.server"),
		TURNUser:    v.GetString("turn.user"),
		TURNPass:    v.GetString("turn.pass"),
	}

	// Flags win over everything.
	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}
	if opts.StoreDriver != "" {
		cfg.StoreDriver = opts.StoreDriver
	}
	if opts.StoreDSN != "" {
		cfg.StoreDSN = opts.StoreDSN
	}
	if opts.Domain != "" {
		cfg.Domain = opts.Domain
	}
	if opts.Insecure {
		cfg.Insecure = true
	}
	if opts.STUNServer != "" {
		cfg.STUNServer = opts.STUNServer
	}
	if opts.TURNServer != "" {
		cfg.TURNServer = opts.TURNServer
	}
	if opts.TURNUser != "" {
		cfg.TURNUser = opts.TURNUser
	}
	if opts.TURNPass != "" {
		cfg.TURNPass = opts.TURNPass
	}

	return cfg, nil
}

// WebSocketURL is the coordinator endpoint the client dials.
func (c *Config) WebSocketURL() string {
	scheme := "wss"
	if c.Insecure {
		scheme = "ws"
	}
	return fmt.Sprintf("%s://%s/ws", scheme, c.Domain)
}

// RoomsURL is the room-provisioning endpoint.
func (c *Config) RoomsURL() string {
	scheme := "https"
	if c.Insecure {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/rooms", scheme, c.Domain)
}

// GetSTUNServers returns STUN server URLs as strings.
func (c *Config) GetSTUNServers() []string {
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured.
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
		fmt.Sprintf("turns:%s:5349?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns the TURN username and password.
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// Package config loads the coordinator daemon's YAML configuration file,
// one nested struct per concern, the same shape the teacher's
// internal/config uses (server/API/database/NATS/JWT/log sections), minus
// anything band- or radio-hardware-specific: RadioMesh's radio abstraction
// (pkg/radio.Radio) carries no frequency plan, so there is nothing here
// analogous to the teacher's CN470 section.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the coordinator daemon's full configuration tree.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	API       APIConfig       `yaml:"api"`
	NodeStore NodeStoreConfig `yaml:"nodestore"`
	CoordDB   CoordDBConfig   `yaml:"coorddb"`
	NATS      NATSConfig      `yaml:"nats"`
	RadioBus  RadioBusConfig  `yaml:"radiobus"`
	JWT       JWTConfig       `yaml:"jwt"`
	Log       LogConfig       `yaml:"log"`
	Mesh      MeshConfig      `yaml:"mesh"`
}

// ServerConfig identifies this coordinator instance.
type ServerConfig struct {
	Name string `yaml:"name"`
}

// APIConfig is the chi-based REST/websocket listener (internal/api).
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// NodeStoreConfig is the sqlite file backing this process's own
// pkg/keys.Storage (internal/nodestore) — the coordinator, when it also
// hosts a hub Device, needs exactly the same per-node key storage any
// RadioMesh node does.
type NodeStoreConfig struct {
	Path string `yaml:"path"`
}

// CoordDBConfig is the fleet-wide Postgres store (internal/coordstore):
// node registry, inclusion audit log, routing snapshots, event log.
type CoordDBConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// NATSConfig is the event bus internal/events publishes onto.
type NATSConfig struct {
	URL               string        `yaml:"url"`
	ClientID          string        `yaml:"client_id"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// RadioBusConfig is the zmq4 PUB/SUB endpoint internal/radiobus binds and
// the peer endpoints it dials, standing in for a physical LoRa modem
// (pkg/radio.Radio) shared with every other node in a simulated mesh.
type RadioBusConfig struct {
	PubEndpoint string   `yaml:"pub_endpoint"`
	Peers       []string `yaml:"peers"`
}

// JWTConfig configures operator authentication (internal/auth).
type JWTConfig struct {
	Secret         string        `yaml:"secret"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
}

// LogConfig configures the package-level zerolog logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MeshConfig is this coordinator's own RadioMesh node identity, when it
// embeds a hub Device rather than only observing a fleet of external ones.
type MeshConfig struct {
	HubID               string        `yaml:"hub_id"`
	IncludeOpenInterval time.Duration `yaml:"include_open_interval"`
}

// Load reads filename, applies environment overrides, and fills in defaults
// for anything the file and environment both leave zero.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.setDefaults()

	return &cfg, nil
}

// applyEnvOverrides lets deployment secrets (DB DSN, JWT secret) come from
// the environment instead of the checked-in config file.
func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("COORDDB_DSN"); dsn != "" {
		c.CoordDB.DSN = dsn
	}
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}
	if nodeStorePath := os.Getenv("NODESTORE_PATH"); nodeStorePath != "" {
		c.NodeStore.Path = nodeStorePath
	}
}

func (c *Config) setDefaults() {
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Host == "" {
		c.API.Host = "0.0.0.0"
	}
	if c.NodeStore.Path == "" {
		c.NodeStore.Path = "radiomesh-node.db"
	}
	if c.CoordDB.MaxOpenConns == 0 {
		c.CoordDB.MaxOpenConns = 10
	}
	if c.CoordDB.MaxIdleConns == 0 {
		c.CoordDB.MaxIdleConns = 5
	}
	if c.CoordDB.ConnMaxLifetime == 0 {
		c.CoordDB.ConnMaxLifetime = 30 * time.Minute
	}
	if c.NATS.URL == "" {
		c.NATS.URL = "nats://127.0.0.1:4222"
	}
	if c.NATS.ClientID == "" {
		c.NATS.ClientID = "radiomesh-coordinator"
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = 10
	}
	if c.NATS.ReconnectInterval == 0 {
		c.NATS.ReconnectInterval = 2 * time.Second
	}
	if c.RadioBus.PubEndpoint == "" {
		c.RadioBus.PubEndpoint = "tcp://127.0.0.1:5556"
	}
	if c.JWT.AccessTokenTTL == 0 {
		c.JWT.AccessTokenTTL = time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Mesh.IncludeOpenInterval == 0 {
		c.Mesh.IncludeOpenInterval = time.Minute
	}
}

// Package cfg loads and validates dqlited's node configuration: a TOML file
// plus CLI-flag and environment-variable overrides, mirroring the teacher's
// own config package (cfg/config.go).
package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"

	"github.com/dqlited/dqlited/internal/pool"
)

// PoolConfiguration controls the write-scheduling thread pool.
type PoolConfiguration struct {
	ThreadCount int `toml:"thread_count"`
}

// ClusterConfiguration controls this node's address and its peers, the
// transport the cluster package fans HEARTBEAT and health checks over.
type ClusterConfiguration struct {
	GRPCBindAddress string   `toml:"grpc_bind_address"`
	GRPCPort        int      `toml:"grpc_port"`
	AdvertiseAddr   string   `toml:"advertise_address"`
	PeerAddresses   []string `toml:"peer_addresses"`
}

// AdminConfiguration controls the admin HTTP surface.
type AdminConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
}

// PublisherSinkConfiguration configures one optional CDC fan-out sink.
type PublisherSinkConfiguration struct {
	Enabled bool     `toml:"enabled"`
	Kind    string   `toml:"kind"` // "nats" or "kafka"
	URL     string   `toml:"url"`
	Subject string   `toml:"subject"` // nats subject or kafka topic
	Tables  []string `toml:"tables"`  // glob patterns, see publisher.Filter
}

// LoggingConfiguration controls zerolog's setup.
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration controls the telemetry package's exporter.
type PrometheusConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
}

// Configuration is dqlited's complete node configuration.
type Configuration struct {
	NodeID  uint64 `toml:"node_id"`
	DataDir string `toml:"data_dir"`

	Pool       PoolConfiguration            `toml:"pool"`
	Cluster    ClusterConfiguration         `toml:"cluster"`
	Admin      AdminConfiguration           `toml:"admin"`
	Publishers []PublisherSinkConfiguration `toml:"publishers"`
	Logging    LoggingConfiguration         `toml:"logging"`
	Prometheus PrometheusConfiguration      `toml:"prometheus"`
}

var (
	ConfigPathFlag = flag.String("config", "dqlited.toml", "Path to configuration file")
	DataDirFlag    = flag.String("data-dir", "", "Data directory (overrides config)")
	NodeIDFlag     = flag.Uint64("node-id", 0, "Node ID (overrides config, 0=auto)")
	GRPCPortFlag   = flag.Int("grpc-port", 0, "gRPC cluster port (overrides config)")
)

// Config is the process-wide configuration, populated by Load.
var Config = &Configuration{
	DataDir: "./dqlited-data",

	Pool: PoolConfiguration{ThreadCount: pool.DefaultThreadCount},

	Cluster: ClusterConfiguration{
		GRPCBindAddress: "0.0.0.0",
		GRPCPort:        6432,
	},

	Admin: AdminConfiguration{
		Enabled: true,
		Address: "0.0.0.0:8080",
	},

	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},

	Prometheus: PrometheusConfiguration{
		Enabled: true,
		Address: "0.0.0.0:9090",
	},
}

// Load reads configPath if it exists, then applies CLI-flag and
// environment-variable overrides, exactly the layering the teacher's own
// Load does.
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("cfg: loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("cfg: decode %s: %w", configPath, err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("cfg: config file not found, using defaults")
		}
	}

	if *DataDirFlag != "" {
		Config.DataDir = *DataDirFlag
	}
	if *NodeIDFlag != 0 {
		Config.NodeID = *NodeIDFlag
	}
	if *GRPCPortFlag != 0 {
		Config.Cluster.GRPCPort = *GRPCPortFlag
	}

	if raw := os.Getenv("POOL_THREADPOOL_SIZE"); raw != "" {
		Config.Pool.ThreadCount = int(pool.ClampThreadCount(raw))
	} else if Config.Pool.ThreadCount <= 0 {
		Config.Pool.ThreadCount = pool.DefaultThreadCount
	}

	if Config.NodeID == 0 {
		id, err := generateNodeID()
		if err != nil {
			return fmt.Errorf("cfg: generate node id: %w", err)
		}
		Config.NodeID = id
		log.Info().Uint64("node_id", Config.NodeID).Msg("cfg: auto-generated node id")
	}

	if err := os.MkdirAll(Config.DataDir, 0o755); err != nil {
		return fmt.Errorf("cfg: create data dir: %w", err)
	}
	return nil
}

// generateNodeID derives a stable id from the machine's protected identity,
// exactly as the teacher's own generateNodeID does.
func generateNodeID() (uint64, error) {
	id, err := machineid.ProtectedID("dqlited")
	if err != nil {
		return 0, err
	}
	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64(), nil
}

// Tracing reports whether LIBDQLITE_TRACE is set to a truthy value —
// state-machine transitions and pool submissions log at trace level when it
// is, matching the original's tracing.h facility.
func Tracing() bool {
	v := os.Getenv("LIBDQLITE_TRACE")
	if v == "" {
		return false
	}
	on, err := strconv.ParseBool(v)
	return err == nil && on
}

// Validate checks the loaded configuration for internal consistency.
func Validate() error {
	if Config.Cluster.GRPCPort < 1 || Config.Cluster.GRPCPort > 65535 {
		return fmt.Errorf("cfg: invalid gRPC port: %d", Config.Cluster.GRPCPort)
	}
	if Config.Cluster.AdvertiseAddr == "" {
		hostname, err := os.Hostname()
		if err != nil {
			log.Warn().Err(err).Msg("cfg: failed to get hostname, using localhost")
			hostname = "localhost"
		}
		Config.Cluster.AdvertiseAddr = fmt.Sprintf("%s:%d", hostname, Config.Cluster.GRPCPort)
		log.Info().Str("advertise_address", Config.Cluster.AdvertiseAddr).Msg("cfg: auto-configured advertise address")
	}
	if Config.Pool.ThreadCount < 1 || Config.Pool.ThreadCount > pool.MaxThreadCount {
		return fmt.Errorf("cfg: invalid pool thread count: %d", Config.Pool.ThreadCount)
	}
	for _, sink := range Config.Publishers {
		if !sink.Enabled {
			continue
		}
		if sink.Kind != "nats" && sink.Kind != "kafka" {
			return fmt.Errorf("cfg: unknown publisher sink kind %q", sink.Kind)
		}
		if sink.URL == "" {
			return fmt.Errorf("cfg: publisher sink %q missing url", sink.Kind)
		}
	}
	return nil
}

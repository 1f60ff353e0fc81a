// Command dqlited runs one node of the write-scheduling/replication core:
// the wire-protocol + admin HTTP listener, the peer health-check transport,
// and the optional CDC publisher fan-out, wired together the way the
// teacher's own marmot.go boots its gRPC server, gossip protocol, and
// database manager.
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	"github.com/dqlited/dqlited/admin"
	"github.com/dqlited/dqlited/cfg"
	"github.com/dqlited/dqlited/cluster"
	"github.com/dqlited/dqlited/internal/catalog"
	"github.com/dqlited/dqlited/internal/consensus"
	"github.com/dqlited/dqlited/internal/pool"
	"github.com/dqlited/dqlited/internal/replication"
	"github.com/dqlited/dqlited/publisher"
	_ "github.com/dqlited/dqlited/publisher/sink"
	"github.com/dqlited/dqlited/server"
	"github.com/dqlited/dqlited/telemetry"
)

func main() {
	flag.Parse()

	if err := cfg.Load(*cfg.ConfigPathFlag); err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("invalid configuration: %v", err))
	}
	setupLogging()

	log.Info().Msg("dqlited starting")
	telemetry.InitializeTelemetry()
	telemetry.InitMetrics()

	cat := catalog.New(cfg.Config.DataDir)
	node := consensus.NewSingleNode(cfg.Config.Cluster.AdvertiseAddr)

	appliedDB, err := pebble.Open(filepath.Join(cfg.Config.DataDir, "applied-index"), &pebble.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("dqlited: failed to open applied-index store")
	}
	defer appliedDB.Close()

	repl := replication.New(node, cat, appliedDB)
	cat.SetProposer(repl)

	registry, err := publisher.NewRegistry(cfg.Config.Publishers)
	if err != nil {
		log.Fatal().Err(err).Msg("dqlited: failed to build publisher sinks")
	}
	repl.SetPublisher(registry)
	registry.Start()
	defer registry.Stop()

	p := pool.New(uint32(cfg.Config.Pool.ThreadCount))
	p.Start()
	defer p.Stop()

	poolCollector := telemetry.NewPoolCollector(p, time.Second)
	poolCollector.Start()
	defer poolCollector.Stop()

	var adminHandler http.Handler = http.NotFoundHandler()
	if cfg.Config.Admin.Enabled {
		adminHandler = admin.NewRouter(p)
	}
	wireServer := server.New(cfg.Config.Admin.Address, cat, p, node, adminHandler)
	if err := wireServer.Start(); err != nil {
		log.Fatal().Err(err).Msg("dqlited: failed to start wire/admin listener")
	}
	defer wireServer.Stop()

	_, grpcServer, err := startClusterHealth()
	if err != nil {
		log.Fatal().Err(err).Msg("dqlited: failed to start cluster health listener")
	}
	defer grpcServer.GracefulStop()

	monitor := cluster.NewMonitor(peerSource(node))
	monitor.Start()
	defer monitor.Stop()

	log.Info().
		Uint64("node_id", cfg.Config.NodeID).
		Str("data_dir", cfg.Config.DataDir).
		Str("wire_admin_address", cfg.Config.Admin.Address).
		Str("cluster_grpc_address", fmt.Sprintf("%s:%d", cfg.Config.Cluster.GRPCBindAddress, cfg.Config.Cluster.GRPCPort)).
		Msg("dqlited operational")

	waitForShutdown()
	log.Info().Msg("dqlited shutting down")
}

func startClusterHealth() (*cluster.HealthServer, *grpc.Server, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Config.Cluster.GRPCBindAddress, cfg.Config.Cluster.GRPCPort)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}

	h := cluster.NewHealthServer()
	s := grpc.NewServer()
	h.Register(s)

	go func() {
		if err := s.Serve(lis); err != nil {
			log.Error().Err(err).Msg("dqlited: cluster health listener stopped")
		}
	}()

	log.Info().Str("address", addr).Msg("dqlited: cluster health listener started")
	return h, s, nil
}

// peerSource prefers the consensus collaborator's own view of its peers,
// falling back to the statically configured peer list for collaborators
// (like SingleNode) that never report any.
func peerSource(collaborator consensus.Collaborator) cluster.PeerSource {
	return func() []string {
		if addrs := collaborator.PeerAddresses(); len(addrs) > 0 {
			return addrs
		}
		return cfg.Config.Cluster.PeerAddresses
	}
}

func setupLogging() {
	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	logger := zerolog.New(writer).With().Timestamp().Uint64("node_id", cfg.Config.NodeID).Logger()

	switch {
	case cfg.Tracing():
		log.Logger = logger.Level(zerolog.TraceLevel)
	case cfg.Config.Logging.Verbose:
		log.Logger = logger.Level(zerolog.DebugLevel)
	default:
		log.Logger = logger.Level(zerolog.InfoLevel)
	}
}

func waitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

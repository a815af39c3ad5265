// Package main is the ppm process entrypoint: parse flags, load the
// geofence and filter policy, connect to the bus, and run the pipeline
// engine alongside the admin HTTP server until a shutdown signal arrives.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/trailmark-labs/ppm/admin"
	"github.com/trailmark-labs/ppm/busclient"
	"github.com/trailmark-labs/ppm/config"
	"github.com/trailmark-labs/ppm/errors"
	"github.com/trailmark-labs/ppm/filter"
	"github.com/trailmark-labs/ppm/health"
	"github.com/trailmark-labs/ppm/metric"
	"github.com/trailmark-labs/ppm/pipeline"
	"github.com/trailmark-labs/ppm/quadtree"
	"github.com/trailmark-labs/ppm/security"
	"github.com/trailmark-labs/ppm/shape"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ppm:", err)
		os.Exit(1)
	}
}

func run() error {
	flags := config.ParseFlags()
	if flags.Help {
		printHelp()
		return nil
	}

	policy, err := loadPolicy(flags)
	if err != nil {
		return err
	}

	if flags.ConfigCheck {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(policy)
	}

	logger, closeLog, err := buildLogger(policy)
	if err != nil {
		return err
	}
	defer closeLog()

	// run_id ties every log line this process emits, across every package,
	// back to one invocation — the only per-line identifier that survives
	// a restart, since counters and state reset on every run.
	logger = logger.With("run_id", uuid.NewString())

	logger.Info("starting ppm", "consumer_topic", policy.ConsumerTopic, "producer_topic", policy.ProducerTopic, "partition", policy.Partition, "jetstream", policy.JetStreamEnabled)

	tree, err := buildGeofence(policy)
	if err != nil {
		return err
	}

	filterPolicy, err := filter.NewPolicy(policy.VelocityMin, policy.VelocityMax, policy.IDInclusionPattern, policy.IDRedactionValue)
	if err != nil {
		return err
	}

	monitor := health.NewMonitor()
	registry := metric.NewRegistry()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer, producer, err := connectBusWithRetry(ctx, policy, monitor, logger)
	if err != nil {
		return err
	}
	defer consumer.Close()
	defer producer.Close()

	engine, err := pipeline.New(policy, tree, filterPolicy, consumer, producer, registry, monitor, logger)
	if err != nil {
		return err
	}

	adminServer := admin.NewServer(":8090", registry, monitor, engine, security.ServerTLSConfig{}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(gctx)
	})
	g.Go(func() error {
		return adminServer.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		engine.Stop()
		return adminServer.Stop()
	})

	return g.Wait()
}

// buildGeofence loads the mapfile entities and builds the spatial index the
// filter policy's inclusion gate consults.
func buildGeofence(policy config.Policy) (*quadtree.Tree, error) {
	f, err := os.Open(policy.MapfilePath)
	if err != nil {
		return nil, fmt.Errorf("open mapfile %s: %w", policy.MapfilePath, err)
	}
	defer f.Close()

	entities, err := shape.LoadCSV(f)
	if err != nil {
		return nil, err
	}

	return quadtree.Build(policy.GeofenceBBox(), entities)
}

// connectBusWithRetry retries connectBus at busclient.ReconnectInterval,
// bounded only by ctx (the process's shutdown context), never by a fixed
// deadline: a transport fault is retried forever under bootstrap, matching
// the pipeline's own indefinite-retry rule for transient faults — only a
// terminate signal or a configuration fault (surfaced by connectBus itself
// returning a Fatal-class error) ends the process early.
func connectBusWithRetry(ctx context.Context, policy config.Policy, monitor *health.Monitor, logger *slog.Logger) (busclient.Consumer, busclient.Producer, error) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		consumer, producer, err := connectBus(ctx, policy, monitor, logger)
		if err == nil {
			return consumer, producer, nil
		}
		if errors.IsFatal(err) {
			return nil, nil, err
		}
		logger.Warn("bus connect failed, retrying", "error", err)

		timer.Reset(busclient.ReconnectInterval)
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// connectBus dials the transport, blocks until the connection is actually
// up (NATS auto-reconnect means Dial can return before CONNECTED), subscribes
// the consumer to its configured topic/partition, and registers a
// "transport" health entry the admin surface reports.
func connectBus(ctx context.Context, policy config.Policy, monitor *health.Monitor, logger *slog.Logger) (busclient.Consumer, busclient.Producer, error) {
	creds := security.LoadTransportCredentials()

	url := "nats://127.0.0.1:4222"
	if len(policy.Brokers) > 0 {
		url = strings.Join(policy.Brokers, ",")
	}

	client, err := busclient.Dial(url, creds)
	if err != nil {
		monitor.UpdateUnhealthy("transport", err.Error())
		return nil, nil, err
	}

	if err := client.WaitForTopic(ctx, policy.ConsumerTopic, policy.Partition); err != nil {
		monitor.UpdateUnhealthy("transport", err.Error())
		return nil, nil, err
	}

	if policy.JetStreamEnabled {
		if err := client.EnableJetStream(ctx); err != nil {
			monitor.UpdateUnhealthy("transport", err.Error())
			return nil, nil, err
		}
	}

	if err := client.SubscribeConsumer(ctx, policy.ConsumerTopic, policy.Partition); err != nil {
		monitor.UpdateUnhealthy("transport", err.Error())
		return nil, nil, err
	}

	monitor.UpdateHealthy("transport", "connected")
	logger.Info("connected to bus", "url", url, "jetstream", policy.JetStreamEnabled)
	return client, client, nil
}

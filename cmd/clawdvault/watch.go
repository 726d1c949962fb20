package main

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/inavhq/clawdvault-sdk/internal/relay"
	chstore "github.com/inavhq/clawdvault-sdk/internal/storage/clickhouse"
	"github.com/inavhq/clawdvault-sdk/internal/storage/migrations"
	"github.com/inavhq/clawdvault-sdk/pkg/stream"
)

func newWatchCmd(a *app) *cobra.Command {
	var noRelay bool
	cmd := &cobra.Command{
		Use:   "watch <trades|token|chat> [mint]",
		Short: "Print live events, optionally relaying them to Kafka and ClickHouse",
		Long: `Print live events as JSON lines until interrupted.

With kafka.brokers set every event is published to kafka.topic, keyed by
mint. With clickhouse.dsn set token price updates are stored as ticks.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var mint string
			if len(args) == 2 {
				mint = args[1]
			}
			conn, err := a.open(stream.Topic(args[0]), mint)
			if err != nil {
				return err
			}
			defer conn.Disconnect()

			if !noRelay {
				r, err := a.relay(cmd)
				if err != nil {
					return err
				}
				if r != nil {
					detach := r.Attach(conn)
					// closes after the connection, so queued events are drained
					a.closers = append(a.closers, func() error {
						detach()
						return r.Close()
					})
				}
			}

			var mu sync.Mutex
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, kind := range []stream.EventKind{stream.EventTrade, stream.EventUpdate, stream.EventMessage, stream.EventReaction} {
				conn.On(kind, func(ev stream.Event) {
					mu.Lock()
					defer mu.Unlock()
					enc.Encode(stream.Frame{Event: ev.Kind(), Data: mustJSON(ev)})
				})
			}

			log := a.logger.WithField("topic", conn.Topic())
			conn.OnConnect(func() { log.Info("stream connected") })
			conn.OnDisconnect(func(err error) { log.WithError(err).Warn("stream dropped") })

			var (
				emu    sync.Mutex
				gaveUp error
			)
			conn.OnError(func(err error) {
				emu.Lock()
				gaveUp = err
				emu.Unlock()
			})

			if err := conn.Connect(); err != nil {
				return err
			}
			select {
			case <-cmd.Context().Done():
				return nil
			case <-conn.Done():
				emu.Lock()
				defer emu.Unlock()
				return gaveUp
			}
		},
	}
	cmd.Flags().BoolVar(&noRelay, "no-relay", false, "only print, even when sinks are configured")
	return cmd
}

func (a *app) open(topic stream.Topic, mint string) (*stream.Connection, error) {
	switch topic {
	case stream.TopicTrades:
		return a.client.StreamTrades(mint)
	case stream.TopicToken:
		return a.client.StreamToken(mint)
	case stream.TopicChat:
		return a.client.StreamChat(mint)
	}
	return nil, fmt.Errorf("unknown topic %q: want trades, token or chat", topic)
}

// relay builds the sinks configured for watch, or returns nil without any.
func (a *app) relay(cmd *cobra.Command) (*relay.Relay, error) {
	var sinks []relay.Named

	if len(a.cfg.Kafka.Brokers) > 0 {
		k, err := relay.NewKafkaSink(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic, a.logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, relay.Named{Name: "kafka", Sink: k})
	}

	if a.cfg.ClickHouse.DSN != "" {
		conn, err := migrations.RunClickhouseMigrations(cmd.Context(), a.cfg.ClickHouse.DSN)
		if err != nil {
			closeSinks(sinks)
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		a.closers = append(a.closers, conn.Close)
		sinks = append(sinks, relay.Named{Name: "clickhouse", Sink: relay.NewTickSink(chstore.NewPriceTickStore(conn), relay.DefaultTickBatch)})
	}

	if len(sinks) == 0 {
		return nil, nil
	}
	return relay.New(relay.NewFanout(a.metrics, sinks...), relay.DefaultConfig(), a.logger, a.metrics), nil
}

func closeSinks(sinks []relay.Named) {
	for _, s := range sinks {
		s.Sink.Close()
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}

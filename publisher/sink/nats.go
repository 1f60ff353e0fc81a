package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/dqlited/dqlited/cfg"
	"github.com/dqlited/dqlited/publisher"
)

func init() {
	publisher.RegisterSink("nats", func(config cfg.PublisherSinkConfiguration) (publisher.Sink, error) {
		if config.URL == "" {
			return nil, fmt.Errorf("nats sink requires a url")
		}
		return NewNATS(config.URL)
	})
}

// NATS implements publisher.Sink over JetStream, grounded on the teacher's
// NatsSink (publisher/sink/nats.go).
type NATS struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewNATS(url string) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats: connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats: jetstream: %w", err)
	}
	return &NATS{nc: nc, js: js}, nil
}

func (n *NATS) Publish(subject, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	streamName := strings.ReplaceAll(subject, ".", "_")
	_, err := n.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subject},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("nats: ensure stream %s: %w", streamName, err)
	}

	_, err = n.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    value,
		Header:  nats.Header{"key": []string{key}},
	})
	if err != nil {
		return fmt.Errorf("nats: publish %s: %w", subject, err)
	}
	return nil
}

func (n *NATS) Close() error {
	if n.nc != nil {
		n.nc.Close()
	}
	return nil
}

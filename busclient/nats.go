package busclient

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/time/rate"

	"github.com/trailmark-labs/ppm/errors"
	"github.com/trailmark-labs/ppm/retry"
	"github.com/trailmark-labs/ppm/security"
)

// ConnectionStatus is tracked atomically so the admin health endpoint can
// read it from another goroutine without a lock.
type ConnectionStatus int32

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// ReconnectInterval is the fixed interval between connection attempts: NATS's
// own ReconnectWait, the pacing of WaitForTopic's status polls, and cmd/ppm's
// connectBusWithRetry all use it. It matches the pipeline's own fixed 1.5s
// consumer-wait backoff rather than an exponential
// one — the bus is expected to advertise the topic quickly once reachable at
// all, so a constant retry cadence is simpler to reason about at the
// operator level.
const ReconnectInterval = 1500 * time.Millisecond

// NATSClient adapts a core NATS connection to Consumer and Producer. It
// subscribes to a single subject per SubscribeConsumer call and buffers delivered
// messages internally so Poll can honor the caller's timeout, since core NATS
// subscriptions are push-based.
type NATSClient struct {
	conn   *nats.Conn
	status atomic.Int32

	reconnectLimiter *rate.Limiter

	consumerSub *nats.Subscription
	inbox       chan *nats.Msg
	topic       string
	partition   int32
	position    atomic.Int64

	js         jetstream.JetStream
	jsConsumer jetstream.Consumer
}

// Dial connects to url with the given transport credentials. Credentials are
// optional: an empty Key/Secret pair dials without SASL-equivalent auth.
func Dial(url string, creds security.TransportCredentials) (*NATSClient, error) {
	c := &NATSClient{
		reconnectLimiter: rate.NewLimiter(rate.Every(ReconnectInterval), 1),
	}
	c.status.Store(int32(StatusConnecting))

	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(ReconnectInterval),
		nats.DisconnectErrHandler(func(*nats.Conn, error) {
			c.status.Store(int32(StatusDisconnected))
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			c.status.Store(int32(StatusConnected))
		}),
	}
	if creds.Key != "" {
		opts = append(opts, nats.UserInfo(creds.Key.Reveal(), creds.Secret.Reveal()))
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		c.status.Store(int32(StatusDisconnected))
		return nil, errors.WrapTransient(err, "busclient", "Dial", "connect")
	}
	c.conn = conn
	c.status.Store(int32(StatusConnected))
	return c, nil
}

// Status returns the client's current connection status.
func (c *NATSClient) Status() ConnectionStatus {
	return ConnectionStatus(c.status.Load())
}

// EnableJetStream switches this client into durable mode: SubscribeConsumer
// creates a durable pull consumer backed by a JetStream stream instead of a
// plain core-NATS subscription, and Produce publishes through the JetStream
// API so messages survive a broker restart between publish and delivery.
// Must be called before SubscribeConsumer.
func (c *NATSClient) EnableJetStream(ctx context.Context) error {
	js, err := jetstream.New(c.conn)
	if err != nil {
		return errors.WrapTransient(err, "busclient", "EnableJetStream", "new")
	}
	c.js = js
	return nil
}

// SubscribeConsumer opens the inbound subscription this client will Poll
// from. partition is carried through as a label only; core NATS subjects
// don't have Kafka-style partitions, so a fixed subject-per-partition naming
// convention (topic.<partition>) stands in for it.
func (c *NATSClient) SubscribeConsumer(ctx context.Context, topic string, partition int32) error {
	c.topic = topic
	c.partition = partition

	if c.js != nil {
		return c.subscribeDurable(ctx, topic, partition)
	}

	c.inbox = make(chan *nats.Msg, 256)
	subject := subjectFor(topic, partition)
	sub, err := c.conn.ChanSubscribe(subject, c.inbox)
	if err != nil {
		return errors.WrapTransient(err, "busclient", "SubscribeConsumer", "subscribe")
	}
	c.consumerSub = sub
	return nil
}

// subscribeDurable creates (or reuses) the stream and durable pull consumer
// backing JetStream mode. Both calls are retried on
// retry.JetStreamSetupConfig's cadence: they run once, right after the
// connection reaches CONNECTED, and the broker's internal JetStream metadata
// layer can still be settling at that point, so a request issued in the
// first tens of milliseconds after connect occasionally needs one more try
// rather than failing subscribeDurable outright.
func (c *NATSClient) subscribeDurable(ctx context.Context, topic string, partition int32) error {
	subject := subjectFor(topic, partition)
	streamName := streamNameFor(topic)

	err := retry.Do(ctx, retry.JetStreamSetupConfig(), func() error {
		_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     streamName,
			Subjects: []string{subject},
		})
		return err
	})
	if err != nil {
		return errors.WrapTransient(err, "busclient", "subscribeDurable", "create-stream")
	}

	consumerName := consumerNameFor(topic, partition)
	var cons jetstream.Consumer
	err = retry.Do(ctx, retry.JetStreamSetupConfig(), func() error {
		created, createErr := c.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
			Durable:       consumerName,
			FilterSubject: subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
		})
		if createErr != nil {
			return createErr
		}
		cons = created
		return nil
	})
	if err != nil {
		return errors.WrapTransient(err, "busclient", "subscribeDurable", "create-consumer")
	}
	c.jsConsumer = cons
	return nil
}

func subjectFor(topic string, partition int32) string {
	return fmt.Sprintf("%s.%d", topic, partition)
}

func streamNameFor(topic string) string {
	return fmt.Sprintf("PPM_%s", topic)
}

func consumerNameFor(topic string, partition int32) string {
	return fmt.Sprintf("ppm-%s-%d", topic, partition)
}

// Poll waits up to timeout for the next message.
func (c *NATSClient) Poll(ctx context.Context, timeout time.Duration) (Outcome, error) {
	if c.jsConsumer != nil {
		return c.pollDurable(timeout)
	}

	if c.consumerSub == nil {
		return Outcome{Kind: KindUnknownTopic}, nil
	}
	if !c.consumerSub.IsValid() {
		return Outcome{Kind: KindErr, Err: errors.ErrTransportUnavailable}, errors.ErrTransportUnavailable
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	case <-timer.C:
		return Outcome{Kind: KindTimeout}, nil
	case msg, ok := <-c.inbox:
		if !ok {
			return Outcome{Kind: KindErr, Err: errors.ErrTransportUnavailable}, errors.ErrTransportUnavailable
		}
		offset := c.position.Add(1)
		return Outcome{
			Kind:      KindMessage,
			Payload:   msg.Data,
			Partition: c.partition,
			Offset:    offset,
		}, nil
	}
}

// pollDurable fetches a single message from the durable consumer, acking
// immediately on delivery. This core has no later point in the pipeline to
// ack after a message is successfully filtered/produced, so durable mode
// buys crash-survival of unread messages, not exactly-once redelivery.
func (c *NATSClient) pollDurable(timeout time.Duration) (Outcome, error) {
	batch, err := c.jsConsumer.Fetch(1, jetstream.FetchMaxWait(timeout))
	if err != nil {
		return Outcome{Kind: KindTimeout}, nil
	}

	var msg jetstream.Msg
	for m := range batch.Messages() {
		msg = m
	}
	if msg == nil {
		return Outcome{Kind: KindTimeout}, nil
	}

	_ = msg.Ack()
	offset := c.position.Add(1)
	return Outcome{
		Kind:      KindMessage,
		Payload:   msg.Data(),
		Partition: c.partition,
		Offset:    offset,
	}, nil
}

// Position reports the consumer's current read position.
func (c *NATSClient) Position() []PartitionOffset {
	return []PartitionOffset{{Partition: c.partition, Offset: c.position.Load()}}
}

// Produce publishes payload to topic.partition.
func (c *NATSClient) Produce(ctx context.Context, topic string, partition int32, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject := subjectFor(topic, partition)

	if c.js != nil {
		if _, err := c.js.Publish(ctx, subject, payload); err != nil {
			return errors.WrapTransient(err, "busclient", "Produce", "jetstream-publish")
		}
		return nil
	}

	if err := c.conn.Publish(subject, payload); err != nil {
		return errors.WrapTransient(err, "busclient", "Produce", "publish")
	}
	return nil
}

// Close drains and closes the underlying connection.
func (c *NATSClient) Close() error {
	if c.consumerSub != nil {
		_ = c.consumerSub.Unsubscribe()
	}
	if c.conn != nil {
		return c.conn.Drain()
	}
	return nil
}

// WaitForTopic blocks, retrying at ReconnectInterval bounded by
// reconnectLimiter, until the broker connection is up or ctx is done. Called
// once at startup before the initial subscribe: Dial can return before the
// connection actually reaches CONNECTED, and subscribing too early would
// fail with a spurious "not connected" error rather than retrying.
func (c *NATSClient) WaitForTopic(ctx context.Context, topic string, partition int32) error {
	for {
		if c.conn.Status() == nats.CONNECTED {
			return nil
		}
		if err := c.reconnectLimiter.Wait(ctx); err != nil {
			return ctx.Err()
		}
	}
}

package busclient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/trailmark-labs/ppm/security"
)

func TestIntegrationNATSProduceAndConsume(t *testing.T) {
	ctx := context.Background()

	container, natsURL := startNATSContainer(ctx, t)
	defer container.Terminate(ctx)

	consumer, err := Dial(natsURL, security.TransportCredentials{})
	require.NoError(t, err)
	defer consumer.Close()
	require.NoError(t, consumer.SubscribeConsumer(ctx, "bsm-in", 0))

	producer, err := Dial(natsURL, security.TransportCredentials{})
	require.NoError(t, err)
	defer producer.Close()

	require.NoError(t, producer.Produce(ctx, "bsm-in", 0, []byte(`{"coreData":{"id":"X"}}`)))

	outcome, err := consumer.Poll(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, KindMessage, outcome.Kind)
	assert.Equal(t, []byte(`{"coreData":{"id":"X"}}`), outcome.Payload)
}

func TestIntegrationNATSJetStreamDurableConsume(t *testing.T) {
	ctx := context.Background()

	container, natsURL := startNATSContainer(ctx, t)
	defer container.Terminate(ctx)

	consumer, err := Dial(natsURL, security.TransportCredentials{})
	require.NoError(t, err)
	defer consumer.Close()
	require.NoError(t, consumer.EnableJetStream(ctx))
	require.NoError(t, consumer.SubscribeConsumer(ctx, "bsm-durable", 0))

	producer, err := Dial(natsURL, security.TransportCredentials{})
	require.NoError(t, err)
	defer producer.Close()
	require.NoError(t, producer.EnableJetStream(ctx))

	require.NoError(t, producer.Produce(ctx, "bsm-durable", 0, []byte(`{"coreData":{"id":"Y"}}`)))

	outcome, err := consumer.Poll(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, KindMessage, outcome.Kind)
	assert.Equal(t, []byte(`{"coreData":{"id":"Y"}}`), outcome.Payload)
}

func startNATSContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	req := testcontainers.ContainerRequest{
		Image:        "nats:latest",
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForListeningPort("4222/tcp"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	return container, fmt.Sprintf("nats://%s:%s", host, port.Port())
}

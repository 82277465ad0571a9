package app

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

func findFreePort(t *testing.T) int {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()
	return lis.Addr().(*net.TCPAddr).Port
}

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	cfg := validConfig()
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.MetricsAddr = fmt.Sprintf("127.0.0.1:%d", findFreePort(t))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, cfg)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := validConfig()
	cfg.StorageDriver = "invalid-driver"

	err := Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage driver")
}

func TestStartMetricsServer_Endpoints(t *testing.T) {
	port := findFreePort(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := startMetricsServer(ctx, fmt.Sprintf("127.0.0.1:%d", port), log.WithField("test", "http"),
		healthcheck.NewHandler(version.GetVersion()))
	defer shutdownHTTP(srv, log.WithField("test", "http"))

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/livez")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	for _, path := range []string{"/metrics", "/healthz"} {
		resp, err := http.Get(base + path)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.NotEmpty(t, body, path)
	}
}

func TestOutboxPublishers_WithoutKafka(t *testing.T) {
	publisher, dlq := outboxPublishers(nil, log.WithField("test", "outbox"))

	assert.IsType(t, &outbox.LogPublisher{}, publisher)
	assert.Nil(t, dlq)
}

func TestShutdownHelpers(t *testing.T) {
	logger := log.WithField("test", "shutdown")

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	stopped := make(chan struct{})
	runWorker(ctx, &wg, func(ctx context.Context) {
		<-ctx.Done()
		close(stopped)
	})

	shutdownWorkers(cancel, &wg, logger)
	select {
	case <-stopped:
	default:
		t.Fatal("worker must be stopped before shutdownWorkers returns")
	}

	shutdownWorkers(nil, nil, logger)
	closeKafkaProducer(nil, logger)
	stopConsumer(nil, logger)
	shutdownHTTP(nil, logger)
}

func TestInitKafkaProducer_NoBrokers(t *testing.T) {
	producer, err := initKafkaProducer(nil, log.WithField("test", "kafka"))
	require.NoError(t, err)
	assert.Nil(t, producer)

	assert.Nil(t, startCatalogConsumer(context.Background(), validConfig(), nil, func(context.Context) {}, log.WithField("test", "kafka")))
}

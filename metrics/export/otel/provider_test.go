package otel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelinedash/authcore"
)

func TestStartWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Start(context.Background(), PushConfig{}, nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestStartRejectsBadEndpoint(t *testing.T) {
	_, err := Start(context.Background(), PushConfig{EndpointURL: "collector:4318"}, &fakeSource{})
	assert.Error(t, err)

	_, err = Start(context.Background(), PushConfig{EndpointURL: "http://collector:4318"}, nil)
	assert.ErrorIs(t, err, ErrNilSource)
}

func TestMetricsURL(t *testing.T) {
	got, err := metricsURL("http://collector:4318")
	require.NoError(t, err)
	assert.Equal(t, "http://collector:4318/v1/metrics", got)

	got, err = metricsURL("https://collector.example.com/custom/path")
	require.NoError(t, err)
	assert.Equal(t, "https://collector.example.com/custom/path", got)
}

func TestStartPushesOnShutdown(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer collector.Close()

	src := &fakeSource{snapshot: authcore.MetricsSnapshot{
		Counters:   map[authcore.MetricID]uint64{authcore.MetricLoginSuccess: 1},
		Histograms: map[authcore.MetricID][]uint64{},
	}}

	shutdown, err := Start(context.Background(), PushConfig{
		ServiceName: "authcore-test",
		EndpointURL: collector.URL,
		Interval:    time.Hour,
	}, src)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, shutdown(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, paths)
	assert.Equal(t, "/v1/metrics", paths[0])
}

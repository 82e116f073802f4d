//go:build unit

package telemetry_test

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hugolhafner/go-camus/internal/telemetry"
	"github.com/hugolhafner/go-camus/otel"
)

func TestPrometheus_ExportsCamusMetrics(t *testing.T) {
	t.Parallel()
	p, err := telemetry.NewPrometheus()
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	p.Telemetry.RecordsRead.Add(context.Background(), 5, otel.PartitionAttributes("events", 0, "web01", "checkout"))

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "camus_pull_records")
	require.Contains(t, string(body), `camus_service="checkout"`)
	require.Contains(t, string(body), "go_goroutines")
}

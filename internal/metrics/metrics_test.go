package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techdigest/internal/pipeline"
)

type stubStages struct{ sendErr error }

func (stubStages) Gather(context.Context) (pipeline.IngestResult, error) {
	return pipeline.IngestResult{SourcesProcessed: 4, SourcesFailed: 1, ArticlesInserted: 7}, nil
}

func (stubStages) Process(context.Context) (pipeline.RelevanceResult, error) {
	return pipeline.RelevanceResult{Processed: 20, OracleErrors: 2}, nil
}

func (s stubStages) Send(context.Context) (pipeline.DeliveryResult, error) {
	return pipeline.DeliveryResult{Users: 3, Delivered: 2, Failed: 1}, s.sendErr
}

func TestInstrumentedStages(t *testing.T) {
	c := NewCollector("test")
	stages := c.Instrument(stubStages{})
	ctx := context.Background()

	_, err := stages.Gather(ctx)
	require.NoError(t, err)
	_, err = stages.Process(ctx)
	require.NoError(t, err)
	_, err = stages.Send(ctx)
	require.NoError(t, err)

	assert.Equal(t, 7.0, testutil.ToFloat64(c.ArticlesIngested))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.SourcesFailed))
	assert.Equal(t, 20.0, testutil.ToFloat64(c.ArticlesScored))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.OracleErrors))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Newsletters.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Newsletters.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.StageRuns.WithLabelValues("gather", "ok")))
}

func TestStageErrorsCounted(t *testing.T) {
	c := NewCollector("test")
	stages := c.Instrument(stubStages{sendErr: errors.New("list users: db closed")})

	_, err := stages.Send(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.StageRuns.WithLabelValues("send", "error")))
}

func TestHandler(t *testing.T) {
	c := NewCollector("techdigest")
	c.ObserveHTTP(http.MethodPost, "/functions/send-newsletters", http.StatusOK, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `techdigest_http_requests_total{method="POST",route="/functions/send-newsletters",status="200"} 1`)
}

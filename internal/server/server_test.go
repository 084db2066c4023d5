package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techdigest/internal/config"
	"techdigest/internal/logger"
	"techdigest/internal/metrics"
	"techdigest/internal/pipeline"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeStages struct {
	gatherErr error
	block     chan struct{}
	started   chan struct{}
	gathers   int
}

func (f *fakeStages) Gather(context.Context) (pipeline.IngestResult, error) {
	f.gathers++
	if f.block != nil {
		close(f.started)
		<-f.block
	}
	if f.gatherErr != nil {
		return pipeline.IngestResult{}, f.gatherErr
	}
	return pipeline.IngestResult{SourcesProcessed: 3, SourcesFailed: 1, ArticlesInserted: 12}, nil
}

func (f *fakeStages) Process(context.Context) (pipeline.RelevanceResult, error) {
	return pipeline.RelevanceResult{Processed: 20}, nil
}

func (f *fakeStages) Send(context.Context) (pipeline.DeliveryResult, error) {
	return pipeline.DeliveryResult{Delivered: 2}, nil
}

func newTestServer(stages Stages, db Pinger, cfg config.Server) *Server {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	return New(db, stages, cfg, logger.Discard())
}

func do(t *testing.T, s *Server, method, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeStages{}, fakePinger{}, config.Server{})
	rec := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	decode(t, rec, &body)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ok", body.Checks["database"])

	down := newTestServer(&fakeStages{}, fakePinger{err: errors.New("gone")}, config.Server{})
	rec = do(t, down, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTriggers(t *testing.T) {
	s := newTestServer(&fakeStages{}, fakePinger{}, config.Server{})

	tests := []struct {
		path    string
		message string
	}{
		{"/functions/gather-articles", "Gathered 12 new articles from 4 sources"},
		{"/functions/process-articles", "Processed 20 articles"},
		{"/functions/send-newsletters", "Delivered newsletters to 2 users"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, tt.path, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body TriggerResponse
			decode(t, rec, &body)
			assert.True(t, body.Success)
			assert.Equal(t, tt.message, body.Message)
		})
	}

	rec := do(t, s, http.MethodGet, "/functions/gather-articles", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestTriggerError(t *testing.T) {
	s := newTestServer(&fakeStages{gatherErr: errors.New("failed to list sources: db locked")}, fakePinger{}, config.Server{})

	rec := do(t, s, http.MethodPost, "/functions/gather-articles", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body ErrorResponse
	decode(t, rec, &body)
	assert.Equal(t, "failed to list sources: db locked", body.Error)
}

func TestTriggerToken(t *testing.T) {
	s := newTestServer(&fakeStages{}, fakePinger{}, config.Server{TriggerToken: "s3cret"})

	rec := do(t, s, http.MethodPost, "/functions/process-articles", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodPost, "/functions/process-articles", http.Header{"Authorization": {"Bearer wrong"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodPost, "/functions/process-articles", http.Header{"Authorization": {"Bearer s3cret"}})
	assert.Equal(t, http.StatusOK, rec.Code)

	// health stays open
	rec = do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(&fakeStages{}, fakePinger{}, config.Server{CORSOrigins: []string{"*"}})

	rec := do(t, s, http.MethodOptions, "/functions/send-newsletters", http.Header{
		"Origin":                         {"https://dashboard.example.com"},
		"Access-Control-Request-Method":  {"POST"},
		"Access-Control-Request-Headers": {"authorization,content-type"},
	})
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestConcurrentRunsRejected(t *testing.T) {
	stages := &fakeStages{block: make(chan struct{}), started: make(chan struct{})}
	s := newTestServer(stages, fakePinger{}, config.Server{})

	var wg sync.WaitGroup
	wg.Add(1)
	var first *httptest.ResponseRecorder
	go func() {
		defer wg.Done()
		first = do(t, s, http.MethodPost, "/functions/gather-articles", nil)
	}()

	<-stages.started
	rec := do(t, s, http.MethodPost, "/functions/send-newsletters", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(stages.block)
	wg.Wait()
	assert.Equal(t, http.StatusOK, first.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	c := metrics.NewCollector("techdigest")
	s := New(fakePinger{}, &fakeStages{}, config.Server{Port: 8080}, logger.Discard(), WithMetrics(c))

	rec := do(t, s, http.MethodPost, "/functions/gather-articles", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `techdigest_articles_ingested_total 12`)
	assert.Contains(t, body, `techdigest_stage_runs_total{stage="gather",status="ok"} 1`)
	assert.Contains(t, body, `route="/functions/gather-articles"`)

	// without the option the route does not exist
	plain := newTestServer(&fakeStages{}, fakePinger{}, config.Server{})
	rec = do(t, plain, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartScheduleInvalidCronExpression(t *testing.T) {
	s := newTestServer(&fakeStages{}, fakePinger{}, config.Server{Cron: config.Cron{Send: "every tuesday"}})
	err := s.StartSchedule()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send")
}

func TestScheduledRunSharesTriggerLock(t *testing.T) {
	stages := &fakeStages{}
	s := newTestServer(stages, fakePinger{}, config.Server{Cron: config.Cron{Gather: "0 */4 * * *"}})
	require.NoError(t, s.StartSchedule())
	defer s.stopSchedule(context.Background())

	run := func(ctx context.Context) error {
		_, err := s.stages.Gather(ctx)
		return err
	}

	s.runScheduled("gather", run)
	assert.Equal(t, 1, stages.gathers)

	s.runMu.Lock()
	s.runScheduled("gather", run)
	s.runMu.Unlock()
	assert.Equal(t, 1, stages.gathers, "tick skipped while another run holds the lock")
}

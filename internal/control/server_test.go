package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedBot/internal/config"
	"FeedBot/internal/domain"
	"FeedBot/internal/metrics"
)

type fakeSweeper struct {
	report domain.SweepReport
	err    error
	calls  [][]string
}

func (f *fakeSweeper) RunManual(_ context.Context, ids ...string) (domain.SweepReport, error) {
	f.calls = append(f.calls, ids)
	return f.report, f.err
}

func newTestServer(t *testing.T, sw *fakeSweeper) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{Channels: []config.ChannelConfig{
		{ID: "100", BruteAdmin: []int64{7}},
		{ID: "200"},
	}}
	reg := prometheus.NewRegistry()
	metrics.New(reg).ObserveSweep(domain.TriggerManual, true, 0)

	return NewServer(Deps{
		Sweeper:  sw,
		Channels: cfg.Channel,
		Stats:    func() (int, int) { return 12, 3 },
		Gatherer: reg,
	})
}

func postSweep(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, "/sweep", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestSweepRejectsUnknownChannel(t *testing.T) {
	sw := &fakeSweeper{}
	w := postSweep(t, newTestServer(t, sw), `{"channel_id":"999","user_id":7}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, sw.calls)
}

func TestSweepRejectsUserOutsideAllowList(t *testing.T) {
	sw := &fakeSweeper{}
	s := newTestServer(t, sw)

	assert.Equal(t, http.StatusForbidden, postSweep(t, s, `{"channel_id":"100","user_id":8}`).Code)
	assert.Equal(t, http.StatusForbidden, postSweep(t, s, `{"channel_id":"200","user_id":7}`).Code)
	assert.Empty(t, sw.calls)
}

func TestSweepRejectsMalformedBody(t *testing.T) {
	w := postSweep(t, newTestServer(t, &fakeSweeper{}), `{"user_id":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSweepReportsSuccess(t *testing.T) {
	sw := &fakeSweeper{report: domain.SweepReport{
		ID: "sweep-1",
		Channels: []domain.ChannelReport{{
			ChannelID: "100",
			Sources: []domain.SourceResult{
				{Kind: domain.KindFeed, Target: "https://a/rss", Author: "A", Articles: []domain.Article{{Link: "https://a/1"}}},
			},
		}},
	}}
	w := postSweep(t, newTestServer(t, sw), `{"channel_id":"100","user_id":7}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, sw.calls, 1)
	assert.Equal(t, []string{"100"}, sw.calls[0])

	var resp SweepResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, "sweep-1", resp.SweepID)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, 1, resp.Sources[0].Articles)
	assert.Empty(t, resp.Sources[0].Error)
}

func TestSweepReportsFailureAsBadGateway(t *testing.T) {
	sw := &fakeSweeper{report: domain.SweepReport{
		ID: "sweep-2",
		Channels: []domain.ChannelReport{{
			ChannelID: "100",
			Sources: []domain.SourceResult{
				{Kind: domain.KindLuogu, Target: "42", Err: errors.New("luogu 42: source unavailable")},
			},
		}},
	}}
	w := postSweep(t, newTestServer(t, sw), `{"channel_id":"100","user_id":7}`)

	require.Equal(t, http.StatusBadGateway, w.Code)
	var resp SweepResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Sources[0].Error, "unavailable")
}

func TestSweepReportsPersistFailure(t *testing.T) {
	sw := &fakeSweeper{report: domain.SweepReport{
		Channels: []domain.ChannelReport{{ChannelID: "100", PersistErr: errors.New("disk full")}},
	}}
	w := postSweep(t, newTestServer(t, sw), `{"channel_id":"100","user_id":7}`)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "disk full")
}

func TestSweepWaitFailure(t *testing.T) {
	sw := &fakeSweeper{err: context.DeadlineExceeded}
	w := postSweep(t, newTestServer(t, sw), `{"channel_id":"100","user_id":7}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, &fakeSweeper{})

	w := httptest.NewRecorder()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "/healthz", nil)
	require.NoError(t, err)
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var health map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.EqualValues(t, 12, health["seen_urls"])

	w = httptest.NewRecorder()
	req, err = http.NewRequestWithContext(context.Background(), http.MethodGet, "/metrics", nil)
	require.NoError(t, err)
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.Contains(w.Body.Bytes(), []byte("feedbot_sweeps_total")))
}

func TestClientRoundTrip(t *testing.T) {
	sw := &fakeSweeper{report: domain.SweepReport{ID: "sweep-3"}}
	srv := httptest.NewServer(newTestServer(t, sw).Handler())
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())

	resp, err := client.Sweep(context.Background(), "100", 7)
	require.NoError(t, err)
	assert.Equal(t, "sweep-3", resp.SweepID)

	_, err = client.Sweep(context.Background(), "100", 8)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestTryListenReportsBusyAddress(t *testing.T) {
	ln, err := TryListen("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, err = TryListen(ln.Addr().String())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mosaicnetworks/tabsync/src/common"
	"github.com/mosaicnetworks/tabsync/src/journal"
	"github.com/mosaicnetworks/tabsync/src/net"
	"github.com/mosaicnetworks/tabsync/src/node"
	"github.com/mosaicnetworks/tabsync/src/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *node.Node, func()) {
	host := net.NewInmemHost(common.NewTestEntry(t, common.TestLogLevel))

	conf := node.TestConfig(t)
	conf.Name = "counter"
	conf.MainTimeout = 20 * time.Millisecond

	n := node.NewNode(conf, store.New(func() store.State { return store.State{"count": 3} }), host.Open("o"), nil)
	require.NoError(t, n.Init())
	n.RunAsync()

	require.Eventually(t, n.IsLeader, time.Second, 5*time.Millisecond)

	s := NewService("127.0.0.1:0", n, common.NewTestEntry(t, common.TestLogLevel))

	return s, n, func() {
		n.Shutdown()
		host.Close()
	}
}

func get(t *testing.T, s *Service, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestGetStats(t *testing.T) {
	s, n, cleanup := newTestService(t)
	defer cleanup()

	rec := get(t, s, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var stats map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, n.SourceID(), stats["source_id"])
	assert.Equal(t, "true", stats["leader"])
}

func TestGetState(t *testing.T) {
	s, _, cleanup := newTestService(t)
	defer cleanup()

	rec := get(t, s, "/state")
	require.Equal(t, http.StatusOK, rec.Code)

	var st map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.Equal(t, float64(3), st["count"])
}

func TestGetRoster(t *testing.T) {
	s, _, cleanup := newTestService(t)
	defer cleanup()

	rec := get(t, s, "/roster")
	require.Equal(t, http.StatusOK, rec.Code)

	var info RosterInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	require.NotNil(t, info.SelfID)
	assert.Equal(t, 0, *info.SelfID)
	assert.True(t, info.IsLeader)
	assert.Equal(t, []int{0}, info.Roster)
}

func TestGetJournal(t *testing.T) {
	s, _, cleanup := newTestService(t)
	defer cleanup()

	rec := get(t, s, "/journal?from=1&limit=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []journal.Entry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, journal.Sent, entries[0].Kind)
	assert.Equal(t, uint64(1), entries[0].Seq)

	rec = get(t, s, "/journal?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMetrics(t *testing.T) {
	s, _, cleanup := newTestService(t)
	defer cleanup()

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "tabsync_envelopes_sent_total"))
}

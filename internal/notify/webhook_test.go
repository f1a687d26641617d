package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"secretariat-data/internal/domain"
	"secretariat-data/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleReport() *service.ResyncReport {
	return &service.ResyncReport{
		StartedAt:  time.Unix(1700000000, 0).UTC(),
		FinishedAt: time.Unix(1700000005, 0).UTC(),
		Kinds: map[domain.SourceKind]*service.KindStats{
			domain.SourceMember:    {Created: 3, Unchanged: 10},
			domain.SourceTownChair: {Created: 1, Errored: 1},
		},
		Errors: []service.ResyncError{{Kind: domain.SourceTownChair, Ref: "2", Message: "username collision"}},
	}
}

func TestWebhookNotifier_PostsReport(t *testing.T) {
	var got ResyncPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL+"/hooks/resync", zap.NewNop())
	require.NoError(t, n.NotifyResync(context.Background(), sampleReport()))

	assert.Equal(t, "credentials.resync.finished", got.Event)
	assert.Equal(t, 4, got.Totals.Created)
	assert.Equal(t, 1, got.Totals.Errored)
	require.NotNil(t, got.Report)
	require.Len(t, got.Report.Errors, 1)
	assert.Equal(t, "2", got.Report.Errors[0].Ref)
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, zap.NewNop())
	err := n.NotifyResync(context.Background(), sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
}

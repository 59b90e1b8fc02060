package journal

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"agent-widget/internal/webhook"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "journal.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 11, 16, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, webhook.Exchange{
		SessionID: "sess-1", Kind: webhook.KindMessage, Endpoint: "/n8n-proxy/a",
		RequestBody: `{"clientMessage":"oi"}`, Status: 200, ResponseBody: `[]`,
		Duration: 120 * time.Millisecond, At: base,
	}))
	require.NoError(t, s.Record(ctx, webhook.Exchange{
		SessionID: "sess-1", Kind: webhook.KindReset, Endpoint: "/n8n-proxy/b",
		Err: "connection refused", At: base.Add(time.Second),
	}))
	require.NoError(t, s.Record(ctx, webhook.Exchange{
		SessionID: "sess-2", Kind: webhook.KindMessage, Endpoint: "/n8n-proxy/c", Status: 204,
		At: base.Add(2 * time.Second),
	}))

	all, err := s.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "/n8n-proxy/c", all[0].Endpoint)
	require.Equal(t, "/n8n-proxy/a", all[2].Endpoint)
	require.Equal(t, int64(120), all[2].DurationMS)
	require.True(t, all[2].At.Equal(base))

	bySession, err := s.Recent(ctx, "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, bySession, 2)
	require.Equal(t, webhook.KindReset, bySession[0].Kind)
	require.Equal(t, "connection refused", bySession[0].Err)

	limited, err := s.Recent(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestStoreAsWebhookRecorder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		_, _ = io.WriteString(w, `[{"agentMessage":"olá"}]`)
	}))
	defer server.Close()

	s := openTestStore(t)
	client := webhook.NewClient(server.Client(), nil, zerolog.Nop(), webhook.WithRecorder(s))

	ctx := webhook.WithSessionID(context.Background(), "sess-http")
	_, err := client.Send(ctx, server.URL+"/hook", "oi", time.Now())
	require.NoError(t, err)

	entries, err := s.Recent(context.Background(), "sess-http", 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 200, entries[0].Status)
	require.Equal(t, server.URL+"/hook", entries[0].URL)
	require.Contains(t, entries[0].ResponseBody, "olá")
	require.Contains(t, entries[0].RequestBody, `"clientMessage":"oi"`)
}

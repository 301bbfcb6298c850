package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/laserman120/discord-bridge/internal/log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWebhook(t *testing.T, h http.HandlerFunc) (*Webhook, string) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewWebhook(Options{HTTPClient: srv.Client()}, log.NewNop()), srv.URL + "/api/webhooks/123/tok-en"
}

func TestSendReturnsMessageID(t *testing.T) {
	var gotWait string
	var gotBody Message
	w, endpoint := newTestWebhook(t, func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/webhooks/123/tok-en", r.URL.Path)
		gotWait = r.URL.Query().Get("wait")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		rw.Write([]byte(`{"id":"998877"}`))
	})

	res := w.Send(context.Background(), endpoint, Message{Content: "hello"})
	require.True(t, res.OK(), res.String())
	assert.Equal(t, "998877", res.ID())
	assert.Equal(t, "true", gotWait)
	assert.Equal(t, "hello", gotBody.Content)
}

func TestSendFailureIsResultNotError(t *testing.T) {
	w, endpoint := newTestWebhook(t, func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, `{"message":"Invalid Form Body"}`, http.StatusBadRequest)
	})

	res := w.Send(context.Background(), endpoint, Message{Content: "x"})
	assert.False(t, res.OK())
	assert.Equal(t, "status 400", res.Reason())
	assert.Empty(t, res.ID())
}

func TestSendWithoutIDFails(t *testing.T) {
	w, endpoint := newTestWebhook(t, func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusNoContent)
	})
	assert.False(t, w.Send(context.Background(), endpoint, Message{}).OK())
}

func TestEditTargetsMessagePath(t *testing.T) {
	var method, path string
	w, endpoint := newTestWebhook(t, func(rw http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		rw.Write([]byte(`{"id":"42"}`))
	})

	res := w.Edit(context.Background(), endpoint, "42", Message{Content: "edited"})
	assert.True(t, res.OK())
	assert.Equal(t, http.MethodPatch, method)
	assert.Equal(t, "/api/webhooks/123/tok-en/messages/42", path)
}

func TestEditNon2xxFails(t *testing.T) {
	w, endpoint := newTestWebhook(t, func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusForbidden)
	})
	res := w.Edit(context.Background(), endpoint, "42", Message{})
	assert.False(t, res.OK())
}

func TestDeleteTreatsNotFoundAsSuccess(t *testing.T) {
	for _, status := range []int{http.StatusNoContent, http.StatusNotFound} {
		w, endpoint := newTestWebhook(t, func(rw http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodDelete, r.Method)
			rw.WriteHeader(status)
		})
		assert.True(t, w.Delete(context.Background(), endpoint, "42").OK(), "status %d", status)
	}

	w, endpoint := newTestWebhook(t, func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusUnauthorized)
	})
	assert.False(t, w.Delete(context.Background(), endpoint, "42").OK())
}

func TestFetch(t *testing.T) {
	w, endpoint := newTestWebhook(t, func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/webhooks/123/tok-en/messages/42" {
			rw.Write([]byte(`{"id":"42","content":"hi","flags":32768,"components":[{"type":17}]}`))
			return
		}
		rw.WriteHeader(http.StatusNotFound)
	})

	msg, ok := w.Fetch(context.Background(), endpoint, "42")
	require.True(t, ok)
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, 32768, msg.Flags)
	assert.Len(t, msg.Components, 1)

	_, ok = w.Fetch(context.Background(), endpoint, "43")
	assert.False(t, ok)
}

func TestInvalidEndpoint(t *testing.T) {
	w := NewWebhook(Options{}, log.NewNop())
	assert.False(t, w.Edit(context.Background(), "not a url", "1", Message{}).OK())
	assert.False(t, w.Delete(context.Background(), "https://x/", "1").OK())
	assert.False(t, w.Send(context.Background(), "::", Message{}).OK())
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var calls int32
	w, endpoint := newTestWebhook(t, func(rw http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		rw.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < 10; i++ {
		assert.False(t, w.Send(context.Background(), endpoint, Message{}).OK())
	}
	// four consecutive failures trip the breaker; later calls never reach the server
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestRequestsCounter(t *testing.T) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_gateway_requests_total"}, []string{"op", "outcome"})
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	w := NewWebhook(Options{HTTPClient: srv.Client(), Requests: counter}, log.NewNop())

	w.Delete(context.Background(), srv.URL+"/api/webhooks/1/t", "9")
	w.Send(context.Background(), srv.URL+"/api/webhooks/1/t", Message{})

	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("delete", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.WithLabelValues("send", "failed")))
}

func TestValidateWebhookURL(t *testing.T) {
	assert.NoError(t, ValidateWebhookURL("https://discord.com/api/webhooks/123456/abc_DEF-9"))
	assert.NoError(t, ValidateWebhookURL(" https://canary.discordapp.com/api/webhooks/1/x "))
	assert.ErrorIs(t, ValidateWebhookURL("https://example.com/api/webhooks/1/x"), ErrInvalidWebhook)
	assert.ErrorIs(t, ValidateWebhookURL("http://discord.com/api/webhooks/1/x"), ErrInvalidWebhook)
	assert.ErrorIs(t, ValidateWebhookURL(""), ErrInvalidWebhook)
}

func TestResult(t *testing.T) {
	ok := Ok("1")
	assert.True(t, ok.OK())
	assert.Equal(t, "ok(1)", ok.String())
	f := Failed("boom")
	assert.False(t, f.OK())
	assert.Equal(t, "failed(boom)", f.String())
}

package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient(t *testing.T, url string, httpClient *http.Client) *Client {
	t.Helper()
	c, err := New(url, httpClient, newLogger())
	require.NoError(t, err)
	return c
}

func TestSendPostsFormEncodedMessage(t *testing.T) {
	var gotType, gotMessage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotType = r.Header.Get("Content-Type")
		require.NoError(t, r.ParseForm())
		gotMessage = r.PostForm.Get("message")
		_, _ = io.WriteString(w, `{"response":"Hello"}`)
	}))
	defer srv.Close()

	reply, err := newClient(t, srv.URL, nil).Send(context.Background(), "버스 & 시간표")
	require.NoError(t, err)
	assert.Equal(t, "application/x-www-form-urlencoded", gotType)
	assert.Equal(t, "버스 & 시간표", gotMessage)
	assert.Equal(t, Reply{Kind: Success, Text: "Hello"}, reply)
	assert.Equal(t, "Hello", reply.Display())
}

func TestSendStructuredFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"bad request"}`)
	}))
	defer srv.Close()

	reply, err := newClient(t, srv.URL, nil).Send(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, Failure, reply.Kind)
	assert.Equal(t, "Error: bad request", reply.Display())
}

func TestSendMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "<html>bad gateway</html>")
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL, nil).Send(context.Background(), "hi")
	require.ErrorIs(t, err, ErrMalformedReply)
	assert.Contains(t, err.Error(), "502")
}

func TestSendTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, &http.Client{Timeout: 50 * time.Millisecond})
	_, err := c.Send(context.Background(), "hi")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformedReply)
}

func TestNewRequiresEndpoint(t *testing.T) {
	_, err := New("  ", nil, newLogger())
	assert.Error(t, err)
}

func TestParseReply(t *testing.T) {
	cases := []struct {
		name string
		body string
		want Reply
	}{
		{"response", `{"response":"hi"}`, Reply{Kind: Success, Text: "hi"}},
		{"both fields", `{"response":"hi","error":"x"}`, Reply{Kind: Success, Text: "hi"}},
		{"empty response falls to error", `{"response":"","error":"empty"}`, Reply{Kind: Failure, Message: "empty"}},
		{"neither field", `{"status":"ok"}`, Reply{Kind: Failure, Message: "undefined"}},
		{"null error", `{"error":null}`, Reply{Kind: Failure, Message: "null"}},
		{"numeric response", `{"response":42}`, Reply{Kind: Success, Text: "42"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseReply([]byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	for _, body := range []string{"", "[]", `"text"`, "{"} {
		_, err := parseReply([]byte(body))
		assert.ErrorIs(t, err, ErrMalformedReply, "body %q", body)
	}
}

type flakySender struct {
	calls    atomic.Int32
	failures int32
	err      error
}

func (f *flakySender) Send(ctx context.Context, message string) (Reply, error) {
	if f.calls.Add(1) <= f.failures {
		return Reply{}, f.err
	}
	return Reply{Kind: Success, Text: strings.ToUpper(message)}, nil
}

func TestWithRetryRecoversTransportErrors(t *testing.T) {
	inner := &flakySender{failures: 2, err: errors.New("connection refused")}
	sender := WithRetry(inner, RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}, newLogger())

	reply, err := sender.Send(context.Background(), "ok")
	require.NoError(t, err)
	assert.Equal(t, "OK", reply.Text)
	assert.EqualValues(t, 3, inner.calls.Load())
}

func TestWithRetryGivesUp(t *testing.T) {
	inner := &flakySender{failures: 10, err: errors.New("connection refused")}
	sender := WithRetry(inner, RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond}, newLogger())

	_, err := sender.Send(context.Background(), "ok")
	require.Error(t, err)
	assert.EqualValues(t, 2, inner.calls.Load())
}

func TestWithRetryDoesNotRetryMalformed(t *testing.T) {
	inner := &flakySender{failures: 10, err: ErrMalformedReply}
	sender := WithRetry(inner, RetryPolicy{MaxAttempts: 5, InitialInterval: time.Millisecond}, newLogger())

	_, err := sender.Send(context.Background(), "ok")
	require.ErrorIs(t, err, ErrMalformedReply)
	assert.EqualValues(t, 1, inner.calls.Load())
}

func TestWithRetryDisabled(t *testing.T) {
	inner := &flakySender{}
	assert.Same(t, Sender(inner), WithRetry(inner, RetryPolicy{MaxAttempts: 1}, newLogger()))
}

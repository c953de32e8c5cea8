package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, "https://example.test/v1/messages", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("NewRequest err=%v", err)
	}
	return req
}

func TestDoBodyDecoratesRequest(t *testing.T) {
	var got *http.Request
	c := New(&http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		got = r
		return response(200, `{"ok":true}`), nil
	})})
	c.DefaultHeaders.Set("X-Default", "d")
	c.UserAgent = "ua/1"

	req := newRequest(t, `{}`)
	req.Header.Set("X-Default", "override")

	_, raw, err := c.DoBody(req)
	if err != nil {
		t.Fatalf("DoBody err=%v", err)
	}
	if string(raw) != `{"ok":true}` {
		t.Fatalf("raw=%s", raw)
	}
	if got.Header.Get("User-Agent") != "ua/1" {
		t.Fatalf("User-Agent=%q", got.Header.Get("User-Agent"))
	}
	if got.Header.Get("X-Default") != "override" {
		t.Fatalf("X-Default=%q", got.Header.Get("X-Default"))
	}
	if got.Header.Get("X-Request-Id") == "" {
		t.Fatalf("missing X-Request-Id")
	}
}

func TestDoBodyNoRetryByDefault(t *testing.T) {
	calls := 0
	c := New(&http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		return response(503, `overloaded`), nil
	})})

	_, raw, err := c.DoBody(newRequest(t, `{}`))
	var se *HTTPStatusError
	if !errors.As(err, &se) || se.StatusCode != 503 {
		t.Fatalf("err=%v", err)
	}
	if string(raw) != "overloaded" {
		t.Fatalf("raw=%q", raw)
	}
	if calls != 1 {
		t.Fatalf("calls=%d, want 1", calls)
	}
}

func TestDoBodyRetriesAndReplaysBody(t *testing.T) {
	var bodies []string
	c := New(&http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if len(bodies) < 3 {
			return response(429, `slow down`), nil
		}
		return response(200, `done`), nil
	})})
	c.Retry = RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

	_, raw, err := c.DoBody(newRequest(t, `{"n":1}`))
	if err != nil {
		t.Fatalf("DoBody err=%v", err)
	}
	if string(raw) != "done" {
		t.Fatalf("raw=%q", raw)
	}
	if len(bodies) != 3 {
		t.Fatalf("attempts=%d, want 3", len(bodies))
	}
	for i, b := range bodies {
		if b != `{"n":1}` {
			t.Fatalf("attempt %d body=%q", i+1, b)
		}
	}
}

func TestDoBodyFreshRequestIDPerAttempt(t *testing.T) {
	var ids []string
	c := New(&http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		ids = append(ids, r.Header.Get("X-Request-Id"))
		if len(ids) < 3 {
			return response(503, `overloaded`), nil
		}
		return response(200, `done`), nil
	})})
	c.Retry = RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	req := newRequest(t, `{"n":1}`)
	if _, _, err := c.DoBody(req); err != nil {
		t.Fatalf("DoBody err=%v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("attempts=%d, want 3", len(ids))
	}
	seen := make(map[string]bool)
	for i, id := range ids {
		if id == "" || seen[id] {
			t.Fatalf("attempt %d id=%q, ids=%v", i+1, id, ids)
		}
		seen[id] = true
	}
	if got := req.Header.Get("X-Request-Id"); got != "" {
		t.Fatalf("caller request mutated, X-Request-Id=%q", got)
	}
}

func TestDoBodyKeepsCallerRequestID(t *testing.T) {
	var ids []string
	c := New(&http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		ids = append(ids, r.Header.Get("X-Request-Id"))
		if len(ids) < 2 {
			return response(503, `overloaded`), nil
		}
		return response(200, `done`), nil
	})})
	c.Retry = RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	req := newRequest(t, `{}`)
	req.Header.Set("X-Request-Id", "fixed")
	if _, _, err := c.DoBody(req); err != nil {
		t.Fatalf("DoBody err=%v", err)
	}
	if len(ids) != 2 || ids[0] != "fixed" || ids[1] != "fixed" {
		t.Fatalf("ids=%v", ids)
	}
}

func TestDoBodyDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	c := New(&http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		return response(400, `bad`), nil
	})})
	c.Retry = RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond}

	if _, _, err := c.DoBody(newRequest(t, `{}`)); err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls=%d, want 1", calls)
	}
}

func TestDoLeavesBodyOpenOnSuccess(t *testing.T) {
	c := New(&http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return response(200, "data: x\n\n"), nil
	})})
	resp, err := c.Do(newRequest(t, `{}`))
	if err != nil {
		t.Fatalf("Do err=%v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if string(b) != "data: x\n\n" {
		t.Fatalf("body=%q", b)
	}
}

func TestDoStatusError(t *testing.T) {
	c := New(&http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		resp := response(401, `{"type":"error"}`)
		resp.Header.Set("request-id", "req_1")
		return resp, nil
	})})
	_, err := c.Do(newRequest(t, `{}`))
	var se *HTTPStatusError
	if !errors.As(err, &se) {
		t.Fatalf("err=%T %v", err, err)
	}
	if se.StatusCode != 401 || string(se.Body) != `{"type":"error"}` || se.Header.Get("request-id") != "req_1" {
		t.Fatalf("status error=%+v", se)
	}
}

func TestBackoffCapped(t *testing.T) {
	d := backoff(100*time.Millisecond, 150*time.Millisecond, 5)
	if d > 165*time.Millisecond || d < 135*time.Millisecond {
		t.Fatalf("backoff=%v", d)
	}
}

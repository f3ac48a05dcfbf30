package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestClient_ErrorIncludesBody(t *testing.T) {
	t.Parallel()

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"nope"}`))
	}))
	defer s.Close()

	c := NewClient(time.Second)
	resp, err := c.Do(context.Background(), Request{BaseURL: s.URL, Path: "stat"}, nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("resp=%+v", resp)
	}
	got := err.Error()
	if got == "" || got[len(got)-1] == '\n' {
		t.Fatalf("unexpected error string: %q", got)
	}
	if want := "400"; !strings.Contains(got, want) {
		t.Fatalf("error missing status: %q", got)
	}
	if want := `"error":"nope"`; !strings.Contains(got, want) {
		t.Fatalf("error missing body: %q", got)
	}
}

func TestClient_Unauthorized(t *testing.T) {
	t.Parallel()

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer s.Close()

	_, err := NewClient(time.Second).Do(context.Background(), Request{BaseURL: s.URL, Path: "auth"}, nil)
	if !IsUnauthorized(err) {
		t.Fatalf("err=%v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusText() != "Unauthorized" {
		t.Fatalf("status text: %v", err)
	}
}

func TestClient_HeadersAndProgress(t *testing.T) {
	t.Parallel()

	payload := strings.Repeat("x", 4096)
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/plugins/selectors/list_extractors" {
			t.Errorf("path=%s", r.URL.Path)
		}
		if r.Header.Get(PasswordHeader) != "secret" {
			t.Errorf("password=%q", r.Header.Get(PasswordHeader))
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write([]byte(payload))
	}))
	defer s.Close()

	var last, total int64
	resp, err := NewClient(time.Second).Do(context.Background(), Request{
		BaseURL: s.URL + "/",
		Path:    "/plugins/selectors/list_extractors",
		Header:  http.Header{PasswordHeader: []string{"secret"}},
	}, func(loaded, n int64) {
		last, total = loaded, n
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if len(resp.Body) != len(payload) {
		t.Fatalf("body=%d", len(resp.Body))
	}
	if total != int64(len(payload)) || last != total {
		t.Fatalf("progress=%d/%d", last, total)
	}
}

func TestClient_TimeoutAppliesToNextRequest(t *testing.T) {
	t.Parallel()

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer s.Close()

	c := NewClient(time.Second)
	if _, err := c.Do(context.Background(), Request{BaseURL: s.URL, Path: "stat"}, nil); err != nil {
		t.Fatalf("first: %v", err)
	}
	c.SetTimeout(20 * time.Millisecond)
	if _, err := c.Do(context.Background(), Request{BaseURL: s.URL, Path: "stat"}, nil); err == nil {
		t.Fatalf("expected timeout")
	}
}

func TestJoinURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		base, path string
		query      url.Values
		want       string
	}{
		{"http://h:1/", "stat", nil, "http://h:1/stat"},
		{"http://h:1", "/stat", nil, "http://h:1/stat"},
		{"http://h:1/ui/", "check?selector=a", url.Values{"x": {"1"}}, "http://h:1/ui/check?selector=a&x=1"},
		{"", "stat", url.Values{"x": {"1"}}, "stat?x=1"},
	}
	for _, tc := range cases {
		if got := JoinURL(tc.base, tc.path, tc.query); got != tc.want {
			t.Fatalf("JoinURL(%q,%q)=%q want %q", tc.base, tc.path, got, tc.want)
		}
	}
}

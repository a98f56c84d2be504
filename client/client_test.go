package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestDefaultClient_UserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, _ = DefaultClient().GetBody(context.Background(), server.URL)
	if gotUA != "extstatus" {
		t.Errorf("default User-Agent = %q, want %q", gotUA, "extstatus")
	}
}

func TestClient_WithUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, _ = DefaultClient().WithUserAgent("custom-agent/2.0").GetBody(context.Background(), server.URL)
	if gotUA != "custom-agent/2.0" {
		t.Errorf("User-Agent = %q, want %q", gotUA, "custom-agent/2.0")
	}
}

func TestGetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		_, _ = w.Write([]byte(`{"name":"lodash"}`))
	}))
	defer server.Close()

	var out struct {
		Name string `json:"name"`
	}
	if err := DefaultClient().GetJSON(context.Background(), server.URL, &out); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if out.Name != "lodash" {
		t.Errorf("name = %q, want lodash", out.Name)
	}
}

func TestGetBodyRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := NewClient(WithBaseDelay(time.Millisecond))
	body, err := c.GetBody(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("GetBody failed: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
}

func TestGetBodyNotFoundNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewClient(WithBaseDelay(time.Millisecond)).GetBody(context.Background(), server.URL)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || !httpErr.IsNotFound() {
		t.Fatalf("GetBody error = %v, want 404 HTTPError", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1", attempts.Load())
	}
}

func TestGetBodyGivesUpAfterMaxRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(WithMaxRetries(2), WithBaseDelay(time.Millisecond))
	if _, err := c.GetBody(context.Background(), server.URL); err == nil {
		t.Fatal("expected error")
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
}

func TestGetBodyContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := DefaultClient().GetBody(ctx, server.URL); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestURLs(t *testing.T) {
	u := NewURLs("https://registry.example.com/")

	tests := []struct {
		got  string
		want string
	}{
		{u.Metadata("lodash"), "https://registry.example.com/lodash"},
		{u.Metadata("@jupyterlab/git"), "https://registry.example.com/@jupyterlab%2Fgit"},
		{u.Tarball("lodash", "4.17.21"), "https://registry.example.com/lodash/-/lodash-4.17.21.tgz"},
		{u.Tarball("@jupyterlab/git", "0.50.1"), "https://registry.example.com/@jupyterlab/git/-/git-0.50.1.tgz"},
		{u.Tarball("lodash", ""), ""},
		{u.Page("lodash", "1.0.0"), "https://www.npmjs.com/package/lodash/v/1.0.0"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}

	if NewURLs("").BaseURL != DefaultRegistryURL {
		t.Errorf("empty base URL should default to %s", DefaultRegistryURL)
	}
}

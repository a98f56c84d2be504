package extstatus_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/git-pkgs/extstatus"
	"github.com/git-pkgs/extstatus/client"
)

// Mock packument with enough versions to exercise ordering.
func packument(n int) map[string]any {
	versions := map[string]any{}
	for i := 0; i < n; i++ {
		app := "^4.0.0"
		if i >= n-3 {
			app = "^5.0.0"
		}
		v := fmt.Sprintf("0.%d.0", i)
		versions[v] = map[string]any{
			"version":      v,
			"dependencies": map[string]string{"@jupyterlab/application": app},
		}
	}
	return map[string]any{"name": "jupyterlab-git", "versions": versions}
}

func BenchmarkStatus_Memoized(b *testing.B) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	dir := b.TempDir()
	writeFile(b, dir+"/extensions/jupyterlab-git/package.json", `{"name": "jupyterlab-git", "version": "0.41.0"}`)

	m := extstatus.New(extstatus.WithRegistryURL(server.URL), extstatus.WithClient(client.NewClient(client.WithMaxRetries(0))))
	defer m.Close()
	ctx := context.Background()
	_, _ = m.Status(ctx, dir, false)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = m.Status(ctx, dir, false)
	}
}

func BenchmarkOutdated_Refresh(b *testing.B) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jupyterlab-git" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(packument(50))
	}))
	defer server.Close()

	dir := b.TempDir()
	writeFile(b, dir+"/extensions/jupyterlab-git/package.json", `{"name": "jupyterlab-git", "version": "0.1.0"}`)
	writeFile(b, dir+"/staging/package.json", `{"resolutions": {"@jupyterlab/application": "~4.1.0"}}`)

	m := extstatus.New(extstatus.WithRegistryURL(server.URL), extstatus.WithClient(client.NewClient(client.WithMaxRetries(0))))
	defer m.Close()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = m.Outdated(ctx, dir, true)
	}
}

func BenchmarkPURL(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = extstatus.PURL("@jupyterlab/git", "0.50.1")
	}
}

func BenchmarkParseAction(b *testing.B) {
	actions := []string{"install", "uninstall", "enable", "disable", "upgrade"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = extstatus.ParseAction(actions[i%len(actions)])
	}
}

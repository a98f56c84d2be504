package extstatus_test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/git-pkgs/extstatus"
	"github.com/git-pkgs/extstatus/client"
)

func tarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		if err := tw.WriteHeader(&tar.Header{Name: "package/" + name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writeFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func appDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "extensions", "jupyterlab-git", "package.json"), `{
		"name": "jupyterlab-git", "version": "0.41.0", "description": "git for JupyterLab",
		"dependencies": {"@jupyterlab/application": "^4.0.0"},
		"jupyterlab": {"extension": true}
	}`)
	writeFile(t, filepath.Join(dir, "staging", "package.json"), `{
		"dependencies": {"@jupyterlab/application": "4.1.0", "jupyterlab-git": "0.41.0"},
		"resolutions": {"@jupyterlab/application": "~4.1.0"},
		"jupyterlab": {"singletonPackages": ["@jupyterlab/application"]}
	}`)
	return dir
}

func registryServer(t *testing.T, tarballHits *atomic.Int32) *httptest.Server {
	t.Helper()
	compatible := map[string]string{"@jupyterlab/application": "^4.0.0"}
	pkg := tarball(t, map[string]string{
		"package.json": `{"name": "jupyterlab-git", "version": "0.42.0", "main": "lib/index.js",
			"dependencies": {"@jupyterlab/application": "^4.0.0"}, "jupyterlab": {"extension": true}}`,
		"lib/index.js": "export default [];",
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/jupyterlab-git":
			resp := map[string]any{
				"name": "jupyterlab-git",
				"versions": map[string]any{
					"0.41.0": map[string]any{"version": "0.41.0", "dependencies": compatible},
					"0.42.0": map[string]any{"version": "0.42.0", "dependencies": compatible},
					"1.0.0":  map[string]any{"version": "1.0.0", "dependencies": map[string]string{"@jupyterlab/application": "^5.0.0"}},
				},
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(resp)
		case "/jupyterlab-git/-/jupyterlab-git-0.42.0.tgz":
			tarballHits.Add(1)
			_, _ = w.Write(pkg)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestManagerStatus(t *testing.T) {
	var hits atomic.Int32
	server := registryServer(t, &hits)
	dir := appDir(t)

	m := extstatus.New(
		extstatus.WithRegistryURL(server.URL),
		extstatus.WithClient(client.NewClient(client.WithMaxRetries(0))),
		extstatus.WithDiscoveryTimeout(5*time.Second),
	)
	defer m.Close()

	entries, err := m.Status(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries: %+v", len(entries), entries)
	}
	e := entries[0]
	if e.Name != "jupyterlab-git" || e.InstalledVersion != "0.41.0" {
		t.Errorf("entry = %+v", e)
	}
	if e.LatestVersion != "0.42.0" {
		t.Errorf("LatestVersion = %q, want the newest compatible 0.42.0", e.LatestVersion)
	}
	if e.Status != extstatus.StatusOK || !e.Enabled {
		t.Errorf("status = %s enabled = %v", e.Status, e.Enabled)
	}
	if e.PURL != extstatus.PURL("jupyterlab-git", "0.41.0") {
		t.Errorf("PURL = %q", e.PURL)
	}

	// A second call reuses the memoized discovery.
	if _, err := m.Status(context.Background(), dir, false); err != nil {
		t.Fatal(err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("tarball downloaded %d times, want 1", got)
	}

	families, err := extstatus.Metrics().Gather()
	if err != nil {
		t.Fatalf("gathering metrics: %v", err)
	}
	var sawDiscovery bool
	for _, mf := range families {
		if mf.GetName() == "extstatus_outdated_discovery_runs_total" {
			sawDiscovery = true
		}
	}
	if !sawDiscovery {
		t.Error("discovery runs were not recorded")
	}
}

func TestManagerRegistryDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	m := extstatus.New(
		extstatus.WithRegistryURL(server.URL),
		extstatus.WithClient(client.NewClient(client.WithMaxRetries(0))),
	)
	defer m.Close()

	entries, err := m.Status(context.Background(), appDir(t), false)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(entries) != 1 || entries[0].LatestVersion != entries[0].InstalledVersion {
		t.Errorf("entries = %+v, want latest to fall back to installed", entries)
	}
}

type recordingInvoker struct {
	calls []string
}

func (r *recordingInvoker) Invoke(ctx context.Context, appDir string, action extstatus.Action, name string) (bool, error) {
	r.calls = append(r.calls, action.String()+" "+name)
	return true, nil
}

func TestManagerPerform(t *testing.T) {
	inv := &recordingInvoker{}
	m := extstatus.New(extstatus.WithInvoker(inv))
	defer m.Close()
	ctx := context.Background()

	res, err := m.Perform(ctx, "/app", "Enable", "jupyterlab-git")
	if err != nil || res.Status != extstatus.StatusOK {
		t.Fatalf("Perform = %+v, %v", res, err)
	}
	if len(inv.calls) != 1 || inv.calls[0] != "enable jupyterlab-git" {
		t.Errorf("invoker calls = %v", inv.calls)
	}

	var unknown *extstatus.UnknownActionError
	if _, err := m.Perform(ctx, "/app", "upgrade", "jupyterlab-git"); !errors.As(err, &unknown) {
		t.Errorf("error = %v, want UnknownActionError", err)
	}
	if _, err := m.Perform(ctx, "/app", "install", ""); !errors.Is(err, extstatus.ErrMissingName) {
		t.Errorf("error = %v, want ErrMissingName", err)
	}
}

func TestManagerMissingAppDir(t *testing.T) {
	m := extstatus.New()
	defer m.Close()
	_, err := m.Status(context.Background(), filepath.Join(t.TempDir(), "missing"), false)
	if !errors.Is(err, extstatus.ErrNoInstalledList) {
		t.Errorf("error = %v, want ErrNoInstalledList", err)
	}
}

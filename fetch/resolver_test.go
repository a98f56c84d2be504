package fetch

import (
	"errors"
	"testing"

	"github.com/git-pkgs/extstatus/client"
)

func TestResolveConventionalURL(t *testing.T) {
	r := NewResolver(client.NewURLs("https://registry.npmjs.org"))

	tests := []struct {
		name         string
		version      string
		wantURL      string
		wantFilename string
	}{
		{
			name:         "lodash",
			version:      "4.17.21",
			wantURL:      "https://registry.npmjs.org/lodash/-/lodash-4.17.21.tgz",
			wantFilename: "lodash-4.17.21.tgz",
		},
		{
			name:         "@jupyterlab/git",
			version:      "0.50.1",
			wantURL:      "https://registry.npmjs.org/@jupyterlab/git/-/git-0.50.1.tgz",
			wantFilename: "git-0.50.1.tgz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := r.Resolve(tt.name, tt.version, "")
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if info.URL != tt.wantURL {
				t.Errorf("URL = %q, want %q", info.URL, tt.wantURL)
			}
			if info.Filename != tt.wantFilename {
				t.Errorf("Filename = %q, want %q", info.Filename, tt.wantFilename)
			}
		})
	}
}

func TestResolvePrefersHint(t *testing.T) {
	r := NewResolver(nil)
	info, err := r.Resolve("lodash", "4.17.21", "https://mirror.example.com/lodash.tgz?token=x")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if info.URL != "https://mirror.example.com/lodash.tgz?token=x" {
		t.Errorf("URL = %q", info.URL)
	}
	if info.Filename != "lodash.tgz" {
		t.Errorf("Filename = %q, want lodash.tgz", info.Filename)
	}
}

func TestResolveNoVersion(t *testing.T) {
	_, err := NewResolver(nil).Resolve("lodash", "", "")
	if !errors.Is(err, ErrNoDownloadURL) {
		t.Errorf("Resolve error = %v, want ErrNoDownloadURL", err)
	}
}

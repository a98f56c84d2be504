package npm

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/nlepage/go-tarfs"

	"github.com/git-pkgs/extstatus/internal/core"
)

// sniffSize is how much of the download is inspected to confirm it is gzip.
const sniffSize = 3072

var (
	errNoManifest = errors.New("tarball has no package.json")
	errNotGzip    = errors.New("artifact is not a gzip tarball")
)

// ReadTarball reads a gzipped npm tarball and returns its package.json along
// with the list of regular files it contains. npm packs everything under a
// single top-level directory (normally "package/") which is stripped from the
// paths.
func ReadTarball(r io.Reader) (*core.Manifest, error) {
	br := bufio.NewReaderSize(r, sniffSize)
	head, _ := br.Peek(sniffSize)
	if mt := mimetype.Detect(head); !mt.Is("application/gzip") {
		return nil, fmt.Errorf("%w: detected %s", errNotGzip, mt.String())
	}

	gz, err := gzip.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("opening gzip stream: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tfs, err := tarfs.New(gz)
	if err != nil {
		return nil, fmt.Errorf("reading tar: %w", err)
	}

	root, err := packageRoot(tfs)
	if err != nil {
		return nil, err
	}
	data, err := fs.ReadFile(tfs, path.Join(root, "package.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errNoManifest
	}
	if err != nil {
		return nil, fmt.Errorf("reading package.json: %w", err)
	}
	manifest, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}

	var files []string
	err = fs.WalkDir(tfs, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, strings.TrimPrefix(p, root+"/"))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing tarball: %w", err)
	}
	manifest.Files = files
	return manifest, nil
}

// packageRoot returns the tarball's top-level directory, preferring
// "package" when several exist.
func packageRoot(fsys fs.FS) (string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return "", fmt.Errorf("reading tarball root: %w", err)
	}
	root := ""
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if e.Name() == "package" {
			return "package", nil
		}
		if root == "" {
			root = e.Name()
		}
	}
	if root == "" {
		return "", errNoManifest
	}
	return root, nil
}

type manifestJSON struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Description  string            `json:"description"`
	Main         string            `json:"main"`
	Keywords     any               `json:"keywords"`
	Dependencies map[string]string `json:"dependencies"`
	JupyterLab   any               `json:"jupyterlab"`
}

// ParseManifest decodes a package.json document.
func ParseManifest(data []byte) (*core.Manifest, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing package.json: %w", err)
	}
	var m manifestJSON
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing package.json: %w", err)
	}
	jlab, _ := m.JupyterLab.(map[string]any)
	return &core.Manifest{
		Name:         m.Name,
		Version:      m.Version,
		Description:  m.Description,
		Main:         m.Main,
		Keywords:     extractKeywords(m.Keywords),
		Dependencies: m.Dependencies,
		JupyterLab:   jlab,
		Raw:          raw,
	}, nil
}

func extractKeywords(v any) []string {
	switch k := v.(type) {
	case []any:
		keywords := make([]string, 0, len(k))
		for _, item := range k {
			if s, ok := item.(string); ok && s != "" {
				keywords = append(keywords, s)
			}
		}
		return keywords
	case string:
		return strings.Fields(strings.ReplaceAll(k, ",", " "))
	}
	return nil
}

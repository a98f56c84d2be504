// Package extension decides whether a published package qualifies as a
// loadable host extension.
package extension

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/git-pkgs/extstatus/internal/core"
)

//go:embed schema/package.schema.json
var schemaBytes []byte

var (
	compiledSchema *jsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
	printer        = message.NewPrinter(language.English)
)

func getSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
		if err != nil {
			compileErr = fmt.Errorf("unmarshaling schema JSON: %w", err)
			return
		}

		c := jsonschema.NewCompiler()
		if err := c.AddResource("package.schema.json", doc); err != nil {
			compileErr = fmt.Errorf("adding schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile("package.schema.json")
		if compileErr != nil {
			compileErr = fmt.Errorf("compiling schema: %w", compileErr)
		}
	})
	return compiledSchema, compileErr
}

// Validate returns every reason m is not a loadable extension. An empty
// result means the manifest qualifies.
func Validate(m *core.Manifest) []string {
	if m == nil {
		return []string{"missing package.json"}
	}

	problems := schemaProblems(m)
	if m.JupyterLab == nil {
		if len(problems) == 0 {
			problems = append(problems, "No `jupyterlab` key")
		}
		return problems
	}

	ext, hasExt := entryPoint(m, "extension")
	mime, hasMime := entryPoint(m, "mimeExtension")
	if !hasExt && !hasMime {
		problems = append(problems, "No `extension` or `mimeExtension` key present")
	}
	if hasExt && hasMime && ext == mime {
		problems = append(problems, "`mimeExtension` and `extension` must point to different modules")
	}

	// Only packages unpacked from a tarball carry a file list.
	if len(m.Files) == 0 {
		return problems
	}
	files := make(map[string]bool, len(m.Files))
	for _, f := range m.Files {
		files[path.Clean(f)] = true
	}
	if hasExt && !hasModule(files, ext) {
		problems = append(problems, fmt.Sprintf("Missing extension module %q", ext))
	}
	if hasMime && !hasModule(files, mime) {
		problems = append(problems, fmt.Sprintf("Missing mimeExtension module %q", mime))
	}
	for _, key := range []string{"themePath", "schemaDir"} {
		dir, ok := m.JupyterLab[key].(string)
		if !ok || dir == "" {
			continue
		}
		if !hasDir(m.Files, dir) {
			problems = append(problems, fmt.Sprintf("%s is empty: %q", key, dir))
		}
	}
	return problems
}

// IsValid reports whether m qualifies as a host extension.
func IsValid(m *core.Manifest) bool {
	return len(Validate(m)) == 0
}

// Validator adapts Validate to the error-returning form the resolver uses.
type Validator struct{}

// Validate returns an *core.InvalidManifestError listing the problems.
func (Validator) Validate(m *core.Manifest) error {
	problems := Validate(m)
	if len(problems) == 0 {
		return nil
	}
	var name, version string
	if m != nil {
		name, version = m.Name, m.Version
	}
	return &core.InvalidManifestError{Name: name, Version: version, Problems: problems}
}

// entryPoint returns the module a jupyterlab entry point resolves to. true
// means the package's main module.
func entryPoint(m *core.Manifest, key string) (string, bool) {
	switch v := m.JupyterLab[key].(type) {
	case bool:
		if !v {
			return "", false
		}
		main := m.Main
		if main == "" {
			main = "index.js"
		}
		return normalizeModule(main), true
	case string:
		if v == "" {
			return "", false
		}
		return normalizeModule(v), true
	}
	return "", false
}

func normalizeModule(p string) string {
	p = path.Clean(strings.TrimPrefix(p, "./"))
	if path.Ext(p) == "" {
		p += ".js"
	}
	return p
}

func hasModule(files map[string]bool, module string) bool {
	if files[module] {
		return true
	}
	// "lib/plugin" may also name "lib/plugin/index.js".
	return files[path.Join(strings.TrimSuffix(module, ".js"), "index.js")]
}

func hasDir(files []string, dir string) bool {
	prefix := path.Clean(strings.TrimPrefix(dir, "./")) + "/"
	for _, f := range files {
		if strings.HasPrefix(f, prefix) {
			return true
		}
	}
	return false
}

func schemaProblems(m *core.Manifest) []string {
	schema, err := getSchema()
	if err != nil {
		return []string{err.Error()}
	}

	doc := m.Raw
	if doc == nil {
		doc = map[string]any{"name": m.Name, "version": m.Version}
		if m.JupyterLab != nil {
			doc["jupyterlab"] = m.JupyterLab
		}
	}
	// Round-trip so numbers reach the validator as json.Number.
	data, err := json.Marshal(doc)
	if err != nil {
		return []string{fmt.Sprintf("encoding manifest: %v", err)}
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return []string{fmt.Sprintf("decoding manifest: %v", err)}
	}

	err = schema.Validate(inst)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	return collectProblems(ve, nil)
}

func collectProblems(ve *jsonschema.ValidationError, out []string) []string {
	if len(ve.Causes) == 0 {
		if ve.ErrorKind == nil {
			return out
		}
		msg := ve.ErrorKind.LocalizedString(printer)
		if len(ve.InstanceLocation) > 0 {
			msg = "/" + strings.Join(ve.InstanceLocation, "/") + ": " + msg
		}
		for _, seen := range out {
			if seen == msg {
				return out
			}
		}
		return append(out, msg)
	}
	for _, cause := range ve.Causes {
		out = collectProblems(cause, out)
	}
	return out
}

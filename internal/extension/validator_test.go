package extension

import (
	"errors"
	"strings"
	"testing"

	"github.com/git-pkgs/extstatus/internal/core"
)

func manifest(jlab map[string]any, files ...string) *core.Manifest {
	raw := map[string]any{"name": "jupyterlab-git", "version": "0.41.0", "main": "lib/index.js"}
	if jlab != nil {
		raw["jupyterlab"] = jlab
	}
	return &core.Manifest{
		Name:       "jupyterlab-git",
		Version:    "0.41.0",
		Main:       "lib/index.js",
		JupyterLab: jlab,
		Files:      files,
		Raw:        raw,
	}
}

func TestValidateAcceptsExtension(t *testing.T) {
	m := manifest(map[string]any{"extension": true, "schemaDir": "schema"},
		"package.json", "lib/index.js", "schema/plugin.json")
	if problems := Validate(m); len(problems) != 0 {
		t.Errorf("Validate = %v, want none", problems)
	}
	if !IsValid(m) {
		t.Error("IsValid should be true")
	}
}

func TestValidateWithoutFileList(t *testing.T) {
	m := manifest(map[string]any{"mimeExtension": "lib/mime"})
	if !IsValid(m) {
		t.Errorf("Validate = %v, want none", Validate(m))
	}
}

func TestValidateProblems(t *testing.T) {
	tests := []struct {
		name string
		m    *core.Manifest
		want string
	}{
		{"nil manifest", nil, "missing package.json"},
		{"no jupyterlab key", manifest(nil), "jupyterlab"},
		{"no entry point", manifest(map[string]any{"themePath": "style"}), "No `extension` or `mimeExtension`"},
		{"same module", manifest(map[string]any{"extension": "lib/index.js", "mimeExtension": true}), "different modules"},
		{"missing module", manifest(map[string]any{"extension": "lib/plugin"}, "package.json", "lib/index.js"), `Missing extension module "lib/plugin.js"`},
		{"empty schema dir", manifest(map[string]any{"extension": true, "schemaDir": "schema"}, "package.json", "lib/index.js"), "schemaDir is empty"},
		{"bad name", &core.Manifest{
			Name:       "Not A Name",
			Version:    "1.0.0",
			JupyterLab: map[string]any{"extension": true},
			Raw:        map[string]any{"name": "Not A Name", "version": "1.0.0", "jupyterlab": map[string]any{"extension": true}},
		}, "/name"},
		{"entry point wrong type", manifest(map[string]any{"extension": 3}), "/jupyterlab/extension"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problems := Validate(tt.m)
			if len(problems) == 0 {
				t.Fatal("expected problems")
			}
			joined := strings.Join(problems, "\n")
			if !strings.Contains(joined, tt.want) {
				t.Errorf("problems %q do not mention %q", joined, tt.want)
			}
		})
	}
}

func TestValidateDirectoryModule(t *testing.T) {
	m := manifest(map[string]any{"extension": "./lib/plugin"}, "package.json", "lib/plugin/index.js")
	if problems := Validate(m); len(problems) != 0 {
		t.Errorf("Validate = %v, want none", problems)
	}
}

func TestValidatorError(t *testing.T) {
	err := Validator{}.Validate(manifest(nil))
	var invalid *core.InvalidManifestError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidManifestError, got %v", err)
	}
	if invalid.Name != "jupyterlab-git" || invalid.Version != "0.41.0" {
		t.Errorf("error = %+v", invalid)
	}

	ok := manifest(map[string]any{"extension": true})
	if err := (Validator{}).Validate(ok); err != nil {
		t.Errorf("Validate(valid) = %v", err)
	}
}

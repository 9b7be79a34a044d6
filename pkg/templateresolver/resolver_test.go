package templateresolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensinfor/sensinfor/pkg/defaults"
)

func TestRead_Embedded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value string
		kind  Kind
		want  string
	}{
		{"default", KindRules, "embedded:rules/default.yaml"},
		{"default.yaml", KindRules, "embedded:rules/default.yaml"},
		{"markdown", KindOutput, "embedded:output/markdown.tmpl"},
		{"text", KindOutput, "embedded:output/text.tmpl"},
		{"csv.tmpl", KindOutput, "embedded:output/csv.tmpl"},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Parallel()
			data, source, err := Read(tt.value, tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, source)
			assert.NotEmpty(t, data)
		})
	}
}

func TestRead_FilePath(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "mine.tmpl")
	require.NoError(t, os.WriteFile(p, []byte("{{ .Target }}"), 0o600))

	data, source, err := Read(p, KindOutput)
	require.NoError(t, err)
	assert.Equal(t, "disk:"+p, source)
	assert.Equal(t, "{{ .Target }}", string(data))

	_, _, err = Read(filepath.Join(t.TempDir(), "missing.tmpl"), KindOutput)
	assert.Error(t, err)
}

func TestRead_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
		kind  Kind
		want  error
	}{
		{"empty", "", KindOutput, ErrNotFound},
		{"traversal", "../../etc/passwd", KindOutput, ErrTraversal},
		{"backslash traversal", `..\secrets`, KindRules, ErrTraversal},
		{"unknown kind", "markdown", Kind("policies"), ErrUnknownKind},
		{"missing", "no-such-template", KindOutput, ErrNotFound},
		{"wrong kind", "markdown", KindRules, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := Read(tt.value, tt.kind)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRead_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "output"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "output", "markdown.tmpl"), []byte("custom"), 0o600))
	t.Setenv(defaults.TemplateDirEnv, dir)

	data, source, err := Read("markdown", KindOutput)
	require.NoError(t, err)
	assert.Equal(t, "env:"+filepath.Join(dir, "output", "markdown.tmpl"), source)
	assert.Equal(t, "custom", string(data))

	// Names missing from the override directory fall through to embedded.
	_, source, err = Read("text", KindOutput)
	require.NoError(t, err)
	assert.Equal(t, "embedded:output/text.tmpl", source)
}

func TestListCategory(t *testing.T) {
	t.Parallel()

	out, err := ListCategory(KindOutput)
	require.NoError(t, err)
	names := make([]string, len(out))
	for i, info := range out {
		names[i] = info.Name
		assert.Equal(t, KindOutput, info.Kind)

		_, _, err := Read(info.Name, info.Kind)
		assert.NoError(t, err, "listed names resolve")
	}
	assert.Equal(t, []string{"csv", "markdown", "text"}, names)

	rs, err := ListCategory(KindRules)
	require.NoError(t, err)
	require.NotEmpty(t, rs)
	assert.Equal(t, "rules/default.yaml", rs[0].Path)

	_, err = ListCategory("nuclei")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

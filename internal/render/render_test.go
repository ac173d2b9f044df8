package render

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMainTemplate(t *testing.T) {
	tpl, err := New("")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tpl.Render(&buf, MainTemplate, PageData{Title: "Hi <there>", RequestID: "r1"}))
	out := buf.String()
	assert.Contains(t, out, "Hi &lt;there&gt;")
	assert.Contains(t, out, `data-request-id="r1"`)
}

func TestTemplatesDirOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.html"), []byte(`custom {{.Title}}`), 0o644))

	tpl, err := New(dir)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, tpl.Render(&buf, MainTemplate, PageData{Title: "default"}))
	assert.Equal(t, "custom default", buf.String())
}

func TestTemplatesDirErrors(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.html"), []byte(`x`), 0o644))
	_, err = New(dir)
	assert.Error(t, err)
}

func TestRenderUnknownTemplateWritesNothing(t *testing.T) {
	tpl, err := New("")
	require.NoError(t, err)
	var buf bytes.Buffer
	assert.Error(t, tpl.Render(&buf, "nope.html", PageData{}))
	assert.Zero(t, buf.Len())
}

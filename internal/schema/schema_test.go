package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempSchema(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "semantic.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	doc := "tables:\n  sales:\n    columns:\n      store: store number\n"
	p, err := Load(writeTempSchema(t, doc))
	require.NoError(t, err)
	assert.Equal(t, doc, p.Context())
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	_, err := Load(writeTempSchema(t, "tables: [unclosed"))
	require.Error(t, err)
}

func TestLoadRejectsEmptySchema(t *testing.T) {
	_, err := Load(writeTempSchema(t, ""))
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.Error(t, err)
}

func TestFromString(t *testing.T) {
	p := FromString("tables:\n  dataset: {}\n")
	assert.Contains(t, p.Context(), "dataset")
}

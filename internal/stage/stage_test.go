package stage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsCoverThePipeline(t *testing.T) {
	r := Defaults("worker")

	s, err := r.Lookup(PipelineStage)
	require.NoError(t, err)
	assert.Equal(t, "worker", s.Command)
	assert.Equal(t, []string{"run", "pipeline"}, s.Args)

	assert.Equal(t, []string{"pipeline", "script", "image", "compose", "publish"}, r.Names())
}

func TestLookupRejectsUnknownStage(t *testing.T) {
	r := Defaults("worker")
	_, err := r.Lookup("rm-rf")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknown)
}

func TestLoadReplacesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stages.yaml")
	content := `
- name: pipeline
  command: /usr/local/bin/worker
  args: ["run", "pipeline"]
  fatal: true
- name: echo
  command: sh
  args: ["-c", "echo hi"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	r, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"pipeline", "echo"}, r.Names())

	s, err := r.Lookup("echo")
	require.NoError(t, err)
	assert.Equal(t, "sh", s.Command)
	assert.False(t, s.Fatal)

	_, err = r.Lookup("script")
	assert.ErrorIs(t, err, ErrUnknown)
}

func TestLoadRejectsEmptyOrNamelessStages(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("[]"), 0o644))
	_, err := Load(empty)
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("- args: [x]"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)
}

package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strand-labs/strand/internal/config"
	"github.com/strand-labs/strand/internal/logger"
)

const watcherDocV1 = `
schemaVersion: "1.0.0"
name: reloadable
modules:
  - name: m
    type: stub
sections:
  authorize:
    - call: m
`

const watcherDocV2 = `
schemaVersion: "1.0.0"
name: reloadable
modules:
  - name: m
    type: stub
sections:
  authorize:
    - call: m
    - call: m
`

func TestReloadSwapsGraph(t *testing.T) {
	modReg, procReg := newRegistries(t, nil)

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(watcherDocV1), 0o644))

	doc, err := config.LoadDocumentFromFile(path)
	require.NoError(t, err)
	g1, s1, err := Compile(doc, modReg, procReg)
	require.NoError(t, err)
	store := NewStore(g1, s1)

	log := logger.NewLogger("error", "text", os.Stderr)
	w, err := NewWatcher(path, store, modReg, procReg, log, nil)
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte(watcherDocV2), 0o644))
	w.Reload()

	g2 := store.Graph()
	assert.NotSame(t, g1, g2)
	assert.Greater(t, g2.NumNodes(), g1.NumNodes())
}

func TestReloadKeepsActivePolicyOnBadDocument(t *testing.T) {
	modReg, procReg := newRegistries(t, nil)

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(watcherDocV1), 0o644))

	doc, err := config.LoadDocumentFromFile(path)
	require.NoError(t, err)
	g1, s1, err := Compile(doc, modReg, procReg)
	require.NoError(t, err)
	store := NewStore(g1, s1)

	log := logger.NewLogger("error", "text", os.Stderr)
	w, err := NewWatcher(path, store, modReg, procReg, log, nil)
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("schemaVersion: [broken"), 0o644))
	w.Reload()

	assert.Same(t, g1, store.Graph())
}

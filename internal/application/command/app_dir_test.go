package command

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func ownedTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "db"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "db", "data"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.env"), []byte("A=1\n"), 0o644))
	return dir
}

func TestFixOwnershipWithoutOwner(t *testing.T) {
	e := &Executor{}
	assert.NoError(t, e.fixOwnership(ownedTree(t)))
}

func TestFixOwnershipToCurrentUser(t *testing.T) {
	e := &Executor{opts: Options{Owner: &Owner{UID: os.Getuid(), GID: os.Getgid()}}}
	assert.NoError(t, e.fixOwnership(ownedTree(t)))
}

func TestFixOwnershipCollectsEveryFailure(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root may chown to any user")
	}
	e := &Executor{opts: Options{Owner: &Owner{UID: 0, GID: 0}}}

	err := e.fixOwnership(ownedTree(t))
	require.Error(t, err)
	// dir, db, db/data and app.env
	assert.Len(t, multierr.Errors(err), 4)
}

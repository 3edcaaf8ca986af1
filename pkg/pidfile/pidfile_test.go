package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncsa/training-sync/pkg/errors"
)

func TestAcquireWritesPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.pid")

	p, err := Acquire(path)
	require.NoError(t, err)
	defer func() { _ = p.Release() }()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(data)))
}

func TestReleaseRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.pid")

	p, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, p.Release())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestReacquireAfterRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.pid")

	p, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, p.Release())

	p2, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, p2.Release())
}

func TestReadPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.pid")
	require.NoError(t, os.WriteFile(path, []byte("12345\n"), 0o644))

	pid, err := ReadPID(path)
	require.NoError(t, err)
	assert.Equal(t, 12345, pid)
}

func TestReadPIDMissingFile(t *testing.T) {
	_, err := ReadPID(filepath.Join(t.TempDir(), "absent.pid"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestReadPIDGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.pid")
	require.NoError(t, os.WriteFile(path, []byte("not a pid"), 0o644))

	_, err := ReadPID(path)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeParse))
}

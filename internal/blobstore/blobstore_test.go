package blobstore

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarahealth/coughwatch-go/internal/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestSaveAndOpenRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	relPath, err := store.Save(strings.NewReader("fake wav bytes"), "cough.wav")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(relPath, "/uploads/"))
	assert.True(t, strings.HasSuffix(relPath, ".wav"))

	rc, err := store.Open(relPath)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "fake wav bytes", string(data))
}

func TestSaveRejectsUnknownExtension(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	_, err := store.Save(strings.NewReader("#!/bin/sh"), "payload.sh")
	require.Error(t, err)
	assert.Equal(t, 400, errors.HTTPStatus(err))
}

func TestDeleteRemovesFile(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	relPath, err := store.Save(strings.NewReader("audio"), "cough.ogg")
	require.NoError(t, err)

	abs, err := store.AbsolutePath(relPath)
	require.NoError(t, err)

	require.NoError(t, store.Delete(relPath))
	_, statErr := os.Stat(abs)
	assert.True(t, os.IsNotExist(statErr))

	// Deleting again is tolerated.
	assert.NoError(t, store.Delete(relPath))
}

func TestResolveConfinesToBaseDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "uploads"))
	require.NoError(t, err)

	for _, p := range []string{
		"/uploads/../escape.wav",
		"/uploads/../../etc/passwd",
		"/elsewhere/blob.wav",
		"/uploads/",
		"plain.wav",
	} {
		_, err := store.AbsolutePath(p)
		assert.Error(t, err, "path %q must be rejected", p)
	}
}

package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveCopiesAndSkipsMissing(t *testing.T) {
	env := newTestEnv(t)
	seedAward(t, env, 1)
	srcDir := t.TempDir()

	a := writeFile(t, srcDir, "scan.pdf", "pdf bytes")
	b := writeFile(t, srcDir, "photo.jpg", "jpg bytes")

	saved, err := env.attachments.Save(nil, 1, "建模竞赛", []string{a, filepath.Join(srcDir, "missing.png"), b})
	require.NoError(t, err)
	require.Len(t, saved, 2)

	for _, att := range saved {
		assert.True(t, strings.HasPrefix(att.RelativePath, "award_1/"))
		assert.Len(t, att.FileHash, 64)
		_, statErr := os.Stat(env.attachments.AbsolutePath(&att))
		assert.NoError(t, statErr)
	}
	// Sources stay in place: saves copy, never move.
	_, err = os.Stat(a)
	assert.NoError(t, err)
}

func TestHasDuplicateScopes(t *testing.T) {
	env := newTestEnv(t)
	seedAward(t, env, 1)
	srcDir := t.TempDir()

	src := writeFile(t, srcDir, "cert.pdf", "identical content")
	saved, err := env.attachments.Save(nil, 1, "a", []string{src})
	require.NoError(t, err)
	require.Len(t, saved, 1)

	hash := saved[0].FileHash
	size := saved[0].FileSize

	dup, err := env.attachments.HasDuplicate(hash, size, 1)
	require.NoError(t, err)
	assert.True(t, dup)

	// Same content under a different award is not a same-award dup.
	dup, err = env.attachments.HasDuplicate(hash, size, 2)
	require.NoError(t, err)
	assert.False(t, dup)

	// But an any-award check still sees it.
	dup, err = env.attachments.HasDuplicate(hash, size, 0)
	require.NoError(t, err)
	assert.True(t, dup)
}

func TestSaveRejectsDuplicateContent(t *testing.T) {
	env := newTestEnv(t)
	seedAward(t, env, 1)
	seedAward(t, env, 2)
	srcDir := t.TempDir()

	first := writeFile(t, srcDir, "cert.pdf", "identical content")
	second := writeFile(t, srcDir, "copy-of-cert.pdf", "identical content")

	saved, err := env.attachments.Save(nil, 1, "a", []string{first})
	require.NoError(t, err)
	require.Len(t, saved, 1)

	// Same bytes under a new name are rejected for the same award.
	saved, err = env.attachments.Save(nil, 1, "a", []string{second})
	require.NoError(t, err)
	assert.Empty(t, saved)

	active, err := env.attachments.ListActive(1)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	// A different award may store the same content.
	saved, err = env.attachments.Save(nil, 2, "b", []string{second})
	require.NoError(t, err)
	assert.Len(t, saved, 1)
}

func TestTrashRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	seedAward(t, env, 3)
	srcDir := t.TempDir()

	src := writeFile(t, srcDir, "cert.pdf", "content")
	saved, err := env.attachments.Save(nil, 3, "比赛", []string{src})
	require.NoError(t, err)
	id := saved[0].ID
	originalPath := env.attachments.AbsolutePath(&saved[0])

	require.NoError(t, env.attachments.MarkDeleted([]uint{id}))

	deleted, err := env.attachments.ListDeleted()
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.True(t, deleted[0].Deleted)
	assert.NotNil(t, deleted[0].DeletedAt)
	assert.Contains(t, deleted[0].RelativePath, "trash/")

	_, err = os.Stat(originalPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(env.attachments.AbsolutePath(&deleted[0]))
	assert.NoError(t, err)

	// Deleting again is a no-op.
	require.NoError(t, env.attachments.MarkDeleted([]uint{id}))

	require.NoError(t, env.attachments.Restore([]uint{id}))

	active, err := env.attachments.ListActive(3)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.False(t, active[0].Deleted)
	assert.NotContains(t, active[0].RelativePath, "trash/")
	_, err = os.Stat(env.attachments.AbsolutePath(&active[0]))
	assert.NoError(t, err)
}

func TestPurgeRemovesRowsAndFiles(t *testing.T) {
	env := newTestEnv(t)
	seedAward(t, env, 7)
	srcDir := t.TempDir()

	first := writeFile(t, srcDir, "a.pdf", "aaa")
	second := writeFile(t, srcDir, "b.pdf", "bbb")
	saved, err := env.attachments.Save(nil, 7, "比赛", []string{first, second})
	require.NoError(t, err)
	require.Len(t, saved, 2)

	require.NoError(t, env.attachments.MarkDeleted([]uint{saved[0].ID, saved[1].ID}))

	removed, err := env.attachments.Purge(nil)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	deleted, err := env.attachments.ListDeleted()
	require.NoError(t, err)
	assert.Empty(t, deleted)
}

func TestMissingFileNeverBlocksMetadata(t *testing.T) {
	env := newTestEnv(t)
	seedAward(t, env, 9)
	srcDir := t.TempDir()

	src := writeFile(t, srcDir, "cert.pdf", "content")
	saved, err := env.attachments.Save(nil, 9, "比赛", []string{src})
	require.NoError(t, err)

	// Someone deleted the physical file out from under us.
	require.NoError(t, os.Remove(env.attachments.AbsolutePath(&saved[0])))

	require.NoError(t, env.attachments.MarkDeleted([]uint{saved[0].ID}))
	deleted, err := env.attachments.ListDeleted()
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.True(t, deleted[0].Deleted)
	// The row moved to the trash even though the file move failed.
	assert.True(t, strings.HasPrefix(deleted[0].RelativePath, "trash/"), deleted[0].RelativePath)
}

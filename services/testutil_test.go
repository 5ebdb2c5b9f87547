package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"certvault/database"
	"certvault/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	db          *gorm.DB
	search      *SearchIndexService
	attachments *AttachmentService
	flags       *FlagService
	awards      *AwardService
	members     *MemberService
	importer    *ImportService
	root        string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	db, err := database.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db))

	root := filepath.Join(dir, "attachments")
	env := &testEnv{
		db:          db,
		search:      NewSearchIndexService(db),
		attachments: NewAttachmentService(db, root),
		flags:       NewFlagService(db),
		root:        root,
	}
	env.awards = NewAwardService(db, env.search, env.attachments, env.flags)
	env.members = NewMemberService(db, env.search)
	env.importer = NewImportService(db, env.awards, env.flags)
	return env
}

// seedAward inserts a bare award row so attachment rows can reference
// a real awards.id under foreign-key enforcement.
func seedAward(t *testing.T, env *testEnv, id uint) {
	t.Helper()
	require.NoError(t, env.db.Create(&models.Award{
		ID:              id,
		CompetitionName: "seed",
		AwardDate:       time.Now(),
		Level:           "校级",
		Rank:            "一等奖",
	}).Error)
}

// writeFile drops a small file into the test dir and returns its path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := parseDate(value)
	require.NoError(t, err)
	return d
}

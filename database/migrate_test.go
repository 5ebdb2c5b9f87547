package database

import (
	"path/filepath"
	"testing"

	"certvault/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTest(t *testing.T) *gorm.DB {
	t.Helper()
	handle, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return handle
}

func TestMigrationsAreIdempotent(t *testing.T) {
	handle := openTest(t)

	require.NoError(t, RunMigrations(handle))

	award := models.Award{CompetitionName: "竞赛"}
	require.NoError(t, handle.Create(&award).Error)
	require.NoError(t, handle.Create(&models.AwardMember{AwardID: award.ID, MemberName: "张三"}).Error)

	// A second run must not touch existing data or re-apply rewrites.
	require.NoError(t, RunMigrations(handle))

	var awards, snapshots int64
	require.NoError(t, handle.Model(&models.Award{}).Count(&awards).Error)
	require.NoError(t, handle.Model(&models.AwardMember{}).Count(&snapshots).Error)
	assert.EqualValues(t, 1, awards)
	assert.EqualValues(t, 1, snapshots)

	var versions []models.SchemaVersion
	require.NoError(t, handle.Find(&versions).Error)
	assert.Len(t, versions, 1)
}

func TestLegacyJoinTableRewrite(t *testing.T) {
	handle := openTest(t)

	// A file written before name snapshots: the member list is a plain
	// join table of profile foreign keys.
	for _, stmt := range []string{
		`CREATE TABLE team_members (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL)`,
		`CREATE TABLE awards (id INTEGER PRIMARY KEY AUTOINCREMENT, competition_name TEXT NOT NULL, award_date DATETIME)`,
		`CREATE TABLE award_members (id INTEGER PRIMARY KEY AUTOINCREMENT, award_id INTEGER NOT NULL, member_id INTEGER NOT NULL)`,
		`INSERT INTO team_members (id, name) VALUES (1, '张三'), (2, '李四')`,
		`INSERT INTO awards (id, competition_name) VALUES (10, '建模竞赛')`,
		`INSERT INTO award_members (award_id, member_id) VALUES (10, 1), (10, 2), (10, 99)`,
	} {
		require.NoError(t, handle.Exec(stmt).Error)
	}

	require.NoError(t, RunMigrations(handle))

	var rows []models.AwardMember
	require.NoError(t, handle.Where("award_id = ?", 10).Order("sort_order ASC").Find(&rows).Error)
	require.Len(t, rows, 3)

	assert.Equal(t, "张三", rows[0].MemberName)
	require.NotNil(t, rows[0].MemberID)
	assert.EqualValues(t, 1, *rows[0].MemberID)
	assert.Equal(t, 0, rows[0].SortOrder)

	assert.Equal(t, "李四", rows[1].MemberName)
	assert.Equal(t, 1, rows[1].SortOrder)

	// The dangling profile reference survives as an empty snapshot
	// with no link rather than a broken foreign key.
	assert.Equal(t, "", rows[2].MemberName)
	assert.Nil(t, rows[2].MemberID)

	// Only the first run rewrites; the second sees the version record.
	require.NoError(t, RunMigrations(handle))
	var count int64
	require.NoError(t, handle.Model(&models.AwardMember{}).Count(&count).Error)
	assert.EqualValues(t, 3, count)
}

func TestSearchTablesCreated(t *testing.T) {
	handle := openTest(t)
	require.NoError(t, RunMigrations(handle))

	require.NoError(t, handle.Exec(
		"INSERT INTO awards_fts (rowid, competition_name, certificate_code, remarks, member_names) VALUES (1, '数学建模竞赛', '', '', '张三')",
	).Error)

	var ids []uint
	require.NoError(t, handle.Raw(
		"SELECT rowid FROM awards_fts WHERE awards_fts MATCH ? ORDER BY rank", `"数学建模"`,
	).Scan(&ids).Error)
	require.Len(t, ids, 1)
	assert.EqualValues(t, 1, ids[0])
}

func TestResetDropsEverythingAndRebuilds(t *testing.T) {
	handle := openTest(t)
	require.NoError(t, RunMigrations(handle))

	require.NoError(t, handle.Create(&models.Award{CompetitionName: "竞赛"}).Error)
	require.NoError(t, handle.Exec(
		"INSERT INTO awards_fts (rowid, competition_name, certificate_code, remarks, member_names) VALUES (1, '竞赛', '', '', '')",
	).Error)

	require.NoError(t, Reset(handle))

	var awards, indexed int64
	require.NoError(t, handle.Model(&models.Award{}).Count(&awards).Error)
	require.NoError(t, handle.Raw("SELECT COUNT(*) FROM awards_fts").Scan(&indexed).Error)
	assert.Zero(t, awards)
	assert.Zero(t, indexed)
}

package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"certvault/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeImportCSV(t *testing.T, dir string, rows ...string) string {
	t.Helper()
	return writeFile(t, dir, "awards.csv", strings.Join(rows, "\n")+"\n")
}

func TestImportCommitsGoodRowsAndRecordsBadOnes(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()

	rows := []string{"比赛名称,获奖日期,赛事级别,奖项等级,成员"}
	for i := 1; i <= 10; i++ {
		date := "2024-03-01"
		if i == 5 {
			date = "not-a-date"
		}
		rows = append(rows, fmt.Sprintf("竞赛%d,%s,省级,二等奖,张三、李四、张三", i, date))
	}
	path := writeImportCSV(t, dir, rows...)

	result, err := env.importer.ImportFile(path, ImportOptions{})
	require.NoError(t, err)

	assert.Equal(t, 10, result.Total)
	assert.Equal(t, 9, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	// Header is file row 1, so data row 5 reports as row 6.
	assert.Equal(t, 6, result.Errors[0].Row)
	assert.Contains(t, result.Errors[0].Message, "not-a-date")

	var count int64
	require.NoError(t, env.db.Model(&models.Award{}).Count(&count).Error)
	assert.EqualValues(t, 9, count)

	// The members cell splits on the Chinese separator and drops the
	// repeated name.
	award, err := env.awards.Search("竞赛1", AwardFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, award)
	assert.Equal(t, []string{"张三", "李四"}, award[0].MemberNames())

	require.NotEmpty(t, result.ErrorFile)
	data, err := os.ReadFile(result.ErrorFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "竞赛5")
	assert.Contains(t, string(data), "not-a-date")

	// Partial batches record that status plus the concatenated row
	// errors, so the job history alone tells the story.
	job, err := env.importer.GetJob(result.JobID)
	require.NoError(t, err)
	assert.Equal(t, "partial", job.Status)
	assert.Contains(t, job.Message, "第 6 行")
	assert.Contains(t, job.Message, "not-a-date")
}

func TestDryRunCommitsNothing(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()

	attachment := writeFile(t, dir, "cert.pdf", "bytes")
	path := writeImportCSV(t, dir,
		"比赛名称,获奖日期,赛事级别,奖项等级,成员,附件路径",
		fmt.Sprintf("挑战杯,2024-05-04,国家级,特等奖,王五,%s", attachment),
		"错误行,bad-date,校级,三等奖,赵六,",
	)

	result, err := env.importer.ImportFile(path, ImportOptions{DryRun: true})
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Empty(t, result.ErrorFile)

	var awards, members, jobs, indexed int64
	require.NoError(t, env.db.Model(&models.Award{}).Count(&awards).Error)
	require.NoError(t, env.db.Model(&models.TeamMember{}).Count(&members).Error)
	require.NoError(t, env.db.Model(&models.ImportJob{}).Count(&jobs).Error)
	require.NoError(t, env.db.Raw("SELECT COUNT(*) FROM awards_fts").Scan(&indexed).Error)
	assert.Zero(t, awards)
	assert.Zero(t, members)
	assert.Zero(t, jobs)
	assert.Zero(t, indexed)

	// No file was copied into the attachment store.
	entries, err := os.ReadDir(filepath.Join(env.root))
	if err == nil {
		for _, e := range entries {
			assert.NotContains(t, e.Name(), "award_")
		}
	}
}

func TestImportAbortsOnMissingRequiredColumn(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()

	path := writeImportCSV(t, dir,
		"比赛名称,赛事级别,奖项等级,成员",
		"某竞赛,省级,一等奖,某人",
	)

	_, err := env.importer.ImportFile(path, ImportOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "获奖日期")

	var count int64
	require.NoError(t, env.db.Model(&models.Award{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestImportParsesFlagColumns(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()

	_, err := env.flags.CreateFlag("scholarship", "获奖学金", false, 0)
	require.NoError(t, err)

	path := writeImportCSV(t, dir,
		"比赛名称,获奖日期,赛事级别,奖项等级,获奖学金 (scholarship)",
		"竞赛甲,2024-01-01,国家级,一等奖,是",
		"竞赛乙,2024-02-02,国家级,一等奖,否",
		"竞赛丙,2024-03-03,国家级,一等奖,",
		"竞赛丁,2024-04-04,国家级,一等奖,maybe",
	)

	result, err := env.importer.ImportFile(path, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Succeeded)
	assert.Empty(t, result.Errors)

	check := func(name string, want bool) {
		t.Helper()
		found, err := env.awards.Search(name, AwardFilter{})
		require.NoError(t, err)
		require.Len(t, found, 1)
		flags, err := env.flags.GetAwardFlags(found[0].ID)
		require.NoError(t, err)
		assert.Equal(t, want, flags["scholarship"])
	}
	check("竞赛甲", true)
	check("竞赛乙", false)
	check("竞赛丙", false) // empty cell keeps the default
	check("竞赛丁", false) // unrecognized token also keeps the default

	job, err := env.importer.GetJob(result.JobID)
	require.NoError(t, err)
	assert.Equal(t, "success", job.Status)
	assert.Empty(t, job.Message)
}

func TestImportReportsProgress(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()

	rows := []string{"比赛名称,获奖日期,赛事级别,奖项等级"}
	for i := 0; i < 60; i++ {
		rows = append(rows, fmt.Sprintf("批量竞赛%d,2024-06-0%d,市级,优胜奖", i, i%9+1))
	}
	path := writeImportCSV(t, dir, rows...)

	var calls []int
	_, err := env.importer.ImportFile(path, ImportOptions{
		Progress: func(processed, total int, _ time.Duration) {
			assert.Equal(t, 60, total)
			calls = append(calls, processed)
		},
	})
	require.NoError(t, err)

	require.NotEmpty(t, calls)
	assert.Contains(t, calls, 25)
	assert.Contains(t, calls, 50)
	assert.Equal(t, 60, calls[len(calls)-1])
}

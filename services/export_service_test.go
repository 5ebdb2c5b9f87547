package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"certvault/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportRoundTripsThroughImport(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.flags.CreateFlag("scholarship", "获奖学金", false, 0)
	require.NoError(t, err)

	_, err = env.awards.Create(CreateAwardInput{
		CompetitionName: "智能车竞赛",
		AwardDate:       mustDate(t, "2024-09-01"),
		Level:           "省级",
		Rank:            "二等奖",
		CertificateCode: "CERT-0042",
		Members:         []MemberDescriptor{NameOnly("甲"), NameOnly("乙")},
		Flags:           map[string]bool{"scholarship": true},
	})
	require.NoError(t, err)

	exporter := NewExportService(env.awards, env.flags)
	path := filepath.Join(t.TempDir(), "out.csv")
	rows, err := exporter.Export(path, AwardFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, rows)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "智能车竞赛")
	assert.Contains(t, content, "甲、乙")
	assert.Contains(t, content, "获奖学金 (scholarship)")
	assert.Contains(t, content, "是")

	// The exported file imports back into a fresh store.
	fresh := newTestEnv(t)
	_, err = fresh.flags.CreateFlag("scholarship", "获奖学金", false, 0)
	require.NoError(t, err)

	result, err := fresh.importer.ImportFile(path, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Zero(t, result.Failed)

	imported, err := fresh.awards.Search("智能车竞赛", AwardFilter{})
	require.NoError(t, err)
	require.Len(t, imported, 1)
	assert.Equal(t, []string{"甲", "乙"}, imported[0].MemberNames())
	assert.Equal(t, "CERT-0042", imported[0].CertificateCode)

	flags, err := fresh.flags.GetAwardFlags(imported[0].ID)
	require.NoError(t, err)
	assert.True(t, flags["scholarship"])
}

func TestWriteTemplateIncludesFlagColumns(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.flags.CreateFlag("reimbursed", "已报销", false, 0)
	require.NoError(t, err)

	exporter := NewExportService(env.awards, env.flags)
	path := filepath.Join(t.TempDir(), "template.csv")
	require.NoError(t, exporter.WriteTemplate(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	header := strings.SplitN(string(data), "\n", 2)[0]
	assert.Contains(t, header, ColCompetition)
	assert.Contains(t, header, ColDate)
	assert.Contains(t, header, ColAttachments)
	assert.Contains(t, header, "已报销 (reimbursed)")

	var count int64
	require.NoError(t, env.db.Model(&models.Award{}).Count(&count).Error)
	assert.Zero(t, count)
}

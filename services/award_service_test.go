package services

import (
	"os"
	"strings"
	"testing"

	"certvault/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAwardKeepsMemberOrder(t *testing.T) {
	env := newTestEnv(t)

	award, err := env.awards.Create(CreateAwardInput{
		CompetitionName: "全国大学生数学建模竞赛",
		AwardDate:       mustDate(t, "2025-09-12"),
		Level:           "国家级",
		Rank:            "一等奖",
		Members: []MemberDescriptor{
			NameOnly("张三"),
			NameOnly("李四"),
			NameOnly("  "), // blank, skipped
			NameOnly("王五"),
			NameOnly("张三"), // duplicate names keep their own slot
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"张三", "李四", "王五", "张三"}, award.MemberNames())
	for i, m := range award.Members {
		assert.Equal(t, i, m.SortOrder)
	}
}

func TestSnapshotSurvivesProfileDelete(t *testing.T) {
	env := newTestEnv(t)

	award, err := env.awards.Create(CreateAwardInput{
		CompetitionName: "ACM 程序设计竞赛",
		AwardDate:       mustDate(t, "2024-05-01"),
		Members:         []MemberDescriptor{LinkedMember("赵六", MemberMeta{StudentID: "20240601"})},
	})
	require.NoError(t, err)
	require.NotNil(t, award.Members[0].MemberID)

	profile, err := env.members.GetByName("赵六")
	require.NoError(t, err)
	assert.Equal(t, "20240601", profile.StudentID)

	require.NoError(t, env.members.Delete(profile.ID))

	reloaded, err := env.awards.Get(award.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Members, 1)
	assert.Equal(t, "赵六", reloaded.Members[0].MemberName)
	assert.Nil(t, reloaded.Members[0].MemberID)
}

func TestLinkedMemberMergesOnlyNonEmptyMeta(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.awards.Create(CreateAwardInput{
		CompetitionName: "竞赛一",
		AwardDate:       mustDate(t, "2024-01-01"),
		Members:         []MemberDescriptor{LinkedMember("小明", MemberMeta{Major: "计算机科学", College: "信息学院"})},
	})
	require.NoError(t, err)

	_, err = env.awards.Create(CreateAwardInput{
		CompetitionName: "竞赛二",
		AwardDate:       mustDate(t, "2024-06-01"),
		Members:         []MemberDescriptor{LinkedMember("小明", MemberMeta{Phone: "13800000000"})},
	})
	require.NoError(t, err)

	profile, err := env.members.GetByName("小明")
	require.NoError(t, err)
	assert.Equal(t, "计算机科学", profile.Major)
	assert.Equal(t, "信息学院", profile.College)
	assert.Equal(t, "13800000000", profile.Phone)

	var profiles []models.TeamMember
	require.NoError(t, env.db.Where("name = ?", "小明").Find(&profiles).Error)
	assert.Len(t, profiles, 1)
}

func TestSearchFindsMemberTokenAfterUpdate(t *testing.T) {
	env := newTestEnv(t)

	award, err := env.awards.Create(CreateAwardInput{
		CompetitionName: "机器人大赛",
		AwardDate:       mustDate(t, "2025-03-10"),
		Members:         []MemberDescriptor{NameOnly("Alice")},
	})
	require.NoError(t, err)

	results, err := env.awards.Search("Alice", AwardFilter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, award.ID, results[0].ID)

	// Replacing the member list must also replace the indexed tokens.
	members := []MemberDescriptor{NameOnly("Bob")}
	_, err = env.awards.Update(award.ID, UpdateAwardInput{Members: members, MembersSet: true})
	require.NoError(t, err)

	results, err = env.awards.Search("Alice", AwardFilter{})
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = env.awards.Search("Bob", AwardFilter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, award.ID, results[0].ID)
}

func TestSoftDeleteHidesAwardFromSearchUntilRestore(t *testing.T) {
	env := newTestEnv(t)

	award, err := env.awards.Create(CreateAwardInput{
		CompetitionName: "电子设计竞赛",
		AwardDate:       mustDate(t, "2023-11-20"),
		CertificateCode: "CERT-2023-042",
	})
	require.NoError(t, err)

	require.NoError(t, env.awards.Delete(award.ID))

	results, err := env.awards.Search("电子设计竞赛", AwardFilter{})
	require.NoError(t, err)
	assert.Empty(t, results)

	listed, err := env.awards.List(AwardFilter{})
	require.NoError(t, err)
	assert.Empty(t, listed)

	deleted, err := env.awards.ListDeleted()
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, award.ID, deleted[0].ID)

	require.NoError(t, env.awards.Restore(award.ID))

	results, err = env.awards.Search("电子设计竞赛", AwardFilter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, award.ID, results[0].ID)
}

func TestPermanentDeleteRemovesEverything(t *testing.T) {
	env := newTestEnv(t)

	src := writeFile(t, t.TempDir(), "cert.pdf", "certificate bytes")
	award, err := env.awards.Create(CreateAwardInput{
		CompetitionName:   "测试竞赛",
		AwardDate:         mustDate(t, "2024-08-08"),
		Members:           []MemberDescriptor{NameOnly("某人")},
		AttachmentSources: []string{src},
	})
	require.NoError(t, err)

	require.NoError(t, env.awards.PermanentlyDelete(award.ID))

	_, err = env.awards.Get(award.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	var memberRows, attachmentRows int64
	require.NoError(t, env.db.Model(&models.AwardMember{}).Where("award_id = ?", award.ID).Count(&memberRows).Error)
	require.NoError(t, env.db.Model(&models.Attachment{}).Where("award_id = ?", award.ID).Count(&attachmentRows).Error)
	assert.Zero(t, memberRows)
	assert.Zero(t, attachmentRows)

	results, err := env.awards.Search("测试竞赛", AwardFilter{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestListFiltersByLevelRankAndYear(t *testing.T) {
	env := newTestEnv(t)

	mk := func(name, level, rank, date string) {
		_, err := env.awards.Create(CreateAwardInput{
			CompetitionName: name,
			AwardDate:       mustDate(t, date),
			Level:           level,
			Rank:            rank,
		})
		require.NoError(t, err)
	}
	mk("甲", "国家级", "一等奖", "2024-04-01")
	mk("乙", "省级", "一等奖", "2024-07-15")
	mk("丙", "国家级", "二等奖", "2023-10-02")

	awards, err := env.awards.List(AwardFilter{Level: "国家级"})
	require.NoError(t, err)
	assert.Len(t, awards, 2)

	awards, err = env.awards.List(AwardFilter{Rank: "一等奖", Year: 2024})
	require.NoError(t, err)
	require.Len(t, awards, 2)
	// Newest award date first.
	assert.Equal(t, "乙", awards[0].CompetitionName)

	awards, err = env.awards.List(AwardFilter{Year: 2023})
	require.NoError(t, err)
	require.Len(t, awards, 1)
	assert.Equal(t, "丙", awards[0].CompetitionName)

	awards, err = env.awards.List(AwardFilter{
		DateFrom: mustDate(t, "2024-01-01"),
		DateTo:   mustDate(t, "2024-06-30"),
	})
	require.NoError(t, err)
	require.Len(t, awards, 1)
	assert.Equal(t, "甲", awards[0].CompetitionName)
}

func TestBatchOperations(t *testing.T) {
	env := newTestEnv(t)

	var ids []uint
	for _, name := range []string{"机器人大赛", "机器人挑战赛", "程序设计大赛"} {
		award, err := env.awards.Create(CreateAwardInput{
			CompetitionName: name,
			AwardDate:       mustDate(t, "2024-11-11"),
			Level:           "校级",
			Rank:            "三等奖",
		})
		require.NoError(t, err)
		ids = append(ids, award.ID)
	}

	updated, err := env.awards.BatchUpdateLevel(ids[:2], "省级")
	require.NoError(t, err)
	assert.EqualValues(t, 2, updated)

	updated, err = env.awards.BatchUpdateRank(ids, "一等奖")
	require.NoError(t, err)
	assert.EqualValues(t, 3, updated)

	_, err = env.awards.BatchUpdateLevel(ids, "  ")
	assert.ErrorIs(t, err, ErrValidation)

	awards, err := env.awards.List(AwardFilter{Level: "省级", Rank: "一等奖"})
	require.NoError(t, err)
	assert.Len(t, awards, 2)

	count, err := env.awards.BatchDelete(ids[:2])
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Re-deleting skips the already-flagged rows.
	count, err = env.awards.BatchDelete(ids)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	remaining, err := env.awards.List(AwardFilter{})
	require.NoError(t, err)
	assert.Empty(t, remaining)

	// Batch-deleted awards drop out of the index too.
	found, err := env.awards.Search("机器人大赛", AwardFilter{})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestUpdateTrashesDroppedAttachmentInSameTransaction(t *testing.T) {
	env := newTestEnv(t)
	srcDir := t.TempDir()

	keep := writeFile(t, srcDir, "keep.pdf", "keep")
	drop := writeFile(t, srcDir, "drop.pdf", "drop")

	award, err := env.awards.Create(CreateAwardInput{
		CompetitionName:   "电子设计大赛",
		AwardDate:         mustDate(t, "2024-08-08"),
		AttachmentSources: []string{keep, drop},
	})
	require.NoError(t, err)
	require.Len(t, award.Attachments, 2)

	// The dropped attachment's physical file is already gone, so the
	// post-commit move cannot succeed. The row must still be flagged
	// and repointed at the trash by the update itself.
	var dropped, kept models.Attachment
	require.NoError(t, env.db.Where("award_id = ? AND original_name = ?", award.ID, "drop.pdf").First(&dropped).Error)
	require.NoError(t, env.db.Where("award_id = ? AND original_name = ?", award.ID, "keep.pdf").First(&kept).Error)
	require.NoError(t, os.Remove(env.attachments.AbsolutePath(&dropped)))

	_, err = env.awards.Update(award.ID, UpdateAwardInput{
		AttachmentSources: []string{env.attachments.AbsolutePath(&kept)},
		AttachmentsSet:    true,
	})
	require.NoError(t, err)

	require.NoError(t, env.db.First(&dropped, dropped.ID).Error)
	assert.True(t, dropped.Deleted)
	assert.True(t, strings.HasPrefix(dropped.RelativePath, "trash/"), dropped.RelativePath)

	active, err := env.attachments.ListActive(award.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "keep.pdf", active[0].OriginalName)
}

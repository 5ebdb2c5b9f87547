package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateFlagValidatesKey(t *testing.T) {
	env := newTestEnv(t)

	for _, bad := range []string{"", "A", "1abc", "has space", "中文", "x"} {
		_, err := env.flags.CreateFlag(bad, "标签", false, 0)
		assert.ErrorIs(t, err, ErrValidation, "key %q", bad)
	}

	flag, err := env.flags.CreateFlag("is_team_award", "团队奖", true, 2)
	require.NoError(t, err)
	assert.Equal(t, "is_team_award", flag.Key)
	assert.True(t, flag.DefaultValue)
}

func TestAwardFlagsOverlayDefaults(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.flags.CreateFlag("scholarship", "获奖学金", false, 0)
	require.NoError(t, err)
	_, err = env.flags.CreateFlag("reimbursed", "已报销", true, 1)
	require.NoError(t, err)

	award, err := env.awards.Create(CreateAwardInput{
		CompetitionName: "某竞赛",
		AwardDate:       mustDate(t, "2024-02-02"),
	})
	require.NoError(t, err)

	// No stored values yet: defaults apply.
	flags, err := env.flags.GetAwardFlags(award.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"scholarship": false, "reimbursed": true}, flags)

	require.NoError(t, env.flags.SetAwardFlags(nil, award.ID, map[string]bool{"scholarship": true}))

	flags, err = env.flags.GetAwardFlags(award.ID)
	require.NoError(t, err)
	assert.True(t, flags["scholarship"])
	assert.True(t, flags["reimbursed"]) // still the default

	err = env.flags.SetAwardFlags(nil, award.ID, map[string]bool{"unknown_key": true})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDeleteFlagDropsStoredValues(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.flags.CreateFlag("scholarship", "获奖学金", false, 0)
	require.NoError(t, err)

	award, err := env.awards.Create(CreateAwardInput{
		CompetitionName: "某竞赛",
		AwardDate:       mustDate(t, "2024-02-02"),
		Flags:           map[string]bool{"scholarship": true},
	})
	require.NoError(t, err)

	require.NoError(t, env.flags.DeleteFlag("scholarship"))

	flags, err := env.flags.GetAwardFlags(award.ID)
	require.NoError(t, err)
	assert.Empty(t, flags)

	_, err = env.flags.GetFlag("scholarship")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseFlagCellTokens(t *testing.T) {
	truthy := []string{"是", "真", "1", "true", "YES", "y", " True "}
	falsy := []string{"否", "假", "0", "false", "NO", "n"}

	for _, cell := range truthy {
		value, ok := ParseFlagCell(cell)
		assert.True(t, ok, "cell %q", cell)
		assert.True(t, value, "cell %q", cell)
	}
	for _, cell := range falsy {
		value, ok := ParseFlagCell(cell)
		assert.True(t, ok, "cell %q", cell)
		assert.False(t, value, "cell %q", cell)
	}

	// Blank and unrecognized cells defer to the flag's default.
	_, ok := ParseFlagCell("")
	assert.False(t, ok)
	_, ok = ParseFlagCell("也许")
	assert.False(t, ok)
}

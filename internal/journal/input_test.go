package journal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-05-15 is a Wednesday.
var wednesday = time.Date(2024, time.May, 15, 14, 30, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseInputDates(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"", day(2024, 5, 15)},
		{"0", day(2024, 5, 15)},
		{"+1", day(2024, 5, 16)},
		{"-2", day(2024, 5, 13)},
		{"+30", day(2024, 6, 14)},
		{"2023-12-24", day(2023, 12, 24)},
		{"12-24", day(2024, 12, 24)},
		{"3", day(2024, 5, 3)},
		{"tomorrow", day(2024, 5, 16)},
		{"Yesterday", day(2024, 5, 14)},
		{"friday", day(2024, 5, 17)},
		{"wednesday", day(2024, 5, 22)},
		{"mon", day(2024, 5, 20)},
		{"next mon", day(2024, 5, 27)},
		{"next wednesday", day(2024, 5, 29)},
		{"last Friday", day(2024, 5, 10)},
		{"last wednesday", day(2024, 5, 8)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseInput(tt.in, wednesday)
			require.NoError(t, err)
			assert.Equal(t, InputOpen, got.Kind)
			assert.Equal(t, tt.want, got.Date)
		})
	}
}

func TestParseInputMemoAndTask(t *testing.T) {
	got, err := ParseInput("+1 call Bob about the offsite", wednesday)
	require.NoError(t, err)
	assert.Equal(t, InputMemo, got.Kind)
	assert.Equal(t, day(2024, 5, 16), got.Date)
	assert.Equal(t, "call Bob about the offsite", got.Text)

	got, err = ParseInput("task: renew passport", wednesday)
	require.NoError(t, err)
	assert.Equal(t, InputTask, got.Kind)
	assert.Equal(t, day(2024, 5, 15), got.Date)
	assert.Equal(t, "renew passport", got.Text)

	got, err = ParseInput("next friday TODO book train", wednesday)
	require.NoError(t, err)
	assert.Equal(t, InputTask, got.Kind)
	assert.Equal(t, day(2024, 5, 24), got.Date)
	assert.Equal(t, "book train", got.Text)

	got, err = ParseInput("taskforce meeting went well", wednesday)
	require.NoError(t, err)
	assert.Equal(t, InputMemo, got.Kind, "task must be a whole word")
}

func TestParseInputErrors(t *testing.T) {
	_, err := ParseInput("2024-02-30", wednesday)
	assert.ErrorContains(t, err, "invalid date")

	_, err = ParseInput("task", wednesday)
	assert.Error(t, err)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "meeting-with-bob", Slug("  Meeting with Bob! "))
	assert.Equal(t, "größe-2", Slug("Größe #2"))
	assert.Equal(t, "", Slug("!!!"))
}

func TestPaths(t *testing.T) {
	d := day(2024, 5, 3)
	assert.Equal(t, "/j/2024/05/03.md", EntryPath("/j", "md", d))

	p, err := NotePath("/j", "md", d, "Plan B")
	require.NoError(t, err)
	assert.Equal(t, "/j/2024/05/03/plan-b.md", p)

	_, err = NotePath("/j", "md", d, "??")
	assert.Error(t, err)

	got, ok := DateFromPath("/j", "/j/2024/05/03.md")
	require.True(t, ok)
	assert.Equal(t, "2024-05-03", got.Format("2006-01-02"))

	got, ok = DateFromPath("/j", "/j/2024/05/03/plan-b.md")
	require.True(t, ok)
	assert.Equal(t, "2024-05-03", got.Format("2006-01-02"))

	_, ok = DateFromPath("/j", "/j/readme.md")
	assert.False(t, ok)
}

func TestRelativeWeekday(t *testing.T) {
	tests := []struct {
		name  string
		wd    time.Weekday
		weeks int
		want  time.Time
	}{
		{"coming friday", time.Friday, 0, day(2024, 5, 17)},
		{"friday a week later", time.Friday, 1, day(2024, 5, 24)},
		{"coming wednesday skips today", time.Wednesday, 0, day(2024, 5, 22)},
		{"previous friday", time.Friday, -1, day(2024, 5, 10)},
		{"previous wednesday skips today", time.Wednesday, -1, day(2024, 5, 8)},
		{"two weeks back", time.Monday, -2, day(2024, 5, 6)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RelativeWeekday(wednesday, tt.wd, tt.weeks))
		})
	}
}

func TestParseInputNextDiffersFromBareWeekday(t *testing.T) {
	bare, err := ParseInput("friday", wednesday)
	require.NoError(t, err)
	next, err := ParseInput("next friday", wednesday)
	require.NoError(t, err)

	assert.Equal(t, 7, int(next.Date.Sub(bare.Date).Hours()/24))
}

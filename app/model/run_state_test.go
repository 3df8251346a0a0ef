package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemStatus_Terminal_OnlyCompleted(t *testing.T) {
	assert.True(t, ItemStatusCompleted.Terminal())
	// failed 条目在下次运行中重试，不是终态
	assert.False(t, ItemStatusFailed.Terminal())
	assert.False(t, ItemStatusPending.Terminal())
	assert.False(t, ItemStatusDownloading.Terminal())
}

func TestRunState_SetStatus_IgnoresUnknownItem(t *testing.T) {
	st := NewRunState()
	st.SetEpisodes([]string{"ep1", "ep2"})

	st.SetStatus("ep3", ItemStatusCompleted)

	assert.NotContains(t, st.Progress, "ep3")
	assert.Equal(t, ItemStatusPending, st.Status("ep3"))
}

func TestRunState_SetStatus_RefreshesRunCompleted(t *testing.T) {
	st := NewRunState()
	st.SetEpisodes([]string{"ep1", "ep2"})

	st.SetStatus("ep1", ItemStatusCompleted)
	assert.False(t, st.RunCompleted)

	st.SetStatus("ep2", ItemStatusCompleted)
	assert.True(t, st.RunCompleted)

	st.SetStatus("ep2", ItemStatusFailed)
	assert.False(t, st.RunCompleted)
}

func TestRunState_EmptyEpisodes_NeverCompleted(t *testing.T) {
	st := NewRunState()
	assert.False(t, st.RunCompleted)

	st.SetEpisodes(nil)
	assert.False(t, st.RunCompleted)
}

func TestRunState_SetEpisodes_PrunesStaleProgress(t *testing.T) {
	st := NewRunState()
	st.SetEpisodes([]string{"ep1", "ep2"})
	st.SetStatus("ep1", ItemStatusCompleted)
	st.MarkMediaDone("ep2", "video")

	st.SetEpisodes([]string{"ep2"})

	assert.NotContains(t, st.Progress, "ep1")
	assert.True(t, st.IsMediaDone("ep2", "video"))
}

func TestRunState_ResumePoint_SkipsCompleted(t *testing.T) {
	st := NewRunState()
	st.SetEpisodes([]string{"ep1", "ep2", "ep3"})
	st.SetStatus("ep1", ItemStatusCompleted)
	st.SetStatus("ep2", ItemStatusFailed)

	assert.Equal(t, "ep2", st.ResumePoint())

	st.SetStatus("ep2", ItemStatusCompleted)
	st.SetStatus("ep3", ItemStatusCompleted)
	assert.Equal(t, "", st.ResumePoint())
}

func TestRunState_Matches_NormalizesQuery(t *testing.T) {
	st := NewRunState()
	st.SearchQuery = "Stranger Things"

	assert.True(t, st.Matches("  stranger things "))
	assert.False(t, st.Matches("dark"))
}

func TestRunState_MediaDone_ClearedOnDemand(t *testing.T) {
	st := NewRunState()
	st.SetEpisodes([]string{"ep1"})

	require.False(t, st.IsMediaDone("ep1", "video"))
	st.MarkMediaDone("ep1", "video")
	st.MarkMediaDone("ep1", "video")
	require.True(t, st.IsMediaDone("ep1", "video"))
	assert.Len(t, st.MediaDone["ep1"], 1)

	st.ClearMedia("ep1")
	assert.False(t, st.IsMediaDone("ep1", "video"))
}

package download

import (
	"testing"

	"github.com/AliHaSSan-13/Netflix-scrapper/app/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProgressLine_FullLine(t *testing.T) {
	task := model.DownloadTask{Item: "1. Pilot", Type: model.MediaTypeVideo}

	ev, ok := parseProgressLine("[download]  42.3% of ~120.50MiB at 2.31MiB/s ETA 00:31", task)

	require.True(t, ok)
	assert.Equal(t, "1. Pilot", ev.Item)
	assert.Equal(t, model.MediaTypeVideo, ev.Type)
	assert.InDelta(t, 42.3, ev.Percent, 0.001)
	assert.Equal(t, "120.50MiB", ev.Total)
	assert.Equal(t, "2.31MiB/s", ev.Rate)
}

func TestParseProgressLine_WithoutRate(t *testing.T) {
	ev, ok := parseProgressLine("[download] 100.0% of 98.12MiB in 00:42", model.DownloadTask{})

	require.True(t, ok)
	assert.InDelta(t, 100.0, ev.Percent, 0.001)
	assert.Equal(t, "98.12MiB", ev.Total)
	assert.Empty(t, ev.Rate)
}

func TestParseProgressLine_PercentOnly(t *testing.T) {
	ev, ok := parseProgressLine("[download]   0.1%", model.DownloadTask{})

	require.True(t, ok)
	assert.InDelta(t, 0.1, ev.Percent, 0.001)
	assert.Empty(t, ev.Total)
	assert.Empty(t, ev.Rate)
}

func TestParseProgressLine_IgnoresNonProgressOutput(t *testing.T) {
	for _, line := range []string{
		"[download] Destination: /tmp/ep1.v.mp4",
		"[hlsnative] Total fragments: 312",
		"",
		"ERROR: unable to download video data",
	} {
		_, ok := parseProgressLine(line, model.DownloadTask{})
		assert.False(t, ok, "line %q", line)
	}
}

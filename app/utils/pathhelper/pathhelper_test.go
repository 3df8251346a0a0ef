package pathhelper

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize_ReplacesUnsafeChars(t *testing.T) {
	assert.Equal(t, "What_s Up_ 1_2", Sanitize(`What?s Up: 1/2`))
	assert.Equal(t, "plain title", Sanitize("  plain title  "))
	assert.Equal(t, "_", Sanitize("   "))
	assert.Equal(t, "_", Sanitize(""))
}

func TestSanitize_NormalizesUnicode(t *testing.T) {
	// NFD 形式的 é（e + 组合重音）规范化为 NFC 单字符
	decomposed := "Amélie"
	composed := "Amélie"

	assert.Equal(t, composed, Sanitize(decomposed))
	assert.Equal(t, Sanitize(composed), Sanitize(decomposed))
}

func TestLayout_WithSeason(t *testing.T) {
	l := Layout{Root: "/downloads", Title: "Dark", Season: "Season 1", Container: "mp4"}

	assert.Equal(t, filepath.Join("/downloads", "Dark", "Season 1"), l.ItemDir())
	assert.Equal(t, filepath.Join("/downloads", "Dark", "Season 1", "1. Secrets.mp4"), l.FinalPath("1. Secrets"))
	assert.Equal(t, filepath.Join("/downloads", "Dark", "Season 1", "1. Secrets.v.mp4"), l.TempPath("1. Secrets", ".v.mp4"))
}

func TestLayout_WithoutSeason(t *testing.T) {
	l := Layout{Root: "/downloads", Title: "Oldboy", Container: "mp4"}

	assert.Equal(t, filepath.Join("/downloads", "Oldboy"), l.ItemDir())
	assert.Equal(t, filepath.Join("/downloads", "Oldboy", "Oldboy.mp4"), l.FinalPath("Oldboy"))
}

func TestLayout_SanitizesComponents(t *testing.T) {
	l := Layout{Root: "/downloads", Title: "What/If", Season: "S:1", Container: "mp4"}

	assert.Equal(t, filepath.Join("/downloads", "What_If", "S_1"), l.ItemDir())
	assert.Equal(t, filepath.Join("/downloads", "What_If", "S_1", "Ep_1.mp4"), l.FinalPath("Ep?1"))
}

package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache(2)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("a", 1, time.Minute)
	assert.Equal(t, 1, c.Get("a"))

	now = now.Add(2 * time.Minute)
	assert.Nil(t, c.Get("a"))
	assert.Equal(t, 0, c.Len())
}

func TestTTLCacheEvictsOldest(t *testing.T) {
	c := NewTTLCache(2)
	c.Set("a", 1, time.Hour)
	c.Set("b", 2, time.Hour)
	c.Set("c", 3, time.Hour)

	assert.Nil(t, c.Get("a"))
	assert.Equal(t, 3, c.Get("c"))
	c.Delete("c")
	assert.Nil(t, c.Get("c"))
}

func TestPaginate(t *testing.T) {
	start, end, cur, pages := Paginate(45, 3, 20)
	assert.Equal(t, []int{40, 45, 3, 3}, []int{start, end, cur, pages})

	start, end, cur, pages = Paginate(45, 9, 20)
	assert.Equal(t, []int{40, 45, 3, 3}, []int{start, end, cur, pages})

	start, end, cur, pages = Paginate(0, 1, 20)
	assert.Equal(t, []int{0, 0, 1, 1}, []int{start, end, cur, pages})

	assert.Equal(t, 1, PageNumber("x"))
	assert.Equal(t, 4, PageNumber(" 4 "))
}

func TestRenderMarkdownSanitizes(t *testing.T) {
	out := string(RenderMarkdown("**hi** <script>alert(1)</script>"))
	assert.Contains(t, out, "<strong>hi</strong>")
	assert.NotContains(t, out, "<script>")
}

func TestRenderMarkdownMentions(t *testing.T) {
	out := string(RenderMarkdown("thanks @alice, see [@bob](https://x.example) and mail a@b.com"))
	assert.Contains(t, out, `<a class="mention" href="/?profile=alice">@alice</a>`)
	assert.NotContains(t, out, `profile=bob`)
	assert.NotContains(t, out, `profile=b.com`)
}

func TestRenderMarkdownEmbedsYoutube(t *testing.T) {
	out := string(RenderMarkdown("https://www.youtube.com/watch?v=dQw4w9WgXcQ"))
	assert.Contains(t, out, "https://www.youtube.com/embed/dQw4w9WgXcQ")

	out = string(RenderMarkdown("https://youtu.be/bad id"))
	assert.NotContains(t, out, "iframe")
}

func TestExcerpt(t *testing.T) {
	ex := Excerpt("# Title\n\nsome *body* text that goes on", 14)
	assert.True(t, strings.HasSuffix(ex, "…"))
	assert.True(t, strings.HasPrefix(ex, "Title some"))
}

func TestRenderMarkdownBareImages(t *testing.T) {
	out := string(RenderMarkdown("look\n\nhttps://img.example/cat.JPG\n\nnice"))
	assert.Contains(t, out, `src="https://img.example/cat.JPG"`)
	assert.Contains(t, out, `loading="lazy"`)

	out = string(RenderMarkdown("see https://img.example/cat.png inline"))
	assert.NotContains(t, out, "<img")
}

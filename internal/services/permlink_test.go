package services

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var permlinkTime = time.Date(2024, 3, 9, 14, 5, 7, 123_000_000, time.UTC)

func TestTopicPermlink(t *testing.T) {
	assert.Equal(t, "hello-blurt-world-20240309t140507123z", TopicPermlink("Hello, Blurt  World!", permlinkTime))
	assert.Equal(t, "topic-20240309t140507123z", TopicPermlink("¿¿??", permlinkTime))

	long := TopicPermlink(strings.Repeat("word ", 100), permlinkTime)
	assert.LessOrEqual(t, len(long), 255)
	assert.True(t, strings.HasSuffix(long, "-20240309t140507123z"))
	assert.NotContains(t, long, "--")
}

func TestReplyPermlink(t *testing.T) {
	assert.Equal(t, "re-some-one-20240309t140507123z", ReplyPermlink("some.one", permlinkTime))
}

package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashContent(t *testing.T) {
	t.Run("Should hash the same content identically", func(t *testing.T) {
		assert.Equal(t, HashContent("acme hardware"), HashContent("acme hardware"))
	})

	t.Run("Should hash different content differently", func(t *testing.T) {
		assert.NotEqual(t, HashContent("acme hardware"), HashContent("acme software"))
	})

	t.Run("Should produce a 64-char hex digest", func(t *testing.T) {
		assert.Len(t, HashContent(""), 64)
	})
}

func TestContentChanged(t *testing.T) {
	t.Run("Should report no change for matching content", func(t *testing.T) {
		assert.False(t, ContentChanged(HashContent("same"), "same"))
	})

	t.Run("Should report change when content differs", func(t *testing.T) {
		assert.True(t, ContentChanged(HashContent("old"), "new"))
	})
}

func TestGenerateContentHash(t *testing.T) {
	sources := []ContentSource{
		{Type: SourceName, Content: "Acme"},
		{Type: SourceDescription, Content: "Hardware store"},
		{Type: SourceWebsite, Content: "https://acme.test"},
	}

	t.Run("Should be deterministic for identical sources", func(t *testing.T) {
		assert.Equal(t, GenerateContentHash(sources), GenerateContentHash(sources))
	})

	t.Run("Should change when any source content changes", func(t *testing.T) {
		changed := []ContentSource{
			{Type: SourceName, Content: "Acme"},
			{Type: SourceDescription, Content: "Hardware emporium"},
			{Type: SourceWebsite, Content: "https://acme.test"},
		}
		assert.NotEqual(t, GenerateContentHash(sources), GenerateContentHash(changed))
	})

	t.Run("Should be sensitive to source order", func(t *testing.T) {
		reversed := []ContentSource{sources[2], sources[1], sources[0]}
		assert.NotEqual(t, GenerateContentHash(sources), GenerateContentHash(reversed))
	})

	t.Run("Should combine sources as typed parts", func(t *testing.T) {
		assert.Equal(t,
			HashContent("name:Acme|description:Hardware store|website:https://acme.test"),
			GenerateContentHash(sources),
		)
	})
}

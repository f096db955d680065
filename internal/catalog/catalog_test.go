package catalog

import (
	"math/rand/v2"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltin(t *testing.T) {
	p := Builtin(100)

	cards := p.Cards()
	require.Len(t, cards, 100)

	seen := make(map[string]bool)
	for _, c := range cards {
		assert.False(t, seen[c.ID], "duplicate card id %s", c.ID)
		seen[c.ID] = true
		assert.Equal(t, BuiltinPackID, c.PackID)
	}
	assert.Equal(t, "001", cards[0].ID)
	assert.Equal(t, "classic/001.jpg", cards[0].Image)
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := []string{
		"packs/forest/b.jpg",
		"packs/forest/a.png",
		"packs/forest/a.jpg",
		"packs/forest/notes.txt",
		"packs/forest/c.WEBP",
		"packs/tiny/only.jpg",
		"packs/.hidden/x.jpg",
		"packs/readme.md",
	}
	for _, f := range files {
		require.NoError(t, afero.WriteFile(fs, f, []byte("x"), 0o644))
	}

	c, err := Load(fs, "packs", 3)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	p, ok := c.Pack("forest")
	require.True(t, ok)
	assert.Equal(t, []string{"forest/a.jpg", "forest/b.jpg", "forest/c.WEBP"}, p.Images)

	ids := make([]string, 0)
	for _, card := range p.Cards() {
		ids = append(ids, card.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	_, ok = c.Pack("tiny")
	assert.False(t, ok)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		files []string
	}{
		{name: "missing root", files: nil},
		{name: "no qualifying packs", files: []string{"packs/small/a.jpg"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			for _, f := range tt.files {
				require.NoError(t, afero.WriteFile(fs, f, []byte("x"), 0o644))
			}

			_, err := Load(fs, "packs", 2)
			assert.Error(t, err)
		})
	}
}

func TestRandom(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))

	assert.Nil(t, New().Random(r))

	a := &Pack{ID: "a"}
	b := &Pack{ID: "b"}
	c := New(a, b, &Pack{ID: "a"}, nil)
	assert.Equal(t, 2, c.Len())

	picked := make(map[string]int)
	for range 200 {
		picked[c.Random(r).ID]++
	}
	assert.Positive(t, picked["a"])
	assert.Positive(t, picked["b"])
}

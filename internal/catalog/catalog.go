/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package catalog holds the immutable card packs a game deals from.
package catalog

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"path"
	"slices"
	"strings"

	"github.com/spf13/afero"
)

// BuiltinPackID names the pack used when no pack directory is configured.
const BuiltinPackID = "classic"

var ErrNoPacks = errors.New("no usable card packs found")

// Card is one playable image. IDs are unique within a pack.
type Card struct {
	ID     string
	Image  string
	PackID string
}

// Pack is a named set of card images.
type Pack struct {
	ID     string
	Name   string
	Images []string
}

// Cards converts the pack's images into a fresh card set, in image order.
func (p *Pack) Cards() []Card {
	cards := make([]Card, 0, len(p.Images))
	for _, img := range p.Images {
		base := path.Base(img)
		cards = append(cards, Card{
			ID:     strings.TrimSuffix(base, path.Ext(base)),
			Image:  img,
			PackID: p.ID,
		})
	}
	return cards
}

// Catalog is loaded once at startup and never mutated afterwards.
type Catalog struct {
	packs []*Pack
	byID  map[string]*Pack
}

func New(packs ...*Pack) *Catalog {
	c := &Catalog{
		packs: make([]*Pack, 0, len(packs)),
		byID:  make(map[string]*Pack, len(packs)),
	}
	for _, p := range packs {
		if p == nil {
			continue
		}
		if _, dup := c.byID[p.ID]; dup {
			continue
		}
		c.packs = append(c.packs, p)
		c.byID[p.ID] = p
	}
	return c
}

// Builtin returns a pack of n numbered cards, for running without image files.
func Builtin(n int) *Pack {
	images := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		images = append(images, fmt.Sprintf("%s/%03d.jpg", BuiltinPackID, i))
	}
	return &Pack{
		ID:     BuiltinPackID,
		Name:   "Classic",
		Images: images,
	}
}

func (c *Catalog) Len() int {
	return len(c.packs)
}

func (c *Catalog) Packs() []*Pack {
	return slices.Clone(c.packs)
}

func (c *Catalog) Pack(id string) (*Pack, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// Random picks one pack uniformly, or nil if the catalog is empty.
func (c *Catalog) Random(r *rand.Rand) *Pack {
	if len(c.packs) == 0 {
		return nil
	}
	return c.packs[r.IntN(len(c.packs))]
}

var imageExts = map[string]bool{
	".gif":  true,
	".jpeg": true,
	".jpg":  true,
	".png":  true,
	".webp": true,
}

// Load reads one pack per sub-directory of root. Packs with fewer than
// minCards images are skipped.
func Load(fs afero.Fs, root string, minCards int) (*Catalog, error) {
	entries, err := afero.ReadDir(fs, root)
	if err != nil {
		return nil, fmt.Errorf("reading pack directory %q: %w", root, err)
	}

	var packs []*Pack
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		files, err := afero.ReadDir(fs, path.Join(root, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading pack %q: %w", entry.Name(), err)
		}

		images := make([]string, 0, len(files))
		seen := make(map[string]bool, len(files))
		for _, f := range files {
			ext := path.Ext(f.Name())
			if f.IsDir() || !imageExts[strings.ToLower(ext)] {
				continue
			}

			// card ids drop the extension, so a.jpg and a.png would collide
			id := strings.TrimSuffix(f.Name(), ext)
			if seen[id] {
				continue
			}
			seen[id] = true

			images = append(images, path.Join(entry.Name(), f.Name()))
		}
		if len(images) < minCards {
			continue
		}
		slices.Sort(images)

		packs = append(packs, &Pack{
			ID:     entry.Name(),
			Name:   strings.ReplaceAll(entry.Name(), "_", " "),
			Images: images,
		})
	}

	if len(packs) == 0 {
		return nil, fmt.Errorf("%w in %q", ErrNoPacks, root)
	}

	return New(packs...), nil
}

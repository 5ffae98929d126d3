package services

import (
	"slices"

	"blurtbb/internal/models"
)

// BlockList decides whether content is hidden from display.
type BlockList interface {
	Blocks(author, permlink string) bool
}

// Flattened is a post tree as a chronological reply list plus a key index.
// The root is in ByKey but never in Replies.
type Flattened struct {
	Root    *models.Content
	Replies []*models.Content
	ByKey   map[string]*models.Content
}

// Lookup finds a node by author and permlink.
func (f Flattened) Lookup(author, permlink string) (*models.Content, bool) {
	c, ok := f.ByKey[models.ContentKey(author, permlink)]
	return c, ok
}

// Flatten walks root's replies in pre-order and sorts them by creation time.
// A blocked node is dropped together with its whole subtree. A nil list
// disables filtering.
func Flatten(root *models.Content, blocked BlockList) Flattened {
	out := Flattened{
		Root:  root,
		ByKey: map[string]*models.Content{root.Key(): root},
	}

	var walk func(nodes []*models.Content)
	walk = func(nodes []*models.Content) {
		for _, n := range nodes {
			if blocked != nil && blocked.Blocks(n.Author, n.Permlink) {
				continue
			}
			out.Replies = append(out.Replies, n)
			out.ByKey[n.Key()] = n
			walk(n.Replies)
		}
	}
	walk(root.Replies)

	slices.SortStableFunc(out.Replies, func(a, b *models.Content) int {
		return a.Created.Compare(b.Created.Time)
	})
	return out
}

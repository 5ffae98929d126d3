package live

import (
	"html/template"
	"sync"
	"time"

	"blurtbb/internal/models"
	"blurtbb/internal/services"

	"github.com/google/uuid"
)

// RootFragmentID is the element id of the root post's vote widget.
const RootFragmentID = "post-votes"

// Document mirrors the vote widgets of one rendered post page. The page's
// script pulls Changes and swaps the fragments in.
type Document struct {
	ID      string
	PostKey string

	mu        sync.Mutex
	version   uint64
	detached  bool
	lastSeen  time.Time
	root      *Fragment
	fragments map[string]*Fragment
	now       func() time.Time
}

// Fragment is one vote widget of a Document.
type Fragment struct {
	doc      *Document
	Author   string
	Permlink string
	Root     bool

	html     template.HTML
	version  uint64
	bindings int
	rebind   bool
}

// Change is a fragment that changed after a given version.
type Change struct {
	ID       string        `json:"id"`
	Author   string        `json:"author"`
	Permlink string        `json:"permlink"`
	Root     bool          `json:"root"`
	HTML     template.HTML `json:"html"`
	Popover  bool          `json:"popover"`
}

func NewDocument(author, permlink string) *Document {
	d := &Document{
		ID:        uuid.NewString(),
		PostKey:   models.ContentKey(author, permlink),
		fragments: make(map[string]*Fragment),
		now:       time.Now,
	}
	d.lastSeen = d.now()
	return d
}

// Mount registers a widget the page renders with its initial html.
func (d *Document) Mount(author, permlink string, root bool, html template.HTML) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f := &Fragment{doc: d, Author: author, Permlink: permlink, Root: root, html: html}
	if root {
		d.root = f
		return
	}
	d.fragments[models.ContentKey(author, permlink)] = f
}

func (d *Document) RootVoteFragment() (services.Fragment, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.root == nil {
		return nil, false
	}
	return d.root, true
}

func (d *Document) VoteFragment(author, permlink string) (services.Fragment, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fragments[models.ContentKey(author, permlink)]
	if !ok {
		return nil, false
	}
	return f, true
}

// HTML returns the current markup of a mounted fragment.
func (d *Document) HTML(author, permlink string, root bool) template.HTML {
	d.mu.Lock()
	defer d.mu.Unlock()
	if root {
		if d.root == nil {
			return ""
		}
		return d.root.html
	}
	if f, ok := d.fragments[models.ContentKey(author, permlink)]; ok {
		return f.html
	}
	return ""
}

// Replace swaps the fragment markup. Identical markup is not a change.
// Writes to a detached document are dropped.
func (f *Fragment) Replace(html template.HTML) {
	d := f.doc
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.detached || f.html == html {
		return
	}
	d.version++
	f.html = html
	f.version = d.version
	f.rebind = false
}

// BindPopover asks the page to re-create the voter popover of the fragment
// after it swapped the markup in.
func (f *Fragment) BindPopover() {
	d := f.doc
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.detached {
		return
	}
	f.bindings++
	f.rebind = true
}

// Bindings counts popover bindings since mount.
func (f *Fragment) Bindings() int {
	f.doc.mu.Lock()
	defer f.doc.mu.Unlock()
	return f.bindings
}

// Detach ends the document's life; later writes are ignored.
func (d *Document) Detach() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detached = true
}

func (d *Document) Detached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detached
}

func (d *Document) Version() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

// Changes lists fragments changed after since, the current version, and
// whether the document is gone. Calling it counts as the page being alive.
func (d *Document) Changes(since uint64) ([]Change, uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastSeen = d.now()
	if d.detached {
		return nil, d.version, true
	}

	out := []Change{}
	add := func(f *Fragment, id string) {
		if f.version > since {
			out = append(out, Change{
				ID:       id,
				Author:   f.Author,
				Permlink: f.Permlink,
				Root:     f.Root,
				HTML:     f.html,
				Popover:  f.rebind,
			})
		}
	}
	if d.root != nil {
		add(d.root, RootFragmentID)
	}
	for key, f := range d.fragments {
		add(f, key)
	}
	return out, d.version, false
}

// idleSince reports when the page last pulled changes.
func (d *Document) idleSince() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSeen
}

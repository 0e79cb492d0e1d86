package playlists

// Entry is a playlist as shown to one user.
type Entry struct {
	Metadata
	Liked          bool  `json:"liked"`
	UsedCount      int64 `json:"usedCount"`
	CompletedCount int64 `json:"completedCount"`
}

// Catalog is a normalized view of playlists: one record per id plus the set
// of ids the user has liked. Whether a playlist is liked is always derived
// from the set, so there is no per-list flag to keep in sync.
//
// A Catalog is not safe for concurrent use.
type Catalog struct {
	byID  map[string]Metadata
	usage map[string]Usage
	liked map[string]struct{}
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		byID:  make(map[string]Metadata),
		usage: make(map[string]Usage),
		liked: make(map[string]struct{}),
	}
}

// Put adds or replaces playlists.
func (c *Catalog) Put(metas ...Metadata) {
	for _, m := range metas {
		c.byID[m.ID] = m
	}
}

// SetUsage records usage counters by playlist id.
func (c *Catalog) SetUsage(usage map[string]Usage) {
	for id, u := range usage {
		c.usage[id] = u
	}
}

// Like marks ids as liked.
func (c *Catalog) Like(ids ...string) {
	for _, id := range ids {
		c.liked[id] = struct{}{}
	}
}

// Unlike removes ids from the liked set.
func (c *Catalog) Unlike(ids ...string) {
	for _, id := range ids {
		delete(c.liked, id)
	}
}

// Liked reports whether id is in the liked set.
func (c *Catalog) Liked(id string) bool {
	_, ok := c.liked[id]
	return ok
}

// Get returns the entry for id.
func (c *Catalog) Get(id string) (Entry, bool) {
	m, ok := c.byID[id]
	if !ok {
		return Entry{}, false
	}
	u := c.usage[id]
	return Entry{
		Metadata:       m,
		Liked:          c.Liked(id),
		UsedCount:      u.UsedCount,
		CompletedCount: u.CompletedCount,
	}, true
}

// Entries returns the entries for ids in order, skipping unknown ids.
func (c *Catalog) Entries(ids []string) []Entry {
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		if e, ok := c.Get(id); ok {
			out = append(out, e)
		}
	}
	return out
}

// LikedEntries returns the liked playlists the catalog knows about, in ids
// order.
func (c *Catalog) LikedEntries(ids []string) []Entry {
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		if !c.Liked(id) {
			continue
		}
		if e, ok := c.Get(id); ok {
			out = append(out, e)
		}
	}
	return out
}

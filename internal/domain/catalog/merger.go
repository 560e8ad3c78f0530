package catalog

const (
	MergePageView = "page"
	MergePrefetch = "prefetch"
)

// Merger accumulates cursor pages of one definition kind into a deduplicated
// master list while keeping a separate current-page view for pagination
// controls. The master list is append-only for the life of the merger; a
// month change discards the merger and starts fresh.
type Merger struct {
	kind Kind

	seen    map[string]struct{}
	master  []Definition
	current []Definition

	cursor         string
	nextCursor     string
	stack          []string
	prefetchCursor string

	fullyLoaded    bool
	prefetchFailed bool
}

func NewMerger(kind Kind) *Merger {
	return &Merger{kind: kind, seen: map[string]struct{}{}}
}

func (m *Merger) Kind() Kind { return m.kind }

// MergePage folds a fetched page in. cursor is the continuation token the
// page was fetched with ("" for the first page). MergePageView replaces the
// visible current page; MergePrefetch only extends the master list so
// background loading never disturbs what the user is looking at.
func (m *Merger) MergePage(cursor string, page Page, mode string) {
	for _, def := range page.Items {
		if _, dup := m.seen[def.ID]; dup {
			continue
		}
		m.seen[def.ID] = struct{}{}
		m.master = append(m.master, def)
	}

	switch mode {
	case MergePageView:
		// History records forward traversal only: a page reached through the
		// advertised continuation pushes the page it came from. Back
		// navigation (a cursor popped via PrevCursor, possibly "") must not
		// re-push the page being left, or the stack would loop.
		if cursor != "" && cursor == m.nextCursor {
			m.stack = append(m.stack, m.cursor)
		}
		m.cursor = cursor
		m.nextCursor = page.NextCursor
		m.current = page.Items
		if m.prefetchCursor == "" && cursor == "" {
			m.prefetchCursor = page.NextCursor
		}
	case MergePrefetch:
		m.prefetchCursor = page.NextCursor
	}

	// fullyLoaded is monotonic: it latches when any page reports no
	// continuation and only Reset clears it.
	if page.NextCursor == "" {
		m.fullyLoaded = true
	}
}

// MarkPrefetchFailed records that background loading stopped short; the full
// rating surface is unknown until a retry succeeds.
func (m *Merger) MarkPrefetchFailed() { m.prefetchFailed = true }

// ClearPrefetchFailed re-arms background loading for a retry.
func (m *Merger) ClearPrefetchFailed() { m.prefetchFailed = false }

func (m *Merger) PrefetchFailed() bool { return m.prefetchFailed }

// FullyLoaded reports whether every page for this kind has been merged.
func (m *Merger) FullyLoaded() bool { return m.fullyLoaded }

// PrefetchCursor returns the continuation token the background loop should
// fetch next. Meaningless once FullyLoaded is true.
func (m *Merger) PrefetchCursor() string { return m.prefetchCursor }

// NextCursor is the continuation token for the page after the current view.
func (m *Merger) NextCursor() string { return m.nextCursor }

// PrevCursor pops the paging history, returning the token for the previous
// page view and whether one exists.
func (m *Merger) PrevCursor() (string, bool) {
	if len(m.stack) == 0 {
		return "", false
	}
	top := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return top, true
}

// Master returns a copy of the deduplicated union of all items seen.
func (m *Merger) Master() []Definition {
	out := make([]Definition, len(m.master))
	copy(out, m.master)
	return out
}

// CurrentPage returns a copy of the visible page.
func (m *Merger) CurrentPage() []Definition {
	out := make([]Definition, len(m.current))
	copy(out, m.current)
	return out
}

// Reset discards everything, as on month change.
func (m *Merger) Reset() {
	*m = Merger{kind: m.kind, seen: map[string]struct{}{}}
}

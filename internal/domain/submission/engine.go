package submission

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"reviewsync/internal/domain/catalog"
	"reviewsync/internal/domain/rating"
)

// SyncState is the engine's draft synchronization state. One value per scope
// replaces the scattered locked/hydrating/saving flags of the old portal so
// impossible combinations cannot be represented.
type SyncState string

const (
	SyncIdle        SyncState = "idle"
	SyncHydrating   SyncState = "hydrating"
	SyncPendingSave SyncState = "pending_save"
	SyncSaving      SyncState = "saving"
	SyncSaveFailed  SyncState = "save_failed"
)

const (
	MinAutosaveDelay = 500 * time.Millisecond
	MaxAutosaveDelay = 5 * time.Second
	MinPageSize      = 5
	MaxPageSize      = 100
)

// API is the backend surface the engine synchronizes against.
type API interface {
	// FetchMonthlySubmission returns nil when no record exists yet for the month.
	FetchMonthlySubmission(ctx context.Context, month string) (*Remote, error)
	SaveDraft(ctx context.Context, p Payload) error
	SubmitFinal(ctx context.Context, p Payload) (Meta, error)
	FetchDefinitionsPage(ctx context.Context, kind catalog.Kind, limit int, cursor string) (catalog.Page, error)
}

// Snapshot is the observable state handed to the UI on every change.
type Snapshot struct {
	Month             string
	DraftStatus       SyncState
	Locked            bool
	CanFinalSubmit    bool
	Meta              Meta
	SelfReview        string
	KPIRatings        rating.Map
	ValueRatings      rating.Map
	Certifications    []Certification
	RecognitionsCount int
	MasterKPIs        []catalog.Definition
	MasterValues      []catalog.Definition
	CurrentKPIPage    []catalog.Definition
	CurrentValuePage  []catalog.Definition
	KPIsFullyLoaded   bool
	ValuesFullyLoaded bool
	PrefetchFailed    bool
	Err               error
}

type Options struct {
	Clock            clockwork.Clock
	AutosaveDelay    time.Duration
	PageSize         int
	Adapter          catalog.RoleAdapter
	OnChange         func(Snapshot)
	OnSessionExpired func()
	BaseContext      context.Context
}

// Engine owns the monthly submission state for one user: hydration, the
// debounced autosave loop, background definition prefetch, and the one-way
// lock transition.
type Engine struct {
	api              API
	clock            clockwork.Clock
	delay            time.Duration
	pageSize         int
	adapter          catalog.RoleAdapter
	onChange         func(Snapshot)
	onSessionExpired func()
	baseCtx          context.Context

	mu               sync.Mutex
	epoch            int
	cancel           context.CancelFunc
	monthCtx         context.Context
	month            string
	meta             Meta
	locked           bool
	sync             SyncState
	lastSavedHash    string
	lastErr          error
	authDead         bool
	selfReview       string
	kpiRatings       rating.Map
	valueRatings     rating.Map
	certs            map[string]Certification
	recognitions     int
	kpis             *catalog.Merger
	values           *catalog.Merger
	timer            clockwork.Timer
	saveInFlight     bool
	editsWhileSaving bool
}

func New(backend API, opts Options) *Engine {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	baseCtx := opts.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Engine{
		api:              backend,
		clock:            clock,
		delay:            ClampAutosaveDelay(opts.AutosaveDelay),
		pageSize:         ClampPageSize(opts.PageSize),
		adapter:          opts.Adapter,
		onChange:         opts.OnChange,
		onSessionExpired: opts.OnSessionExpired,
		baseCtx:          baseCtx,
		sync:             SyncIdle,
		kpiRatings:       rating.Map{},
		valueRatings:     rating.Map{},
		certs:            map[string]Certification{},
		kpis:             catalog.NewMerger(catalog.KindKPI),
		values:           catalog.NewMerger(catalog.KindValue),
	}
}

// ClampAutosaveDelay bounds the externally supplied debounce delay.
func ClampAutosaveDelay(d time.Duration) time.Duration {
	if d < MinAutosaveDelay {
		return MinAutosaveDelay
	}
	if d > MaxAutosaveDelay {
		return MaxAutosaveDelay
	}
	return d
}

// ClampPageSize bounds the externally supplied definitions page size.
func ClampPageSize(n int) int {
	if n < MinPageSize {
		if n <= 0 {
			return 20
		}
		return MinPageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

// Close cancels all in-flight work, as on logout.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.epoch++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	// Dropping the month scope makes any later edit or save attempt fail the
	// no-active-month guard.
	e.month = ""
	e.stopTimerLocked()
}

// SetActiveMonth switches the engine to a new review cycle: all local state
// is discarded, in-flight fetches for the previous month are cancelled, and
// hydration plus definition prefetch starts for the new month.
func (e *Engine) SetActiveMonth(month string) error {
	if !ValidMonthKey(month) {
		return ErrBadMonth
	}
	e.mu.Lock()
	if e.authDead {
		e.mu.Unlock()
		return ErrSessionDead
	}
	e.epoch++
	epoch := e.epoch
	if e.cancel != nil {
		e.cancel()
	}
	ctx, cancel := context.WithCancel(e.baseCtx)
	e.monthCtx, e.cancel = ctx, cancel

	e.month = month
	e.meta = Meta{}
	e.locked = false
	e.sync = SyncHydrating
	e.lastSavedHash = ""
	e.lastErr = nil
	e.selfReview = ""
	e.kpiRatings = rating.Map{}
	e.valueRatings = rating.Map{}
	e.certs = map[string]Certification{}
	e.recognitions = 0
	e.kpis.Reset()
	e.values.Reset()
	e.stopTimerLocked()
	e.saveInFlight = false
	e.editsWhileSaving = false

	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.emit(snap)

	go e.hydrate(ctx, epoch, month)
	return nil
}

func (e *Engine) hydrate(ctx context.Context, epoch int, month string) {
	remote, err := e.api.FetchMonthlySubmission(ctx, month)
	if !e.finishHydration(epoch, remote, err) {
		return
	}
	e.prefetch(ctx, epoch, e.kpis)
	e.prefetch(ctx, epoch, e.values)
}

// finishHydration applies the fetch result and reports whether prefetch
// should proceed.
func (e *Engine) finishHydration(epoch int, remote *Remote, err error) bool {
	e.mu.Lock()
	if epoch != e.epoch {
		e.mu.Unlock()
		return false
	}
	if err != nil {
		if isAbort(err) {
			e.mu.Unlock()
			return false
		}
		if isAuth(err) {
			e.escalateAuthLocked()
			return false
		}
		slog.Warn("monthly submission hydration failed", "month", e.month, "err", err)
		e.lastErr = err
		e.sync = SyncIdle
		snap := e.snapshotLocked()
		e.mu.Unlock()
		e.emit(snap)
		return false
	}

	if remote != nil {
		e.meta = remote.Meta
		e.locked = remote.Meta.Locked()
		e.selfReview = remote.SelfReview
		e.kpiRatings = remote.KPIRatings.Clone()
		e.valueRatings = remote.ValueRatings.Clone()
		e.certs = map[string]Certification{}
		for _, c := range remote.Certifications {
			e.certs[c.Key()] = c
		}
		e.recognitions = remote.RecognitionsCount
	}
	e.sync = SyncIdle
	// The hydrated server state is the saved baseline; untouched state must
	// not trigger an autosave.
	e.lastSavedHash = Hash(BuildPayload(e.draftLocked()))
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.emit(snap)
	return true
}

// prefetch pulls every remaining definition page for one kind in the
// background so the full rating surface is known for submit eligibility. The
// first page doubles as the visible page-one view.
func (e *Engine) prefetch(ctx context.Context, epoch int, merger *catalog.Merger) {
	cursor := ""
	first := true
	for {
		e.mu.Lock()
		if epoch != e.epoch || merger.FullyLoaded() {
			e.mu.Unlock()
			return
		}
		if !first {
			cursor = merger.PrefetchCursor()
		}
		limit := e.pageSize
		e.mu.Unlock()

		page, err := e.api.FetchDefinitionsPage(ctx, merger.Kind(), limit, cursor)

		e.mu.Lock()
		if epoch != e.epoch {
			e.mu.Unlock()
			return
		}
		if err != nil {
			if isAbort(err) {
				e.mu.Unlock()
				return
			}
			if isAuth(err) {
				e.escalateAuthLocked()
				return
			}
			slog.Warn("definition prefetch failed", "kind", merger.Kind(), "cursor", cursor, "err", err)
			merger.MarkPrefetchFailed()
			e.lastErr = err
			snap := e.snapshotLocked()
			e.mu.Unlock()
			e.emit(snap)
			return
		}
		mode := catalog.MergePrefetch
		if first {
			mode = catalog.MergePageView
		}
		merger.MergePage(cursor, page, mode)
		first = false
		done := merger.FullyLoaded()
		snap := e.snapshotLocked()
		e.mu.Unlock()
		e.emit(snap)
		if done {
			return
		}
	}
}

// SetSelfReviewText replaces the self-review draft text.
func (e *Engine) SetSelfReviewText(text string) error {
	return e.edit(func() { e.selfReview = text })
}

// SetRating stores one rating. Out-of-range values are rejected with a
// ValidationError and leave state untouched.
func (e *Engine) SetRating(kind catalog.Kind, id string, value float64) error {
	if !rating.Valid(value) {
		return validationErr("rating must be between 1.0 and 5.0")
	}
	return e.edit(func() {
		e.ratingsFor(kind).Set(id, value)
	})
}

// ClearRating removes one rating.
func (e *Engine) ClearRating(kind catalog.Kind, id string) error {
	return e.edit(func() {
		delete(e.ratingsFor(kind), id)
	})
}

// SetCertification selects a certification, replacing any existing selection
// with the same case-insensitive name.
func (e *Engine) SetCertification(name, proof string) error {
	cert := Certification{Name: name, Proof: proof}
	if cert.Key() == "" {
		return validationErr("certification name is required")
	}
	return e.edit(func() { e.certs[cert.Key()] = cert })
}

// RemoveCertification drops a selection.
func (e *Engine) RemoveCertification(name string) error {
	key := Certification{Name: name}.Key()
	return e.edit(func() { delete(e.certs, key) })
}

// SetRecognitionsCount records how many recognitions the user received.
func (e *Engine) SetRecognitionsCount(n int) error {
	if n < 0 {
		n = 0
	}
	return e.edit(func() { e.recognitions = n })
}

// NextPage advances the visible definitions page for one kind. A no-op on
// the last page. The master list is unaffected; prefetch has usually merged
// the page's items already.
func (e *Engine) NextPage(ctx context.Context, kind catalog.Kind) error {
	return e.pageTo(ctx, kind, func(m *catalog.Merger) (string, bool) {
		next := m.NextCursor()
		return next, next != ""
	})
}

// PrevPage returns to the previously viewed page, if any.
func (e *Engine) PrevPage(ctx context.Context, kind catalog.Kind) error {
	return e.pageTo(ctx, kind, (*catalog.Merger).PrevCursor)
}

func (e *Engine) pageTo(ctx context.Context, kind catalog.Kind, cursorFn func(*catalog.Merger) (string, bool)) error {
	e.mu.Lock()
	if e.authDead {
		e.mu.Unlock()
		return ErrSessionDead
	}
	if e.month == "" || e.sync == SyncHydrating {
		e.mu.Unlock()
		return ErrNotHydrated
	}
	merger := e.mergerFor(kind)
	cursor, ok := cursorFn(merger)
	if !ok {
		e.mu.Unlock()
		return nil
	}
	limit := e.pageSize
	epoch := e.epoch
	e.mu.Unlock()

	page, err := e.api.FetchDefinitionsPage(ctx, kind, limit, cursor)

	e.mu.Lock()
	if epoch != e.epoch {
		e.mu.Unlock()
		return nil
	}
	if err != nil {
		if isAbort(err) {
			e.mu.Unlock()
			return nil
		}
		if isAuth(err) {
			e.escalateAuthLocked()
			return ErrSessionDead
		}
		e.mu.Unlock()
		return err
	}
	merger.MergePage(cursor, page, catalog.MergePageView)
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.emit(snap)
	return nil
}

func (e *Engine) mergerFor(kind catalog.Kind) *catalog.Merger {
	if kind == catalog.KindValue {
		return e.values
	}
	return e.kpis
}

func (e *Engine) ratingsFor(kind catalog.Kind) rating.Map {
	if kind == catalog.KindValue {
		return e.valueRatings
	}
	return e.kpiRatings
}

func (e *Engine) edit(apply func()) error {
	e.mu.Lock()
	if e.authDead {
		e.mu.Unlock()
		return ErrSessionDead
	}
	if e.locked {
		e.mu.Unlock()
		return ErrLocked
	}
	if e.month == "" || e.sync == SyncHydrating {
		e.mu.Unlock()
		return ErrNotHydrated
	}
	apply()
	e.markDirtyLocked()
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.emit(snap)
	return nil
}

// markDirtyLocked arms the trailing debounce timer. An edit arriving while a
// save is in flight is deferred until that save resolves, so writes never
// overlap or arrive out of order.
func (e *Engine) markDirtyLocked() {
	if e.saveInFlight {
		e.editsWhileSaving = true
		return
	}
	e.sync = SyncPendingSave
	epoch := e.epoch
	e.stopTimerLocked()
	e.timer = e.clock.AfterFunc(e.delay, func() { e.timerFired(epoch) })
}

func (e *Engine) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *Engine) timerFired(epoch int) {
	e.mu.Lock()
	if epoch != e.epoch || e.locked || e.sync != SyncPendingSave {
		e.mu.Unlock()
		return
	}
	payload := BuildPayload(e.draftLocked())
	hash := Hash(payload)
	if hash == e.lastSavedHash {
		e.sync = SyncIdle
		snap := e.snapshotLocked()
		e.mu.Unlock()
		e.emit(snap)
		return
	}
	e.sync = SyncSaving
	e.saveInFlight = true
	ctx := e.monthCtx
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.emit(snap)

	go func() {
		err := e.api.SaveDraft(ctx, payload)
		e.reconcileSave(epoch, hash, err)
	}()
}

// reconcileSave applies a finished save and, if edits piled up meanwhile,
// schedules the follow-up save.
func (e *Engine) reconcileSave(epoch int, hash string, err error) {
	e.mu.Lock()
	if epoch != e.epoch {
		e.mu.Unlock()
		return
	}
	e.saveInFlight = false
	if err != nil {
		if isAbort(err) {
			e.sync = SyncIdle
			e.editsWhileSaving = false
			e.mu.Unlock()
			return
		}
		if isAuth(err) {
			e.escalateAuthLocked()
			return
		}
		slog.Warn("draft save failed", "month", e.month, "err", err)
		e.lastErr = err
		e.sync = SyncSaveFailed
		if e.editsWhileSaving {
			// Newer edits exist; retry them through the normal debounce.
			e.editsWhileSaving = false
			e.markDirtyLocked()
		}
	} else {
		e.lastSavedHash = hash
		e.lastErr = nil
		e.sync = SyncIdle
		if e.editsWhileSaving {
			e.editsWhileSaving = false
			e.markDirtyLocked()
		}
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.emit(snap)
}

// SaveDraftNow persists the current draft immediately, bypassing the
// debounce. It short-circuits without a network call when nothing changed
// since the last successful save.
func (e *Engine) SaveDraftNow(ctx context.Context) error {
	e.mu.Lock()
	if e.authDead {
		e.mu.Unlock()
		return ErrSessionDead
	}
	if e.locked {
		e.mu.Unlock()
		return ErrLocked
	}
	if e.month == "" {
		e.mu.Unlock()
		return ErrNotHydrated
	}
	switch e.sync {
	case SyncHydrating:
		e.mu.Unlock()
		return ErrNotHydrated
	case SyncSaving:
		e.mu.Unlock()
		return ErrSaveInFlight
	}
	e.stopTimerLocked()
	payload := BuildPayload(e.draftLocked())
	hash := Hash(payload)
	if hash == e.lastSavedHash {
		e.sync = SyncIdle
		snap := e.snapshotLocked()
		e.mu.Unlock()
		e.emit(snap)
		return nil
	}
	e.sync = SyncSaving
	e.saveInFlight = true
	epoch := e.epoch
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.emit(snap)

	err := e.api.SaveDraft(ctx, payload)
	e.reconcileSave(epoch, hash, err)
	return err
}

// FinalSubmit performs the one-way submit. Every precondition is re-checked
// here, not just at button-render time, and a locked submission is rejected
// without touching the network.
func (e *Engine) FinalSubmit(ctx context.Context) error {
	e.mu.Lock()
	if e.authDead {
		e.mu.Unlock()
		return ErrSessionDead
	}
	if e.locked {
		e.mu.Unlock()
		return ErrLocked
	}
	if e.month == "" || e.sync == SyncHydrating {
		e.mu.Unlock()
		return ErrNotHydrated
	}
	if e.saveInFlight {
		e.mu.Unlock()
		return ErrSaveInFlight
	}
	if err := ValidateFinalSubmit(e.eligibilityLocked()); err != nil {
		e.mu.Unlock()
		return err
	}
	e.stopTimerLocked()
	payload := BuildPayload(e.draftLocked())
	epoch := e.epoch
	e.mu.Unlock()

	meta, err := e.api.SubmitFinal(ctx, payload)

	e.mu.Lock()
	if epoch != e.epoch {
		e.mu.Unlock()
		return err
	}
	if err != nil {
		if isAuth(err) {
			e.escalateAuthLocked()
			return ErrSessionDead
		}
		if !isAbort(err) {
			slog.Warn("final submit failed", "month", e.month, "err", err)
			e.lastErr = err
		}
		snap := e.snapshotLocked()
		e.mu.Unlock()
		e.emit(snap)
		return err
	}
	e.meta = meta
	e.locked = true
	e.sync = SyncIdle
	e.lastSavedHash = Hash(payload)
	e.editsWhileSaving = false
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.emit(snap)
	return nil
}

// Snapshot returns the current observable state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) draftLocked() Draft {
	certs := make([]Certification, 0, len(e.certs))
	for _, c := range e.certs {
		certs = append(certs, c)
	}
	return Draft{
		Month:             e.month,
		SelfReview:        e.selfReview,
		KPIRatings:        e.kpiRatings,
		ValueRatings:      e.valueRatings,
		Certifications:    certs,
		RecognitionsCount: e.recognitions,
	}
}

func (e *Engine) eligibilityLocked() EligibilityInput {
	return EligibilityInput{
		Locked:          e.locked,
		KPIsFullyLoaded: e.kpis.FullyLoaded(),
		ApplicableKPIs:  e.adapter.Filter(e.kpis.Master()),
		Draft:           e.draftLocked(),
	}
}

func (e *Engine) snapshotLocked() Snapshot {
	draft := e.draftLocked()
	return Snapshot{
		Month:             e.month,
		DraftStatus:       e.sync,
		Locked:            e.locked,
		CanFinalSubmit:    CanFinalSubmit(e.eligibilityLocked()),
		Meta:              e.meta,
		SelfReview:        e.selfReview,
		KPIRatings:        e.kpiRatings.Clone(),
		ValueRatings:      e.valueRatings.Clone(),
		Certifications:    BuildPayload(draft).Certifications,
		RecognitionsCount: e.recognitions,
		MasterKPIs:        e.kpis.Master(),
		MasterValues:      e.values.Master(),
		CurrentKPIPage:    e.kpis.CurrentPage(),
		CurrentValuePage:  e.values.CurrentPage(),
		KPIsFullyLoaded:   e.kpis.FullyLoaded(),
		ValuesFullyLoaded: e.values.FullyLoaded(),
		PrefetchFailed:    e.kpis.PrefetchFailed() || e.values.PrefetchFailed(),
		Err:               e.lastErr,
	}
}

// escalateAuthLocked marks the session dead and notifies the caller. All
// further sync attempts short-circuit with ErrSessionDead. Unlocks e.mu.
func (e *Engine) escalateAuthLocked() {
	e.authDead = true
	e.sync = SyncIdle
	e.lastErr = ErrSessionDead
	e.stopTimerLocked()
	cb := e.onSessionExpired
	snap := e.snapshotLocked()
	e.mu.Unlock()
	if cb != nil {
		cb()
	}
	e.emit(snap)
}

func (e *Engine) emit(snap Snapshot) {
	if e.onChange != nil {
		e.onChange(snap)
	}
}

type statusCoder interface {
	HTTPStatus() int
}

func isAuth(err error) bool {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus() == http.StatusUnauthorized
	}
	return false
}

func isAbort(err error) bool {
	return errors.Is(err, context.Canceled)
}

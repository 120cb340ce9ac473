// ABOUTME: Sync engine that exchanges contacts between the application and one CRM
// ABOUTME: Runs the to_crm and from_crm phases and folds both into a single SyncResult
package sync

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harperreed/crmsync/crm"
	"github.com/harperreed/crmsync/models"
	"github.com/harperreed/crmsync/transform"
)

// Request is the input of one run. The engine never modifies Contacts or States.
type Request struct {
	Direction          models.Direction
	ConflictResolution models.ConflictResolution
	Contacts           []*models.Contact
	States             []models.SyncState

	// Since limits both phases to records modified after it.
	Since *time.Time

	// Force exchanges records even when they are unchanged since the last sync.
	Force bool
}

// Outcome is everything a run hands back to its caller to persist.
type Outcome struct {
	Result models.SyncResult

	// States is the complete set of sync states after the run, sorted by local id.
	States []models.SyncState

	// LocalUpdates are existing local contacts rewritten with CRM values.
	LocalUpdates []*models.Contact

	// NewContacts are CRM records adopted as new local contacts.
	NewContacts []*models.Contact
}

type Options struct {
	BatchSize   int
	PageSize    int
	Concurrency int

	// AdoptUnmapped links CRM records without a sync state to a matching local
	// contact, or creates one. Off by default: such records are only counted.
	AdoptUnmapped bool

	// Retry wraps each provider write in an extra retry loop. Provider
	// clients already retry transient failures, so it is nil by default.
	Retry *transform.RetryConfig

	Logger *zap.Logger
	Now    func() time.Time
}

type Option func(*Options)

func WithBatchSize(n int) Option {
	return func(o *Options) { o.BatchSize = n }
}

func WithPageSize(n int) Option {
	return func(o *Options) { o.PageSize = n }
}

// WithConcurrency bounds how many records of one batch are pushed in parallel.
func WithConcurrency(n int) Option {
	return func(o *Options) { o.Concurrency = n }
}

func WithAdoptUnmapped(adopt bool) Option {
	return func(o *Options) { o.AdoptUnmapped = adopt }
}

func WithRetry(cfg transform.RetryConfig) Option {
	return func(o *Options) { o.Retry = &cfg }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Options) { o.Now = now }
}

// Engine runs syncs against one client. Callers serialize runs per
// organization and provider; the engine holds no locks across runs.
type Engine struct {
	client crm.Client
	opts   Options
	logger *zap.Logger
}

// NewEngine creates an engine with the provider's batch and page sizes.
func NewEngine(client crm.Client, opts ...Option) *Engine {
	limits := crm.LimitsFor(client.Provider())
	o := Options{
		BatchSize:   limits.BatchSize,
		PageSize:    limits.PageSize,
		Concurrency: 1,
		Logger:      zap.NewNop(),
		Now:         time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.BatchSize <= 0 {
		o.BatchSize = limits.BatchSize
	}
	if o.PageSize <= 0 {
		o.PageSize = limits.PageSize
	}
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}

	return &Engine{
		client: client,
		opts:   o,
		logger: o.Logger.With(zap.String("provider", string(client.Provider()))),
	}
}

// Delta is Run restricted to records modified after since.
func (e *Engine) Delta(ctx context.Context, req Request, since time.Time) (*Outcome, error) {
	req.Since = &since
	return e.Run(ctx, req)
}

// Run executes one sync. It always returns an Outcome. The error is non-nil
// only when the request is invalid or the provider rejected the credentials,
// in which case the run stops early and the Outcome covers what was done.
func (e *Engine) Run(ctx context.Context, req Request) (*Outcome, error) {
	if req.Direction == "" {
		req.Direction = models.DirectionBidirectional
	}
	if req.ConflictResolution == "" {
		req.ConflictResolution = models.ConflictNewestWins
	}

	r := e.newRun(req)
	logger := e.logger.With(zap.String("run_id", r.result.RunID), zap.String("direction", string(req.Direction)))

	if _, err := models.ParseDirection(string(req.Direction)); err != nil {
		return r.finish(e.opts.Now()), err
	}
	if _, err := models.ParseConflictResolution(string(req.ConflictResolution)); err != nil {
		return r.finish(e.opts.Now()), err
	}

	logger.Info("sync started", zap.Int("local_contacts", len(req.Contacts)), zap.Int("states", len(req.States)))

	var err error
	if req.Direction.IncludesToCRM() {
		err = e.pushPhase(ctx, r)
	}
	if err == nil && !r.result.Cancelled && req.Direction.IncludesFromCRM() {
		err = e.pullPhase(ctx, r)
	}

	out := r.finish(e.opts.Now())
	if err != nil {
		logger.Error("sync aborted", zap.Error(err))
		return out, err
	}

	logger.Info("sync finished",
		zap.Int("processed", out.Result.RecordsProcessed),
		zap.Int("success", out.Result.RecordsSuccess),
		zap.Int("failed", out.Result.RecordsFailed),
		zap.Int("skipped", out.Result.RecordsSkipped),
		zap.Int("unmapped", out.Result.RecordsUnmapped),
		zap.Int("conflicts", len(out.Result.Conflicts)),
		zap.Bool("cancelled", out.Result.Cancelled),
		zap.Duration("duration", out.Result.Duration))
	return out, nil
}

type status int

const (
	statusSuccess status = iota
	statusFailed
	statusSkipped
	statusUnmapped
)

// recordResult is the outcome of one record in one phase.
type recordResult struct {
	status   status
	state    *models.SyncState
	conflict *models.SyncConflict
	err      *models.SyncError
	update   *models.Contact
	created  *models.Contact
}

// run is the mutable state of one Run. Only the goroutine driving Run
// touches it; parallel pushes hand their results back through slices.
type run struct {
	req        Request
	result     models.SyncResult
	states     map[string]*models.SyncState
	byCRM      map[string]*models.SyncState
	locals     map[string]*models.Contact
	conflicted map[string]bool
	updates    map[string]int
	outcome    Outcome
}

func (e *Engine) newRun(req Request) *run {
	start := e.opts.Now()
	r := &run{
		req: req,
		result: models.SyncResult{
			RunID:     ulid.Make().String(),
			Provider:  e.client.Provider(),
			Direction: req.Direction,
			StartedAt: start,
		},
		states:     make(map[string]*models.SyncState, len(req.States)),
		byCRM:      make(map[string]*models.SyncState, len(req.States)),
		locals:     make(map[string]*models.Contact, len(req.Contacts)),
		conflicted: make(map[string]bool),
		updates:    make(map[string]int),
	}
	for i := range req.States {
		s := req.States[i]
		r.states[s.LocalID] = &s
		r.byCRM[s.CRMRecordID] = &s
	}
	for _, c := range req.Contacts {
		r.locals[c.ID] = c
	}
	return r
}

func (r *run) record(res recordResult) {
	if res.status == statusUnmapped {
		r.result.RecordsUnmapped++
		return
	}

	r.result.RecordsProcessed++
	switch res.status {
	case statusSuccess:
		r.result.RecordsSuccess++
	case statusFailed:
		r.result.RecordsFailed++
	case statusSkipped:
		r.result.RecordsSkipped++
	}

	if res.err != nil {
		r.result.Errors = append(r.result.Errors, *res.err)
	}
	if c := res.conflict; c != nil && !r.conflicted[c.LocalID] {
		r.conflicted[c.LocalID] = true
		r.result.Conflicts = append(r.result.Conflicts, *c)
	}
	if res.state != nil {
		s := *res.state
		if old, ok := r.states[s.LocalID]; ok {
			delete(r.byCRM, old.CRMRecordID)
		}
		r.states[s.LocalID] = &s
		r.byCRM[s.CRMRecordID] = &s
	}
	if res.update != nil {
		if i, ok := r.updates[res.update.ID]; ok {
			r.outcome.LocalUpdates[i] = res.update
		} else {
			r.updates[res.update.ID] = len(r.outcome.LocalUpdates)
			r.outcome.LocalUpdates = append(r.outcome.LocalUpdates, res.update)
		}
	}
	if res.created != nil {
		r.outcome.NewContacts = append(r.outcome.NewContacts, res.created)
	}
}

func (r *run) finish(end time.Time) *Outcome {
	r.result.Duration = end.Sub(r.result.StartedAt)

	states := make([]models.SyncState, 0, len(r.states))
	for _, s := range r.states {
		states = append(states, *s)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].LocalID < states[j].LocalID })

	out := r.outcome
	out.Result = r.result
	out.States = states
	return &out
}

func failure(phase models.Direction, localID, crmID string, err error) recordResult {
	return recordResult{
		status: statusFailed,
		err: &models.SyncError{
			LocalID:     localID,
			CRMRecordID: crmID,
			Phase:       phase,
			Message:     err.Error(),
			Retryable:   crm.IsRetryable(err),
		},
	}
}

// pushPhase sends changed local contacts to the CRM, one batch at a time.
func (e *Engine) pushPhase(ctx context.Context, r *run) error {
	var pending []*models.Contact
	for _, c := range r.req.Contacts {
		if r.req.Since != nil && !c.UpdatedAt.After(*r.req.Since) {
			continue
		}
		pending = append(pending, c)
	}

	for n, batch := range transform.Chunk(pending, e.opts.BatchSize) {
		if ctx.Err() != nil {
			r.result.Cancelled = true
			e.logger.Warn("sync cancelled between batches", zap.Int("batch", n))
			return nil
		}

		// Records not started because a sibling hit an auth failure stay nil
		// and are not counted.
		results := make([]*recordResult, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.opts.Concurrency)
		for i, local := range batch {
			var state *models.SyncState
			if s, ok := r.states[local.ID]; ok {
				copied := *s
				state = &copied
			}
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				res, err := e.push(gctx, r.req, local, state)
				results[i] = &res
				return err
			})
		}
		err := g.Wait()

		for _, res := range results {
			if res != nil {
				r.record(*res)
			}
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			r.result.Cancelled = true
			return nil
		}
		e.logger.Debug("batch pushed", zap.Int("batch", n), zap.Int("records", len(batch)))
	}
	return nil
}

// push handles one local contact. The returned error is only set for
// authentication failures, which abort the run.
func (e *Engine) push(ctx context.Context, req Request, local *models.Contact, state *models.SyncState) (recordResult, error) {
	if state != nil && !req.Force && !state.LocalChanged(local.UpdatedAt) {
		return recordResult{status: statusSuccess}, nil
	}

	var conflict *models.SyncConflict
	if state != nil && inConflict(state, local.UpdatedAt, state.CRMUpdatedAt) {
		c := newConflict(state, models.DirectionToCRM, req.ConflictResolution, local.UpdatedAt, state.CRMUpdatedAt)
		conflict = &c
		switch c.Winner {
		case models.SideCRM:
			return recordResult{status: statusSuccess, conflict: conflict}, nil
		case models.SideNone:
			return recordResult{status: statusSkipped, conflict: conflict}, nil
		}
	}

	crmID := ""
	if state != nil {
		crmID = state.CRMRecordID
	}

	remote, err := e.write(ctx, local, crmID)
	if err != nil {
		e.logger.Warn("failed to push contact",
			zap.String("record_id", local.ID), zap.String("crm_record_id", crmID), zap.Error(err))
		res := failure(models.DirectionToCRM, local.ID, crmID, err)
		res.conflict = conflict
		if errors.Is(err, crm.ErrAuthentication) {
			return res, err
		}
		return res, nil
	}

	now := e.opts.Now()
	crmUpdated := remote.UpdatedAt
	if crmUpdated.IsZero() {
		crmUpdated = now
	}
	at := syncedAt(now, crmUpdated, local.UpdatedAt)

	return recordResult{
		status:   statusSuccess,
		conflict: conflict,
		state: &models.SyncState{
			LocalID:        local.ID,
			Provider:       e.client.Provider(),
			CRMRecordID:    remoteID(remote),
			LastSyncedAt:   at,
			LocalUpdatedAt: local.UpdatedAt,
			CRMUpdatedAt:   crmUpdated,
		},
	}, nil
}

// write updates the linked CRM record, or creates one when there is no link
// or the linked record was deleted on the CRM side.
func (e *Engine) write(ctx context.Context, local *models.Contact, crmID string) (*models.Contact, error) {
	payload := *local
	payload.External = nil

	if crmID != "" {
		remote, err := e.call(ctx, func(ctx context.Context) (*models.Contact, error) {
			return e.client.UpdateContact(ctx, crmID, &payload)
		})
		if !errors.Is(err, crm.ErrNotFound) {
			return remote, err
		}
		e.logger.Warn("linked crm record not found, creating a new one",
			zap.String("record_id", local.ID), zap.String("crm_record_id", crmID))
	}

	return e.call(ctx, func(ctx context.Context) (*models.Contact, error) {
		return e.client.CreateContact(ctx, &payload)
	})
}

func (e *Engine) call(ctx context.Context, op func(ctx context.Context) (*models.Contact, error)) (*models.Contact, error) {
	if e.opts.Retry == nil {
		return op(ctx)
	}
	return transform.RetryValue(ctx, *e.opts.Retry, func(ctx context.Context) (*models.Contact, error) {
		c, err := op(ctx)
		if err != nil && !crm.IsRetryable(err) {
			return nil, transform.Permanent(err)
		}
		return c, err
	})
}

// pullPhase pages through CRM contacts and resolves each against the states.
func (e *Engine) pullPhase(ctx context.Context, r *run) error {
	var matcher *ContactMatcher
	if e.opts.AdoptUnmapped {
		var unlinked []*models.Contact
		for _, c := range r.req.Contacts {
			if _, ok := r.states[c.ID]; !ok {
				unlinked = append(unlinked, c)
			}
		}
		matcher = NewContactMatcher(unlinked)
	}

	cursor := ""
	for {
		if ctx.Err() != nil {
			r.result.Cancelled = true
			e.logger.Warn("sync cancelled between pages")
			return nil
		}

		page, err := e.client.ListContacts(ctx, crm.ListOptions{Since: r.req.Since, Cursor: cursor, Limit: e.opts.PageSize})
		if err != nil {
			if errors.Is(err, crm.ErrAuthentication) {
				return err
			}
			if ctx.Err() != nil {
				r.result.Cancelled = true
				return nil
			}
			e.logger.Warn("failed to list crm contacts", zap.String("cursor", cursor), zap.Error(err))
			r.result.Errors = append(r.result.Errors, models.SyncError{
				Phase:     models.DirectionFromCRM,
				Message:   fmt.Sprintf("failed to list contacts: %v", err),
				Retryable: crm.IsRetryable(err),
			})
			return nil
		}

		for _, remote := range page.Contacts {
			r.record(e.pull(r, remote, matcher))
		}

		if page.NextCursor == "" || page.NextCursor == cursor {
			return nil
		}
		cursor = page.NextCursor
	}
}

func (e *Engine) pull(r *run, remote *models.Contact, matcher *ContactMatcher) recordResult {
	id := remoteID(remote)
	if id == "" {
		return failure(models.DirectionFromCRM, "", "", fmt.Errorf("crm record without id"))
	}

	state, ok := r.byCRM[id]
	if !ok {
		if matcher == nil {
			return recordResult{status: statusUnmapped}
		}
		return e.adopt(remote, id, matcher)
	}

	crmUpdated := remote.UpdatedAt
	if !r.req.Force && !crmUpdated.After(state.LastSyncedAt) {
		return recordResult{status: statusSuccess}
	}

	local := r.locals[state.LocalID]
	var conflict *models.SyncConflict
	if local != nil && inConflict(state, local.UpdatedAt, crmUpdated) {
		c := newConflict(state, models.DirectionFromCRM, r.req.ConflictResolution, local.UpdatedAt, crmUpdated)
		conflict = &c
		switch c.Winner {
		case models.SideLocal:
			return recordResult{status: statusSuccess, conflict: conflict}
		case models.SideNone:
			return recordResult{status: statusSkipped, conflict: conflict}
		}
	}

	at := syncedAt(e.opts.Now(), crmUpdated)
	updated := mergeRemote(state.LocalID, local, remote)
	updated.UpdatedAt = at

	next := *state
	next.LastSyncedAt = at
	next.LocalUpdatedAt = at
	next.CRMUpdatedAt = crmUpdated

	return recordResult{status: statusSuccess, conflict: conflict, state: &next, update: updated}
}

// adopt links an unmapped CRM record to a matching local contact, or turns
// it into a new local contact.
func (e *Engine) adopt(remote *models.Contact, crmID string, matcher *ContactMatcher) recordResult {
	at := syncedAt(e.opts.Now(), remote.UpdatedAt)
	res := recordResult{status: statusSuccess}

	var local *models.Contact
	if match, ok := matcher.FindMatch(remote.Email, remote.Phone); ok {
		matcher.Remove(match)
		local = mergeRemote(match.ID, match, remote)
		res.update = local
		e.logger.Info("linked crm record to local contact",
			zap.String("record_id", match.ID), zap.String("crm_record_id", crmID))
	} else {
		local = mergeRemote(uuid.NewString(), nil, remote)
		local.CreatedAt = at
		res.created = local
	}
	local.UpdatedAt = at

	res.state = &models.SyncState{
		LocalID:        local.ID,
		Provider:       e.client.Provider(),
		CRMRecordID:    crmID,
		LastSyncedAt:   at,
		LocalUpdatedAt: at,
		CRMUpdatedAt:   remote.UpdatedAt,
	}
	return res
}

func remoteID(c *models.Contact) string {
	if c.External != nil && c.External.ID != "" {
		return c.External.ID
	}
	return c.ID
}

// mergeRemote overlays the non-empty CRM values on a copy of local. Values
// the CRM leaves empty keep their local content.
func mergeRemote(id string, local, remote *models.Contact) *models.Contact {
	var out models.Contact
	if local != nil {
		out = *local
		out.Tags = slices.Clone(local.Tags)
		out.CustomFields = maps.Clone(local.CustomFields)
	}
	out.ID = id

	overlay := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	overlay(&out.FirstName, remote.FirstName)
	overlay(&out.LastName, remote.LastName)
	overlay(&out.Email, remote.Email)
	overlay(&out.Phone, remote.Phone)
	overlay(&out.Company, remote.Company)
	overlay(&out.Title, remote.Title)

	if len(remote.Tags) > 0 {
		out.Tags = slices.Clone(remote.Tags)
	}
	if len(remote.CustomFields) > 0 {
		if out.CustomFields == nil {
			out.CustomFields = make(map[string]any, len(remote.CustomFields))
		}
		maps.Copy(out.CustomFields, remote.CustomFields)
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = remote.CreatedAt
	}
	out.External = remote.External
	return &out
}

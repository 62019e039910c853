// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package handoff

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/adjudicator/adjudicator/internal/ids"
	"github.com/adjudicator/adjudicator/internal/ledger"
	"github.com/adjudicator/adjudicator/internal/logging"
	"github.com/adjudicator/adjudicator/internal/resolve"
	"github.com/adjudicator/adjudicator/internal/wire"
)

// Recorder receives hand-off outcomes per phase.
type Recorder interface {
	HandoffRecorded(phase, status string)
}

type nopRecorder struct{}

func (nopRecorder) HandoffRecorded(string, string) {}

// Hand-off statuses reported to the Recorder.
const (
	statusOK      = "ok"
	statusAborted = "aborted"
	statusError   = "error"
)

// Coordinator drives the request, resume and reopen phases over a Store.
type Coordinator struct {
	store    Store
	notifier Notifier
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
	newID    func() ulid.ULID
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithNotifier sets where notices go.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithIDs overrides request ID generation.
func WithIDs(gen func() ulid.ULID) Option {
	return func(c *Coordinator) { c.newID = gen }
}

// NewCoordinator creates a coordinator over store.
func NewCoordinator(store Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		notifier: nopNotifier{},
		recorder: nopRecorder{},
		logger:   slog.Default(),
		now:      time.Now,
		newID:    ids.New,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestParams describe the initiating side of a hand-off.
type RequestParams struct {
	SourceActor resolve.Actor
	TargetActor resolve.Actor
	Mastery     *ledger.Mastery
	// Defense makes the request a combat test; empty means a plain opposed test.
	Defense resolve.DefenseType
	// Roll presets the source roll; zero draws from the env dice.
	Roll int
}

// ResumeParams describe the answering side.
type ResumeParams struct {
	Mastery *ledger.Mastery
	Roll    int
}

// opposable is implemented by *resolve.OpposedTest and *resolve.CombatTest.
type opposable interface {
	resolve.Test
	AttachTarget(*resolve.SuccessTest) error
	Resolved() bool
}

// Request rolls the source test and stores the pending request. A combat
// test whose defender never rolls is resolved immediately.
func (c *Coordinator) Request(ctx context.Context, env *resolve.Env, p RequestParams) (*Request, resolve.Summary, error) {
	id := c.newID()
	ctx = logging.WithRequest(ctx, id.String())

	source, err := resolve.NewSuccessTest(p.Mastery, p.SourceActor)
	if err != nil {
		return nil, resolve.Summary{}, err
	}
	if p.Roll != 0 {
		if err := source.WithRoll(p.Roll); err != nil {
			return nil, resolve.Summary{}, err
		}
	}

	opts := rulesOf(env).OpposedOptions(id.String())
	var test opposable
	kind := wire.KindOpposed
	if p.Defense != "" {
		ct, err := resolve.NewCombatTest(source, p.TargetActor, p.Defense, opts)
		if err != nil {
			return nil, resolve.Summary{}, err
		}
		test, kind = ct, wire.KindCombat
	} else {
		ot, err := resolve.NewOpposedTest(source, p.TargetActor, opts)
		if err != nil {
			return nil, resolve.Summary{}, err
		}
		test = ot
	}

	if !source.Evaluate(ctx, env) {
		c.recorder.HandoffRecorded(string(PhaseRequested), statusAborted)
		return nil, resolve.Summary{}, oops.Code(CodeAborted).
			In("handoff").
			With("id", id.String()).
			With("actor", string(p.SourceActor)).
			Errorf("source test was not rolled")
	}

	state := StatePending
	if ct, ok := test.(*resolve.CombatTest); ok && !ct.NeedsTarget() {
		if !ct.Evaluate(ctx, env) {
			c.recorder.HandoffRecorded(string(PhaseRequested), statusAborted)
			return nil, resolve.Summary{}, oops.Code(CodeAborted).In("handoff").With("id", id.String()).Errorf("combat test did not resolve")
		}
		state = StateResolved
	}

	payload, err := wire.Marshal(test)
	if err != nil {
		c.recorder.HandoffRecorded(string(PhaseRequested), statusError)
		return nil, resolve.Summary{}, err
	}

	now := c.now().UTC()
	req := &Request{
		ID:          id,
		Kind:        kind,
		State:       state,
		SourceActor: p.SourceActor,
		TargetActor: p.TargetActor,
		Payload:     payload,
		CreatedAt:   now,
	}
	if state == StateResolved {
		req.ResolvedAt = &now
	}
	if err := c.store.Create(ctx, req); err != nil {
		c.recorder.HandoffRecorded(string(PhaseRequested), statusError)
		return nil, resolve.Summary{}, err
	}

	summary := resolve.Describe(test)
	c.logger.InfoContext(ctx, "hand-off requested",
		"kind", string(kind),
		"source", string(p.SourceActor),
		"target", string(p.TargetActor),
		"state", string(state),
	)
	if state == StateResolved {
		c.notify(ctx, req, PhaseResolved, summary, p.SourceActor, p.TargetActor)
	} else {
		c.notify(ctx, req, PhaseRequested, summary, p.TargetActor)
	}
	c.recorder.HandoffRecorded(string(PhaseRequested), statusOK)
	return req, summary, nil
}

// Resume attaches and rolls the target test, resolving the request. On any
// failure the stored request is left pending.
func (c *Coordinator) Resume(ctx context.Context, env *resolve.Env, id ulid.ULID, p ResumeParams) (*Request, resolve.Summary, error) {
	ctx = logging.WithRequest(ctx, id.String())

	req, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, resolve.Summary{}, err
	}
	if req.State == StateResolved {
		return nil, resolve.Summary{}, oops.Code(CodeAlreadyResolved).In("handoff").With("id", id.String()).Errorf("request already resolved")
	}

	test, err := decodeTest(req)
	if err != nil {
		c.recorder.HandoffRecorded(string(PhaseResolved), statusError)
		return nil, resolve.Summary{}, err
	}

	target, err := resolve.NewSuccessTest(p.Mastery, req.TargetActor)
	if err != nil {
		return nil, resolve.Summary{}, err
	}
	if p.Roll != 0 {
		if err := target.WithRoll(p.Roll); err != nil {
			return nil, resolve.Summary{}, err
		}
	}
	if err := test.AttachTarget(target); err != nil {
		return nil, resolve.Summary{}, err
	}

	if !test.Evaluate(ctx, env) {
		c.recorder.HandoffRecorded(string(PhaseResolved), statusAborted)
		return nil, resolve.Summary{}, oops.Code(CodeAborted).
			In("handoff").
			With("id", id.String()).
			With("actor", string(req.TargetActor)).
			Errorf("target test was not rolled")
	}

	summary, err := c.save(ctx, req, test)
	if err != nil {
		c.recorder.HandoffRecorded(string(PhaseResolved), statusError)
		return nil, resolve.Summary{}, err
	}
	c.logger.InfoContext(ctx, "hand-off resolved", "outcome", string(summary.Outcome), "revision", req.Revision)
	c.notify(ctx, req, PhaseResolved, summary, req.SourceActor, req.TargetActor)
	c.recorder.HandoffRecorded(string(PhaseResolved), statusOK)
	return req, summary, nil
}

// Reopen replays a resolved request from its stored snapshots and rolls.
// Only a game master may reopen.
func (c *Coordinator) Reopen(ctx context.Context, env *resolve.Env, id ulid.ULID) (*Request, resolve.Summary, error) {
	ctx = logging.WithRequest(ctx, id.String())

	if !env.IsGameMaster(ctx) {
		c.recorder.HandoffRecorded(string(PhaseReopened), statusAborted)
		return nil, resolve.Summary{}, oops.Code(resolve.CodePermissionDenied).
			In("handoff").
			With("id", id.String()).
			With("participant", env.Participant).
			Errorf("only a game master may reopen a request")
	}

	req, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, resolve.Summary{}, err
	}
	if req.State != StateResolved {
		return nil, resolve.Summary{}, oops.Code(CodeNotResolved).In("handoff").With("id", id.String()).Errorf("request is still pending")
	}

	test, err := decodeTest(req)
	if err != nil {
		return nil, resolve.Summary{}, err
	}

	// A replay re-runs the stored rolls only; nothing may add entries.
	var replayEnv resolve.Env
	if env != nil {
		replayEnv = *env
	}
	replayEnv.Prompter = nil

	var (
		replayed opposable
		ok       bool
	)
	switch v := test.(type) {
	case *resolve.CombatTest:
		replayed, ok, err = v.Replay(ctx, &replayEnv)
	case *resolve.OpposedTest:
		replayed, ok, err = v.Replay(ctx, &replayEnv)
	}
	if err != nil {
		return nil, resolve.Summary{}, err
	}
	if !ok {
		c.recorder.HandoffRecorded(string(PhaseReopened), statusAborted)
		return nil, resolve.Summary{}, oops.Code(CodeAborted).In("handoff").With("id", id.String()).Errorf("replay did not resolve")
	}

	summary, err := c.save(ctx, req, replayed)
	if err != nil {
		c.recorder.HandoffRecorded(string(PhaseReopened), statusError)
		return nil, resolve.Summary{}, err
	}
	c.logger.InfoContext(ctx, "hand-off reopened", "revision", req.Revision)
	c.notify(ctx, req, PhaseReopened, summary, req.SourceActor, req.TargetActor)
	c.recorder.HandoffRecorded(string(PhaseReopened), statusOK)
	return req, summary, nil
}

// Show loads a request and its decoded summary.
func (c *Coordinator) Show(ctx context.Context, id ulid.ULID) (*Request, resolve.Summary, error) {
	req, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, resolve.Summary{}, err
	}
	test, err := decodeTest(req)
	if err != nil {
		return nil, resolve.Summary{}, err
	}
	return req, resolve.Describe(test), nil
}

// Pending lists requests waiting on actor. An empty actor lists all.
func (c *Coordinator) Pending(ctx context.Context, actor resolve.Actor) ([]*Request, error) {
	return c.store.ListPending(ctx, actor)
}

func (c *Coordinator) save(ctx context.Context, req *Request, test opposable) (resolve.Summary, error) {
	payload, err := wire.Marshal(test)
	if err != nil {
		return resolve.Summary{}, err
	}
	updated := req.Clone()
	updated.Payload = payload
	updated.State = StateResolved
	now := c.now().UTC()
	updated.ResolvedAt = &now
	if err := c.store.Update(ctx, updated, req.Revision); err != nil {
		return resolve.Summary{}, err
	}
	*req = *updated
	return resolve.Describe(test), nil
}

func (c *Coordinator) notify(ctx context.Context, req *Request, phase Phase, summary resolve.Summary, recipients ...resolve.Actor) {
	for _, r := range recipients {
		c.notifier.Notify(ctx, Notice{
			RequestID: req.ID.String(),
			Phase:     phase,
			Kind:      req.Kind,
			Recipient: r,
			Summary:   summary,
		})
	}
}

func decodeTest(req *Request) (opposable, error) {
	v, err := wire.Unmarshal(req.Payload)
	if err != nil {
		return nil, oops.In("handoff").With("id", req.ID.String()).Wrap(err)
	}
	switch t := v.(type) {
	case *resolve.CombatTest:
		return t, nil
	case *resolve.OpposedTest:
		return t, nil
	default:
		return nil, oops.Code(CodeInvalidKind).
			In("handoff").
			With("id", req.ID.String()).
			With("kind", string(req.Kind)).
			Errorf("payload is not an opposed test")
	}
}

func rulesOf(env *resolve.Env) resolve.Rules {
	if env == nil {
		return resolve.DefaultRules()
	}
	return env.Rules
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/adjudicator/adjudicator/internal/handoff"
	"github.com/adjudicator/adjudicator/internal/ids"
	"github.com/adjudicator/adjudicator/internal/resolve"
	"github.com/adjudicator/adjudicator/internal/wire"
)

// authFlags describe who is acting. Without a participant every action is
// allowed, which suits a single person running both sides.
type authFlags struct {
	participant string
	gameMasters []string
	owners      []string
}

func (f *authFlags) bind(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.participant, "participant", "", "participant performing the action")
	cmd.PersistentFlags().StringSliceVar(&f.gameMasters, "gm", nil, "game master participants")
	cmd.PersistentFlags().StringArrayVar(&f.owners, "owner", nil, "actor=participant ownership (repeatable)")
}

func (f *authFlags) authorizer() (resolve.Authorizer, error) {
	if f.participant == "" {
		return nil, nil
	}
	auth := resolve.StaticAuthorizer{Owners: make(map[resolve.Actor][]string), GameMasters: f.gameMasters}
	for _, pair := range f.owners {
		actor, participant, ok := strings.Cut(pair, "=")
		if !ok || actor == "" || participant == "" {
			return nil, oops.Code(CodeInvalidArgs).With("owner", pair).Errorf("owner must be actor=participant")
		}
		auth.Owners[resolve.Actor(actor)] = append(auth.Owners[resolve.Actor(actor)], participant)
	}
	return auth, nil
}

// logNotifier reports hand-off notices through the logger; a CLI has no
// live subscribers to deliver them to.
type logNotifier struct {
	logger *slog.Logger
}

func (n logNotifier) Notify(ctx context.Context, notice handoff.Notice) {
	n.logger.InfoContext(ctx, "hand-off notice",
		"recipient", string(notice.Recipient),
		"phase", string(notice.Phase),
		"kind", string(notice.Kind),
		"outcome", string(notice.Summary.Outcome),
	)
}

// followers subscribes the --follow actors to a broadcaster for the length
// of one command and collects what they were told.
type followers struct {
	actors      []string
	broadcaster *handoff.Broadcaster
	subs        []<-chan handoff.Notice
}

func (f *followers) bind(cmd *cobra.Command) {
	cmd.PersistentFlags().StringSliceVar(&f.actors, "follow", nil, "actors whose notices are included in the output")
}

// notifier returns the broadcaster the coordinator notifies, subscribing
// every followed actor.
func (f *followers) notifier(logger *slog.Logger) handoff.Notifier {
	f.broadcaster = handoff.NewBroadcaster(logger)
	for _, actor := range f.actors {
		f.subs = append(f.subs, f.broadcaster.Subscribe(resolve.Actor(actor)))
	}
	return f.broadcaster
}

// drain returns the notices delivered so far, in --follow order.
func (f *followers) drain() []noticeView {
	var out []noticeView
	for _, sub := range f.subs {
		for more := true; more; {
			select {
			case n, ok := <-sub:
				if !ok {
					more = false
					continue
				}
				out = append(out, noticeView{
					RequestID: n.RequestID,
					Phase:     n.Phase,
					Recipient: n.Recipient,
					Outcome:   n.Summary.Outcome,
				})
			default:
				more = false
			}
		}
	}
	return out
}

func (f *followers) close() error {
	if f.broadcaster != nil {
		f.broadcaster.Close()
	}
	return nil
}

// noticeView is the printed form of a delivered notice.
type noticeView struct {
	RequestID string          `json:"request_id"`
	Phase     handoff.Phase   `json:"phase"`
	Recipient resolve.Actor   `json:"recipient"`
	Outcome   resolve.Outcome `json:"outcome"`
}

// requestView is the printed form of a stored request.
type requestView struct {
	ID          string           `json:"id"`
	Kind        wire.Kind        `json:"kind"`
	State       handoff.State    `json:"state"`
	SourceActor resolve.Actor    `json:"source_actor"`
	TargetActor resolve.Actor    `json:"target_actor"`
	Revision    int              `json:"revision"`
	CreatedAt   time.Time        `json:"created_at"`
	ResolvedAt  *time.Time       `json:"resolved_at,omitempty"`
	Summary     *resolve.Summary `json:"summary,omitempty"`
	Notices     []noticeView     `json:"notices,omitempty"`
}

func viewOf(req *handoff.Request, summary *resolve.Summary) requestView {
	return requestView{
		ID:          req.ID.String(),
		Kind:        req.Kind,
		State:       req.State,
		SourceActor: req.SourceActor,
		TargetActor: req.TargetActor,
		Revision:    req.Revision,
		CreatedAt:   req.CreatedAt,
		ResolvedAt:  req.ResolvedAt,
		Summary:     summary,
	}
}

func newOpposeCmd(a *app) *cobra.Command {
	var (
		auth   authFlags
		follow followers
	)

	cmd := &cobra.Command{
		Use:   "oppose",
		Short: "Run opposed and combat tests between two actors",
		Long: `Opposed tests are handed off: the source rolls with "request", the
target answers with "resume", and a game master may "reopen" a resolved
test to recompute it from the stored rolls.`,
	}
	auth.bind(cmd)
	follow.bind(cmd)

	coordinator := func(ctx context.Context) (*handoff.Coordinator, error) {
		store, err := a.openStore(ctx)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, follow.close)
		opts := []handoff.Option{
			handoff.WithNotifier(handoff.Notifiers{logNotifier{logger: a.logger}, follow.notifier(a.logger)}),
			handoff.WithLogger(a.logger),
		}
		if a.recorder != nil {
			opts = append(opts, handoff.WithRecorder(a.recorder))
		}
		return handoff.NewCoordinator(store, opts...), nil
	}
	env := func() (*resolve.Env, error) {
		authz, err := auth.authorizer()
		if err != nil {
			return nil, err
		}
		return a.env(auth.participant, authz), nil
	}

	cmd.AddCommand(newOpposeRequestCmd(a, coordinator, env, &follow))
	cmd.AddCommand(newOpposeResumeCmd(a, coordinator, env, &follow))
	cmd.AddCommand(newOpposeReopenCmd(a, coordinator, env, &follow))
	cmd.AddCommand(newOpposeShowCmd(a, coordinator))
	cmd.AddCommand(newOpposePendingCmd(a, coordinator))

	return cmd
}

type coordinatorFunc func(ctx context.Context) (*handoff.Coordinator, error)

type envFunc func() (*resolve.Env, error)

func newOpposeRequestCmd(a *app, coord coordinatorFunc, env envFunc, follow *followers) *cobra.Command {
	var (
		sf      sheetFlags
		target  string
		defense string
		roll    int
	)

	cmd := &cobra.Command{
		Use:   "request",
		Short: "Roll the source side and hand the test to the target",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := env()
			if err != nil {
				return err
			}
			c, err := sf.character(ctx)
			if err != nil {
				return err
			}
			m, err := c.Mastery(sf.ledger)
			if err != nil {
				return err
			}
			co, err := coord(ctx)
			if err != nil {
				return err
			}
			req, summary, err := co.Request(ctx, e, handoff.RequestParams{
				SourceActor: c.Actor,
				TargetActor: resolve.Actor(target),
				Mastery:     m,
				Defense:     resolve.DefenseType(defense),
				Roll:        roll,
			})
			if err != nil {
				return err
			}
			view := viewOf(req, &summary)
			view.Notices = follow.drain()
			return writeJSON(cmd.OutOrStdout(), view)
		}),
	}

	sf.bind(cmd, "mastery ledger the source rolls against")
	cmd.Flags().StringVar(&target, "target", "", "actor who must answer")
	cmd.Flags().StringVar(&defense, "defense", "", "combat defense (block|counterstrike|dodge|ignore-defense); empty for a plain opposed test")
	cmd.Flags().IntVar(&roll, "roll", 0, "preset source roll (1-100)")
	_ = cmd.MarkFlagRequired("target") //nolint:errcheck // flag defined above

	return cmd
}

func newOpposeResumeCmd(a *app, coord coordinatorFunc, env envFunc, follow *followers) *cobra.Command {
	var (
		sf   sheetFlags
		roll int
	)

	cmd := &cobra.Command{
		Use:   "resume <request-id>",
		Short: "Roll the target side of a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := ids.Parse(args[0])
			if err != nil {
				return err
			}
			e, err := env()
			if err != nil {
				return err
			}
			c, err := sf.character(ctx)
			if err != nil {
				return err
			}
			m, err := c.Mastery(sf.ledger)
			if err != nil {
				return err
			}
			co, err := coord(ctx)
			if err != nil {
				return err
			}
			req, summary, err := co.Resume(ctx, e, id, handoff.ResumeParams{Mastery: m, Roll: roll})
			if err != nil {
				return err
			}
			view := viewOf(req, &summary)
			view.Notices = follow.drain()
			return writeJSON(cmd.OutOrStdout(), view)
		}),
	}

	sf.bind(cmd, "mastery ledger the target rolls against")
	cmd.Flags().IntVar(&roll, "roll", 0, "preset target roll (1-100)")

	return cmd
}

func newOpposeReopenCmd(a *app, coord coordinatorFunc, env envFunc, follow *followers) *cobra.Command {
	return &cobra.Command{
		Use:   "reopen <request-id>",
		Short: "Recompute a resolved request from its stored rolls (game master only)",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := ids.Parse(args[0])
			if err != nil {
				return err
			}
			e, err := env()
			if err != nil {
				return err
			}
			co, err := coord(ctx)
			if err != nil {
				return err
			}
			req, summary, err := co.Reopen(ctx, e, id)
			if err != nil {
				return err
			}
			view := viewOf(req, &summary)
			view.Notices = follow.drain()
			return writeJSON(cmd.OutOrStdout(), view)
		}),
	}
}

func newOpposeShowCmd(a *app, coord coordinatorFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "show <request-id>",
		Short: "Show a request and its current summary",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := ids.Parse(args[0])
			if err != nil {
				return err
			}
			co, err := coord(ctx)
			if err != nil {
				return err
			}
			req, summary, err := co.Show(ctx, id)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), viewOf(req, &summary))
		}),
	}
}

func newOpposePendingCmd(a *app, coord coordinatorFunc) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List requests waiting for an answer",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			co, err := coord(ctx)
			if err != nil {
				return err
			}
			reqs, err := co.Pending(ctx, resolve.Actor(actor))
			if err != nil {
				return err
			}
			views := make([]requestView, 0, len(reqs))
			for _, req := range reqs {
				views = append(views, viewOf(req, nil))
			}
			return writeJSON(cmd.OutOrStdout(), views)
		}),
	}

	cmd.Flags().StringVar(&actor, "actor", "", "only requests addressed to this actor")

	return cmd
}

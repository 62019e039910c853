// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

//go:build integration

package postgres_test

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/adjudicator/adjudicator/internal/handoff"
	"github.com/adjudicator/adjudicator/internal/handoff/postgres"
	"github.com/adjudicator/adjudicator/internal/ledger"
	"github.com/adjudicator/adjudicator/internal/resolve"
	"github.com/adjudicator/adjudicator/internal/wire"
	"github.com/adjudicator/adjudicator/pkg/errutil"
)

var _ = Describe("Store", Ordered, func() {
	var (
		ctx       context.Context
		container *tcpostgres.PostgresContainer
		store     *postgres.Store
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("adjudicator_test"),
			tcpostgres.WithUsername("adjudicator"),
			tcpostgres.WithPassword("adjudicator"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())

		migrator, err := postgres.NewMigrator(dsn)
		Expect(err).NotTo(HaveOccurred())
		Expect(migrator.Up()).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(dirty).To(BeFalse())
		Expect(version).To(BeNumerically(">=", 1))
		Expect(migrator.Close()).To(Succeed())

		store, err = postgres.Open(ctx, dsn, 5)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if store != nil {
			store.Close()
		}
		if container != nil {
			_ = container.Terminate(ctx)
		}
	})

	newRequest := func(target resolve.Actor) *handoff.Request {
		return &handoff.Request{
			ID:          ulid.Make(),
			Kind:        wire.KindOpposed,
			State:       handoff.StatePending,
			SourceActor: "alice",
			TargetActor: target,
			Payload:     []byte(`{"version":"1.0.0","kind":"opposed_test","payload":{}}`),
			CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
		}
	}

	It("round-trips a request", func() {
		req := newRequest("bob")
		Expect(store.Create(ctx, req)).To(Succeed())

		got, err := store.Get(ctx, req.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(req.ID))
		Expect(got.State).To(Equal(handoff.StatePending))
		Expect(got.CreatedAt.Equal(req.CreatedAt)).To(BeTrue())
		Expect(got.ResolvedAt).To(BeNil())
	})

	It("rejects duplicate IDs", func() {
		req := newRequest("bob")
		Expect(store.Create(ctx, req)).To(Succeed())
		err := store.Create(ctx, req)
		Expect(errutil.HasCode(err, handoff.CodeDuplicate)).To(BeTrue())
	})

	It("enforces the expected revision", func() {
		req := newRequest("carol")
		Expect(store.Create(ctx, req)).To(Succeed())

		upd := req.Clone()
		upd.State = handoff.StateResolved
		now := time.Now().UTC()
		upd.ResolvedAt = &now
		Expect(store.Update(ctx, upd, 0)).To(Succeed())
		Expect(upd.Revision).To(Equal(1))

		err := store.Update(ctx, req.Clone(), 0)
		Expect(errutil.HasCode(err, handoff.CodeConflict)).To(BeTrue())

		pending, err := store.ListPending(ctx, "carol")
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())
	})

	It("drives a full hand-off through the coordinator", func() {
		coord := handoff.NewCoordinator(store)
		req, _, err := coord.Request(ctx, &resolve.Env{}, handoff.RequestParams{
			SourceActor: "alice",
			TargetActor: "dave",
			Mastery:     ledger.NewMastery("skill.melee", 60),
			Defense:     resolve.DefenseBlock,
			Roll:        20,
		})
		Expect(err).NotTo(HaveOccurred())

		pending, err := store.ListPending(ctx, "dave")
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(HaveLen(1))

		_, summary, err := coord.Resume(ctx, &resolve.Env{}, req.ID, handoff.ResumeParams{
			Mastery: ledger.NewMastery("skill.block", 40),
			Roll:    90,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Outcome).To(Equal(resolve.OutcomeSourceWins))
	})
})

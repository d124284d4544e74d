package importer

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/qabase/qabase/backend/go-services/internal/content"
	"github.com/qabase/qabase/backend/go-services/internal/content/repository"
)

// Entry is a normalized record with its input position and raw data.
type Entry struct {
	Ordinal int
	Record  *content.Record
	Raw     interface{}
}

// Reconciler writes a normalized batch to the store.
type Reconciler struct {
	store       repository.Store
	schema      *Schema
	concurrency int
	dryRun      bool
}

func NewReconciler(store repository.Store, schema *Schema, concurrency int, dryRun bool) *Reconciler {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Reconciler{store: store, schema: schema, concurrency: concurrency, dryRun: dryRun}
}

// UpsertRecords upserts each entry by the schema's natural key, in order.
// A rejected write is reported and the batch continues; only context
// cancellation stops it.
func (rc *Reconciler) UpsertRecords(ctx context.Context, entries []Entry, rep *Reporter) error {
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if rc.dryRun {
			continue
		}
		outcome, err := rc.store.UpsertRecord(ctx, rc.schema.Collection, rc.schema.Key, e.Record)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			rep.RecordError(e.Ordinal, rc.schema.Collection, persistenceError(e.Ordinal, err), e.Raw)
			continue
		}
		rep.RecordOutcome(outcome)
	}
	return nil
}

// UpsertReferences fans the collected reference values out to their
// collections and waits for all of them. Failures are reported per value.
func (rc *Reconciler) UpsertReferences(ctx context.Context, c *Collector, rep *Reporter) error {
	if rc.dryRun {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rc.concurrency)

	spawn := func(coll, value string, fn func(context.Context) error) {
		g.Go(func() error {
			rep.RecordReference(coll, value, fn(gctx))
			return nil
		})
	}
	for _, v := range c.Categories() {
		v := v
		spawn(repository.Categories, v, func(ctx context.Context) error { return rc.store.UpsertCategory(ctx, v) })
	}
	for _, v := range c.Tags() {
		v := v
		spawn(repository.Tags, v, func(ctx context.Context) error { return rc.store.UpsertTag(ctx, v) })
	}
	for _, v := range c.MessageTypes() {
		v := v
		spawn(repository.MessageTypes, v, func(ctx context.Context) error { return rc.store.UpsertMessageType(ctx, v) })
	}
	for _, p := range c.OriginalPosts() {
		p := p
		spawn(repository.OriginalPosts, p.URL, func(ctx context.Context) error { return rc.store.UpsertOriginalPost(ctx, p.URL, p.Title) })
	}
	_ = g.Wait()
	return ctx.Err()
}

// ReconcileTagSections gives every tag without a section assignment the
// "Unassigned" section. Existing assignments are left as they are.
func (rc *Reconciler) ReconcileTagSections(ctx context.Context, tags []string, rep *Reporter) error {
	if rc.dryRun {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rc.concurrency)
	for _, tag := range tags {
		tag := tag
		g.Go(func() error {
			created, err := rc.store.EnsureTagSection(gctx, tag, content.UnassignedSection)
			rep.RecordReference(repository.TagSections, tag, err)
			if created {
				rep.RecordSectionCreated()
			}
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

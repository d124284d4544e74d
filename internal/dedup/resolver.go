// Package dedup removes legacy duplicate content records. It is destructive
// and only ever runs on explicit request, never as part of an import.
package dedup

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/qabase/qabase/backend/go-services/internal/content/repository"
	"github.com/qabase/qabase/backend/go-services/pkg/logger"
	"github.com/qabase/qabase/backend/go-services/pkg/metrics"
)

// GroupResult describes one duplicate group: the newest record is kept.
type GroupResult struct {
	Key        string               `json:"key"`
	Kept       primitive.ObjectID   `json:"kept"`
	DeletedIDs []primitive.ObjectID `json:"deletedIds"`
	Deleted    int64                `json:"deleted"`
}

// Result is the outcome of a resolve pass.
type Result struct {
	Collection   string        `json:"collection"`
	Groups       []GroupResult `json:"groups"`
	TotalDeleted int64         `json:"totalDeleted"`
	DryRun       bool          `json:"dryRun"`
}

// Resolver groups a content collection by a field and deletes all but the
// most recently created member of every group.
type Resolver struct {
	store      repository.RecordStore
	collection string
	field      string
}

func NewResolver(store repository.RecordStore, collection string) *Resolver {
	if collection == "" {
		collection = repository.Contents
	}
	return &Resolver{store: store, collection: collection, field: string(repository.KeyTitle)}
}

// Plan lists what Resolve would delete without touching the store.
func (r *Resolver) Plan(ctx context.Context) (*Result, error) {
	groups, err := r.store.GroupDuplicates(ctx, r.collection, r.field)
	if err != nil {
		return nil, fmt.Errorf("group %s by %s: %w", r.collection, r.field, err)
	}
	res := &Result{Collection: r.collection, Groups: make([]GroupResult, 0, len(groups)), DryRun: true}
	for _, g := range groups {
		if len(g.IDs) < 2 {
			continue
		}
		last := len(g.IDs) - 1
		gr := GroupResult{
			Key:        g.Key,
			Kept:       g.IDs[last],
			DeletedIDs: append([]primitive.ObjectID(nil), g.IDs[:last]...),
		}
		gr.Deleted = int64(len(gr.DeletedIDs))
		res.TotalDeleted += gr.Deleted
		res.Groups = append(res.Groups, gr)
	}
	return res, nil
}

// Resolve deletes every duplicate but the newest of each group and logs
// each group with the running total. A failed group is logged and the
// pass continues; the first failure is returned at the end.
func (r *Resolver) Resolve(ctx context.Context) (*Result, error) {
	start := time.Now()
	defer func() { metrics.RunDuration.WithLabelValues("dedup").Observe(time.Since(start).Seconds()) }()

	plan, err := r.Plan(ctx)
	if err != nil {
		return nil, err
	}
	res := &Result{Collection: r.collection, Groups: make([]GroupResult, 0, len(plan.Groups))}
	var firstErr error
	for _, g := range plan.Groups {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		n, err := r.store.DeleteRecordsByID(ctx, r.collection, g.DeletedIDs)
		if err != nil {
			logger.Errorf("dedup %s %q: delete failed: %v", r.collection, g.Key, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("delete duplicates of %q: %w", g.Key, err)
			}
			continue
		}
		g.Deleted = n
		res.TotalDeleted += n
		res.Groups = append(res.Groups, g)
		metrics.DedupDeleted.WithLabelValues(r.collection).Add(float64(n))
		logger.With("collection", r.collection, "key", g.Key).Infow("duplicates removed",
			"kept", g.Kept.Hex(), "deleted", n, "totalDeleted", res.TotalDeleted)
	}
	logger.Infof("dedup %s finished: %d groups, %d records deleted", r.collection, len(res.Groups), res.TotalDeleted)
	return res, firstErr
}

// Render prints one row per group and the total.
func (res *Result) Render(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	title := "duplicates removed from " + res.Collection
	if res.DryRun {
		title = "duplicates in " + res.Collection + " (dry run)"
	}
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Title", "Kept", "Deleted"})
	for _, g := range res.Groups {
		t.AppendRow(table.Row{g.Key, g.Kept.Hex(), g.Deleted})
	}
	t.AppendFooter(table.Row{"total", "", res.TotalDeleted})
	t.Render()
}

package dedup

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/qabase/qabase/backend/go-services/internal/content"
	"github.com/qabase/qabase/backend/go-services/internal/content/repository"
	"github.com/qabase/qabase/backend/go-services/pkg/metrics"
)

func seed(t *testing.T, store *repository.MemoryRepo, title string, at time.Time) primitive.ObjectID {
	t.Helper()
	id, err := store.CreateRecord(context.Background(), repository.Contents, &content.Record{Title: title, Category: "c", CreatedAt: at})
	require.NoError(t, err)
	return id
}

func TestResolve_KeepsNewestOfEachGroup(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryRepo()
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// inserted out of order so the result cannot depend on insertion order
	mid := seed(t, store, "Dup", t1.Add(time.Hour))
	newest := seed(t, store, "Dup", t1.Add(2*time.Hour))
	oldest := seed(t, store, "Dup", t1)
	single := seed(t, store, "Unique", t1)

	res, err := NewResolver(store, repository.Contents).Resolve(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.TotalDeleted)
	require.Len(t, res.Groups, 1)
	assert.Equal(t, "Dup", res.Groups[0].Key)
	assert.Equal(t, newest, res.Groups[0].Kept)
	assert.ElementsMatch(t, []primitive.ObjectID{oldest, mid}, res.Groups[0].DeletedIDs)

	recs, err := store.ListRecords(ctx, repository.Contents, content.Filter{})
	require.NoError(t, err)
	ids := []primitive.ObjectID{}
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []primitive.ObjectID{newest, single}, ids)
}

func TestPlan_DoesNotDelete(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryRepo()
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seed(t, store, "Dup", t1)
	seed(t, store, "Dup", t1.Add(time.Minute))

	res, err := NewResolver(store, "").Plan(ctx)
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.EqualValues(t, 1, res.TotalDeleted)

	n, err := store.Count(ctx, repository.Contents)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	var buf bytes.Buffer
	res.Render(&buf)
	assert.Contains(t, buf.String(), "Dup")
	assert.Contains(t, strings.ToLower(buf.String()), "dry run")
}

func TestResolve_NothingToDo(t *testing.T) {
	store := repository.NewMemoryRepo()
	seed(t, store, "A", time.Now())
	res, err := NewResolver(store, repository.Contents).Resolve(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.TotalDeleted)
	assert.Empty(t, res.Groups)
}

func TestResolve_CountsDeletionsInMetrics(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryRepo()
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		seed(t, store, "Dup", t1.Add(time.Duration(i)*time.Minute))
	}
	deleted := metrics.DedupDeleted.WithLabelValues(repository.Contents)
	before := testutil.ToFloat64(deleted)

	_, err := NewResolver(store, repository.Contents).Plan(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, testutil.ToFloat64(deleted))

	_, err = NewResolver(store, repository.Contents).Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+2, testutil.ToFloat64(deleted))
}

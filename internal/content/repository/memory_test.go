package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qabase/qabase/backend/go-services/internal/content"
)

var (
	_ Store = (*MemoryRepo)(nil)
	_ Store = (*MongoRepo)(nil)
)

func TestMemoryRepoCRUD(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	d := &content.Record{Title: "t", Category: "c", Question: "q", Answer: "hello", MessageType: "General"}
	id, err := r.CreateRecord(ctx, Contents, d)
	require.NoError(t, err)
	require.False(t, id.IsZero())

	got, err := r.GetRecord(ctx, Contents, id)
	require.NoError(t, err)
	require.Equal(t, "hello", got.Answer)

	list, err := r.ListRecords(ctx, Contents, content.Filter{})
	require.NoError(t, err)
	require.Len(t, list, 1)

	upd := *got
	upd.Answer = "new"
	require.NoError(t, r.UpdateRecord(ctx, Contents, id, &upd))
	got2, err := r.GetRecord(ctx, Contents, id)
	require.NoError(t, err)
	require.Equal(t, "new", got2.Answer)
	require.Equal(t, got.CreatedAt, got2.CreatedAt)

	require.NoError(t, r.DeleteRecord(ctx, Contents, id))
	_, err = r.GetRecord(ctx, Contents, id)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepoUpsertByTitle(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()

	first := &content.Record{Title: "A", Category: "X", Question: "q", Answer: "a", MessageType: "m"}
	out, err := r.UpsertRecord(ctx, Contents, KeyTitle, first)
	require.NoError(t, err)
	require.Equal(t, Inserted, out)

	second := &content.Record{Title: "A", Category: "Y", Question: "q2", Answer: "a", MessageType: "m"}
	out, err = r.UpsertRecord(ctx, Contents, KeyTitle, second)
	require.NoError(t, err)
	require.Equal(t, Updated, out)
	require.Equal(t, first.ID, second.ID)

	n, err := r.Count(ctx, Contents)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	got, err := r.FindRecord(ctx, Contents, KeyTitle, "A")
	require.NoError(t, err)
	require.Equal(t, "Y", got.Category)
	require.Equal(t, "q2", got.Question)
	require.Equal(t, first.CreatedAt, got.CreatedAt)
}

func TestMemoryRepoUpsertByIndex(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	idx := int64(7)

	_, err := r.UpsertRecord(ctx, Passages, KeyIndex, &content.Record{Index: &idx, Title: "old"})
	require.NoError(t, err)
	out, err := r.UpsertRecord(ctx, Passages, KeyIndex, &content.Record{Index: &idx, Title: "new"})
	require.NoError(t, err)
	require.Equal(t, Updated, out)

	got, err := r.FindRecord(ctx, Passages, KeyIndex, int64(7))
	require.NoError(t, err)
	require.Equal(t, "new", got.Title)

	_, err = r.UpsertRecord(ctx, Passages, KeyIndex, &content.Record{Title: "no index"})
	require.Error(t, err)
}

func TestMemoryRepoGroupDuplicatesOrdersByCreation(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// inserted out of chronological order on purpose
	late := &content.Record{Title: "Dup", CreatedAt: base.Add(2 * time.Hour)}
	early := &content.Record{Title: "Dup", CreatedAt: base}
	single := &content.Record{Title: "Solo", CreatedAt: base}
	for _, rec := range []*content.Record{late, early, single} {
		_, err := r.CreateRecord(ctx, Contents, rec)
		require.NoError(t, err)
	}

	groups, err := r.GroupDuplicates(ctx, Contents, "title")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, "Dup", groups[0].Key)
	require.Equal(t, early.ID, groups[0].IDs[0])
	require.Equal(t, late.ID, groups[0].IDs[1])
}

func TestMemoryRepoGroupDuplicatesDuringUpserts(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := r.CreateRecord(ctx, Contents, &content.Record{Title: "Dup"})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_, _ = r.UpsertRecord(ctx, Contents, KeyTitle, &content.Record{Title: "Dup", Answer: "a"})
		}
	}()
	for i := 0; i < 200; i++ {
		groups, err := r.GroupDuplicates(ctx, Contents, "title")
		require.NoError(t, err)
		require.Len(t, groups, 1)
		require.Len(t, groups[0].IDs, 2)
	}
	wg.Wait()
}

func TestMemoryRepoReferences(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()

	require.NoError(t, r.UpsertCategory(ctx, "X"))
	require.NoError(t, r.UpsertCategory(ctx, "X"))
	require.NoError(t, r.UpsertOriginalPost(ctx, "http://p", "one"))
	require.NoError(t, r.UpsertOriginalPost(ctx, "http://p", "two"))

	cats, err := r.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 1)

	posts, err := r.ListOriginalPosts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Equal(t, "two", posts[0].Title)

	created, err := r.EnsureTagSection(ctx, "go", content.UnassignedSection)
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, r.SetTagSection(ctx, "go", "Languages"))
	created, err = r.EnsureTagSection(ctx, "go", content.UnassignedSection)
	require.NoError(t, err)
	require.False(t, created)

	sections, err := r.ListTagSections(ctx)
	require.NoError(t, err)
	require.Equal(t, []content.TagSection{sections[0]}, sections)
	require.Equal(t, "Languages", sections[0].Section)

	require.ErrorIs(t, r.DeleteCategory(ctx, "missing"), ErrNotFound)
}

package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qabase/qabase/backend/go-services/internal/config"
	"github.com/qabase/qabase/backend/go-services/internal/content"
	"github.com/qabase/qabase/backend/go-services/internal/content/repository"
)

// flakyStore rejects writes for chosen titles and tags.
type flakyStore struct {
	*repository.MemoryRepo
	badTitle string
	badTag   string
}

func (f *flakyStore) UpsertRecord(ctx context.Context, coll string, key repository.KeyField, rec *content.Record) (repository.Outcome, error) {
	if rec.Title == f.badTitle {
		return 0, errors.New("E11000 duplicate key")
	}
	return f.MemoryRepo.UpsertRecord(ctx, coll, key, rec)
}

func (f *flakyStore) UpsertTag(ctx context.Context, tag string) error {
	if tag == f.badTag {
		return errors.New("tag write rejected")
	}
	return f.MemoryRepo.UpsertTag(ctx, tag)
}

func writeInput(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

const singleRecord = `[{"Title":"A","Category":"X","Question":"q","Answer":"a","messageType":"m"}]`

func TestPipeline_ImportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryRepo()
	p := New(store, Options{Schema: QASchema, LogDir: t.TempDir()})
	path := writeInput(t, singleRecord)

	rep, err := p.RunFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Counts().Inserted)

	first, err := store.FindRecord(ctx, repository.Contents, repository.KeyTitle, "A")
	require.NoError(t, err)

	rep, err = p.RunFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Counts().Inserted)
	assert.Equal(t, 1, rep.Counts().Updated)

	recs, err := store.ListRecords(ctx, repository.Contents, content.Filter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "A", recs[0].Title)
	assert.Equal(t, first.ID, recs[0].ID)
	assert.Equal(t, first.Question, recs[0].Question)

	cats, err := store.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, 1)
}

func TestPipeline_EveryTagGetsExactlyOneSection(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryRepo()
	require.NoError(t, store.SetTagSection(ctx, "kept", "Guides"))

	p := New(store, Options{Schema: QASchema, LogDir: t.TempDir(), Concurrency: 3})
	rep, err := p.Run(ctx, []interface{}{
		map[string]interface{}{"Title": "A", "Category": "X", "Question": "q", "Answer": "a", "Tags": []interface{}{"x, y", "kept"}},
		map[string]interface{}{"Title": "B", "Category": "X", "Question": "q", "Answer": "a", "Tags": "y, z"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Counts().SectionsCreated)

	sections, err := store.ListTagSections(ctx)
	require.NoError(t, err)
	byTag := map[string][]string{}
	for _, s := range sections {
		byTag[s.Tag] = append(byTag[s.Tag], s.Section)
	}
	assert.Equal(t, map[string][]string{
		"x":    {content.UnassignedSection},
		"y":    {content.UnassignedSection},
		"z":    {content.UnassignedSection},
		"kept": {"Guides"},
	}, byTag)
}

func TestPipeline_FailuresAreLoggedAndBatchContinues(t *testing.T) {
	ctx := context.Background()
	logDir := t.TempDir()
	store := &flakyStore{MemoryRepo: repository.NewMemoryRepo(), badTitle: "Bad", badTag: "broken"}
	p := New(store, Options{Schema: QASchema, LogDir: logDir})

	rep, err := p.Run(ctx, []interface{}{
		map[string]interface{}{"Title": "Bad", "Category": "X", "Question": "q", "Answer": "a"},
		map[string]interface{}{"Category": "X", "Question": "q", "Answer": "a"},
		"not an object",
		map[string]interface{}{"Title": "Good", "Category": "X", "Question": "q", "Answer": "a", "Tags": "broken, fine"},
	})
	require.NoError(t, err)

	c := rep.Counts()
	assert.Equal(t, 1, c.Inserted)
	assert.Equal(t, 2, c.Skipped)
	assert.Equal(t, 1, c.Errored)
	assert.Equal(t, 1, c.RefFailed)

	errs := rep.Errors()
	require.Len(t, errs, 2)
	assert.Equal(t, 0, errs[0].Index)
	assert.Contains(t, errs[0].Error, "E11000")

	_, err = os.Stat(filepath.Join(logDir, "skipped_entries-"+rep.RunID+".json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(logDir, "failed_entries-"+rep.RunID+".json"))
	assert.NoError(t, err)

	counts := map[string]int64{}
	for _, cc := range rep.CollectionCounts() {
		counts[cc.Collection] = cc.Count
	}
	assert.EqualValues(t, 1, counts[repository.Contents])
	assert.EqualValues(t, 1, counts[repository.Tags])
}

func TestPipeline_RejectPolicyDropsConflictingPost(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryRepo()
	p := New(store, Options{Schema: QASchema, LogDir: t.TempDir(), PostConflict: RejectConflicts})

	rep, err := p.Run(ctx, []interface{}{
		map[string]interface{}{"Title": "A", "Category": "X", "Question": "q", "Answer": "a", "originalPostURL": "u", "originalPostTitle": "one"},
		map[string]interface{}{"Title": "B", "Category": "X", "Question": "q", "Answer": "a", "originalPostURL": "u", "originalPostTitle": "two"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Counts().PostConflicts)
	assert.Len(t, rep.Errors(), 1)

	posts, err := store.ListOriginalPosts(ctx)
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestPipeline_DryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryRepo()
	p := New(store, Options{Schema: QASchema, LogDir: t.TempDir(), DryRun: true})

	_, err := p.Run(ctx, []interface{}{map[string]interface{}{"Title": "A", "Category": "X", "Question": "q", "Answer": "a", "Tags": "t"}})
	require.NoError(t, err)
	for _, c := range repository.AllCollections {
		n, err := store.Count(ctx, c)
		require.NoError(t, err)
		assert.Zero(t, n, c)
	}
}

func TestPipeline_FatalInput(t *testing.T) {
	p := New(repository.NewMemoryRepo(), Options{LogDir: t.TempDir()})

	_, err := p.RunFile(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorIs(t, err, config.ErrFatalConfig)

	_, err = p.RunFile(context.Background(), writeInput(t, `{"Title":"A"}`))
	require.ErrorIs(t, err, config.ErrFatalConfig)

	_, err = p.RunFile(context.Background(), writeInput(t, `[{"Title":`))
	require.ErrorIs(t, err, config.ErrFatalConfig)
}

func TestPipeline_PassageUpdateKeepsKey(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryRepo()
	p := New(store, Options{Schema: PassageSchema, LogDir: t.TempDir()})

	entry := func(passage string) []interface{} {
		raws, err := DecodeRecords([]byte(`[{"index":7,"Title":"P","author":"a","date":"2023-01-01","messageType":"Story",
			"originalPostTitle":"T","originalPostURL":"https://forum/t/7","Passage":"` + passage + `"}]`))
		require.NoError(t, err)
		return raws
	}
	_, err := p.Run(ctx, entry("old"))
	require.NoError(t, err)
	rep, err := p.Run(ctx, entry("new"))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Counts().Updated)

	got, err := store.FindRecord(ctx, repository.Passages, repository.KeyIndex, int64(7))
	require.NoError(t, err)
	assert.Equal(t, "new", got.Passage)
	assert.Equal(t, "P", got.Title)
	require.NotNil(t, got.Index)
	assert.EqualValues(t, 7, *got.Index)
}

func TestPipeline_ResyncRebuildsReferences(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryRepo()
	_, err := store.CreateRecord(ctx, repository.Contents, &content.Record{Title: "A", Category: "X", MessageType: "Tip", Tags: []string{"t"}})
	require.NoError(t, err)

	rep, err := New(store, Options{Schema: QASchema, LogDir: t.TempDir()}).Resync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Counts().SectionsCreated)

	tags, err := store.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	mts, err := store.ListMessageTypes(ctx)
	require.NoError(t, err)
	require.Len(t, mts, 1)
	assert.Equal(t, "Tip", mts[0].MessageType)
}

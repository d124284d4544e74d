package importer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qabase/qabase/backend/go-services/internal/content/repository"
	"github.com/qabase/qabase/backend/go-services/pkg/metrics"
)

type fakeSink struct {
	uploaded []string
	fail     bool
}

func (f *fakeSink) UploadArtifact(_ context.Context, path string) (string, error) {
	if f.fail {
		return "", errors.New("bucket unavailable")
	}
	f.uploaded = append(f.uploaded, filepath.Base(path))
	return "imports/" + filepath.Base(path), nil
}

func TestReporter_NoArtifactsWhenLogsEmpty(t *testing.T) {
	dir := t.TempDir()
	r := NewReporter("run1", "qa")
	r.RecordOutcome(repository.Inserted)
	r.RecordOutcome(repository.Updated)

	paths, err := r.WriteLogs(dir)
	require.NoError(t, err)
	assert.Empty(t, paths)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, Counts{Inserted: 1, Updated: 1}, r.Counts())
}

func TestReporter_WritesOrderedLogs(t *testing.T) {
	dir := t.TempDir()
	r := NewReporter("run2", "qa")
	r.RecordSkip(newMissingSkip(0, []string{"Title"}), map[string]interface{}{"Category": "X"})
	r.RecordSkip(newMissingSkip(3, []string{"Answer"}), map[string]interface{}{"Title": "B"})
	r.RecordError(5, repository.Contents, errors.New("write rejected"), map[string]interface{}{"Title": "C"})

	paths, err := r.WriteLogs(dir)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "skipped_entries-run2.json"), paths[0])
	assert.Equal(t, filepath.Join(dir, "failed_entries-run2.json"), paths[1])

	b, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	var skips []SkipEntry
	require.NoError(t, sonic.Unmarshal(b, &skips))
	require.Len(t, skips, 2)
	assert.Equal(t, 0, skips[0].Index)
	assert.Equal(t, 3, skips[1].Index)
	assert.Equal(t, []string{"Answer"}, skips[1].MissingFields)

	b, err = os.ReadFile(paths[1])
	require.NoError(t, err)
	var failed []ErrorEntry
	require.NoError(t, sonic.Unmarshal(b, &failed))
	require.Len(t, failed, 1)
	assert.Equal(t, "write rejected", failed[0].Error)

	c := r.Counts()
	assert.Equal(t, 2, c.Skipped)
	assert.Equal(t, 1, c.Errored)
}

func TestReporter_ReferenceFailuresGoToFailedLog(t *testing.T) {
	r := NewReporter("run3", "qa")
	r.RecordReference(repository.Tags, "x", nil)
	r.RecordReference(repository.Tags, "y", errors.New("boom"))

	c := r.Counts()
	assert.Equal(t, 1, c.RefUpserts)
	assert.Equal(t, 1, c.RefFailed)
	assert.Equal(t, 0, c.Errored)
	errs := r.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, -1, errs[0].Index)
	assert.Equal(t, "y", errs[0].Value)
}

func TestReporter_ConflictOnlyLoggedWhenRejected(t *testing.T) {
	r := NewReporter("run4", "qa")
	r.RecordConflict(PostConflict{Ordinal: 1, URL: "u", Existing: "a", Incoming: "b"}, false)
	assert.Empty(t, r.Errors())
	r.RecordConflict(PostConflict{Ordinal: 2, URL: "u", Existing: "a", Incoming: "c"}, true)
	require.Len(t, r.Errors(), 1)
	assert.Equal(t, 2, r.Counts().PostConflicts)
}

func TestReporter_PublishAndRender(t *testing.T) {
	dir := t.TempDir()
	r := NewReporter("run5", "passage")
	r.RecordSkip(newMissingSkip(0, []string{"author"}), nil)
	paths, err := r.WriteLogs(dir)
	require.NoError(t, err)

	sink := &fakeSink{}
	r.Publish(context.Background(), sink, paths)
	assert.Equal(t, []string{"skipped_entries-run5.json"}, sink.uploaded)
	r.Publish(context.Background(), &fakeSink{fail: true}, paths)

	r.SetCollectionCounts([]CollectionCount{{Collection: repository.Passages, Count: 7}})
	var buf bytes.Buffer
	r.Render(&buf)
	out := buf.String()
	assert.Contains(t, out, "skipped")
	assert.Contains(t, out, "passages")
	assert.Contains(t, out, "7")
}

func TestReporter_MirrorsCountersIntoMetrics(t *testing.T) {
	value := func(schema, outcome string) float64 {
		return testutil.ToFloat64(metrics.ImportRecords.WithLabelValues(schema, outcome))
	}
	ref := func(result string) float64 {
		return testutil.ToFloat64(metrics.ReferenceUpserts.WithLabelValues(repository.Categories, result))
	}
	inserted, skipped, errored := value("passage", "inserted"), value("passage", "skipped"), value("passage", "errored")
	refOK, refFailed := ref("ok"), ref("failed")

	r := NewReporter("run6", "passage")
	r.RecordOutcome(repository.Inserted)
	r.RecordSkip(newMissingSkip(1, []string{"author"}), nil)
	r.RecordError(2, repository.Passages, errors.New("rejected"), nil)
	r.RecordReference(repository.Categories, "X", nil)
	r.RecordReference(repository.Categories, "Y", errors.New("boom"))

	assert.Equal(t, inserted+1, value("passage", "inserted"))
	assert.Equal(t, skipped+1, value("passage", "skipped"))
	assert.Equal(t, errored+1, value("passage", "errored"))
	assert.Equal(t, refOK+1, ref("ok"))
	assert.Equal(t, refFailed+1, ref("failed"))
}

package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/qabase/qabase/backend/go-services/internal/content/repository"
	"github.com/qabase/qabase/backend/go-services/pkg/logger"
	"github.com/qabase/qabase/backend/go-services/pkg/metrics"
)

var artifactJSON = sonic.Config{EscapeHTML: false, SortMapKeys: true}.Froze()

// SkipEntry is one line of the skipped-entries artifact.
type SkipEntry struct {
	Index         int         `json:"index"`
	Reason        string      `json:"reason"`
	MissingFields []string    `json:"missingFields,omitempty"`
	Data          interface{} `json:"data"`
}

// ErrorEntry is one line of the failed-entries artifact. Index is -1 for
// reference-collection failures, which carry Value instead.
type ErrorEntry struct {
	Index      int         `json:"index"`
	Collection string      `json:"collection"`
	Value      string      `json:"value,omitempty"`
	Error      string      `json:"error"`
	Data       interface{} `json:"data,omitempty"`
}

// Counts are the run totals.
type Counts struct {
	Inserted        int `json:"inserted"`
	Updated         int `json:"updated"`
	Skipped         int `json:"skipped"`
	Errored         int `json:"errored"`
	RefUpserts      int `json:"referenceUpserts"`
	RefFailed       int `json:"referenceFailures"`
	SectionsCreated int `json:"sectionsCreated"`
	PostConflicts   int `json:"postConflicts"`
}

// CollectionCount is a post-run document count.
type CollectionCount struct {
	Collection string `json:"collection"`
	Count      int64  `json:"count"`
}

// ArtifactSink receives written run artifacts, e.g. object storage.
type ArtifactSink interface {
	UploadArtifact(ctx context.Context, path string) (string, error)
}

// Reporter accumulates counters and ordered skip/error logs for one run.
// It is safe for concurrent use by the reference fan-out.
type Reporter struct {
	RunID  string
	Schema string

	mu          sync.Mutex
	counts      Counts
	skips       []SkipEntry
	errors      []ErrorEntry
	collections []CollectionCount
}

func NewReporter(runID, schema string) *Reporter {
	return &Reporter{RunID: runID, Schema: schema}
}

func (r *Reporter) RecordOutcome(o repository.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch o {
	case repository.Inserted:
		r.counts.Inserted++
	case repository.Updated:
		r.counts.Updated++
	}
	metrics.ImportRecords.WithLabelValues(r.Schema, o.String()).Inc()
}

func (r *Reporter) RecordSkip(s *Skip, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts.Skipped++
	r.skips = append(r.skips, SkipEntry{Index: s.Ordinal, Reason: s.Reason, MissingFields: s.Missing, Data: data})
	metrics.ImportRecords.WithLabelValues(r.Schema, "skipped").Inc()
	logger.Debugf("skip entry %d: %s", s.Ordinal, s.Reason)
}

// RecordError logs a per-record persistence failure.
func (r *Reporter) RecordError(ordinal int, collection string, err error, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts.Errored++
	r.errors = append(r.errors, ErrorEntry{Index: ordinal, Collection: collection, Error: err.Error(), Data: data})
	metrics.ImportRecords.WithLabelValues(r.Schema, "errored").Inc()
	logger.Warnf("entry %d failed: %v", ordinal, err)
}

// RecordReference counts one reference upsert; a non-nil err is logged per
// value and never fails the run.
func (r *Reporter) RecordReference(collection, value string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		r.counts.RefUpserts++
		metrics.ReferenceUpserts.WithLabelValues(collection, "ok").Inc()
		return
	}
	r.counts.RefFailed++
	r.errors = append(r.errors, ErrorEntry{Index: -1, Collection: collection, Value: value, Error: err.Error()})
	metrics.ReferenceUpserts.WithLabelValues(collection, "failed").Inc()
	logger.Warnf("reference upsert %s %q failed: %v", collection, value, err)
}

func (r *Reporter) RecordSectionCreated() {
	r.mu.Lock()
	r.counts.SectionsCreated++
	r.mu.Unlock()
}

// RecordConflict reports an original-post title conflict. Under the reject
// policy it is a failure entry; otherwise only a warning.
func (r *Reporter) RecordConflict(c PostConflict, rejected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts.PostConflicts++
	msg := fmt.Sprintf("original post %s has conflicting titles %q and %q", c.URL, c.Existing, c.Incoming)
	if !rejected {
		logger.Warnf("entry %d: %s", c.Ordinal, msg)
		return
	}
	r.errors = append(r.errors, ErrorEntry{Index: c.Ordinal, Collection: repository.OriginalPosts, Value: c.URL, Error: msg})
}

func (r *Reporter) SetCollectionCounts(cc []CollectionCount) {
	r.mu.Lock()
	r.collections = append([]CollectionCount(nil), cc...)
	r.mu.Unlock()
}

func (r *Reporter) Counts() Counts {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts
}

func (r *Reporter) Skips() []SkipEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SkipEntry(nil), r.skips...)
}

func (r *Reporter) Errors() []ErrorEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ErrorEntry(nil), r.errors...)
}

func (r *Reporter) CollectionCounts() []CollectionCount {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CollectionCount(nil), r.collections...)
}

// WriteLogs writes skipped_entries-<run>.json and failed_entries-<run>.json
// into dir. A log with no entries is not written. It returns the written paths.
func (r *Reporter) WriteLogs(dir string) ([]string, error) {
	skips, errs := r.Skips(), r.Errors()
	if len(skips) == 0 && len(errs) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	var paths []string
	write := func(name string, v interface{}) error {
		b, err := artifactJSON.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		p := filepath.Join(dir, fmt.Sprintf("%s-%s.json", name, r.RunID))
		if err := os.WriteFile(p, b, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", p, err)
		}
		paths = append(paths, p)
		return nil
	}
	if len(skips) > 0 {
		if err := write("skipped_entries", skips); err != nil {
			return paths, err
		}
	}
	if len(errs) > 0 {
		if err := write("failed_entries", errs); err != nil {
			return paths, err
		}
	}
	return paths, nil
}

// Publish uploads written artifacts. Upload failures are logged; the local
// files remain the source of truth.
func (r *Reporter) Publish(ctx context.Context, sink ArtifactSink, paths []string) {
	if sink == nil {
		return
	}
	for _, p := range paths {
		key, err := sink.UploadArtifact(ctx, p)
		if err != nil {
			logger.Warnf("artifact upload %s failed: %v", p, err)
			continue
		}
		logger.Infof("artifact %s uploaded as %s", p, key)
	}
}

// Render prints the counters and, when present, the collection counts.
func (r *Reporter) Render(w io.Writer) {
	c := r.Counts()
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(fmt.Sprintf("import %s (%s)", r.RunID, r.Schema))
	t.AppendHeader(table.Row{"Outcome", "Count"})
	t.AppendRows([]table.Row{
		{"inserted", c.Inserted},
		{"updated", c.Updated},
		{"skipped", c.Skipped},
		{"errored", c.Errored},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"reference upserts", c.RefUpserts},
		{"reference failures", c.RefFailed},
		{"sections created", c.SectionsCreated},
		{"original-post conflicts", c.PostConflicts},
	})
	t.Render()

	cc := r.CollectionCounts()
	if len(cc) == 0 {
		return
	}
	ct := table.NewWriter()
	ct.SetOutputMirror(w)
	ct.SetStyle(table.StyleLight)
	ct.AppendHeader(table.Row{"Collection", "Documents"})
	for _, row := range cc {
		ct.AppendRow(table.Row{row.Collection, row.Count})
	}
	ct.Render()
}

// LogSummary writes the counters to the structured log.
func (r *Reporter) LogSummary() {
	c := r.Counts()
	logger.With("run", r.RunID, "schema", r.Schema).Infow("import finished",
		"inserted", c.Inserted,
		"updated", c.Updated,
		"skipped", c.Skipped,
		"errored", c.Errored,
		"referenceFailures", c.RefFailed,
	)
}

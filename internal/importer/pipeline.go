package importer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/qabase/qabase/backend/go-services/internal/config"
	"github.com/qabase/qabase/backend/go-services/internal/content"
	"github.com/qabase/qabase/backend/go-services/internal/content/repository"
	"github.com/qabase/qabase/backend/go-services/pkg/logger"
	"github.com/qabase/qabase/backend/go-services/pkg/metrics"
)

// inputJSON keeps numbers as json.Number so integer indexes survive decoding.
var inputJSON = sonic.Config{UseNumber: true}.Froze()

// Options configures one pipeline.
type Options struct {
	Schema       *Schema
	LogDir       string
	Concurrency  int
	PostConflict ConflictPolicy
	DryRun       bool
	// Sink, when set, receives the written log artifacts.
	Sink ArtifactSink
}

// Pipeline runs normalize, collect, reconcile and report over a batch.
type Pipeline struct {
	store repository.Store
	opts  Options
}

func New(store repository.Store, opts Options) *Pipeline {
	if opts.Schema == nil {
		opts.Schema = QASchema
	}
	if opts.LogDir == "" {
		opts.LogDir = "logs"
	}
	if opts.PostConflict == "" {
		opts.PostConflict = LastWriteWins
	}
	return &Pipeline{store: store, opts: opts}
}

// DecodeRecords parses a JSON array of entries. Anything else is fatal.
func DecodeRecords(data []byte) ([]interface{}, error) {
	var raws []interface{}
	if err := inputJSON.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("%w: input is not a JSON array: %v", config.ErrFatalConfig, err)
	}
	return raws, nil
}

// RunFile reads and imports the JSON file at path. An unreadable or
// unparsable file aborts before any record is touched.
func (p *Pipeline) RunFile(ctx context.Context, path string) (*Reporter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read input: %v", config.ErrFatalConfig, err)
	}
	raws, err := DecodeRecords(data)
	if err != nil {
		return nil, err
	}
	logger.Infof("read %d entries from %s", len(raws), path)
	return p.Run(ctx, raws)
}

// Run imports already-decoded entries.
func (p *Pipeline) Run(ctx context.Context, raws []interface{}) (*Reporter, error) {
	start := time.Now()
	defer func() { metrics.RunDuration.WithLabelValues("import").Observe(time.Since(start).Seconds()) }()

	schema := p.opts.Schema
	rep := NewReporter(uuid.NewString(), schema.Name)
	log := logger.With("run", rep.RunID, "schema", schema.Name)
	log.Infow("import started", "entries", len(raws), "dryRun", p.opts.DryRun, "postConflict", string(p.opts.PostConflict))

	norm := NewNormalizer(schema)
	coll := NewCollector(p.opts.PostConflict)
	entries := make([]Entry, 0, len(raws))
	for i, raw := range raws {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			rep.RecordSkip(&Skip{Ordinal: i, Reason: fmt.Sprintf("entry is not a JSON object (%T)", raw)}, raw)
			continue
		}
		rec, skip := norm.Normalize(obj, i)
		if skip != nil {
			rep.RecordSkip(skip, raw)
			continue
		}
		coll.Observe(rec, i)
		entries = append(entries, Entry{Ordinal: i, Record: rec, Raw: raw})
	}
	for _, c := range coll.Conflicts() {
		rep.RecordConflict(c, coll.Policy() == RejectConflicts)
	}

	if err := p.reconcile(ctx, entries, coll, rep); err != nil {
		return rep, err
	}
	p.finish(ctx, rep)
	return rep, nil
}

// Resync rebuilds the reference collections and tag sections from the
// records already stored for the schema. No record is written.
func (p *Pipeline) Resync(ctx context.Context) (*Reporter, error) {
	start := time.Now()
	defer func() { metrics.RunDuration.WithLabelValues("resync").Observe(time.Since(start).Seconds()) }()

	schema := p.opts.Schema
	recs, err := p.store.ListRecords(ctx, schema.Collection, content.Filter{})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", schema.Collection, err)
	}
	rep := NewReporter(uuid.NewString(), schema.Name)
	coll := NewCollector(p.opts.PostConflict)
	for i, r := range recs {
		coll.Observe(r, i)
	}
	for _, c := range coll.Conflicts() {
		rep.RecordConflict(c, coll.Policy() == RejectConflicts)
	}
	logger.Infof("resync %s: %d records, %d tags", schema.Collection, len(recs), len(coll.Tags()))
	if err := p.reconcile(ctx, nil, coll, rep); err != nil {
		return rep, err
	}
	p.finish(ctx, rep)
	return rep, nil
}

func (p *Pipeline) reconcile(ctx context.Context, entries []Entry, coll *Collector, rep *Reporter) error {
	rc := NewReconciler(p.store, p.opts.Schema, p.opts.Concurrency, p.opts.DryRun)
	if err := rc.UpsertRecords(ctx, entries, rep); err != nil {
		return fmt.Errorf("upsert records: %w", err)
	}
	if err := rc.UpsertReferences(ctx, coll, rep); err != nil {
		return fmt.Errorf("upsert references: %w", err)
	}
	if err := rc.ReconcileTagSections(ctx, coll.Tags(), rep); err != nil {
		return fmt.Errorf("reconcile tag sections: %w", err)
	}
	return nil
}

// finish records post-run collection counts and writes the artifacts.
// Neither step can fail the run: the store already holds the result.
func (p *Pipeline) finish(ctx context.Context, rep *Reporter) {
	if !p.opts.DryRun {
		counts := make([]CollectionCount, 0, len(repository.AllCollections))
		for _, c := range repository.AllCollections {
			n, err := p.store.Count(ctx, c)
			if err != nil {
				logger.Warnf("count %s: %v", c, err)
				continue
			}
			counts = append(counts, CollectionCount{Collection: c, Count: n})
		}
		rep.SetCollectionCounts(counts)
	}

	paths, err := rep.WriteLogs(p.opts.LogDir)
	if err != nil {
		logger.Errorf("write run logs: %v", err)
	}
	for _, path := range paths {
		logger.Infof("wrote %s", path)
	}
	rep.Publish(ctx, p.opts.Sink, paths)
	rep.LogSummary()
}

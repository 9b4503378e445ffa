// Package scan plans table reads: it resolves a snapshot, prunes manifests
// and data files against a filter, and associates each surviving data file
// with the delete files that apply to it.
package scan

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"floe/expr"
	"floe/floeerr"
	"floe/manifest"
	"floe/storage"
	"floe/table"
)

const defaultParallelism = 4

// Scan is a configured read of one table snapshot. Zero or more options
// refine it; planning does not mutate the table.
type Scan struct {
	meta  *table.TableMetadata
	store storage.Storage

	snapshotID  *int64
	asOf        *int64
	projection  []string
	filter      *expr.Expr
	parallelism int
}

// Option configures a Scan.
type Option func(*Scan)

// UseSnapshot pins the scan to a specific snapshot id.
func UseSnapshot(id int64) Option {
	return func(s *Scan) { s.snapshotID = &id }
}

// AsOf pins the scan to the snapshot that was current at the given
// timestamp in milliseconds.
func AsOf(timestampMs int64) Option {
	return func(s *Scan) { s.asOf = &timestampMs }
}

// Project restricts the scan to the named columns. Names resolve against
// the scan schema; an unknown name fails planning.
func Project(columns ...string) Option {
	return func(s *Scan) { s.projection = columns }
}

// Filter applies a row filter. Planning uses it to prune; readers must
// still apply it to surviving rows.
func Filter(e *expr.Expr) Option {
	return func(s *Scan) { s.filter = e }
}

// Parallelism caps concurrent manifest reads during planning.
func Parallelism(n int) Option {
	return func(s *Scan) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// New builds a scan of the table described by meta, reading file content
// through store.
func New(meta *table.TableMetadata, store storage.Storage, opts ...Option) *Scan {
	s := &Scan{
		meta:        meta,
		store:       store,
		filter:      expr.True(),
		parallelism: defaultParallelism,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Task is one unit of read work: a data file plus every delete file a
// reader must apply to it before returning rows.
type Task struct {
	File           manifest.DataFile
	Deletes        []manifest.DataFile
	SequenceNumber int64
	Partition      map[string]string
	Schema         *table.Schema
	Projection     []table.Field
}

// deleteEntry is a delete file pinned at the sequence number it became
// live.
type deleteEntry struct {
	seq  int64
	file manifest.DataFile
}

// PlanFiles resolves the snapshot and returns the read tasks that a filter
// cannot rule out. Pruning is conservative: missing statistics keep a file
// in the plan. On error or cancellation no partial plan is returned.
func (s *Scan) PlanFiles(ctx context.Context) ([]Task, error) {
	snap, err := s.resolveSnapshot()
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, nil // empty table
	}

	schema, err := s.snapshotSchema(snap)
	if err != nil {
		return nil, err
	}
	projection, err := s.resolveProjection(schema)
	if err != nil {
		return nil, err
	}

	// The filter binds by name against the current schema, then follows
	// field ids onto the snapshot's schema so renames do not change which
	// data is read.
	bound, err := s.filter.Bind(s.meta.CurrentSchema())
	if err != nil {
		return nil, &floeerr.ScanError{Location: s.meta.Location, Err: err}
	}
	bound = bound.RebindTo(schema)

	manifests, err := manifest.ReadList(ctx, s.store, snap.ManifestList)
	if err != nil {
		return nil, &floeerr.ScanError{Location: snap.ManifestList, Err: err}
	}

	proj := newProjectionCache(s.meta, schema, bound)

	var dataManifests, deleteManifests []manifest.File
	for _, mf := range manifests {
		if mf.LiveFilesCount() == 0 {
			continue
		}
		p := proj.forSpec(mf.SpecID)
		if !expr.MightMatchManifest(p, mf.Partitions) {
			continue
		}
		if mf.Content == manifest.ManifestDeletes {
			deleteManifests = append(deleteManifests, mf)
		} else {
			dataManifests = append(dataManifests, mf)
		}
	}

	deletes, err := s.collectDeletes(ctx, deleteManifests, proj)
	if err != nil {
		return nil, err
	}

	tasks, err := s.collectData(ctx, dataManifests, proj, bound)
	if err != nil {
		return nil, err
	}

	for i := range tasks {
		tasks[i].Schema = schema
		tasks[i].Projection = projection
		tasks[i].Deletes = applicableDeletes(&tasks[i], deletes)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].File.FilePath < tasks[j].File.FilePath })
	return tasks, nil
}

func (s *Scan) resolveSnapshot() (*table.Snapshot, error) {
	switch {
	case s.snapshotID != nil:
		snap, ok := s.meta.SnapshotByID(*s.snapshotID)
		if !ok {
			return nil, &floeerr.ScanError{
				Location: s.meta.Location,
				Err:      fmt.Errorf("no snapshot with id %d", *s.snapshotID),
			}
		}
		return snap, nil
	case s.asOf != nil:
		snap, ok := s.meta.SnapshotAsOf(*s.asOf)
		if !ok {
			return nil, &floeerr.ScanError{
				Location: s.meta.Location,
				Err:      fmt.Errorf("no snapshot at or before timestamp %d", *s.asOf),
			}
		}
		return snap, nil
	default:
		return s.meta.CurrentSnapshot(), nil
	}
}

func (s *Scan) snapshotSchema(snap *table.Snapshot) (*table.Schema, error) {
	if snap.SchemaID == nil {
		return s.meta.CurrentSchema(), nil
	}
	schema, ok := s.meta.SchemaByID(*snap.SchemaID)
	if !ok {
		return nil, &floeerr.MetadataConsistencyError{
			Table:  s.meta.Location,
			Detail: fmt.Sprintf("snapshot %d references unknown schema %d", snap.SnapshotID, *snap.SchemaID),
		}
	}
	return schema, nil
}

func (s *Scan) resolveProjection(schema *table.Schema) ([]table.Field, error) {
	if len(s.projection) == 0 {
		return schema.Fields, nil
	}
	out := make([]table.Field, 0, len(s.projection))
	for _, name := range s.projection {
		f, ok := schema.FieldByName(name)
		if !ok {
			return nil, &floeerr.ScanError{
				Location: s.meta.Location,
				Err:      fmt.Errorf("projected column %q not in schema %d", name, schema.SchemaID),
			}
		}
		out = append(out, f)
	}
	return out, nil
}

// projectionCache holds one partition projection of the filter per spec id.
// Manifests written under different specs carry differently shaped
// partition tuples.
type projectionCache struct {
	meta   *table.TableMetadata
	schema *table.Schema
	bound  *expr.Expr

	mu      sync.Mutex
	perSpec map[int]*expr.Expr
}

func newProjectionCache(meta *table.TableMetadata, schema *table.Schema, bound *expr.Expr) *projectionCache {
	return &projectionCache{meta: meta, schema: schema, bound: bound, perSpec: make(map[int]*expr.Expr)}
}

func (c *projectionCache) forSpec(specID int) *expr.Expr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.perSpec[specID]; ok {
		return p
	}
	spec, ok := c.meta.SpecByID(specID)
	if !ok {
		// An unknown spec cannot prune anything.
		c.perSpec[specID] = expr.True()
		return c.perSpec[specID]
	}
	p := expr.Project(c.bound, expr.PartFields(spec, c.schema))
	c.perSpec[specID] = p
	return p
}

func (s *Scan) collectDeletes(ctx context.Context, manifests []manifest.File, proj *projectionCache) ([]deleteEntry, error) {
	perManifest := make([][]deleteEntry, len(manifests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, mf := range manifests {
		g.Go(func() error {
			var out []deleteEntry
			for entry, err := range manifest.Entries(gctx, s.store, mf.Path) {
				if err != nil {
					return &floeerr.ScanError{Location: mf.Path, Err: err}
				}
				if !entry.Live() {
					continue
				}
				out = append(out, deleteEntry{seq: entry.SequenceNumber, file: entry.Data})
			}
			perManifest[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var all []deleteEntry
	for _, part := range perManifest {
		all = append(all, part...)
	}
	return all, nil
}

func (s *Scan) collectData(ctx context.Context, manifests []manifest.File, proj *projectionCache, bound *expr.Expr) ([]Task, error) {
	perManifest := make([][]Task, len(manifests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, mf := range manifests {
		g.Go(func() error {
			p := proj.forSpec(mf.SpecID)
			var out []Task
			for entry, err := range manifest.Entries(gctx, s.store, mf.Path) {
				if err != nil {
					return &floeerr.ScanError{Location: mf.Path, Err: err}
				}
				if !entry.Live() {
					continue
				}
				if !expr.MatchesPartition(p, entry.Data.Partition) {
					continue
				}
				if !expr.MightMatchFile(bound, &entry.Data) {
					continue
				}
				out = append(out, Task{
					File:           entry.Data,
					SequenceNumber: entry.SequenceNumber,
					Partition:      entry.Data.Partition,
				})
			}
			perManifest[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var all []Task
	for _, part := range perManifest {
		all = append(all, part...)
	}
	return all, nil
}

// applicableDeletes picks the delete files a reader must apply to one data
// file: those that became live at or after the data file's sequence number
// and whose scope covers its partition, plus path-scoped deletes naming it.
func applicableDeletes(t *Task, deletes []deleteEntry) []manifest.DataFile {
	var out []manifest.DataFile
	for _, d := range deletes {
		if d.seq < t.SequenceNumber {
			continue
		}
		if d.file.ReferencedDataFile != "" && d.file.ReferencedDataFile != t.File.FilePath {
			continue
		}
		if len(d.file.Partition) > 0 && !samePartition(d.file.Partition, t.Partition) {
			continue
		}
		out = append(out, d.file)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilePath < out[j].FilePath })
	return out
}

func samePartition(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

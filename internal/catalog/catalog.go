package catalog

import (
	"fmt"
	"sync"

	"github.com/cpausmit/dynamo/internal/dynerr"
	"github.com/cpausmit/dynamo/internal/xlog"
)

// ChangeLogger receives one line per applied catalog mutation, the Go
// analogue of the `CHANGELOG` logger threaded through
// original_source/lib/core/server.go's collect_processes.
type ChangeLogger interface {
	Info(format string, args ...any)
}

type changelogFunc func(format string, args ...any)

func (f changelogFunc) Info(format string, args ...any) { f(format, args...) }

// defaultChangeLogger writes to xlog.Changelog.
var defaultChangeLogger ChangeLogger = changelogFunc(func(format string, args ...any) {
	xlog.Changelog.Info().Msg(fmt.Sprintf(format, args...))
})

// Catalog is the single arena owning all entities. Cross-references
// between Datasets, Blocks, Sites and replicas are resolved through the
// arena's maps or through direct pointers kept consistent by link/unlink,
// per the "Design notes" in spec.md §9.
type Catalog struct {
	mu sync.Mutex // guards the maps below for the benefit of read-only snapshot takers only

	Datasets map[string]*Dataset
	Sites    map[string]*Site
	Groups   map[string]*Group

	nextFileID FileID
	changelog  ChangeLogger
}

// New returns an empty Catalog.
func New() *Catalog {
	return &Catalog{
		Datasets:  make(map[string]*Dataset),
		Sites:     make(map[string]*Site),
		Groups:    make(map[string]*Group),
		changelog: defaultChangeLogger,
	}
}

// SetChangeLogger overrides the changelog sink; passing nil restores the
// default (xlog.Changelog).
func (c *Catalog) SetChangeLogger(cl ChangeLogger) {
	if cl == nil {
		cl = defaultChangeLogger
	}
	c.changelog = cl
}

func (c *Catalog) lock()   { c.mu.Lock() }
func (c *Catalog) unlock() { c.mu.Unlock() }

// Update upserts obj by identity key: if an equivalent entity already
// exists, its mutable fields are copied field-by-field; otherwise the
// entity is inserted. Mirrors the generic `update(obj)` contract in
// spec.md §4.1.
func (c *Catalog) Update(obj any) (err error) {
	c.lock()
	defer c.unlock()
	defer func() {
		if err == nil {
			c.changelog.Info("update %T", obj)
		}
	}()

	switch v := obj.(type) {
	case *Group:
		return c.updateGroup(v)
	case *Dataset:
		return c.updateDataset(v)
	case *Block:
		return c.updateBlock(v)
	case *File:
		return c.updateFile(v)
	case *Site:
		return c.updateSite(v)
	case *DatasetReplica:
		return c.updateDatasetReplica(v)
	case *BlockReplica:
		return c.updateBlockReplica(v)
	default:
		return fmt.Errorf("catalog: update: unsupported entity type %T", obj)
	}
}

// Delete removes and unlinks obj, cascading per spec.md §4.1 "delete(obj)".
func (c *Catalog) Delete(obj any) (err error) {
	c.lock()
	defer c.unlock()
	defer func() {
		if err == nil {
			c.changelog.Info("delete %T", obj)
		}
	}()

	switch v := obj.(type) {
	case *Group:
		delete(c.Groups, v.Name)
		return nil
	case *Dataset:
		return c.deleteDataset(v)
	case *Block:
		return c.deleteBlock(v)
	case *File:
		return c.deleteFile(v)
	case *Site:
		return c.deleteSite(v)
	case *DatasetReplica:
		return c.deleteDatasetReplica(v)
	case *BlockReplica:
		return c.deleteBlockReplica(v)
	default:
		return fmt.Errorf("catalog: delete: unsupported entity type %T", obj)
	}
}

// FindBlock looks up a block by (dataset, block) short names.
func (c *Catalog) FindBlock(datasetName, blockName string) (*Block, error) {
	c.lock()
	defer c.unlock()
	ds, ok := c.Datasets[datasetName]
	if !ok {
		return nil, dynerr.ErrUnknownEntity
	}
	b, ok := ds.Blocks[blockName]
	if !ok {
		return nil, dynerr.ErrUnknownEntity
	}
	return b, nil
}

// FindReplica looks up a BlockReplica of b at site.
func (c *Catalog) FindReplica(b *Block, site *Site) (*BlockReplica, error) {
	c.lock()
	defer c.unlock()
	r, ok := b.Replicas[site.Name]
	if !ok {
		return nil, dynerr.ErrUnknownEntity
	}
	return r, nil
}

// FindDatasetReplica looks up the DatasetReplica of ds at site.
func (c *Catalog) FindDatasetReplica(ds *Dataset, site *Site) (*DatasetReplica, error) {
	c.lock()
	defer c.unlock()
	dr, ok := site.Replicas[ds.Name]
	if !ok {
		return nil, dynerr.ErrUnknownEntity
	}
	return dr, nil
}

// ---- Group ----

func (c *Catalog) updateGroup(g *Group) error {
	if existing, ok := c.Groups[g.Name]; ok {
		*existing = *g
		return nil
	}
	clone := *g
	c.Groups[g.Name] = &clone
	return nil
}

// ---- Dataset ----

func (c *Catalog) updateDataset(d *Dataset) error {
	if existing, ok := c.Datasets[d.Name]; ok {
		if existing.Name != d.Name {
			return dynerr.ErrIdentityMismatch
		}
		existing.IsValid = d.IsValid
		existing.IsOpen = d.IsOpen
		existing.Size = d.Size
		existing.NumFiles = d.NumFiles
		return nil
	}
	clone := &Dataset{
		Name:     d.Name,
		IsValid:  d.IsValid,
		IsOpen:   d.IsOpen,
		Size:     d.Size,
		NumFiles: d.NumFiles,
		Blocks:   make(map[string]*Block),
		Replicas: make(map[string]*DatasetReplica),
	}
	c.Datasets[d.Name] = clone
	return nil
}

func (c *Catalog) deleteDataset(d *Dataset) error {
	ds, ok := c.Datasets[d.Name]
	if !ok {
		return nil
	}
	for _, dr := range append([]*DatasetReplica(nil), valuesDR(ds.Replicas)...) {
		_ = c.deleteDatasetReplica(dr)
	}
	for _, b := range append([]*Block(nil), valuesB(ds.Blocks)...) {
		_ = c.deleteBlock(b)
	}
	delete(c.Datasets, d.Name)
	return nil
}

func valuesDR(m map[string]*DatasetReplica) []*DatasetReplica {
	out := make([]*DatasetReplica, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func valuesB(m map[string]*Block) []*Block {
	out := make([]*Block, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

// ---- Block ----

func (c *Catalog) updateBlock(b *Block) error {
	ds, ok := c.Datasets[b.Dataset.Name]
	if !ok {
		return dynerr.ErrUnknownEntity
	}
	if existing, ok := ds.Blocks[b.Name]; ok {
		existing.Size = b.Size
		existing.NumFiles = b.NumFiles
		existing.IsOpen = b.IsOpen
		return nil
	}
	clone := &Block{
		Name:       b.Name,
		Dataset:    ds,
		Size:       b.Size,
		NumFiles:   b.NumFiles,
		IsOpen:     b.IsOpen,
		Files:      make(map[FileID]*File),
		filesByLFN: make(map[string]*File),
		Replicas:   make(map[string]*BlockReplica),
	}
	ds.Blocks[b.Name] = clone
	return nil
}

func (c *Catalog) deleteBlock(b *Block) error {
	ds, ok := c.Datasets[b.Dataset.Name]
	if !ok {
		return nil
	}
	blk, ok := ds.Blocks[b.Name]
	if !ok {
		return nil
	}
	for _, r := range append([]*BlockReplica(nil), valuesBR(blk.Replicas)...) {
		_ = c.deleteBlockReplica(r)
	}
	delete(ds.Blocks, b.Name)
	return nil
}

func valuesBR(m map[string]*BlockReplica) []*BlockReplica {
	out := make([]*BlockReplica, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

// ---- File ----

func (c *Catalog) updateFile(f *File) error {
	ds, ok := c.Datasets[f.Block.Dataset.Name]
	if !ok {
		return dynerr.ErrUnknownEntity
	}
	blk, ok := ds.Blocks[f.Block.Name]
	if !ok {
		return dynerr.ErrUnknownEntity
	}

	if existing, ok := blk.filesByLFN[f.LFN]; ok {
		existing.Size = f.Size
		return nil
	}

	id := f.ID
	if id == 0 {
		c.nextFileID++
		id = c.nextFileID
	} else if id > c.nextFileID {
		c.nextFileID = id
	}

	f.ID = id // the caller's File learns the id it was registered under
	clone := &File{ID: id, LFN: f.LFN, Size: f.Size, Block: blk}
	blk.Files[id] = clone
	blk.filesByLFN[f.LFN] = clone
	return nil
}

func (c *Catalog) deleteFile(f *File) error {
	ds, ok := c.Datasets[f.Block.Dataset.Name]
	if !ok {
		return nil
	}
	blk, ok := ds.Blocks[f.Block.Name]
	if !ok {
		return nil
	}
	existing, ok := blk.Files[f.ID]
	if !ok {
		return nil
	}
	for _, r := range blk.Replicas {
		_ = r.DeleteFile(existing)
	}
	delete(blk.Files, f.ID)
	delete(blk.filesByLFN, existing.LFN)
	return nil
}

// ---- Site ----

func (c *Catalog) updateSite(s *Site) error {
	if existing, ok := c.Sites[s.Name]; ok {
		existing.Host = s.Host
		existing.StorageType = s.StorageType
		existing.Backend = s.Backend
		return nil
	}
	clone := &Site{
		Name:        s.Name,
		Host:        s.Host,
		StorageType: s.StorageType,
		Backend:     s.Backend,
		Partitions:  make(map[string]*SitePartition),
		Replicas:    make(map[string]*DatasetReplica),
	}
	c.Sites[s.Name] = clone
	return nil
}

func (c *Catalog) deleteSite(s *Site) error {
	site, ok := c.Sites[s.Name]
	if !ok {
		return nil
	}
	for _, dr := range append([]*DatasetReplica(nil), valuesDR(site.Replicas)...) {
		_ = c.deleteDatasetReplica(dr)
	}
	delete(c.Sites, s.Name)
	return nil
}

// ---- DatasetReplica ----

func (c *Catalog) updateDatasetReplica(dr *DatasetReplica) error {
	ds, ok := c.Datasets[dr.Dataset.Name]
	if !ok {
		return dynerr.ErrUnknownEntity
	}
	site, ok := c.Sites[dr.Site.Name]
	if !ok {
		return dynerr.ErrUnknownEntity
	}
	if existing, ok := site.Replicas[ds.Name]; ok {
		existing.Growing = dr.Growing
		return nil
	}
	clone := &DatasetReplica{
		Dataset:  ds,
		Site:     site,
		Growing:  dr.Growing,
		Replicas: make(map[string]*BlockReplica),
	}
	site.Replicas[ds.Name] = clone
	ds.Replicas[site.Name] = clone
	return nil
}

// deleteDatasetReplica removes all contained BlockReplicas first, then the
// DatasetReplica itself, per spec.md §4.1 "for a DatasetReplica, it
// removes all contained BlockReplicas first".
func (c *Catalog) deleteDatasetReplica(dr *DatasetReplica) error {
	for _, r := range append([]*BlockReplica(nil), valuesBR(dr.Replicas)...) {
		_ = c.deleteBlockReplica(r)
	}
	if dr.Site != nil {
		delete(dr.Site.Replicas, dr.Dataset.Name)
	}
	if dr.Dataset != nil {
		delete(dr.Dataset.Replicas, dr.Site.Name)
	}
	return nil
}

// maybeUnlinkEmptyDatasetReplica implements invariant 5: a non-growing
// DatasetReplica with an empty block-replica set is removed from its
// site's and dataset's indexes.
func (c *Catalog) maybeUnlinkEmptyDatasetReplica(dr *DatasetReplica) {
	if dr.Growing || len(dr.Replicas) != 0 {
		return
	}
	delete(dr.Site.Replicas, dr.Dataset.Name)
	delete(dr.Dataset.Replicas, dr.Site.Name)
}

// ---- BlockReplica ----

// updateBlockReplica upserts a BlockReplica, linking it into all three
// indexes (block, dataset-replica, site) atomically and re-indexing it in
// the site's partitions, per spec.md invariant 1 and §4.1's note that
// "update also re-indexes the replica in its site's partitions".
func (c *Catalog) updateBlockReplica(r *BlockReplica) error {
	ds, ok := c.Datasets[r.Block.Dataset.Name]
	if !ok {
		return dynerr.ErrUnknownEntity
	}
	blk, ok := ds.Blocks[r.Block.Name]
	if !ok {
		return dynerr.ErrUnknownEntity
	}
	site, ok := c.Sites[r.Site.Name]
	if !ok {
		return dynerr.ErrUnknownEntity
	}
	var group *Group
	if r.Group != nil {
		group, ok = c.Groups[r.Group.Name]
		if !ok {
			return dynerr.ErrUnknownEntity
		}
	}

	dr, ok := site.Replicas[ds.Name]
	if !ok {
		dr = &DatasetReplica{Dataset: ds, Site: site, Replicas: make(map[string]*BlockReplica)}
		site.Replicas[ds.Name] = dr
		ds.Replicas[site.Name] = dr
	}

	blockKey := blk.FullName()
	if existing, ok := blk.Replicas[site.Name]; ok {
		clone := *r
		clone.Block = blk
		clone.Site = site
		clone.Group = group
		if err := existing.Copy(&clone); err != nil {
			return err
		}
		c.reindexPartitions(existing)
		return nil
	}

	clone := &BlockReplica{
		Block:      blk,
		Site:       site,
		Group:      group,
		Custodial:  r.Custodial,
		Size:       r.Size,
		LastUpdate: r.LastUpdate,
		Files:      r.Files.clone(),
	}
	blk.Replicas[site.Name] = clone
	dr.Replicas[blockKey] = clone
	site.Replicas[ds.Name] = dr

	c.reindexPartitions(clone)
	return nil
}

// deleteBlockReplica unlinks r from block, dataset-replica, site-partition
// and site indexes, then removes the owning DatasetReplica if it became
// empty and non-growing, per spec.md §4.1 and
// original_source/lib/dataformat/blockreplica.py's unlink().
func (c *Catalog) deleteBlockReplica(r *BlockReplica) error {
	site, ok := c.Sites[r.Site.Name]
	if !ok {
		return nil
	}
	dr, ok := site.Replicas[r.Block.Dataset.Name]
	if !ok {
		return nil
	}
	for _, part := range site.Partitions {
		entry, ok := part.Replicas[dr]
		if !ok || entry.All {
			continue
		}
		delete(entry.Explicit, r)
		if len(entry.Explicit) == 0 {
			delete(part.Replicas, dr)
		}
	}

	delete(dr.Replicas, r.Block.FullName())
	delete(r.Block.Replicas, r.Site.Name)

	c.maybeUnlinkEmptyDatasetReplica(dr)
	return nil
}

// reindexPartitions folds r into every SitePartition of its site that
// already tracks its DatasetReplica with an explicit (non-"all") set,
// keeping invariant 4 (no partition entry is an empty explicit set).
func (c *Catalog) reindexPartitions(r *BlockReplica) {
	dr, ok := r.Site.Replicas[r.Block.Dataset.Name]
	if !ok {
		return
	}
	for _, part := range r.Site.Partitions {
		entry, ok := part.Replicas[dr]
		if !ok || entry.All {
			continue
		}
		entry.Explicit[r] = struct{}{}
	}
}

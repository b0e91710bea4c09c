// Package source implements the pluggable upstream catalog adapters named
// only as an external interface in spec.md §1 ("upstream catalog
// sources"); restored here per SPEC_FULL.md §4.7, grounded on
// original_source/lib/common/interface/dbs.go's DBSInterface and
// lib/source/impl/phedexsiteinfo.go's PhEDExSiteInfoSource.
/*
 * Copyright (c) 2024-2026, the dynamo project authors.
 */
package source

import (
	"context"

	"github.com/cpausmit/dynamo/internal/catalog"
)

// DatasetSource populates dataset/block/file information, the Go analogue
// of DatasetInfoSourceInterface.
type DatasetSource interface {
	GetDataset(ctx context.Context, name string) (*DatasetRecord, error)
	GetDatasets(ctx context.Context, names []string) ([]*DatasetRecord, error)
}

// SiteSource populates site/group/dataset-replica information, the Go
// analogue of SiteInfoSource.
type SiteSource interface {
	GetSite(ctx context.Context, name string) (*catalog.Site, error)
	GetSiteList(ctx context.Context) ([]*catalog.Site, error)
}

// DatasetRecord is a dataset together with its blocks, the unit
// GetDataset/GetDatasets return before the caller feeds each piece to
// Catalog.Update individually (mirroring _construct_dataset's shape).
type DatasetRecord struct {
	Dataset *catalog.Dataset
	Blocks  []*catalog.Block
}

// Apply feeds a DatasetRecord into c via Update, dataset first then each
// block, matching the original's outer-then-inner insertion order.
func (r *DatasetRecord) Apply(c *catalog.Catalog) error {
	if err := c.Update(r.Dataset); err != nil {
		return err
	}
	ds := c.Datasets[r.Dataset.Name]
	for _, b := range r.Blocks {
		blk := &catalog.Block{Name: b.Name, Dataset: ds, Size: b.Size, NumFiles: b.NumFiles, IsOpen: b.IsOpen}
		if err := c.Update(blk); err != nil {
			return err
		}
	}
	return nil
}

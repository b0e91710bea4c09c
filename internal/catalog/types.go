// Package catalog holds the in-memory model of physics storage entities —
// datasets, blocks, files, sites, groups, and block placements — and the
// operations that keep their cross-indexes mutually consistent.
//
// The entity shapes and invariants are grounded on
// original_source/lib/dataformat/blockreplica.py (and its sibling dataset/
// block/site modules implied by the spec); the arena-of-maps layout
// resolving the Block<->BlockReplica<->DatasetReplica reference cycles
// follows the "Design notes" in spec.md rather than any single teacher
// file, since the corpus's own cyclic cluster-map types (core/meta.Bck,
// Smap) are not present in the retrieval pack.
/*
 * Copyright (c) 2024-2026, the dynamo project authors.
 */
package catalog

import "fmt"

// FileID is the unique integer identifier assigned to a File when it is
// registered with the catalog. The zero value means "not yet registered".
type FileID uint64

// Dataset owns its Blocks, Files (transitively, via Blocks) and the
// DatasetReplicas placing it at sites.
type Dataset struct {
	Name     string
	IsValid  bool
	IsOpen   bool
	Size     int64
	NumFiles int

	Blocks   map[string]*Block   // keyed by short block name
	Replicas map[string]*DatasetReplica // keyed by site name
}

// Block is a contiguous subdivision of a Dataset and the unit of placement.
type Block struct {
	Name     string
	Dataset  *Dataset
	Size     int64
	NumFiles int
	IsOpen   bool

	Files    map[FileID]*File
	filesByLFN map[string]*File

	Replicas map[string]*BlockReplica // weak: keyed by site name, block does not own these
}

// FullName returns "dataset#block", the identity key used across the
// catalog wherever a Block is referenced by name.
func (b *Block) FullName() string {
	return FullBlockName(b.Dataset.Name, b.Name)
}

// FullBlockName composes the canonical "dataset#block" identity string.
func FullBlockName(dataset, block string) string {
	return fmt.Sprintf("%s#%s", dataset, block)
}

// File is a single logical file within a Block.
type File struct {
	ID    FileID
	LFN   string
	Size  int64
	Block *Block
}

// Site hosts DatasetReplicas and partitions of them.
type Site struct {
	Name       string
	Host       string
	StorageType string
	Backend    string

	Partitions map[string]*SitePartition
	Replicas   map[string]*DatasetReplica // keyed by dataset name
}

// Group is a non-owning label a BlockReplica may point at; nil/"" means
// anonymous, per spec.md's "Group: name (may be null/anonymous on a
// replica)".
type Group struct {
	Name string
}

// DatasetReplica is the set of BlockReplicas of one Dataset at one Site.
type DatasetReplica struct {
	Dataset  *Dataset
	Site     *Site
	Growing  bool
	Replicas map[string]*BlockReplica // keyed by block full name
}

// SitePartition is a named subset of a site's replicas, used by policy
// evaluation. A DatasetReplica entry is either All (the "all"
// sentinel, spec.md invariant 4) or a non-empty explicit set.
type SitePartition struct {
	Name     string
	Replicas map[*DatasetReplica]*PartitionEntry
}

// PartitionEntry holds either the "all block replicas present" sentinel or
// an explicit, non-empty set of BlockReplicas.
type PartitionEntry struct {
	All      bool
	Explicit map[*BlockReplica]struct{}
}

// BlockReplica is a placement of a Block at a Site under an optional
// Group. Its file-presence is tracked by FileSet: either "complete"
// (tracks the block's full file set) or an explicit id set.
type BlockReplica struct {
	Block      *Block
	Site       *Site
	Group      *Group
	Custodial  bool
	Size       int64
	LastUpdate int64
	Files      FileSet
}

// NumFiles returns the replica's file count: the block's, if complete, or
// the explicit set's cardinality otherwise (spec.md invariant 3).
func (r *BlockReplica) NumFiles() int {
	if r.Files.Complete {
		return r.Block.NumFiles
	}
	return len(r.Files.IDs)
}

// key identifies a BlockReplica uniquely within its Site's index: the full
// block name it replicates.
func (r *BlockReplica) key() string { return r.Block.FullName() }

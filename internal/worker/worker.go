// Package worker defines the stable entry contract a dynamic action
// payload is loaded against, spec.md §9 "Dynamic worker payloads": the
// payload receives a Context bundling everything it may touch (inventory,
// registry) and nothing else, so the scheduler can run it in a separate OS
// process without sharing memory.
/*
 * Copyright (c) 2024-2026, the dynamo project authors.
 */
package worker

import (
	"context"

	"github.com/cpausmit/dynamo/internal/catalog"
	"github.com/cpausmit/dynamo/internal/registry"
)

// Payload is the symbol a worker binary or plugin must expose. Run executes
// the action's body; returning a non-nil error marks the action failed
// (spec.md §4.5's action states `failed`).
type Payload interface {
	Run(ctx context.Context, wctx *Context) error
}

// PayloadFunc adapts a plain function to Payload.
type PayloadFunc func(ctx context.Context, wctx *Context) error

func (f PayloadFunc) Run(ctx context.Context, wctx *Context) error { return f(ctx, wctx) }

// Context is everything a payload is handed at start. ReadOnly mirrors
// spec.md §4.5.1: a write-enabled worker's Inventory is a RecordingInventory
// whose mutations are captured for the scheduler to stream back and apply
// under the master lock; a read-only worker's Inventory rejects mutation
// outright. Execute does not set Registry: it is nil in a worker process.
type Context struct {
	Inventory Inventory
	Registry  registry.Backend
	ActionID  uint64
	Args      string
	ReadOnly  bool
}

// Inventory is the subset of catalog.Catalog a payload is allowed to drive.
// Both *catalog.Catalog and *RecordingInventory satisfy it; Execute hands
// every worker, read-only or write-enabled, a *RecordingInventory.
type Inventory interface {
	FindBlock(datasetName, blockName string) (*catalog.Block, error)
	FindReplica(b *catalog.Block, site *catalog.Site) (*catalog.BlockReplica, error)
	FindDatasetReplica(ds *catalog.Dataset, site *catalog.Site) (*catalog.DatasetReplica, error)
	Update(obj any) error
	Delete(obj any) error
}

var (
	_ Inventory = (*catalog.Catalog)(nil)
	_ Inventory = (*RecordingInventory)(nil)
)

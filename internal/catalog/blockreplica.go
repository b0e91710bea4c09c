package catalog

import "github.com/cpausmit/dynamo/internal/dynerr"

// AddFile records a file as newly present in the replica. If the replica
// is already complete, it is a no-op: the "complete" marker tracks logical
// fullness and self-heals as the block grows, per spec.md §4.1's
// "Algorithms of note" and blockreplica.py's add_file. Otherwise the file
// id is added and the set collapses to the complete marker once it
// matches the block's full file set.
func (r *BlockReplica) AddFile(f *File) {
	if r.Files.Complete {
		return
	}
	if r.Files.IDs == nil {
		r.Files.IDs = make(map[FileID]struct{})
	}
	r.Files.IDs[f.ID] = struct{}{}
	r.Size += f.Size

	if len(r.Files.IDs) == r.Block.NumFiles {
		r.Files = CompleteFileSet()
	}
}

// DeleteFile removes a file from the replica's presence set. If the
// replica was complete, the explicit set is first materialized from the
// block's files minus f (blockreplica.py's delete_file). Removing a file
// not present in the replica, including a file of another block, fails
// with ErrFileNotPresent.
func (r *BlockReplica) DeleteFile(f *File) error {
	if f.Block != r.Block {
		return dynerr.ErrFileNotPresent
	}
	if r.Files.Complete {
		ids := make(map[FileID]struct{}, len(r.Block.Files))
		for id := range r.Block.Files {
			if id != f.ID {
				ids[id] = struct{}{}
			}
		}
		r.Files = FileSet{IDs: ids}
		r.Size -= f.Size
		return nil
	}

	if _, ok := r.Files.IDs[f.ID]; !ok {
		return dynerr.ErrFileNotPresent
	}
	delete(r.Files.IDs, f.ID)
	r.Size -= f.Size
	return nil
}

// IsComplete reports whether the replica's size and file count both equal
// the block's.
func (r *BlockReplica) IsComplete() bool {
	return r.Size == r.Block.Size && r.NumFiles() == r.Block.NumFiles
}

// Equal compares identity (block, site, group) and value fields, with
// file-id sets compared as sets, per blockreplica.py's __eq__.
func (r *BlockReplica) Equal(other *BlockReplica) bool {
	if r == other {
		return true
	}
	if other == nil {
		return false
	}
	return r.Block.FullName() == other.Block.FullName() &&
		r.Site.Name == other.Site.Name &&
		groupName(r.Group) == groupName(other.Group) &&
		r.Custodial == other.Custodial &&
		r.Size == other.Size &&
		r.LastUpdate == other.LastUpdate &&
		r.Files.Equal(other.Files)
}

// Copy copies other's mutable value fields into r, refusing to copy across
// a mismatched (block, site) identity (blockreplica.py's copy()). The group
// is not checked; it is copied along with the value fields.
func (r *BlockReplica) Copy(other *BlockReplica) error {
	if r.Block.FullName() != other.Block.FullName() {
		return dynerr.ErrIdentityMismatch
	}
	if r.Site.Name != other.Site.Name {
		return dynerr.ErrIdentityMismatch
	}
	r.Group = other.Group
	r.Custodial = other.Custodial
	r.Size = other.Size
	r.LastUpdate = other.LastUpdate
	r.Files = other.Files.clone()
	return nil
}

func groupName(g *Group) string {
	if g == nil {
		return ""
	}
	return g.Name
}

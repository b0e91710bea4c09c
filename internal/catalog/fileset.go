package catalog

import "sort"

// FileSet is a BlockReplica's file-presence representation: either the
// distinguished "complete" marker (Complete == true, IDs unused) or an
// explicit set of file ids. Mirrors BlockReplica.file_ids in
// original_source/lib/dataformat/blockreplica.py, where `None` stands for
// complete and a tuple stands for an explicit set.
type FileSet struct {
	Complete bool
	IDs      map[FileID]struct{}
}

// CompleteFileSet returns the "complete" marker.
func CompleteFileSet() FileSet { return FileSet{Complete: true} }

// ExplicitFileSet builds an explicit (possibly empty) file-id set.
func ExplicitFileSet(ids ...FileID) FileSet {
	m := make(map[FileID]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return FileSet{IDs: m}
}

// SortedIDs returns the explicit file ids in ascending order; callers must
// not rely on this for a complete set (it is always empty there).
func (fs FileSet) SortedIDs() []FileID { return fs.sortedIDs() }

func (fs FileSet) sortedIDs() []FileID {
	out := make([]FileID, 0, len(fs.IDs))
	for id := range fs.IDs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Equal compares two FileSets as sets, order-independent, per spec.md
// §4.1 "Equality": "file-id sets are compared as sets".
func (fs FileSet) Equal(other FileSet) bool {
	if fs.Complete != other.Complete {
		return false
	}
	if fs.Complete {
		return true
	}
	if len(fs.IDs) != len(other.IDs) {
		return false
	}
	for id := range fs.IDs {
		if _, ok := other.IDs[id]; !ok {
			return false
		}
	}
	return true
}

func (fs FileSet) clone() FileSet {
	if fs.Complete {
		return CompleteFileSet()
	}
	ids := make(map[FileID]struct{}, len(fs.IDs))
	for id := range fs.IDs {
		ids[id] = struct{}{}
	}
	return FileSet{IDs: ids}
}

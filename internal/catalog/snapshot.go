package catalog

import jsoniter "github.com/json-iterator/go"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Snapshot is a flattened, serializable view of a Catalog, used to hand a
// consistent read-only (or pre-recording) view of the inventory to a
// spawned worker process — the subprocess substitute for a shared-memory
// read-only database connection (spec.md §4.5.1).
type Snapshot struct {
	Groups   []snapGroup   `json:"groups"`
	Sites    []snapSite    `json:"sites"`
	Datasets []snapDataset `json:"datasets"`
}

type snapGroup struct {
	Name string `json:"name"`
}

type snapSite struct {
	Name        string                  `json:"name"`
	Host        string                  `json:"host"`
	StorageType string                  `json:"storage_type"`
	Backend     string                  `json:"backend"`
	Replicas    []snapDatasetReplica    `json:"dataset_replicas"`
}

type snapDatasetReplica struct {
	Dataset  string             `json:"dataset"`
	Growing  bool               `json:"growing"`
	Replicas []snapBlockReplica `json:"block_replicas"`
}

type snapBlockReplica struct {
	Block      string   `json:"block"`
	Group      string   `json:"group,omitempty"`
	Custodial  bool     `json:"custodial"`
	Size       int64    `json:"size"`
	LastUpdate int64    `json:"last_update"`
	Complete   bool     `json:"complete"`
	FileIDs    []FileID `json:"file_ids,omitempty"`
}

type snapDataset struct {
	Name     string      `json:"name"`
	IsValid  bool        `json:"is_valid"`
	IsOpen   bool        `json:"is_open"`
	Size     int64       `json:"size"`
	NumFiles int         `json:"num_files"`
	Blocks   []snapBlock `json:"blocks"`
}

type snapBlock struct {
	Name     string     `json:"name"`
	Size     int64      `json:"size"`
	NumFiles int        `json:"num_files"`
	IsOpen   bool       `json:"is_open"`
	Files    []snapFile `json:"files"`
}

type snapFile struct {
	ID   FileID `json:"id"`
	LFN  string `json:"lfn"`
	Size int64  `json:"size"`
}

// Export flattens the catalog into a Snapshot.
func (c *Catalog) Export() Snapshot {
	c.lock()
	defer c.unlock()

	var snap Snapshot
	for _, g := range c.Groups {
		snap.Groups = append(snap.Groups, snapGroup{Name: g.Name})
	}
	for _, ds := range c.Datasets {
		sd := snapDataset{Name: ds.Name, IsValid: ds.IsValid, IsOpen: ds.IsOpen, Size: ds.Size, NumFiles: ds.NumFiles}
		for _, b := range ds.Blocks {
			sb := snapBlock{Name: b.Name, Size: b.Size, NumFiles: b.NumFiles, IsOpen: b.IsOpen}
			for _, f := range b.Files {
				sb.Files = append(sb.Files, snapFile{ID: f.ID, LFN: f.LFN, Size: f.Size})
			}
			sd.Blocks = append(sd.Blocks, sb)
		}
		snap.Datasets = append(snap.Datasets, sd)
	}
	for _, s := range c.Sites {
		ss := snapSite{Name: s.Name, Host: s.Host, StorageType: s.StorageType, Backend: s.Backend}
		for _, dr := range s.Replicas {
			sdr := snapDatasetReplica{Dataset: dr.Dataset.Name, Growing: dr.Growing}
			for _, r := range dr.Replicas {
				sbr := snapBlockReplica{
					Block:      r.Block.Name,
					Custodial:  r.Custodial,
					Size:       r.Size,
					LastUpdate: r.LastUpdate,
					Complete:   r.Files.Complete,
				}
				if r.Group != nil {
					sbr.Group = r.Group.Name
				}
				if !r.Files.Complete {
					sbr.FileIDs = r.Files.sortedIDs()
				}
				sdr.Replicas = append(sdr.Replicas, sbr)
			}
			ss.Replicas = append(ss.Replicas, sdr)
		}
		snap.Sites = append(snap.Sites, ss)
	}
	return snap
}

// MarshalSnapshot encodes a Snapshot as JSON.
func MarshalSnapshot(s Snapshot) ([]byte, error) { return json.Marshal(s) }

// ImportSnapshot rebuilds a Catalog from a previously exported Snapshot.
func ImportSnapshot(data []byte) (*Catalog, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}

	c := New()
	for _, g := range snap.Groups {
		_ = c.Update(&Group{Name: g.Name})
	}
	for _, sd := range snap.Datasets {
		_ = c.Update(&Dataset{Name: sd.Name, IsValid: sd.IsValid, IsOpen: sd.IsOpen, Size: sd.Size, NumFiles: sd.NumFiles})
		ds := c.Datasets[sd.Name]
		for _, sb := range sd.Blocks {
			_ = c.Update(&Block{Name: sb.Name, Dataset: ds, Size: sb.Size, NumFiles: sb.NumFiles, IsOpen: sb.IsOpen})
			blk := ds.Blocks[sb.Name]
			for _, sf := range sb.Files {
				_ = c.Update(&File{ID: sf.ID, LFN: sf.LFN, Size: sf.Size, Block: blk})
			}
		}
	}
	for _, ss := range snap.Sites {
		_ = c.Update(&Site{Name: ss.Name, Host: ss.Host, StorageType: ss.StorageType, Backend: ss.Backend})
		site := c.Sites[ss.Name]
		for _, sdr := range ss.Replicas {
			ds, ok := c.Datasets[sdr.Dataset]
			if !ok {
				continue
			}
			_ = c.Update(&DatasetReplica{Dataset: ds, Site: site, Growing: sdr.Growing})
			for _, sbr := range sdr.Replicas {
				blk, ok := ds.Blocks[sbr.Block]
				if !ok {
					continue
				}
				var group *Group
				if sbr.Group != "" {
					group = c.Groups[sbr.Group]
				}
				files := CompleteFileSet()
				if !sbr.Complete {
					files = ExplicitFileSet(sbr.FileIDs...)
				}
				_ = c.Update(&BlockReplica{
					Block: blk, Site: site, Group: group,
					Custodial: sbr.Custodial, Size: sbr.Size, LastUpdate: sbr.LastUpdate,
					Files: files,
				})
			}
			if sdr.Growing && len(sdr.Replicas) == 0 {
				_ = c.Update(&DatasetReplica{Dataset: ds, Site: site, Growing: true})
			}
		}
	}
	return c, nil
}

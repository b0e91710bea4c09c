package worker

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/cpausmit/dynamo/internal/catalog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// The wire* types are flat, identity-only encodings of catalog entities:
// enough for the receiving side to resolve the same objects by name in its
// own catalog and call Update/Delete, without serializing full subtrees.
type wireGroup struct {
	Name string `json:"name"`
}

type wireDataset struct {
	Name     string `json:"name"`
	IsValid  bool   `json:"is_valid"`
	IsOpen   bool   `json:"is_open"`
	Size     int64  `json:"size"`
	NumFiles int    `json:"num_files"`
}

type wireBlock struct {
	Dataset  string `json:"dataset"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	NumFiles int    `json:"num_files"`
	IsOpen   bool   `json:"is_open"`
}

type wireFile struct {
	Dataset string      `json:"dataset"`
	Block   string      `json:"block"`
	ID      catalog.FileID `json:"id"`
	LFN     string      `json:"lfn"`
	Size    int64       `json:"size"`
}

type wireSite struct {
	Name        string `json:"name"`
	Host        string `json:"host"`
	StorageType string `json:"storage_type"`
	Backend     string `json:"backend"`
}

type wireDatasetReplica struct {
	Dataset string `json:"dataset"`
	Site    string `json:"site"`
	Growing bool   `json:"growing"`
}

type wireBlockReplica struct {
	Dataset    string           `json:"dataset"`
	Block      string           `json:"block"`
	Site       string           `json:"site"`
	Group      string           `json:"group,omitempty"`
	Custodial  bool             `json:"custodial"`
	Size       int64            `json:"size"`
	LastUpdate int64            `json:"last_update"`
	Complete   bool             `json:"complete"`
	FileIDs    []catalog.FileID `json:"file_ids,omitempty"`
}

// encodeEntity flattens a catalog pointer type into its wire form, tagged
// with a type name so the receiver can pick the matching decode path.
func encodeEntity(obj any) (string, []byte, error) {
	switch v := obj.(type) {
	case *catalog.Group:
		p, err := json.Marshal(wireGroup{Name: v.Name})
		return "Group", p, err
	case *catalog.Dataset:
		p, err := json.Marshal(wireDataset{Name: v.Name, IsValid: v.IsValid, IsOpen: v.IsOpen, Size: v.Size, NumFiles: v.NumFiles})
		return "Dataset", p, err
	case *catalog.Block:
		p, err := json.Marshal(wireBlock{Dataset: v.Dataset.Name, Name: v.Name, Size: v.Size, NumFiles: v.NumFiles, IsOpen: v.IsOpen})
		return "Block", p, err
	case *catalog.File:
		p, err := json.Marshal(wireFile{Dataset: v.Block.Dataset.Name, Block: v.Block.Name, ID: v.ID, LFN: v.LFN, Size: v.Size})
		return "File", p, err
	case *catalog.Site:
		p, err := json.Marshal(wireSite{Name: v.Name, Host: v.Host, StorageType: v.StorageType, Backend: v.Backend})
		return "Site", p, err
	case *catalog.DatasetReplica:
		p, err := json.Marshal(wireDatasetReplica{Dataset: v.Dataset.Name, Site: v.Site.Name, Growing: v.Growing})
		return "DatasetReplica", p, err
	case *catalog.BlockReplica:
		w := wireBlockReplica{
			Dataset: v.Block.Dataset.Name, Block: v.Block.Name, Site: v.Site.Name,
			Custodial: v.Custodial, Size: v.Size, LastUpdate: v.LastUpdate,
			Complete: v.Files.Complete,
		}
		if v.Group != nil {
			w.Group = v.Group.Name
		}
		if !v.Files.Complete {
			w.FileIDs = v.Files.SortedIDs()
		}
		p, err := json.Marshal(w)
		return "BlockReplica", p, err
	default:
		return "", nil, fmt.Errorf("worker: encodeEntity: unsupported type %T", obj)
	}
}

// DecodeEntity rebuilds an identity-only catalog pointer from a wire-typed
// payload, suitable for passing directly to Catalog.Update/Delete: the
// receiving catalog resolves it by name, not by pointer identity.
func DecodeEntity(typ string, payload []byte) (any, error) {
	switch typ {
	case "Group":
		var w wireGroup
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, err
		}
		return &catalog.Group{Name: w.Name}, nil
	case "Dataset":
		var w wireDataset
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, err
		}
		return &catalog.Dataset{Name: w.Name, IsValid: w.IsValid, IsOpen: w.IsOpen, Size: w.Size, NumFiles: w.NumFiles}, nil
	case "Block":
		var w wireBlock
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, err
		}
		return &catalog.Block{Name: w.Name, Dataset: &catalog.Dataset{Name: w.Dataset}, Size: w.Size, NumFiles: w.NumFiles, IsOpen: w.IsOpen}, nil
	case "File":
		var w wireFile
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, err
		}
		return &catalog.File{
			ID: w.ID, LFN: w.LFN, Size: w.Size,
			Block: &catalog.Block{Name: w.Block, Dataset: &catalog.Dataset{Name: w.Dataset}},
		}, nil
	case "Site":
		var w wireSite
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, err
		}
		return &catalog.Site{Name: w.Name, Host: w.Host, StorageType: w.StorageType, Backend: w.Backend}, nil
	case "DatasetReplica":
		var w wireDatasetReplica
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, err
		}
		return &catalog.DatasetReplica{Dataset: &catalog.Dataset{Name: w.Dataset}, Site: &catalog.Site{Name: w.Site}, Growing: w.Growing}, nil
	case "BlockReplica":
		var w wireBlockReplica
		if err := json.Unmarshal(payload, &w); err != nil {
			return nil, err
		}
		r := &catalog.BlockReplica{
			Block:      &catalog.Block{Name: w.Block, Dataset: &catalog.Dataset{Name: w.Dataset}},
			Site:       &catalog.Site{Name: w.Site},
			Custodial:  w.Custodial,
			Size:       w.Size,
			LastUpdate: w.LastUpdate,
			Files:      catalog.CompleteFileSet(),
		}
		if w.Group != "" {
			r.Group = &catalog.Group{Name: w.Group}
		}
		if !w.Complete {
			r.Files = catalog.ExplicitFileSet(w.FileIDs...)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("worker: DecodeEntity: unsupported type %q", typ)
	}
}

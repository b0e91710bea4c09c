package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"github.com/cpausmit/dynamo/internal/catalog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBSClient polls a DBS-like dataset-metadata REST service, the Go
// counterpart of DBSInterface. Only the two read paths the catalog needs
// at startup (dataset detail + block summaries) are implemented.
type DBSClient struct {
	BaseURL string
	Client  *fasthttp.Client
	Timeout time.Duration
}

// NewDBSClient builds a client against baseURL (e.g. "https://dbs.example/DBSReader").
func NewDBSClient(baseURL string) *DBSClient {
	return &DBSClient{BaseURL: strings.TrimRight(baseURL, "/"), Client: &fasthttp.Client{}, Timeout: 30 * time.Second}
}

type dbsDatasetRecord struct {
	Dataset          string `json:"dataset"`
	DatasetAccessType string `json:"dataset_access_type"`
}

type dbsBlockRecord struct {
	Dataset        string `json:"dataset"`
	BlockName      string `json:"block_name"`
	BlockSize      int64  `json:"block_size"`
	FileCount      int    `json:"file_count"`
	OpenForWriting int    `json:"open_for_writing"`
}

func (c *DBSClient) get(ctx context.Context, resource string, query url.Values, out any) error {
	u := fmt.Sprintf("%s/%s", c.BaseURL, resource)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(u)
	req.Header.SetMethod(fasthttp.MethodGet)

	deadline := time.Now().Add(c.Timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := c.Client.DoDeadline(req, resp, deadline); err != nil {
		return errors.Wrap(err, "dbs: request")
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return errors.Errorf("dbs: %s: status %d", resource, resp.StatusCode())
	}
	return json.Unmarshal(resp.Body(), out)
}

// GetDataset fetches one dataset's detail and block summaries, the Go
// analogue of DBSInterface.get_dataset / _construct_dataset.
func (c *DBSClient) GetDataset(ctx context.Context, name string) (*DatasetRecord, error) {
	var dsRecords []dbsDatasetRecord
	if err := c.get(ctx, "datasets", url.Values{"dataset": {name}, "detail": {"True"}}, &dsRecords); err != nil {
		return nil, err
	}
	if len(dsRecords) == 0 {
		return nil, errors.Errorf("dbs: dataset %s not found", name)
	}

	var blockRecords []dbsBlockRecord
	if err := c.get(ctx, "blocksummaries", url.Values{"dataset": {name}, "detail": {"True"}}, &blockRecords); err != nil {
		return nil, err
	}
	return construct(dsRecords[0], blockRecords), nil
}

// GetDatasets fetches several datasets, fanning the block-summary request
// out per dataset (DBS has no bulk block-summary endpoint).
func (c *DBSClient) GetDatasets(ctx context.Context, names []string) ([]*DatasetRecord, error) {
	records := make([]*DatasetRecord, 0, len(names))
	for _, name := range names {
		r, err := c.GetDataset(ctx, name)
		if err != nil {
			return records, err
		}
		records = append(records, r)
	}
	return records, nil
}

func construct(ds dbsDatasetRecord, blocks []dbsBlockRecord) *DatasetRecord {
	dataset := &catalog.Dataset{
		Name:    ds.Dataset,
		IsValid: ds.DatasetAccessType == "VALID",
	}
	rec := &DatasetRecord{Dataset: dataset}

	var size int64
	var numFiles int
	for _, b := range blocks {
		if b.Dataset != ds.Dataset {
			continue
		}
		blockName := strings.TrimPrefix(b.BlockName, ds.Dataset+"#")
		isOpen := b.OpenForWriting == 1
		if isOpen {
			dataset.IsOpen = true
		}
		rec.Blocks = append(rec.Blocks, &catalog.Block{
			Name: blockName, Dataset: dataset, Size: b.BlockSize, NumFiles: b.FileCount, IsOpen: isOpen,
		})
		size += b.BlockSize
		numFiles += b.FileCount
	}
	dataset.Size = size
	dataset.NumFiles = numFiles
	return rec
}

var _ DatasetSource = (*DBSClient)(nil)

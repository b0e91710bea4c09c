package source

import (
	"context"
	"testing"

	"github.com/cpausmit/dynamo/internal/catalog"
)

type stubSiteSource struct{ sites []*catalog.Site }

func (s stubSiteSource) GetSite(context.Context, string) (*catalog.Site, error) { return nil, nil }
func (s stubSiteSource) GetSiteList(context.Context) ([]*catalog.Site, error)   { return s.sites, nil }

type stubDatasetSource struct{ records []*DatasetRecord }

func (s stubDatasetSource) GetDataset(context.Context, string) (*DatasetRecord, error) {
	return nil, nil
}
func (s stubDatasetSource) GetDatasets(context.Context, []string) ([]*DatasetRecord, error) {
	return s.records, nil
}

func TestPullOnceAppliesSitesAndDatasets(t *testing.T) {
	c := catalog.New()
	p := &Puller{
		Catalog:  c,
		Sites:    stubSiteSource{sites: []*catalog.Site{{Name: "T1_US"}}},
		Datasets: stubDatasetSource{records: []*DatasetRecord{{Dataset: &catalog.Dataset{Name: "/a/b/c"}}}},
	}

	p.pullOnce(context.Background())

	if _, ok := c.Sites["T1_US"]; !ok {
		t.Fatal("want site T1_US applied to the catalog")
	}
	if _, ok := c.Datasets["/a/b/c"]; !ok {
		t.Fatal("want dataset /a/b/c applied to the catalog")
	}
}

func TestPullOnceToleratesANilSource(t *testing.T) {
	c := catalog.New()
	p := &Puller{Catalog: c}
	p.pullOnce(context.Background()) // must not panic
}

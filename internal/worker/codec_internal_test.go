package worker

import (
	"testing"

	"github.com/cpausmit/dynamo/internal/catalog"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := catalog.New()
	ds := &catalog.Dataset{Name: "/a/b/c"}
	if err := c.Update(ds); err != nil {
		t.Fatal(err)
	}
	blk := &catalog.Block{Name: "block1", Dataset: c.Datasets["/a/b/c"], Size: 100, NumFiles: 1}
	if err := c.Update(blk); err != nil {
		t.Fatal(err)
	}

	typ, payload, err := encodeEntity(c.Datasets["/a/b/c"].Blocks["block1"])
	if err != nil {
		t.Fatal(err)
	}
	if typ != "Block" {
		t.Fatalf("want type Block, got %s", typ)
	}

	decoded, err := DecodeEntity(typ, payload)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := decoded.(*catalog.Block)
	if !ok {
		t.Fatalf("want *catalog.Block, got %T", decoded)
	}
	if got.Name != "block1" || got.Dataset.Name != "/a/b/c" {
		t.Fatalf("unexpected decoded block: %+v", got)
	}
}

package worker_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cpausmit/dynamo/internal/catalog"
	"github.com/cpausmit/dynamo/internal/dynerr"
	"github.com/cpausmit/dynamo/internal/ipc"
	"github.com/cpausmit/dynamo/internal/worker"
)

func TestWorker(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Worker Suite")
}

func seedCatalog() *catalog.Catalog {
	c := catalog.New()
	ds := &catalog.Dataset{Name: "/a/b/c"}
	Expect(c.Update(ds)).To(Succeed())
	blk := &catalog.Block{Name: "block1", Dataset: c.Datasets["/a/b/c"], Size: 100, NumFiles: 1}
	Expect(c.Update(blk)).To(Succeed())
	site := &catalog.Site{Name: "T2_CH"}
	Expect(c.Update(site)).To(Succeed())
	return c
}

var _ = Describe("DecodeEntity", func() {
	It("rebuilds a Block by name from its wire payload", func() {
		decoded, err := worker.DecodeEntity("Block", []byte(`{"dataset":"/a/b/c","name":"block1","size":100,"num_files":1}`))
		Expect(err).NotTo(HaveOccurred())
		got, ok := decoded.(*catalog.Block)
		Expect(ok).To(BeTrue())
		Expect(got.Name).To(Equal("block1"))
		Expect(got.Dataset.Name).To(Equal("/a/b/c"))
	})

	It("rebuilds a complete BlockReplica without an explicit file list", func() {
		decoded, err := worker.DecodeEntity("BlockReplica", []byte(`{"dataset":"/a/b/c","block":"block1","site":"T2_CH","size":100,"complete":true}`))
		Expect(err).NotTo(HaveOccurred())
		got := decoded.(*catalog.BlockReplica)
		Expect(got.Files.Complete).To(BeTrue())
		Expect(got.Block.Name).To(Equal("block1"))
		Expect(got.Site.Name).To(Equal("T2_CH"))
	})

	It("rejects an unknown type tag", func() {
		_, err := worker.DecodeEntity("Bogus", []byte(`{}`))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("RecordingInventory", func() {
	var base *catalog.Catalog

	BeforeEach(func() {
		base = seedCatalog()
	})

	It("refuses all mutations when read-only", func() {
		inv := worker.NewRecordingInventory(base, true)
		err := inv.Update(&catalog.Site{Name: "T3_US"})
		Expect(err).To(MatchError(dynerr.ErrReadOnly))
		Expect(inv.Commands()).To(BeEmpty())
	})

	It("applies writes locally and records them in order", func() {
		inv := worker.NewRecordingInventory(base, false)

		site := &catalog.Site{Name: "T3_US"}
		Expect(inv.Update(site)).To(Succeed())

		blk := base.Datasets["/a/b/c"].Blocks["block1"]
		r := &catalog.BlockReplica{Block: blk, Site: base.Sites["T3_US"], Size: 50, Files: catalog.CompleteFileSet()}
		Expect(inv.Update(r)).To(Succeed())

		Expect(inv.Commands()).To(HaveLen(2))
		Expect(inv.Commands()[0].Cmd).To(Equal(ipc.CmdUpdate))
		Expect(inv.Commands()[0].Type).To(Equal("Site"))
		Expect(inv.Commands()[1].Type).To(Equal("BlockReplica"))

		// Read-your-writes: a lookup on the base snapshot sees the new replica.
		stored, err := inv.FindReplica(blk, base.Sites["T3_US"])
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Size).To(Equal(int64(50)))
	})

	It("records a delete as a distinct command kind", func() {
		inv := worker.NewRecordingInventory(base, false)
		blk := base.Datasets["/a/b/c"].Blocks["block1"]
		site := base.Sites["T2_CH"]
		r := &catalog.BlockReplica{Block: blk, Site: site, Size: 10, Files: catalog.CompleteFileSet()}
		Expect(inv.Update(r)).To(Succeed())

		Expect(inv.Delete(&catalog.BlockReplica{Block: blk, Site: site})).To(Succeed())
		Expect(inv.Commands()).To(HaveLen(2))
		Expect(inv.Commands()[1].Cmd).To(Equal(ipc.CmdDelete))
	})
})

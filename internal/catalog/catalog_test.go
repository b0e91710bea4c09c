package catalog_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cpausmit/dynamo/internal/catalog"
)

func seedBlock(c *catalog.Catalog, numFiles int, fileSize int64) (*catalog.Dataset, *catalog.Block) {
	ds := &catalog.Dataset{Name: "/a/b/c"}
	Expect(c.Update(ds)).To(Succeed())
	ds = c.Datasets["/a/b/c"]

	blk := &catalog.Block{Name: "block1", Dataset: ds, Size: int64(numFiles) * fileSize, NumFiles: numFiles}
	Expect(c.Update(blk)).To(Succeed())
	blk = ds.Blocks["block1"]

	for i := 0; i < numFiles; i++ {
		f := &catalog.File{LFN: fileName(i), Size: fileSize, Block: blk}
		Expect(c.Update(f)).To(Succeed())
	}
	return ds, blk
}

func fileName(i int) string {
	names := []string{"f0", "f1", "f2", "f3", "f4"}
	return names[i]
}

var _ = Describe("Catalog", func() {
	var c *catalog.Catalog

	BeforeEach(func() {
		c = catalog.New()
	})

	It("links a new BlockReplica into all three indexes (invariant 1)", func() {
		ds, blk := seedBlock(c, 2, 100)
		site := &catalog.Site{Name: "T1_US"}
		Expect(c.Update(site)).To(Succeed())
		site = c.Sites["T1_US"]

		r := &catalog.BlockReplica{Block: blk, Site: site, Size: 200, Files: catalog.CompleteFileSet()}
		Expect(c.Update(r)).To(Succeed())

		stored, err := c.FindReplica(blk, site)
		Expect(err).NotTo(HaveOccurred())

		dr, err := c.FindDatasetReplica(ds, site)
		Expect(err).NotTo(HaveOccurred())
		Expect(dr.Replicas).To(HaveKeyWithValue(blk.FullName(), stored))
		Expect(site.Replicas).To(HaveKeyWithValue(ds.Name, dr))
		Expect(blk.Replicas).To(HaveKeyWithValue(site.Name, stored))
	})

	It("transitions a replica to complete when its file set reaches the block's full set", func() {
		ds, blk := seedBlock(c, 3, 10)
		_ = ds
		site := &catalog.Site{Name: "T2_CH"}
		Expect(c.Update(site)).To(Succeed())
		site = c.Sites["T2_CH"]

		f1 := blk.Files[1]
		f2 := blk.Files[2]
		f3 := blk.Files[3]

		r := &catalog.BlockReplica{Block: blk, Site: site, Size: 20, Files: catalog.ExplicitFileSet(f1.ID, f2.ID)}
		Expect(c.Update(r)).To(Succeed())
		stored := blk.Replicas[site.Name]
		Expect(stored.Files.Complete).To(BeFalse())

		stored.AddFile(f3)

		Expect(stored.Files.Complete).To(BeTrue())
		Expect(stored.Size).To(Equal(blk.Size))
		Expect(stored.NumFiles()).To(Equal(blk.NumFiles))
	})

	It("self-heals a complete replica when the block grows (add_file no-op)", func() {
		_, blk := seedBlock(c, 2, 10)
		site := &catalog.Site{Name: "T2_CH"}
		Expect(c.Update(site)).To(Succeed())
		site = c.Sites["T2_CH"]

		r := &catalog.BlockReplica{Block: blk, Site: site, Size: blk.Size, Files: catalog.CompleteFileSet()}
		Expect(c.Update(r)).To(Succeed())
		stored := blk.Replicas[site.Name]

		newFile := &catalog.File{LFN: "f2", Size: 10, Block: blk}
		Expect(c.Update(newFile)).To(Succeed())
		grown := blk.Files[newFile.ID]
		Expect(grown).NotTo(BeNil())

		stored.AddFile(grown)
		Expect(stored.Files.Complete).To(BeTrue())
	})

	It("materializes the explicit set before removing a file from a complete replica", func() {
		_, blk := seedBlock(c, 2, 10)
		site := &catalog.Site{Name: "T2_CH"}
		Expect(c.Update(site)).To(Succeed())
		site = c.Sites["T2_CH"]

		r := &catalog.BlockReplica{Block: blk, Site: site, Size: blk.Size, Files: catalog.CompleteFileSet()}
		Expect(c.Update(r)).To(Succeed())
		stored := blk.Replicas[site.Name]

		f0 := blk.Files[1]
		Expect(stored.DeleteFile(f0)).To(Succeed())
		Expect(stored.Files.Complete).To(BeFalse())
		Expect(stored.NumFiles()).To(Equal(1))
	})

	It("fails with FileNotPresent when removing an absent file", func() {
		_, blk := seedBlock(c, 2, 10)
		site := &catalog.Site{Name: "T2_CH"}
		Expect(c.Update(site)).To(Succeed())
		site = c.Sites["T2_CH"]

		other := &catalog.Block{Name: "other", Dataset: blk.Dataset, NumFiles: 1, Size: 5}
		Expect(c.Update(other)).To(Succeed())
		foreign := &catalog.File{LFN: "foreign", Size: 5, Block: blk.Dataset.Blocks["other"]}
		Expect(c.Update(foreign)).To(Succeed())
		foreignStored := blk.Dataset.Blocks["other"].Files[foreign.ID]

		r := &catalog.BlockReplica{Block: blk, Site: site, Size: 0, Files: catalog.ExplicitFileSet()}
		Expect(c.Update(r)).To(Succeed())
		stored := blk.Replicas[site.Name]

		err := stored.DeleteFile(foreignStored)
		Expect(err).To(HaveOccurred())
	})

	It("removes a non-growing DatasetReplica once its block-replica set empties (invariant 5)", func() {
		ds, blk := seedBlock(c, 1, 10)
		site := &catalog.Site{Name: "T3_US"}
		Expect(c.Update(site)).To(Succeed())
		site = c.Sites["T3_US"]

		r := &catalog.BlockReplica{Block: blk, Site: site, Size: 10, Files: catalog.CompleteFileSet()}
		Expect(c.Update(r)).To(Succeed())
		stored := blk.Replicas[site.Name]

		Expect(c.Delete(stored)).To(Succeed())

		_, err := c.FindDatasetReplica(ds, site)
		Expect(err).To(HaveOccurred())
		Expect(site.Replicas).NotTo(HaveKey(ds.Name))
	})

	It("keeps a growing DatasetReplica even when empty", func() {
		ds, blk := seedBlock(c, 1, 10)
		site := &catalog.Site{Name: "T3_US"}
		Expect(c.Update(site)).To(Succeed())
		site = c.Sites["T3_US"]

		dr := &catalog.DatasetReplica{Dataset: ds, Site: site, Growing: true}
		Expect(c.Update(dr)).To(Succeed())

		r := &catalog.BlockReplica{Block: blk, Site: site, Size: 10, Files: catalog.CompleteFileSet()}
		Expect(c.Update(r)).To(Succeed())
		stored := blk.Replicas[site.Name]
		Expect(c.Delete(stored)).To(Succeed())

		_, err := c.FindDatasetReplica(ds, site)
		Expect(err).NotTo(HaveOccurred())
	})

	It("never leaves an empty explicit set in a SitePartition (invariant 4)", func() {
		ds, blk := seedBlock(c, 1, 10)
		site := &catalog.Site{Name: "T3_US"}
		Expect(c.Update(site)).To(Succeed())
		site = c.Sites["T3_US"]

		r := &catalog.BlockReplica{Block: blk, Site: site, Size: 10, Files: catalog.CompleteFileSet()}
		Expect(c.Update(r)).To(Succeed())
		stored := blk.Replicas[site.Name]
		dr := site.Replicas[ds.Name]

		part := &catalog.SitePartition{Name: "default", Replicas: map[*catalog.DatasetReplica]*catalog.PartitionEntry{
			dr: {Explicit: map[*catalog.BlockReplica]struct{}{stored: {}}},
		}}
		site.Partitions["default"] = part

		Expect(c.Delete(stored)).To(Succeed())
		Expect(part.Replicas).NotTo(HaveKey(dr))
	})

	It("round-trips delete(update(obj)) back to the pre-state", func() {
		_, blk := seedBlock(c, 1, 10)
		site := &catalog.Site{Name: "T3_US"}
		Expect(c.Update(site)).To(Succeed())
		site = c.Sites["T3_US"]

		before := len(blk.Replicas)
		r := &catalog.BlockReplica{Block: blk, Site: site, Size: 10, Files: catalog.CompleteFileSet()}
		Expect(c.Update(r)).To(Succeed())
		stored := blk.Replicas[site.Name]
		Expect(c.Delete(stored)).To(Succeed())
		Expect(len(blk.Replicas)).To(Equal(before))
	})

	It("is idempotent on update(update(obj)) when obj is unchanged", func() {
		_, blk := seedBlock(c, 1, 10)
		site := &catalog.Site{Name: "T3_US"}
		Expect(c.Update(site)).To(Succeed())
		site = c.Sites["T3_US"]

		r := &catalog.BlockReplica{Block: blk, Site: site, Size: 10, Custodial: true, Files: catalog.CompleteFileSet()}
		Expect(c.Update(r)).To(Succeed())
		first := *blk.Replicas[site.Name]

		Expect(c.Update(r)).To(Succeed())
		second := blk.Replicas[site.Name]
		Expect(second.Equal(&first)).To(BeTrue())
	})

	It("holds one replica per site for the same block (invariant 1)", func() {
		_, blk := seedBlock(c, 1, 10)
		site1 := &catalog.Site{Name: "T1_US"}
		site2 := &catalog.Site{Name: "T2_CH"}
		Expect(c.Update(site1)).To(Succeed())
		Expect(c.Update(site2)).To(Succeed())
		site1 = c.Sites["T1_US"]
		site2 = c.Sites["T2_CH"]

		r1 := &catalog.BlockReplica{Block: blk, Site: site1, Size: 10, Files: catalog.CompleteFileSet()}
		r2 := &catalog.BlockReplica{Block: blk, Site: site2, Size: 10, Files: catalog.CompleteFileSet()}
		Expect(c.Update(r1)).To(Succeed())
		Expect(c.Update(r2)).To(Succeed())

		Expect(blk.Replicas).To(HaveLen(2))
		found1, err := c.FindReplica(blk, site1)
		Expect(err).NotTo(HaveOccurred())
		Expect(found1.Site).To(Equal(site1))

		found2, err := c.FindReplica(blk, site2)
		Expect(err).NotTo(HaveOccurred())
		Expect(found2.Site).To(Equal(site2))
	})

	It("fails identity-mismatched copies with ErrIdentityMismatch", func() {
		_, blk1 := seedBlock(c, 1, 10)
		other := &catalog.Block{Name: "other", Dataset: blk1.Dataset, NumFiles: 1, Size: 10}
		Expect(c.Update(other)).To(Succeed())

		site := &catalog.Site{Name: "T1"}
		Expect(c.Update(site)).To(Succeed())
		site = c.Sites["T1"]

		r1 := &catalog.BlockReplica{Block: blk1, Site: site, Size: 10, Files: catalog.CompleteFileSet()}
		r2 := &catalog.BlockReplica{Block: blk1.Dataset.Blocks["other"], Site: site}

		Expect(r1.Copy(r2)).To(HaveOccurred())
	})
})

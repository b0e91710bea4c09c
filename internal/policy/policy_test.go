package policy_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cpausmit/dynamo/internal/catalog"
	"github.com/cpausmit/dynamo/internal/policy"
)

type alwaysDemand bool

func (a alwaysDemand) Wants(*catalog.Dataset) bool { return bool(a) }

var _ = Describe("Manager", func() {
	var replica *catalog.DatasetReplica

	BeforeEach(func() {
		c := catalog.New()
		Expect(c.Update(&catalog.Dataset{Name: "/a/b/c"})).To(Succeed())
		Expect(c.Update(&catalog.Site{Name: "T2_X"})).To(Succeed())
		ds := c.Datasets["/a/b/c"]
		site := c.Sites["T2_X"]
		dr, err := c.FindDatasetReplica(ds, site)
		if err != nil {
			Expect(c.Update(&catalog.DatasetReplica{Dataset: ds, Site: site, Growing: true})).To(Succeed())
			dr, err = c.FindDatasetReplica(ds, site)
			Expect(err).NotTo(HaveOccurred())
		}
		replica = dr
	})

	It("keeps when no policy fires", func() {
		m := policy.NewManager(
			policy.NewPolicy("never", policy.Delete, func(*catalog.DatasetReplica, policy.Demand) bool { return false }),
		)
		Expect(m.Decide(replica, alwaysDemand(true))).To(Equal(policy.Keep))
	})

	It("deletes when a demand-conditioned delete policy fires, keeps otherwise", func() {
		m := policy.NewManager(
			policy.NewPolicy("unwanted", policy.Delete, func(r *catalog.DatasetReplica, d policy.Demand) bool {
				return !d.Wants(r.Dataset)
			}),
		)
		Expect(m.Decide(replica, alwaysDemand(false))).To(Equal(policy.Delete))
		Expect(m.Decide(replica, alwaysDemand(true))).To(Equal(policy.Keep))
	})

	It("forces KEEP when a KEEP_OVERRIDE policy fires anywhere in the stack", func() {
		m := policy.NewManager(
			policy.NewPolicy("unwanted", policy.Delete, func(*catalog.DatasetReplica, policy.Demand) bool { return true }),
			policy.NewPolicy("protected", policy.KeepOverride, func(*catalog.DatasetReplica, policy.Demand) bool { return true }),
			policy.NewPolicy("also-delete", policy.Delete, func(*catalog.DatasetReplica, policy.Demand) bool { return true }),
		)
		Expect(m.Decide(replica, alwaysDemand(false))).To(Equal(policy.Keep))
	})

	It("does not mutate the replica", func() {
		before := *replica
		m := policy.NewManager(
			policy.NewPolicy("unwanted", policy.Delete, func(*catalog.DatasetReplica, policy.Demand) bool { return true }),
		)
		_ = m.Decide(replica, alwaysDemand(false))
		Expect(*replica).To(Equal(before))
	})
})

package dstats_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cpausmit/dynamo/internal/dstats"
)

func TestDstats(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Dstats Suite")
}

var _ = Describe("Stats", func() {
	It("serves incremented counters under the dynamo_ namespace", func() {
		s := dstats.New()
		s.Heartbeats.Inc()
		s.Heartbeats.Inc()
		s.ActionsByStatus.WithLabelValues("done").Inc()
		s.SchedulerQueueDepth.Set(3)

		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusOK))
		body := rec.Body.String()
		Expect(body).To(ContainSubstring("dynamo_servermgr_heartbeats_total 2"))
		Expect(body).To(ContainSubstring(`dynamo_scheduler_actions_total{status="done"} 1`))
		Expect(body).To(ContainSubstring("dynamo_scheduler_queue_depth 3"))
	})

	It("does not expose the default Go runtime metrics", func() {
		s := dstats.New()
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		Expect(rec.Body.String()).NotTo(ContainSubstring("go_goroutines"))
	})
})

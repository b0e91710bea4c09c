package config_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cpausmit/dynamo/internal/config"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

func writeConfig(t interface {
	TempDir() string
	Fatal(...any)
}, body string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "dynamo.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

var _ = Describe("Load", func() {
	It("parses the full key namespace", func() {
		path := writeConfig(GinkgoT(), `
master:
  module: bolt
  config:
    path: /var/lib/dynamo/master.db
shadow:
  module: bolt
  config:
    path: /var/lib/dynamo/shadow.db
board:
  module: bolt
  config:
    path: /var/lib/dynamo/board.db
registry:
  backend:
    interface: bolt
    config:
      path: /var/lib/dynamo/registry.db
inventory:
  persistency:
    module: bolt
    config:
      path: /var/lib/dynamo/inventory.db
user: dynamo
read_user: dynamoread
debug:
  included_:
    dataset: ["/a/b/c"]
  excluded_:
    site: ["T3_US"]
`)
		cfg, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Master.Module).To(Equal("bolt"))
		Expect(cfg.Master.Config["path"]).To(Equal("/var/lib/dynamo/master.db"))
		Expect(cfg.Shadow).NotTo(BeNil())
		Expect(cfg.Shadow.Config["path"]).To(Equal("/var/lib/dynamo/shadow.db"))
		Expect(cfg.Registry.Backend.Interface).To(Equal("bolt"))
		Expect(cfg.User).To(Equal("dynamo"))
		Expect(cfg.ReadUser).To(Equal("dynamoread"))
	})

	It("requires master.module", func() {
		path := writeConfig(GinkgoT(), "board:\n  module: bolt\n")
		_, err := config.Load(path)
		Expect(err).To(HaveOccurred())
	})

	It("requires board.module", func() {
		path := writeConfig(GinkgoT(), "master:\n  module: bolt\n")
		_, err := config.Load(path)
		Expect(err).To(HaveOccurred())
	})

	It("errors on a missing file", func() {
		_, err := config.Load("/nonexistent/dynamo.yaml")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("DebugConfig.Included", func() {
	It("defaults to included when no filter is configured for a kind", func() {
		d := config.DebugConfig{}
		Expect(d.Included("dataset", "/a/b/c")).To(BeTrue())
	})

	It("restricts to the included list when one is set", func() {
		d := config.DebugConfig{Included: map[string][]string{"dataset": {"/a/b/c"}}}
		Expect(d.Included("dataset", "/a/b/c")).To(BeTrue())
		Expect(d.Included("dataset", "/x/y/z")).To(BeFalse())
	})

	It("excluded always vetoes, even if also included", func() {
		d := config.DebugConfig{
			Included: map[string][]string{"site": {"T3_US"}},
			Excluded: map[string][]string{"site": {"T3_US"}},
		}
		Expect(d.Included("site", "T3_US")).To(BeFalse())
	})
})

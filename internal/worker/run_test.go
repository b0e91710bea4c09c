package worker_test

import (
	"context"
	"errors"
	"net"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cpausmit/dynamo/internal/catalog"
	"github.com/cpausmit/dynamo/internal/ipc"
	"github.com/cpausmit/dynamo/internal/worker"
)

var _ = Describe("Execute", func() {
	It("runs a read-only payload against the imported snapshot without a socket", func() {
		snap, err := catalog.MarshalSnapshot(seedCatalog().Export())
		Expect(err).NotTo(HaveOccurred())

		var sawBlock string
		payload := worker.PayloadFunc(func(ctx context.Context, wctx *worker.Context) error {
			Expect(wctx.ReadOnly).To(BeTrue())
			b, err := wctx.Inventory.FindBlock("/a/b/c", "block1")
			if err != nil {
				return err
			}
			sawBlock = b.Name
			return nil
		})

		err = worker.Execute(context.Background(), worker.RunConfig{ActionID: 1, Snapshot: snap, ReadOnly: true}, payload)
		Expect(err).NotTo(HaveOccurred())
		Expect(sawBlock).To(Equal("block1"))
	})

	It("streams a write payload's recorded commands over the socket", func() {
		snap, err := catalog.MarshalSnapshot(seedCatalog().Export())
		Expect(err).NotTo(HaveOccurred())

		socketPath := filepath.Join(GinkgoT().TempDir(), "action.sock")
		listener, err := net.Listen("unix", socketPath)
		Expect(err).NotTo(HaveOccurred())
		defer listener.Close()

		connCh := make(chan net.Conn, 1)
		go func() {
			conn, _ := listener.Accept()
			connCh <- conn
		}()

		payload := worker.PayloadFunc(func(ctx context.Context, wctx *worker.Context) error {
			return wctx.Inventory.Update(&catalog.Site{Name: "T3_US"})
		})

		execErr := make(chan error, 1)
		go func() {
			execErr <- worker.Execute(context.Background(), worker.RunConfig{
				ActionID: 1, Snapshot: snap, Socket: socketPath, ReadOnly: false,
			}, payload)
		}()

		var conn net.Conn
		Eventually(connCh, "1s").Should(Receive(&conn))
		defer conn.Close()

		state, commands := ipc.Drain(conn)
		Expect(state).To(Equal(ipc.ReadOK))
		Expect(commands).To(HaveLen(1))
		Expect(commands[0].Type).To(Equal("Site"))

		Expect(<-execErr).NotTo(HaveOccurred())
	})

	It("does not send end-of-message when a write payload fails", func() {
		snap, err := catalog.MarshalSnapshot(seedCatalog().Export())
		Expect(err).NotTo(HaveOccurred())

		socketPath := filepath.Join(GinkgoT().TempDir(), "action.sock")
		listener, err := net.Listen("unix", socketPath)
		Expect(err).NotTo(HaveOccurred())
		defer listener.Close()

		connCh := make(chan net.Conn, 1)
		go func() {
			conn, _ := listener.Accept()
			connCh <- conn
		}()

		boom := errors.New("boom")
		payload := worker.PayloadFunc(func(ctx context.Context, wctx *worker.Context) error {
			Expect(wctx.Inventory.Update(&catalog.Site{Name: "T3_US"})).To(Succeed())
			return boom
		})

		execErr := make(chan error, 1)
		go func() {
			execErr <- worker.Execute(context.Background(), worker.RunConfig{
				ActionID: 1, Snapshot: snap, Socket: socketPath, ReadOnly: false,
			}, payload)
		}()

		Expect(<-execErr).To(MatchError(boom))
		Consistently(connCh, "100ms").ShouldNot(Receive())
	})
})


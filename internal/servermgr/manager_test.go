package servermgr_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cpausmit/dynamo/internal/board"
	"github.com/cpausmit/dynamo/internal/dynerr"
	"github.com/cpausmit/dynamo/internal/master"
	"github.com/cpausmit/dynamo/internal/servermgr"
)

func TestServerManager(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ServerManager Suite")
}

type stubPeerClient struct {
	calls [][]board.Entry
	err   error
}

func (s *stubPeerClient) WriteUpdates(_ context.Context, entries []board.Entry) error {
	s.calls = append(s.calls, entries)
	return s.err
}

var _ = Describe("Manager.SetStatus", func() {
	var (
		ctx context.Context
		m   *servermgr.Manager
		ms  *master.MemStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		ms = master.NewMemStore()
		m = servermgr.NewManager(servermgr.Config{Hostname: "self", Master: ms, Board: board.NewMemBoard()})
	})

	It("sets and caches the new status", func() {
		Expect(m.SetStatus(ctx, master.StatusOnline)).To(Succeed())
		status, err := ms.Status(ctx, "self")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(master.StatusOnline))
	})

	It("refuses to leave OUTOFSYNC except through ResetStatus", func() {
		ms.AddHost("self", master.StatusOutOfSync, false, nil)

		err := m.SetStatus(ctx, master.StatusOnline)
		Expect(err).To(MatchError(dynerr.ErrOutOfSync))

		status, err := ms.Status(ctx, "self")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(master.StatusOutOfSync))
	})

	It("ResetStatus requires the host to actually be OUTOFSYNC", func() {
		ms.AddHost("self", master.StatusOnline, false, nil)
		Expect(m.ResetStatus(ctx)).To(HaveOccurred())
	})

	It("ResetStatus clears OUTOFSYNC back to INITIAL", func() {
		ms.AddHost("self", master.StatusOutOfSync, false, nil)
		Expect(m.ResetStatus(ctx)).To(Succeed())
		status, err := ms.Status(ctx, "self")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(master.StatusInitial))
	})
})

var _ = Describe("Manager.CheckStatus", func() {
	It("reports ErrOutOfSync when the master connection is down", func() {
		ms := master.NewMemStore()
		ms.SetHealthy(false)
		m := servermgr.NewManager(servermgr.Config{Hostname: "self", Master: ms, Board: board.NewMemBoard()})

		Expect(m.CheckStatus(context.Background())).To(MatchError(dynerr.ErrOutOfSync))
	})
})

var _ = Describe("Manager.SendUpdates", func() {
	var (
		ctx    context.Context
		ms     *master.MemStore
		client *stubPeerClient
		m      *servermgr.Manager
	)

	BeforeEach(func() {
		ctx = context.Background()
		ms = master.NewMemStore()
		ms.AddHost("self", master.StatusOnline, false, nil)
		ms.AddHost("peer1", master.StatusOnline, false, &master.BoardConfig{Module: "mem"})
		client = &stubPeerClient{}
		m = servermgr.NewManager(servermgr.Config{
			Hostname: "self",
			Master:   ms,
			Board:    board.NewMemBoard(),
			NewPeerClient: func(master.BoardConfig) servermgr.PeerClient {
				return client
			},
		})
	})

	It("sends the batch to every ONLINE peer exactly once", func() {
		entries := []board.Entry{{Cmd: board.CmdUpdate, Type: "block"}}
		Expect(m.SendUpdates(ctx, entries)).To(Succeed())
		Expect(client.calls).To(HaveLen(1))
		Expect(client.calls[0]).To(Equal(entries))
	})

	It("marks a peer OUTOFSYNC when its write fails", func() {
		client.err = context.DeadlineExceeded
		Expect(m.SendUpdates(ctx, []board.Entry{{Cmd: board.CmdUpdate}})).To(Succeed())

		status, err := ms.Status(ctx, "peer1")
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(master.StatusOutOfSync))
	})

	It("skips peers that are not ONLINE", func() {
		Expect(ms.SetStatus(ctx, "peer1", master.StatusStopped)).To(Succeed())
		Expect(m.SendUpdates(ctx, []board.Entry{{Cmd: board.CmdUpdate}})).To(Succeed())
		Expect(client.calls).To(BeEmpty())
	})
})

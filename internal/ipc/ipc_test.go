package ipc_test

import (
	"bytes"
	"net"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cpausmit/dynamo/internal/ipc"
)

func TestIPC(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "IPC Suite")
}

var _ = Describe("Message framing", func() {
	It("round-trips a message through WriteMessage/ReadMessage", func() {
		var buf bytes.Buffer
		in := ipc.Message{Cmd: ipc.CmdUpdate, Type: "block", Payload: []byte(`{"name":"blk1"}`)}
		Expect(ipc.WriteMessage(&buf, in)).To(Succeed())

		out, err := ipc.ReadMessage(&buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(in))
	})
})

var _ = Describe("Drain", func() {
	var client, server net.Conn

	BeforeEach(func() {
		client, server = net.Pipe()
	})

	AfterEach(func() {
		client.Close()
		server.Close()
	})

	It("returns ReadNothing when the writer has sent nothing yet", func() {
		done := make(chan struct{})
		var state ipc.ReadState
		go func() {
			state, _ = ipc.Drain(server)
			close(done)
		}()
		Eventually(done, time.Second).Should(BeClosed())
		Expect(state).To(Equal(ipc.ReadNothing))
	})

	It("collects every command up to the end-of-message sentinel", func() {
		go func() {
			w := ipc.NewWriter(client)
			_ = w.Send(ipc.CmdUpdate, "block", []byte(`{"name":"blk1"}`))
			_ = w.Send(ipc.CmdDelete, "file", []byte(`{"lfn":"f0"}`))
			_ = w.SendEndOfMessage()
		}()

		// Give the writer a moment to land its first message so Drain's
		// initial non-blocking read observes something.
		time.Sleep(20 * time.Millisecond)

		state, commands := ipc.Drain(server)
		Expect(state).To(Equal(ipc.ReadOK))
		Expect(commands).To(HaveLen(2))
		Expect(commands[0].Cmd).To(Equal(ipc.CmdUpdate))
		Expect(commands[1].Cmd).To(Equal(ipc.CmdDelete))
	})

	It("reports ReadFailure when the peer closes mid-stream", func() {
		go func() {
			w := ipc.NewWriter(client)
			_ = w.Send(ipc.CmdUpdate, "block", []byte(`{}`))
			client.Close()
		}()

		time.Sleep(20 * time.Millisecond)
		state, commands := ipc.Drain(server)
		Expect(state).To(Equal(ipc.ReadFailure))
		Expect(commands).To(HaveLen(1))
	})
})

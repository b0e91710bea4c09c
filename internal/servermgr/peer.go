package servermgr

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	jsoniter "github.com/json-iterator/go"

	"github.com/cpausmit/dynamo/internal/board"
	"github.com/cpausmit/dynamo/internal/master"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PeerClient writes a batch of update commands into a remote peer's
// update board. The wire format is deliberately not specified further by
// spec.md (§1 lists it as an external collaborator); FastHTTPPeerClient is
// the one concrete realization SPEC_FULL wires in, following the
// "long-lived HTTP for intra-cluster communication" role transport/base.go
// documents in the teacher.
type PeerClient interface {
	WriteUpdates(ctx context.Context, entries []board.Entry) error
}

// Peer is this manager's view of another host in the fleet.
type Peer struct {
	Hostname string
	HasStore bool
	Status   master.Status
	Client   PeerClient
}

// FastHTTPPeerClient POSTs a JSON-encoded batch to a peer's board-write
// endpoint.
type FastHTTPPeerClient struct {
	Addr   string // host:port
	Client *fasthttp.Client
}

func NewFastHTTPPeerClient(addr string) *FastHTTPPeerClient {
	return &FastHTTPPeerClient{Addr: addr, Client: &fasthttp.Client{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}}
}

func (c *FastHTTPPeerClient) WriteUpdates(ctx context.Context, entries []board.Entry) error {
	buf, err := json.Marshal(entries)
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fmt.Sprintf("http://%s/v1/board/updates", c.Addr))
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("X-Dynamo-Batch-Id", uuid.NewString())
	req.SetBody(buf)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(15 * time.Second)
	}

	if err := c.Client.DoDeadline(req, resp, deadline); err != nil {
		return err
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("peer %s: board write failed: status %d", c.Addr, resp.StatusCode())
	}
	return nil
}

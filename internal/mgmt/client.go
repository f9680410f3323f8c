// Package mgmt exposes the management command groups spoken over a
// transport: the generic request/response envelope plus the file-system
// group's chunked transfers.
package mgmt

import (
	"context"
	"sync"

	"github.com/danmuck/devlink/internal/protocol"
	"github.com/danmuck/devlink/internal/protocol/payload"
	"github.com/danmuck/devlink/internal/transport"
)

// Command group IDs from the management contract.
const (
	GroupDefault uint16 = 0
	GroupImage   uint16 = 1
	GroupStat    uint16 = 2
	GroupFS      uint16 = 8
)

// Command IDs within their groups.
const (
	CmdEcho        uint8 = 0
	CmdFile        uint8 = 0
	CmdImageUpload uint8 = 1
)

// Client issues single request/response commands over one transport,
// correlating replies by sequence number.
type Client struct {
	tr transport.Transport

	mu  sync.Mutex
	seq uint8
}

func NewClient(tr transport.Transport) *Client {
	return &Client{tr: tr}
}

func (c *Client) Transport() transport.Transport { return c.tr }

func (c *Client) nextSeq() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.seq
	c.seq++
	return v
}

// Call performs one command exchange and returns the decoded response. A
// non-zero rc is surfaced as *protocol.ReturnCodeError.
func (c *Client) Call(ctx context.Context, op uint8, group uint16, id uint8, doc payload.Document) (*protocol.Response, error) {
	seq := c.nextSeq()
	pkt, err := protocol.EncodeRequest(op, 0, group, seq, id, doc)
	if err != nil {
		return nil, err
	}
	resp, err := transport.Exchange(ctx, c.tr, pkt)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return resp, &protocol.ReturnCodeError{RC: resp.RC}
	}
	return resp, nil
}

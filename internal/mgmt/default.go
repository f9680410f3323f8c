package mgmt

import (
	"context"
	"fmt"

	"github.com/danmuck/devlink/internal/protocol/header"
	"github.com/danmuck/devlink/internal/protocol/payload"
)

// Echo sends msg to the default group's echo command and returns the
// device's reply text.
func (c *Client) Echo(ctx context.Context, msg string) (string, error) {
	doc := payload.Document{
		{Key: "d", Value: payload.Text(msg)},
	}
	resp, err := c.Call(ctx, header.OpWriteRequest, GroupDefault, CmdEcho, doc)
	if err != nil {
		return "", err
	}
	v, ok := resp.Doc.Get("r")
	if !ok {
		return "", fmt.Errorf("mgmt: echo response missing r field")
	}
	reply, err := v.Text()
	if err != nil {
		return "", fmt.Errorf("mgmt: echo response: %w", err)
	}
	return reply, nil
}

package mgmt

import (
	"context"

	"github.com/danmuck/devlink/internal/protocol/transfer"
)

// FileDownload starts downloading path from the device file system and
// returns the controller driving it. The controller is already running;
// the observer receives progress and exactly one terminal event.
func (c *Client) FileDownload(ctx context.Context, path string, obs transfer.DownloadObserver, cfg transfer.Config) (*transfer.Download, error) {
	d := transfer.NewDownload(c.tr, GroupFS, CmdFile, obs, cfg)
	if err := d.Start(ctx, path); err != nil {
		return nil, err
	}
	return d, nil
}

// FileUpload starts uploading data to path on the device file system.
func (c *Client) FileUpload(ctx context.Context, path string, data []byte, obs transfer.UploadObserver, cfg transfer.Config) (*transfer.Upload, error) {
	u := transfer.NewUpload(c.tr, GroupFS, CmdFile, obs, cfg)
	if err := u.Start(ctx, path, data); err != nil {
		return nil, err
	}
	return u, nil
}

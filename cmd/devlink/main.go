package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/devlink/internal/config"
	"github.com/danmuck/devlink/internal/logging"
	"github.com/danmuck/devlink/internal/mgmt"
	"github.com/danmuck/devlink/internal/protocol/transfer"
	"github.com/danmuck/devlink/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "devlink: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		cfgPath = flag.String("config", "", "path to devlink.toml")
		addr    = flag.String("addr", "", "device bridge address (host:port)")
	)
	flag.Usage = usage
	flag.Parse()
	logging.ConfigureRuntime()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Transport.Addr = *addr
	}
	if cfg.Transport.Addr == "" {
		usage()
		return fmt.Errorf("no device address configured")
	}
	args := flag.Args()
	if len(args) == 0 {
		usage()
		return fmt.Errorf("no command given")
	}

	scheme, err := config.ParseScheme(cfg.Transport.Scheme)
	if err != nil {
		return err
	}
	conn, err := net.Dial("tcp", cfg.Transport.Addr)
	if err != nil {
		return fmt.Errorf("dial device bridge: %w", err)
	}
	tr, err := transport.NewStream(conn, scheme, cfg.Transport.MTU)
	if err != nil {
		conn.Close()
		return err
	}
	defer tr.Close()

	client := mgmt.NewClient(tr)
	tcfg, err := cfg.TransferConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	switch args[0] {
	case "echo":
		if len(args) != 2 {
			return fmt.Errorf("usage: devlink echo <message>")
		}
		reply, err := client.Echo(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Println(reply)
		return nil
	case "download":
		if len(args) != 3 {
			return fmt.Errorf("usage: devlink download <remote-path> <local-file>")
		}
		return download(ctx, client, tcfg, args[1], args[2])
	case "upload":
		if len(args) != 3 {
			return fmt.Errorf("usage: devlink upload <local-file> <remote-path>")
		}
		return upload(ctx, client, tcfg, args[1], args[2])
	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func download(ctx context.Context, client *mgmt.Client, cfg transfer.Config, remote, local string) error {
	obs := newDownloadObserver()
	if _, err := client.FileDownload(ctx, remote, obs, cfg); err != nil {
		return err
	}
	data, err := obs.wait()
	if err != nil {
		return err
	}
	if err := os.WriteFile(local, data, 0o644); err != nil {
		return err
	}
	log.Info().Str("path", local).Int("bytes", len(data)).Msg("download written")
	return nil
}

func upload(ctx context.Context, client *mgmt.Client, cfg transfer.Config, local, remote string) error {
	data, err := os.ReadFile(local)
	if err != nil {
		return err
	}
	obs := newUploadObserver()
	if _, err := client.FileUpload(ctx, remote, data, obs, cfg); err != nil {
		return err
	}
	if err := obs.wait(); err != nil {
		return err
	}
	log.Info().Str("path", remote).Int("bytes", len(data)).Msg("upload complete")
	return nil
}

// cliObserver logs progress and resolves wait() on the terminal event.
type cliObserver struct {
	done chan struct{}
	data []byte
	err  error
}

func (o *cliObserver) OnProgress(current, total int64, ts time.Time) {
	if total > 0 {
		log.Info().Int64("current", current).Int64("total", total).Msg("progress")
	}
}

func (o *cliObserver) OnCancelled() {
	o.err = fmt.Errorf("transfer cancelled")
	close(o.done)
}

func (o *cliObserver) OnFailed(err error) {
	o.err = err
	close(o.done)
}

type downloadObserver struct{ cliObserver }

func newDownloadObserver() *downloadObserver {
	return &downloadObserver{cliObserver{done: make(chan struct{})}}
}

func (o *downloadObserver) OnCompleted(data []byte) {
	o.data = data
	close(o.done)
}

func (o *downloadObserver) wait() ([]byte, error) {
	<-o.done
	return o.data, o.err
}

type uploadObserver struct{ cliObserver }

func newUploadObserver() *uploadObserver {
	return &uploadObserver{cliObserver{done: make(chan struct{})}}
}

func (o *uploadObserver) OnCompleted() {
	close(o.done)
}

func (o *uploadObserver) wait() error {
	<-o.done
	return o.err
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: devlink [-config file] [-addr host:port] <command>

commands:
  echo <message>                      round-trip a message through the device
  download <remote-path> <local-file> fetch a file from the device
  upload <local-file> <remote-path>   push a file to the device
`)
	flag.PrintDefaults()
}

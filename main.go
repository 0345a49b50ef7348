// Command purple-youtube prints the live chat of a YouTube broadcast.
// It:
//   - Loads configuration from the environment (and .env) and initializes structured logging.
//   - Authorizes through the loopback OAuth2 PKCE flow when a client id is configured,
//     otherwise uses an API key.
//   - Resolves the stream (or a channel's newest live stream) and polls its chat,
//     printing each message to stdout.
//   - Optionally exposes /healthz, /readyz, /status, /metrics and /chat/stream, and
//     archives messages to Postgres or SQLite.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/csb6/purple-youtube/chat"
	"github.com/csb6/purple-youtube/client"
	"github.com/csb6/purple-youtube/config"
	"github.com/csb6/purple-youtube/db"
	"github.com/csb6/purple-youtube/server"
	"github.com/csb6/purple-youtube/telemetry"
	"github.com/csb6/purple-youtube/youtubeapi"
)

// Version is set via ldflags at build time.
var Version = "dev"

const archiveTimeout = 5 * time.Second

type options struct {
	channel    string
	forceOAuth bool
	noBrowser  bool
	httpAddr   string
	archiveDSN string
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:          "purple-youtube [stream_url]",
		Short:        "Print the live chat of a YouTube broadcast",
		Long:         `Connects to a YouTube live stream's chat and prints each message as it arrives. Set YT_API_KEY, or YT_CLIENT_ID/YT_CLIENT_SECRET to sign in through the browser.`,
		Version:      Version,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			streamURL := ""
			if len(args) == 1 {
				streamURL = args[0]
			}
			if err := validateTarget(streamURL, opts.channel); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			applyFlags(cmd, cfg, opts)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg, opts, streamURL, cmd.OutOrStdout())
		},
	}
	cmd.SetVersionTemplate("purple-youtube version {{.Version}}\n")
	f := cmd.Flags()
	f.StringVar(&opts.channel, "channel", "", "connect to the newest live stream of a channel handle (e.g. @name)")
	f.BoolVar(&opts.forceOAuth, "oauth", false, "sign in with OAuth even if YT_API_KEY is set")
	f.BoolVar(&opts.noBrowser, "no-browser", false, "print the authorization URL without opening a browser")
	f.StringVar(&opts.httpAddr, "http-addr", "", "address for the status server (overrides HTTP_ADDR)")
	f.StringVar(&opts.archiveDSN, "archive-dsn", "", "postgres:// URL or SQLite path to archive messages (overrides ARCHIVE_DSN)")
	return cmd
}

func validateTarget(streamURL, channel string) error {
	switch {
	case streamURL == "" && channel == "":
		return errors.New("give a stream URL or --channel")
	case streamURL != "" && channel != "":
		return errors.New("give either a stream URL or --channel, not both")
	}
	return nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config, opts options) {
	if opts.forceOAuth {
		cfg.ForceOAuth = true
	}
	if cmd.Flags().Changed("http-addr") {
		cfg.HTTPAddr = opts.httpAddr
	}
	if cmd.Flags().Changed("archive-dsn") {
		cfg.ArchiveDSN = opts.archiveDSN
	}
}

func run(parent context.Context, cfg *config.Config, opts options, streamURL string, out io.Writer) error {
	telemetry.Init()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := client.New(cfg, client.WithVersion(Version))
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			slog.Warn("client close", slog.Any("err", err))
		}
	}()

	var archive *db.Archive
	var history server.HistorySource
	if cfg.ArchiveDSN != "" {
		archive, err = db.Open(ctx, cfg.ArchiveDSN)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer archive.Close()
		history = archive
		slog.Info("archiving chat", slog.String("driver", archive.Driver()), slog.String("component", "db"))
	}

	hub := server.NewHub()
	if cfg.HTTPAddr != "" {
		go func() {
			if err := server.Start(ctx, cfg.HTTPAddr, server.NewMux(c, hub, history)); err != nil {
				slog.Error("status server stopped", slog.Any("err", err))
			}
		}()
	}

	if cfg.Mode() == config.AuthOAuth {
		if err := authorize(ctx, c, opts.noBrowser, out); err != nil {
			return err
		}
	}

	var info youtubeapi.StreamInfo
	if opts.channel != "" {
		info, err = c.ConnectChannel(ctx, opts.channel)
	} else {
		info, err = c.Connect(ctx, streamURL)
	}
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	fmt.Fprintf(out, "Connected to: %s\n\n", info.Title)
	if archive != nil {
		if err := archive.RecordStream(ctx, info.VideoID, info.Title, info.LiveChatID); err != nil {
			slog.Warn("archive stream failed", slog.Any("err", err), slog.String("component", "db"))
		}
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("shutting down")
			return nil
		case batch, ok := <-c.Messages():
			if !ok {
				return nil
			}
			printBatch(out, batch)
			hub.Publish(batch)
			if archive != nil {
				archiveBatch(ctx, archive, info.VideoID, batch)
			}
		case err, ok := <-c.Errors():
			if !ok {
				return nil
			}
			slog.Warn("chat error", slog.Any("err", err))
		}
	}
}

func authorize(ctx context.Context, c *client.Client, noBrowser bool, out io.Writer) error {
	authURL, err := c.AuthURL(ctx)
	if err != nil {
		return fmt.Errorf("start authorization: %w", err)
	}
	fmt.Fprintf(out, "Open this URL in your browser to authorize:\n%s\n\n", authURL)
	if !noBrowser {
		if err := openBrowser(authURL); err != nil {
			slog.Warn("could not open browser", slog.Any("err", err))
		}
	}
	if err := c.WaitAuthorized(ctx); err != nil {
		return fmt.Errorf("authorization: %w", err)
	}
	fmt.Fprintln(out, "Authorized.")
	return nil
}

func archiveBatch(ctx context.Context, archive *db.Archive, videoID string, batch []chat.Message) {
	actx, cancel := context.WithTimeout(ctx, archiveTimeout)
	defer cancel()
	err := archive.InsertBatch(actx, videoID, batch)
	telemetry.RecordArchive(err)
	if err != nil {
		slog.Warn("archive batch failed", slog.Any("err", err), slog.Int("messages", len(batch)), slog.String("component", "db"))
	}
}

func main() {
	// Load .env file if present (local dev convenience only)
	_ = godotenv.Load(".env")
	setupLogging()

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

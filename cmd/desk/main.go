package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/brandwork/desk/internal/auth"
	"github.com/brandwork/desk/internal/channel"
	"github.com/brandwork/desk/internal/channel/socketio"
	"github.com/brandwork/desk/internal/channel/wschannel"
	"github.com/brandwork/desk/internal/config"
	"github.com/brandwork/desk/internal/logger"
	"github.com/brandwork/desk/internal/session"
	sessionactor "github.com/brandwork/desk/internal/session/actor"
	"github.com/brandwork/desk/internal/store"
	"github.com/brandwork/desk/internal/store/redisstore"
	"github.com/brandwork/desk/internal/store/sqlitestore"
	"github.com/brandwork/desk/internal/upload"
	"github.com/brandwork/desk/internal/upload/httptransport"
)

const connectTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	opts, err := parseFlags(cfg, os.Args[1:])
	if err != nil {
		return err
	}
	if opts.help {
		printUsage()
		return nil
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	logger.Debugf("config: server=%s transport=%s store=%s home=%s", cfg.ServerURL, cfg.Transport, cfg.Store, cfg.DeskHome)

	tokens, err := auth.FromConfig(cfg.Token, cfg.JWTSecret, cfg.ClientID)
	if err != nil {
		return fmt.Errorf("failed to set up auth: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ch, closeChannel, err := openChannel(ctx, cfg, tokens)
	if err != nil {
		return err
	}
	defer closeChannel()

	transport := httptransport.New(cfg.UploadURL, httptransport.WithTokenSource(tokens))
	defer transport.Close()

	ctl, err := session.New(session.Options{
		Channel:   ch,
		Transport: transport,
		Policy: upload.DefaultPolicy{
			MaxBytes:     cfg.MaxUploadBytes,
			AllowedTypes: cfg.AllowedContentTypes,
		},
		Store:           st,
		QuestionTimeout: cfg.QuestionTimeout,
		OnDispatch: func(info sessionactor.DispatchInfo) {
			logger.Infof("dispatched task=%s resume=%t attachments=%d images=%d",
				info.TaskID, info.Resume, info.Attachments, info.Images)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer ctl.Close()

	if opts.taskID != "" {
		if err := ctl.SwitchTask(ctx, opts.taskID); err != nil {
			return err
		}
	}

	r := newREPL(ctl, os.Stdout)
	sub := ctl.Subscribe(r.onSnapshot)
	defer sub.Close()

	fmt.Fprintf(os.Stdout, "desk connected to %s. Type /help for commands.\n", cfg.ServerURL)
	return r.run(ctx, os.Stdin)
}

type flags struct {
	taskID string
	help   bool
}

func parseFlags(cfg *config.Config, args []string) (flags, error) {
	fs := flag.NewFlagSet("desk", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	server := fs.String("server", "", "Agent channel server URL")
	transport := fs.String("transport", "", "Channel transport (socketio|websocket)")
	storeKind := fs.String("store", "", "Task store (memory|sqlite|redis)")
	storeDSN := fs.String("store-dsn", "", "SQLite path or Redis URL")
	logLevel := fs.String("log-level", "", "Log level (trace|debug|info|warn|error)")
	taskID := fs.String("task", "", "Open a stored task on start")
	showHelp := fs.Bool("help", false, "Show help")

	if err := fs.Parse(args); err != nil {
		return flags{}, err
	}
	if *server != "" {
		cfg.ServerURL = *server
	}
	if *transport != "" {
		cfg.Transport = *transport
	}
	if *storeKind != "" {
		cfg.Store = *storeKind
	}
	if *storeDSN != "" {
		cfg.StoreDSN = *storeDSN
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return flags{}, err
	}
	return flags{taskID: *taskID, help: *showHelp}, nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	sealer, err := store.ParseSealKey(cfg.SealKey)
	if err != nil {
		return nil, err
	}
	switch cfg.Store {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		st, err := sqlitestore.Open(cfg.StoreDSN, sealer)
		if err != nil {
			return nil, fmt.Errorf("failed to open task store: %w", err)
		}
		return st, nil
	case "redis":
		st, err := redisstore.Open(cfg.StoreDSN, sealer)
		if err != nil {
			return nil, fmt.Errorf("failed to open task store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func openChannel(ctx context.Context, cfg *config.Config, tokens auth.TokenSource) (channel.Channel, func(), error) {
	switch cfg.Transport {
	case "websocket":
		url := strings.Replace(strings.TrimRight(cfg.ServerURL, "/"), "http", "ws", 1) + wschannel.Path
		dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		c, err := wschannel.Dial(dialCtx, url, tokens)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { _ = c.Close() }, nil
	default:
		c := socketio.NewClient(cfg.ServerURL, cfg.ClientID, tokens)
		if err := c.Connect(); err != nil {
			return nil, nil, err
		}
		if !c.WaitForConnect(connectTimeout) {
			_ = c.Close()
			return nil, nil, errors.New("timed out connecting to the agent channel")
		}
		return c, func() { _ = c.Close() }, nil
	}
}

func printUsage() {
	fmt.Println(`desk - chat with a creative agent from the terminal

Usage:
  desk [flags]

Flags:
  --server URL        Agent channel server (DESK_SERVER_URL)
  --transport NAME    socketio or websocket (DESK_TRANSPORT)
  --store NAME        memory, sqlite or redis (DESK_STORE)
  --store-dsn DSN     SQLite path or Redis URL (DESK_STORE_DSN)
  --log-level LEVEL   trace, debug, info, warn or error
  --task ID           Open a stored task on start
  --help              Show this help`)
	fmt.Println()
	fmt.Println(commandHelp)
}

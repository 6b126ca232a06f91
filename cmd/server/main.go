package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/tcpchat/internal/journal"
	"github.com/Tyrowin/tcpchat/internal/logger"
	"github.com/Tyrowin/tcpchat/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "chat server:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "Path to a YAML configuration file")
		host       = flag.String("host", "", "Listen address (default 127.0.0.1)")
		port       = flag.Int("port", 0, "Listen port (default 55555)")
		maxPending = flag.Int("max-pending", 0, "Connections allowed to wait for a username at once (default 5)")
		httpAddr   = flag.String("http", "", "Enable the HTTP/WebSocket surface on this address")
	)
	flag.Parse()

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = *host
		case "port":
			cfg.Port = *port
		case "max-pending":
			cfg.MaxPending = *maxPending
		case "http":
			cfg.HTTP.Addr = *httpAddr
			cfg.HTTP.Enabled = true
		}
	})
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.Init(cfg.Logging.Level, cfg.Logging.Format)

	store, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN)
	switch {
	case errors.Is(err, journal.ErrDisabled):
		store = nil
	case err != nil:
		return fmt.Errorf("open session journal: %w", err)
	default:
		log.Info("session journal enabled", "driver", cfg.Journal.Driver)
		defer store.Close()
	}

	opts := []server.Option{server.WithLogger(log)}
	if store != nil {
		opts = append(opts, server.WithJournal(store))
	}
	srv := server.New(*cfg, opts...)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("Chat server listening on %s (type \"exit\" or \"q\" to stop)\n", srv.Addr())

	g, gctx := errgroup.WithContext(ctx)

	var httpServer *http.Server
	if cfg.HTTP.Enabled {
		gin.SetMode(gin.ReleaseMode)
		httpServer = server.CreateServer(cfg.HTTP.Addr, server.SetupRoutes(srv, store))
		g.Go(func() error {
			log.Info("HTTP server listening", "addr", cfg.HTTP.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	// Stdin cannot be interrupted, so the command loop is not part of the group.
	go readCommands(os.Stdin, srv, cancel, log)

	g.Go(func() error {
		<-gctx.Done()
		var errs []error
		if err := srv.Shutdown(shutdownTimeout); err != nil {
			errs = append(errs, err)
		}
		if httpServer != nil {
			if err := server.ShutdownServer(httpServer, shutdownTimeout, log); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// readCommands handles owner commands typed on the server console.
func readCommands(r io.Reader, srv *server.Server, stop context.CancelFunc, log *slog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "":
		case "exit", "q":
			log.Info("stop requested from console")
			stop()
			return
		case "clients", "list":
			entries := srv.Registry().Snapshot()
			fmt.Printf("%d client(s) connected\n", len(entries))
			for _, entry := range entries {
				fmt.Printf("  %s  %s  since %s\n", entry.Username, entry.ID, entry.JoinedAt.Format(time.RFC3339))
			}
		default:
			fmt.Println(`Unknown command. Available: "clients", "exit" (or "q").`)
		}
	}
}

// Command chatsync is an interactive client for the conversation sync
// engine. It keeps a local session synchronized with a remote
// conversation service, restores the last active conversation at
// startup, and exposes the conversation list as navigable tabs.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/sitechat/chatsync/internal/config"
	"github.com/sitechat/chatsync/internal/directory"
	"github.com/sitechat/chatsync/internal/gateway"
	"github.com/sitechat/chatsync/internal/logging"
	"github.com/sitechat/chatsync/internal/monitoring"
	"github.com/sitechat/chatsync/internal/persist"
	"github.com/sitechat/chatsync/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "chatsync:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.LoadOrDefault()

	log, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	slotPath := cfg.Persist.Path
	if slotPath == "" {
		slotPath, err = persist.DefaultPath()
		if err != nil {
			return err
		}
	}
	adapter := persist.NewFile(slotPath)

	rps := 0.0
	if cfg.RateLimit.Enabled {
		rps = cfg.RateLimit.RequestsPerSecond
	}
	gw := gateway.NewHTTP(gateway.HTTPConfig{
		BaseURL:           cfg.Gateway.BaseURL,
		Timeout:           cfg.Gateway.Timeout,
		RetryMax:          cfg.Gateway.RetryMax,
		RetryWaitMin:      cfg.Gateway.RetryWaitMin,
		RetryWaitMax:      cfg.Gateway.RetryWaitMax,
		RequestsPerSecond: rps,
	}, log.Named("gateway"))

	metrics := monitoring.New(nil)
	store := session.New(gw, adapter, log.Named("session"), metrics)
	guard := session.NewGuard(store, adapter, log.Named("guard"), metrics)
	dir := directory.New(gw, store, log.Named("directory"), metrics)
	dir.Watch(store)

	ctx := context.Background()
	if err := guard.Observe(ctx); err != nil {
		log.Warn("initial auto-load failed", zap.Error(err))
	}
	if err := dir.Refresh(ctx); err != nil {
		log.Warn("initial refresh failed", zap.Error(err))
	}

	printSession(store)
	fmt.Println(`Type a message, or /list /open <id> /delete <id> /history /new /retry /quit`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return nil

		case line == "/list":
			for _, s := range dir.Summaries() {
				marker := " "
				if dir.IsActive(s.ID) {
					marker = "*"
				}
				fmt.Printf("%s %s  %s  %s\n", marker, s.ID, s.LastActivity.Format("2006-01-02 15:04"), s.Preview)
			}

		case strings.HasPrefix(line, "/open "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/open "))
			if err := store.Load(ctx, id); err != nil {
				fmt.Println("load failed:", err)
				continue
			}
			printSession(store)

		case strings.HasPrefix(line, "/delete "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/delete "))
			if err := dir.Delete(ctx, id); err != nil {
				fmt.Println("delete failed:", err)
				continue
			}
			printSession(store)

		case line == "/history":
			printSession(store)

		case line == "/new":
			store.Clear()
			fmt.Println("started a new chat")

		case line == "/retry":
			guard.Retry()
			if err := guard.Observe(ctx); err != nil {
				fmt.Println("auto-load failed:", err)
			} else {
				printSession(store)
			}

		default:
			if err := store.Send(ctx, line); err != nil {
				fmt.Println("send failed:", err)
				continue
			}
			msgs := store.Messages()
			if len(msgs) > 0 {
				last := msgs[len(msgs)-1]
				fmt.Printf("[%s] %s\n", last.Sender, last.Text)
			}
		}
	}
}

func printSession(store *session.Store) {
	if id := store.ActiveConversationID(); id != "" {
		fmt.Println("conversation:", id)
	} else {
		fmt.Println("no active conversation")
	}
	for _, m := range store.Messages() {
		fmt.Printf("[%s] %s\n", m.Sender, m.Text)
	}
}

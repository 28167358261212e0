// Command loadtest opens many anonymous chat sessions against a running
// server, lets the matcher group them and exchanges messages.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/johndosdos/haven/internal/chatclient"
	"github.com/johndosdos/haven/internal/event"
)

type stats struct {
	joined   atomic.Int64
	sent     atomic.Int64
	received atomic.Int64
	failed   atomic.Int64
}

func main() {
	base := flag.String("url", "http://localhost:8080", "server base URL")
	clients := flag.Int("clients", 20, "number of chat sessions")
	messages := flag.Int("messages", 5, "messages sent by each session")
	interval := flag.Duration("interval", 500*time.Millisecond, "delay between messages")
	timeout := flag.Duration("timeout", time.Minute, "overall time limit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	api := chatclient.NewAPI(*base, nil)
	wsURL := "ws" + strings.TrimPrefix(strings.TrimRight(*base, "/"), "http") + "/ws"

	var st stats
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	for i := range *clients {
		g.Go(func() error {
			if err := session(ctx, api, wsURL, *messages, *interval, &st); err != nil {
				st.failed.Add(1)
				slog.Warn("session failed", "client", i, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	fmt.Printf("clients=%d joined=%d sent=%d received=%d failed=%d elapsed=%s\n",
		*clients, st.joined.Load(), st.sent.Load(), st.received.Load(), st.failed.Load(),
		time.Since(start).Round(time.Millisecond))
}

func session(ctx context.Context, api *chatclient.API, wsURL string, n int, interval time.Duration, st *stats) error {
	sess, err := api.CreateSession(ctx)
	if err != nil {
		return err
	}

	joined := make(chan struct{}, 1)
	c, err := chatclient.NewChat(chatclient.Options{
		URL:       wsURL,
		SessionID: sess.ID,
		API:       api,
		OnState: func(s chatclient.State) {
			if s == chatclient.InGroup {
				select {
				case joined <- struct{}{}:
				default:
				}
			}
		},
		OnEvent: func(t event.Type, _ any) {
			if t == event.NewMessage {
				st.received.Add(1)
			}
		},
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(runCtx) }()

	select {
	case <-joined:
		st.joined.Add(1)
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}

	for i := range n {
		c.Keystroke()
		if err := c.Send(ctx, fmt.Sprintf("%s says hello #%d", c.Username(), i+1)); err != nil {
			return err
		}
		st.sent.Add(1)

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := c.Leave(ctx); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return nil
	}
}

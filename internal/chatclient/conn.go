package chatclient

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sethvargo/go-retry"

	"github.com/johndosdos/haven/internal/event"
)

const (
	writeTimeout = 10 * time.Second
	dialTimeout  = 10 * time.Second
	readLimit    = 1 << 20
)

// DefaultBackoff is used between reconnect attempts: exponential from 250ms,
// capped at 10s, with 20% jitter.
func DefaultBackoff() retry.Backoff {
	b := retry.NewExponential(250 * time.Millisecond)
	b = retry.WithJitterPercent(20, b)
	return retry.WithCappedDuration(10*time.Second, b)
}

// dial connects to rawURL, retrying with backoff until it succeeds or ctx ends.
func dial(ctx context.Context, rawURL string, backoff retry.Backoff) (*websocket.Conn, error) {
	var conn *websocket.Conn
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		dctx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()

		c, _, err := websocket.Dial(dctx, rawURL, nil)
		if err != nil {
			slog.DebugContext(ctx, "websocket dial failed", "error", err)
			return retry.RetryableError(&NetworkError{Op: "dial", Err: err})
		}
		c.SetReadLimit(readLimit)
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func write(ctx context.Context, conn *websocket.Conn, t event.Type, payload any) error {
	if conn == nil {
		return &NetworkError{Op: string(t), Err: ErrNotConnected}
	}
	env, err := event.New(t, payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, env); err != nil {
		return &NetworkError{Op: string(t), Err: err}
	}
	return nil
}

// read returns the next well-formed event. Malformed frames are skipped.
func read(ctx context.Context, conn *websocket.Conn) (event.Type, any, error) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return "", nil, err
		}
		if typ != websocket.MessageText {
			continue
		}

		env, payload, err := event.Decode(data)
		if err != nil {
			slog.WarnContext(ctx, "dropping malformed event", "error", err)
			continue
		}
		return env.Type, payload, nil
	}
}

// mergeByID adds in to list, which is kept sorted by id without duplicates.
func mergeByID[T any](list, in []T, id func(T) int64) []T {
	for _, item := range in {
		i, found := slices.BinarySearchFunc(list, id(item), func(e T, target int64) int {
			return cmp.Compare(id(e), target)
		})
		if found {
			continue
		}
		list = slices.Insert(list, i, item)
	}
	return list
}

func withQuery(rawURL, key, value string) string {
	if value == "" {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s%s=%s", rawURL, sep, key, url.QueryEscape(value))
}

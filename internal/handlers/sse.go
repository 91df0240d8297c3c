package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/example/machikart/internal/feed"
)

// HeartbeatInterval is how often an idle event stream sends a comment line.
var HeartbeatInterval = 15 * time.Second

type sseEvent struct {
	Name string
	Data any
}

// render turns a snapshot into an event. last ends the stream after the
// event is written.
type render[T any] func(feed.Snapshot[T]) (ev sseEvent, last bool)

// stream writes snapshots of sub as server-sent events until the client goes
// away, render reports the last event, or the subscription ends. The
// subscription is always cancelled when the stream stops.
func stream[T any](c *fiber.Ctx, sub *feed.Subscription[T], log *zap.Logger, fn render[T]) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	path := c.Path()
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer sub.Cancel()
		heartbeat := time.NewTicker(HeartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case snap, ok := <-sub.Updates():
				if !ok {
					return
				}
				ev, last := fn(snap)
				if err := writeEvent(w, ev); err != nil {
					log.Debug("event stream closed", zap.String("path", path), zap.Error(err))
					return
				}
				if last {
					return
				}
			case <-heartbeat.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					log.Debug("event stream closed", zap.String("path", path), zap.Error(err))
					return
				}
			}
		}
	}))
	return nil
}

func writeEvent(w *bufio.Writer, ev sseEvent) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data); err != nil {
		return err
	}
	return w.Flush()
}

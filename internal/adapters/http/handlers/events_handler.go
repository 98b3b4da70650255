package handlers

import (
	"bufio"
	"fmt"
	"log"
	"time"

	"school-library/internal/core/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
)

// EventsHandler streams circulation events as server-sent events
type EventsHandler struct {
	hub       *services.EventHub
	heartbeat time.Duration
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(hub *services.EventHub) *EventsHandler {
	return &EventsHandler{hub: hub, heartbeat: 30 * time.Second}
}

// DeskStream streams every circulation event to the desk
// @Summary Circulation desk event stream
// @Description Server-sent events for every loan and reservation change
// @Tags Events
// @Produce text/event-stream
// @Security BearerAuth
// @Success 200 {string} string "event stream"
// @Failure 403 {object} response.Response
// @Router /desk/events [get]
func (h *EventsHandler) DeskStream(c *fiber.Ctx) error {
	return h.stream(c, &services.Subscriber{Desk: true})
}

// MyStream streams events about the caller's own loans and reservations
// @Summary My event stream
// @Tags Events
// @Produce text/event-stream
// @Security BearerAuth
// @Success 200 {string} string "event stream"
// @Failure 403 {object} response.Response
// @Router /me/events [get]
func (h *EventsHandler) MyStream(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}
	if actor.MemberID == 0 {
		return fail(c, services.ErrNoLinkedMember, "")
	}
	return h.stream(c, &services.Subscriber{MemberID: actor.MemberID})
}

func (h *EventsHandler) stream(c *fiber.Ctx, sub *services.Subscriber) error {
	sub.ID = uuid.NewString()
	sub.Channel = make(chan services.Event, 50)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set(fiber.HeaderTransferEncoding, "chunked")

	// registered before the writer runs so nothing published in between is lost
	h.hub.Register(sub)

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer h.hub.Unregister(sub.ID)

		fmt.Fprintf(w, "event: connected\ndata: {\"stream_id\":%q}\n\n", sub.ID)
		if err := w.Flush(); err != nil {
			return
		}

		heartbeat := time.NewTicker(h.heartbeat)
		defer heartbeat.Stop()

		for {
			select {
			case event, ok := <-sub.Channel:
				if !ok {
					return
				}
				if err := writeEvent(w, event); err != nil {
					log.Printf("📡 Event stream %s disconnected: %v", sub.ID, err)
					return
				}

			case <-heartbeat.C:
				fmt.Fprint(w, ": heartbeat\n\n")
				if err := w.Flush(); err != nil {
					log.Printf("📡 Event stream %s disconnected", sub.ID)
					return
				}
			}
		}
	}))
	return nil
}

// writeEvent writes one event in text/event-stream framing and flushes it
func writeEvent(w *bufio.Writer, event services.Event) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Name, data); err != nil {
		return err
	}
	return w.Flush()
}

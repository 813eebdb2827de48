// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/propstream/propstream/internal/hub"
	"github.com/propstream/propstream/internal/identity"
	"github.com/propstream/propstream/pkg/errutil"
)

// connectionHandler runs one authenticated WebSocket connection. The write
// pump owns all socket writes; the read pump owns teardown through the hub
// connection's terminal hook.
type connectionHandler struct {
	socket  *websocket.Conn
	conn    *hub.Connection
	manager *hub.Manager
	stores  Stores
	logger  *slog.Logger
}

func newConnectionHandler(socket *websocket.Conn, id identity.Identity, manager *hub.Manager, stores Stores, logger *slog.Logger) *connectionHandler {
	return &connectionHandler{
		socket:  socket,
		conn:    hub.NewConnection(id, 0),
		manager: manager,
		stores:  stores,
		logger:  logger,
	}
}

// Handle enrolls the connection, pushes the manifest and pumps until the
// client goes away or the context is cancelled.
func (h *connectionHandler) Handle(ctx context.Context) {
	manifest := h.manager.OnConnect(h.conn)

	writeDone := make(chan struct{})
	go h.writePump(writeDone)

	established := hub.NewEvent(hub.EventConnectionEstablished, mustMarshal(manifest))
	if err := h.conn.Send(established); err != nil {
		h.logger.Warn("failed to queue connection-established event",
			"conn_id", h.conn.ID.String(),
			"error", err,
		)
	}

	go func() {
		select {
		case <-ctx.Done():
			h.manager.Disconnect(h.conn)
		case <-writeDone:
		}
	}()

	h.readPump(ctx)
	<-writeDone
}

// readPump consumes client requests until the socket errors. It is the only
// reader, and the only place the terminal hook fires for this connection.
func (h *connectionHandler) readPump(ctx context.Context) {
	defer h.manager.Disconnect(h.conn)

	h.socket.SetReadLimit(maxMessageSize)
	//nolint:errcheck // deadline on a fresh socket cannot fail
	h.socket.SetReadDeadline(time.Now().Add(pongWait))
	h.socket.SetPongHandler(func(string) error {
		return h.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req clientRequest
		if err := h.socket.ReadJSON(&req); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				h.reply(errorEvent(err))
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket read error",
					"conn_id", h.conn.ID.String(),
					"error", err,
				)
			}
			return
		}
		h.handleRequest(ctx, req)
	}
}

// writePump owns the socket: it drains the connection's event queue and
// keeps the client alive with pings. It exits when the event channel closes
// (terminal hook ran) or a write fails.
func (h *connectionHandler) writePump(done chan<- struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := h.socket.Close(); err != nil {
			h.logger.Debug("error closing socket", "error", err)
		}
		close(done)
	}()

	for {
		select {
		case event, ok := <-h.conn.Events():
			//nolint:errcheck // a failed deadline surfaces as a write error next
			h.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				//nolint:errcheck // the socket is going away
				h.socket.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := h.socket.WriteJSON(event); err != nil {
				h.logger.Debug("websocket write error",
					"conn_id", h.conn.ID.String(),
					"error", err,
				)
				return
			}
		case <-ticker.C:
			//nolint:errcheck // a failed deadline surfaces as a write error next
			h.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := h.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *connectionHandler) handleRequest(ctx context.Context, req clientRequest) {
	switch req.Type {
	case requestTopicsSubscribe:
		h.handleTopicsSubscribe(ctx, req.Data)
	case requestMarketSubscribe:
		h.handleMarketSubscribe(req.Data)
	case requestBookmark:
		h.handleBookmark(ctx, req.Data)
	case requestInquiry:
		h.handleInquiry(ctx, req.Data)
	case requestPing:
		h.reply(pongEvent())
	default:
		h.logger.Debug("unknown client request",
			"conn_id", h.conn.ID.String(),
			"type", req.Type,
		)
	}
}

func (h *connectionHandler) handleTopicsSubscribe(ctx context.Context, data json.RawMessage) {
	var body topicsSubscribeData
	if err := json.Unmarshal(data, &body); err != nil {
		h.reply(errorEvent(err))
		return
	}

	req := hub.TopicRequest{
		Regions:    body.Regions,
		Types:      body.Types,
		PriceRange: body.PriceRange,
	}
	rooms, err := h.manager.Subscribe(h.conn, req)
	if err != nil {
		errutil.LogError(h.logger, "topic subscription denied", err)
		h.reply(errorEvent(err))
		return
	}

	// The standing preference is a convenience for the next session; a
	// write failure must not undo the live subscription.
	if err := h.stores.Preferences.UpsertAlertFilter(ctx, h.conn.Identity.ID, req); err != nil {
		errutil.LogError(h.logger, "failed to persist alert preference", err)
	}

	h.reply(hub.NewEvent(eventTopicsSubscribed, mustMarshal(map[string]any{
		"rooms": rooms,
	})))
}

func (h *connectionHandler) handleMarketSubscribe(data json.RawMessage) {
	var body marketSubscribeData
	if err := json.Unmarshal(data, &body); err != nil {
		h.reply(errorEvent(err))
		return
	}

	rooms := h.manager.SubscribeMarket(h.conn, body.Regions)
	h.reply(hub.NewEvent(eventMarketSubscribed, mustMarshal(map[string]any{
		"rooms": rooms,
	})))
}

func (h *connectionHandler) handleBookmark(ctx context.Context, data json.RawMessage) {
	var body bookmarkData
	if err := json.Unmarshal(data, &body); err != nil {
		h.reply(errorEvent(err))
		return
	}

	var err error
	switch body.Action {
	case "add":
		err = h.stores.Bookmarks.Add(ctx, h.conn.Identity.ID, body.PropertyID)
	case "remove":
		err = h.stores.Bookmarks.Remove(ctx, h.conn.Identity.ID, body.PropertyID)
	default:
		h.reply(errorEvent(errors.New("bookmark action must be add or remove")))
		return
	}
	if err != nil {
		errutil.LogError(h.logger, "bookmark request failed", err)
		h.reply(errorEvent(err))
		return
	}

	h.reply(hub.NewEvent(eventBookmarkAck, mustMarshal(map[string]string{
		"action":     body.Action,
		"propertyId": body.PropertyID,
	})))
}

func (h *connectionHandler) handleInquiry(ctx context.Context, data json.RawMessage) {
	var body inquiryData
	if err := json.Unmarshal(data, &body); err != nil {
		h.reply(errorEvent(err))
		return
	}

	id, err := h.stores.Inquiries.Insert(ctx, h.conn.Identity.ID, body.PropertyID, body.Message)
	if err != nil {
		errutil.LogError(h.logger, "inquiry request failed", err)
		h.reply(errorEvent(err))
		return
	}

	h.reply(hub.NewEvent(eventInquiryAck, mustMarshal(map[string]string{
		"inquiryId":  id,
		"propertyId": body.PropertyID,
	})))
}

// reply queues an event through the connection so the write pump remains the
// sole socket writer. A full queue drops the ack like any other event.
func (h *connectionHandler) reply(event hub.Event) {
	if err := h.conn.Send(event); err != nil {
		h.logger.Debug("failed to queue reply",
			"conn_id", h.conn.ID.String(),
			"event_type", event.Type,
			"error", err,
		)
	}
}

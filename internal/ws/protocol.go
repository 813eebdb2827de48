// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

package ws

import (
	"encoding/json"
	"time"

	"github.com/samber/oops"

	"github.com/propstream/propstream/internal/hub"
)

// Client request types.
const (
	requestTopicsSubscribe = "topics:subscribe"
	requestMarketSubscribe = "market:subscribe"
	requestBookmark        = "property:bookmark"
	requestInquiry         = "property:inquiry"
	requestPing            = "ping"
)

// Acknowledgement and error event types, pushed alongside the hub's own
// event vocabulary.
const (
	eventTopicsSubscribed = "topics:subscribed"
	eventMarketSubscribed = "market:subscribed"
	eventBookmarkAck      = "property:bookmark:ack"
	eventInquiryAck       = "property:inquiry:ack"
	eventPong             = "pong"
	eventError            = "connection:error"
)

// clientRequest is the envelope of every client-to-server message.
type clientRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// topicsSubscribeData mirrors hub.TopicRequest on the wire.
type topicsSubscribeData struct {
	Regions    []string        `json:"regions"`
	Types      []string        `json:"types"`
	PriceRange *hub.PriceRange `json:"priceRange,omitempty"`
}

type marketSubscribeData struct {
	Regions []string `json:"regions"`
}

type bookmarkData struct {
	Action     string `json:"action"`
	PropertyID string `json:"propertyId"`
}

type inquiryData struct {
	PropertyID string `json:"propertyId"`
	Message    string `json:"message"`
}

// mustMarshal marshals a value that cannot fail (plain structs, no cycles).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// errorEvent converts a coded error into a connection:error event. Only the
// error code and message cross the wire; structured context stays in logs.
func errorEvent(cause error) hub.Event {
	code := "INTERNAL"
	if oopsErr, ok := oops.AsOops(cause); ok {
		if c, ok := oopsErr.Code().(string); ok && c != "" {
			code = c
		}
	}
	return hub.NewEvent(eventError, mustMarshal(map[string]string{
		"code":    code,
		"message": cause.Error(),
	}))
}

// pongEvent carries the server timestamp back to the client.
func pongEvent() hub.Event {
	return hub.NewEvent(eventPong, mustMarshal(map[string]time.Time{
		"serverTime": time.Now().UTC(),
	}))
}

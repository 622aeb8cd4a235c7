package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coder/websocket"

	"github.com/cse-psgtech/infinitum-helpdesk/internal/relay"
)

const (
	dialTimeout  = 10 * time.Second
	joinTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
)

func writeEnvelope(ctx context.Context, ws *websocket.Conn, env relay.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.Event, err)
	}

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	return ws.Write(wctx, websocket.MessageText, data)
}

func readEnvelope(ctx context.Context, ws *websocket.Conn) (relay.Envelope, error) {
	_, data, err := ws.Read(ctx)
	if err != nil {
		return relay.Envelope{}, err
	}

	var env relay.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return relay.Envelope{}, fmt.Errorf("decode relay frame: %w", err)
	}
	return env, nil
}

func errorMessage(env relay.Envelope) string {
	var p relay.ErrorPayload
	if err := json.Unmarshal(env.Data, &p); err != nil || p.Message == "" {
		return "unknown relay error"
	}
	return p.Message
}

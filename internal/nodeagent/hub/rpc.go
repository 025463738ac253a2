package hub

import (
	"context"
	"encoding/json"
	"maps"
	"time"

	"github.com/autopeer-io/nodeagent/internal/nodeagent/core"
	"github.com/autopeer-io/nodeagent/internal/pkg/mqtt/paths"
	"github.com/autopeer-io/nodeagent/pkg/log"
	mqtttopic "github.com/autopeer-io/nodeagent/pkg/mqtt/topic"
)

// rpcReplyTimeout bounds the reply publish. Replies use QoS 0 so the receive
// path never waits for an acknowledgement.
const rpcReplyTimeout = time.Second

type rpcRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type rpcError struct {
	Error string `json:"error"`
}

// SubscribeRPC replaces the method table and subscribes to RPC requests.
func (h *Hub) SubscribeRPC(ctx context.Context, methods map[string]core.RPCFunc) error {
	table := maps.Clone(methods)
	h.rpcMethods.Store(&table)

	return h.mc.Subscribe(ctx, h.topics.Wildcard(paths.RPCRequest), h.qos, h.onRPCRequest)
}

func (h *Hub) onRPCRequest(ctx context.Context, topic string, payload []byte) {
	id := mqtttopic.LastSegment(topic)

	var req rpcRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Warn("Discarding malformed RPC request", "topic", topic, "err", err)
		h.reply(ctx, id, rpcError{Error: "malformed request"})
		return
	}

	var fn core.RPCFunc
	if table := h.rpcMethods.Load(); table != nil {
		fn = (*table)[req.Method]
	}
	if fn == nil {
		log.Warn("RPC method not found", "method", req.Method)
		h.reply(ctx, id, rpcError{Error: "method not found"})
		return
	}

	resp, err := fn(ctx, req.Params)
	if err != nil {
		h.reply(ctx, id, rpcError{Error: err.Error()})
		return
	}
	h.reply(ctx, id, resp)
}

func (h *Hub) reply(ctx context.Context, id string, v any) {
	ctx, cancel := context.WithTimeout(ctx, rpcReplyTimeout)
	defer cancel()

	if err := h.SendJSON(ctx, core.EventRPCResponse, 0, v, id); err != nil {
		log.Error(err, "Failed to send RPC response", "request", id)
	}
}

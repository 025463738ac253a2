package hub

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/autopeer-io/nodeagent/internal/nodeagent/core"
	"github.com/autopeer-io/nodeagent/internal/pkg/mqtt/paths"
	"github.com/autopeer-io/nodeagent/pkg/log"
	mqtttopic "github.com/autopeer-io/nodeagent/pkg/mqtt/topic"
)

// RequestAttributes asks for the current shared values of keys and waits for
// the response or the request timeout.
func (h *Hub) RequestAttributes(ctx context.Context, keys []string) ([]byte, error) {
	if err := h.ensureResponses(ctx, h.topics.Wildcard(paths.AttributesResponse), h.onAttributeResponse); err != nil {
		return nil, err
	}

	id := strconv.FormatUint(h.seq.Add(1), 10)
	body := map[string]string{"sharedKeys": strings.Join(keys, ",")}

	return h.roundTrip(ctx, attributeKey(id), func(ctx context.Context) error {
		return h.SendJSON(ctx, core.EventAttributeRequest, h.qos, body, id)
	})
}

// RequestFirmwareChunk fetches packet index of a firmware transfer. The
// request payload is the packet size.
func (h *Hub) RequestFirmwareChunk(ctx context.Context, requestID string, index, size int) ([]byte, error) {
	if err := h.ensureResponses(ctx, h.topics.FirmwareChunkWildcard(paths.FirmwareResponse), h.onFirmwareChunk); err != nil {
		return nil, err
	}

	topic := h.topics.FirmwareChunk(paths.FirmwareRequest, requestID, index)
	return h.roundTrip(ctx, chunkKey(requestID, index), func(ctx context.Context) error {
		return h.mc.Publish(ctx, topic, h.qos, false, []byte(strconv.Itoa(size)))
	})
}

// roundTrip registers key, sends the request and waits for the matching reply.
func (h *Hub) roundTrip(ctx context.Context, key string, send func(ctx context.Context) error) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, h.requestTimeout)
	defer cancel()

	reply := make(chan []byte, 1)
	h.pending.Set(key, reply, 0)
	defer h.pending.Invalidate(key)

	if err := send(ctx); err != nil {
		return nil, fmt.Errorf("send request %s: %w", key, err)
	}

	select {
	case payload := <-reply:
		return payload, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("request %s: %w", key, ctx.Err())
	}
}

// resolve hands payload to the request waiting on key. Late or unknown
// replies are dropped.
func (h *Hub) resolve(key string, payload []byte) {
	h.pending.DeleteExpired()

	reply, ok := h.pending.Get(key)
	if !ok {
		log.Debug("Dropping unexpected response", "request", key)
		return
	}

	select {
	case reply <- payload:
	default:
		log.Debug("Dropping duplicate response", "request", key)
	}
}

func (h *Hub) onAttributeResponse(_ context.Context, topic string, payload []byte) {
	h.resolve(attributeKey(mqtttopic.LastSegment(topic)), payload)
}

func (h *Hub) onFirmwareChunk(_ context.Context, topic string, payload []byte) {
	id, index, err := mqtttopic.ParseFirmwareChunk(topic)
	if err != nil {
		log.Warn("Ignoring firmware response", "topic", topic, "err", err)
		return
	}
	h.resolve(chunkKey(id, index), payload)
}

// ensureResponses subscribes to a response filter once. The client restores
// the subscription after reconnects.
func (h *Hub) ensureResponses(ctx context.Context, filter string, handler func(context.Context, string, []byte)) error {
	h.subMu.Lock()
	defer h.subMu.Unlock()

	if h.responses[filter] {
		return nil
	}
	if err := h.mc.Subscribe(ctx, filter, h.qos, handler); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	h.responses[filter] = true
	return nil
}

func attributeKey(id string) string {
	return "attributes/" + id
}

func chunkKey(id string, index int) string {
	return fmt.Sprintf("firmware/%s/%d", id, index)
}

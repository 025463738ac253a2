package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/autopeer-io/nodeagent/internal/nodeagent/core"
	"github.com/autopeer-io/nodeagent/internal/pkg/metrics"
	"github.com/autopeer-io/nodeagent/pkg/log"
)

const (
	MethodGetJSON   = "getJson"
	MethodSetSwitch = "setSwitch"
)

var (
	// ErrUnknownMethod is returned by Dispatch for methods outside the fixed set.
	ErrUnknownMethod = errors.New("method not found")

	// ErrMissingParams is returned when a method requires params and none were sent.
	ErrMissingParams = errors.New("missing params")
)

// Subscriber registers RPC methods with the platform.
type Subscriber interface {
	SubscribeRPC(ctx context.Context, methods map[string]core.RPCFunc) error
}

// JSONData is the fixed getJson payload.
type JSONData struct {
	String string  `json:"string"`
	Int    int     `json:"int"`
	Float  float64 `json:"float"`
	Bool   bool    `json:"bool"`
}

type GetJSONResponse struct {
	Data JSONData `json:"json_data"`
}

// Dispatcher maps method names to handlers. The method set is fixed at construction.
type Dispatcher struct {
	output  core.Output
	methods map[string]core.RPCFunc
}

func NewDispatcher(output core.Output) *Dispatcher {
	d := &Dispatcher{output: output}
	d.methods = map[string]core.RPCFunc{
		MethodGetJSON:   d.getJSON,
		MethodSetSwitch: typed(d.setSwitch),
	}
	return d
}

// Methods returns the registered method names.
func (d *Dispatcher) Methods() []string {
	names := make([]string, 0, len(d.methods))
	for name := range d.methods {
		names = append(names, name)
	}
	return names
}

// Subscribe registers every method with the platform for the current session.
func (d *Dispatcher) Subscribe(ctx context.Context, platform Subscriber) error {
	methods := make(map[string]core.RPCFunc, len(d.methods))
	for name, fn := range d.methods {
		methods[name] = d.instrument(name, fn)
	}
	if err := platform.SubscribeRPC(ctx, methods); err != nil {
		return fmt.Errorf("subscribe rpc: %w", err)
	}
	return nil
}

// Dispatch runs method synchronously.
func (d *Dispatcher) Dispatch(ctx context.Context, method string, params []byte) (any, error) {
	fn, ok := d.methods[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
	return d.instrument(method, fn)(ctx, params)
}

func (d *Dispatcher) instrument(method string, fn core.RPCFunc) core.RPCFunc {
	return func(ctx context.Context, params []byte) (any, error) {
		resp, err := fn(ctx, params)
		metrics.RPCRequestsTotal.WithLabelValues(method, metrics.Result(err)).Inc()
		if err != nil {
			log.Warn("RPC call failed", "method", method, "err", err)
			return nil, err
		}
		log.Debug("RPC call handled", "method", method)
		return resp, nil
	}
}

func (d *Dispatcher) getJSON(context.Context, []byte) (any, error) {
	return GetJSONResponse{
		Data: JSONData{
			String: "exampleResponseString",
			Int:    5,
			Float:  5.0,
			Bool:   true,
		},
	}, nil
}

func (d *Dispatcher) setSwitch(_ context.Context, on *bool) (any, error) {
	if on == nil {
		return nil, ErrMissingParams
	}
	if err := d.output.SetOutput(*on); err != nil {
		return nil, fmt.Errorf("set output: %w", err)
	}
	log.Info("Output switched by RPC", "on", *on)
	return *on, nil
}

// typed decodes params into T before calling fn. Missing params decode to nil.
func typed[T any](fn func(ctx context.Context, params *T) (any, error)) core.RPCFunc {
	return func(ctx context.Context, params []byte) (any, error) {
		if len(params) == 0 || string(params) == "null" {
			return fn(ctx, nil)
		}
		v := new(T)
		if err := json.Unmarshal(params, v); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
		return fn(ctx, v)
	}
}

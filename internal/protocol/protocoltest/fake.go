// Package protocoltest provides an in-memory vent network for tests.
package protocoltest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// ErrUnreachable is returned for addresses with no vent behind them.
var ErrUnreachable = errors.New("protocoltest: no route to vent")

// Vent is the simulated state of one device.
type Vent struct {
	ID              string
	FirmwareVersion string
	UptimeS         int
	Angle           int
	StateCode       int
	Room            string
	Floor           string
	Name            string
	RSSI            int
	PollPeriodMs    int
	PowerCode       int
	FreeHeap        int
	BatteryMv       *int

	// Positional encodes responses as CBOR arrays instead of maps.
	Positional bool

	// Fail maps a resource path to the error returned for it. "*" matches all paths.
	Fail map[string]error

	// Delay is applied before every response; it honours context cancellation.
	Delay time.Duration
}

// NewVent returns a closed vent with simulator-like defaults.
func NewVent(id string) *Vent {
	return &Vent{
		ID:              id,
		FirmwareVersion: "0.1.0",
		Angle:           90,
		StateCode:       1,
		RSSI:            -55,
		PollPeriodMs:    1000,
		FreeHeap:        40000,
		Fail:            map[string]error{},
	}
}

// Call records one exchange.
type Call struct {
	Method  string
	Address string
	Path    string
	Payload map[uint64]any
}

// Network maps addresses to vents and implements protocol.Transport.
type Network struct {
	mu    sync.Mutex
	vents map[string]*Vent
	calls []Call

	inFlight    int
	maxInFlight int
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{vents: make(map[string]*Vent)}
}

// Add places v at address.
func (n *Network) Add(address string, v *Vent) *Vent {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.vents[address] = v
	return v
}

// Remove takes the vent at address off the network.
func (n *Network) Remove(address string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.vents, address)
}

// Vent returns a copy of the vent at address.
func (n *Network) Vent(address string) (Vent, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	v, ok := n.vents[address]
	if !ok {
		return Vent{}, false
	}
	return *v, true
}

// SetFailure makes every exchange with address on path fail with err.
func (n *Network) SetFailure(address, path string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if v, ok := n.vents[address]; ok {
		v.Fail[path] = err
	}
}

// Calls returns the recorded exchanges in order.
func (n *Network) Calls() []Call {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Call(nil), n.calls...)
}

// CallCount returns the number of exchanges for method ("" for all).
func (n *Network) CallCount(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, c := range n.calls {
		if method == "" || c.Method == method {
			count++
		}
	}
	return count
}

// MaxInFlight returns the highest number of concurrent exchanges observed.
func (n *Network) MaxInFlight() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.maxInFlight
}

// Get implements protocol.Transport.
func (n *Network) Get(ctx context.Context, address, path string) ([]byte, error) {
	return n.exchange(ctx, "GET", address, path, nil)
}

// Put implements protocol.Transport.
func (n *Network) Put(ctx context.Context, address, path string, payload []byte) ([]byte, error) {
	var body map[uint64]any
	if err := cbor.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("protocoltest: bad request payload: %w", err)
	}
	return n.exchange(ctx, "PUT", address, path, body)
}

func (n *Network) exchange(ctx context.Context, method, address, path string, body map[uint64]any) ([]byte, error) {
	n.mu.Lock()
	n.calls = append(n.calls, Call{Method: method, Address: address, Path: path, Payload: body})
	v, ok := n.vents[address]
	var delay time.Duration
	if ok {
		delay = v.Delay
	}
	n.inFlight++
	n.maxInFlight = max(n.maxInFlight, n.inFlight)
	n.mu.Unlock()

	defer func() {
		n.mu.Lock()
		n.inFlight--
		n.mu.Unlock()
	}()

	if !ok {
		return nil, ErrUnreachable
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if err := v.Fail[path]; err != nil {
		return nil, err
	}
	if err := v.Fail["*"]; err != nil {
		return nil, err
	}

	fields, err := v.handle(method, path, body)
	if err != nil {
		return nil, err
	}
	return v.encode(fields)
}

func (v *Vent) handle(method, path string, body map[uint64]any) ([]any, error) {
	switch {
	case path == "/vent/position" && method == "GET":
		return []any{v.Angle, v.StateCode}, nil
	case path == "/vent/target" && method == "PUT":
		prev := v.Angle
		if a, ok := asInt(body[0]); ok {
			v.Angle = min(max(a, 90), 180)
		}
		v.StateCode = stateCode(v.Angle)
		return []any{v.Angle, v.StateCode, prev}, nil
	case path == "/device/identity" && method == "GET":
		return []any{v.ID, v.FirmwareVersion, v.UptimeS}, nil
	case path == "/device/config" && method == "GET":
		return []any{v.Room, v.Floor, v.Name}, nil
	case path == "/device/config" && method == "PUT":
		if s, ok := body[0].(string); ok {
			v.Room = s
		}
		if s, ok := body[1].(string); ok {
			v.Floor = s
		}
		if s, ok := body[2].(string); ok {
			v.Name = s
		}
		return []any{v.Room, v.Floor, v.Name}, nil
	case path == "/device/health" && method == "GET":
		var battery any
		if v.BatteryMv != nil {
			battery = *v.BatteryMv
		}
		return []any{v.RSSI, v.PollPeriodMs, v.PowerCode, v.FreeHeap, battery}, nil
	default:
		return nil, fmt.Errorf("protocoltest: %s %s not found", method, path)
	}
}

func (v *Vent) encode(fields []any) ([]byte, error) {
	if v.Positional {
		return cbor.Marshal(fields)
	}
	m := make(map[uint64]any, len(fields))
	for i, f := range fields {
		m[uint64(i)] = f
	}
	return cbor.Marshal(m)
}

func stateCode(angle int) int {
	switch angle {
	case 90:
		return 1
	case 180:
		return 0
	default:
		return 2
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case uint64:
		return int(n), true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

package protocol

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/udp"
	"github.com/plgd-dev/go-coap/v3/udp/client"
)

// DefaultPort is the CoAP port appended to bare device addresses.
const DefaultPort = 5683

// Transport performs one request/response exchange with a device and
// returns the response payload. Implementations must be safe for concurrent
// use and must not retry beyond what the underlying protocol does.
type Transport interface {
	Get(ctx context.Context, address, path string) ([]byte, error)
	Put(ctx context.Context, address, path string, payload []byte) ([]byte, error)
}

// CoAPTransport talks confirmable CoAP over UDP. Retransmission is handled
// by go-coap; one connection is kept per device address.
type CoAPTransport struct {
	port int

	mu    sync.Mutex
	conns map[string]*client.Conn
}

// NewCoAPTransport creates a transport. port is used for addresses that do
// not carry one; 0 selects DefaultPort.
func NewCoAPTransport(port int) *CoAPTransport {
	if port == 0 {
		port = DefaultPort
	}
	return &CoAPTransport{port: port, conns: make(map[string]*client.Conn)}
}

// Get issues a GET for path.
func (t *CoAPTransport) Get(ctx context.Context, address, path string) ([]byte, error) {
	conn, target, err := t.conn(address)
	if err != nil {
		return nil, err
	}
	resp, err := conn.Get(ctx, path)
	if err != nil {
		t.drop(target, conn)
		return nil, exchangeErr(ctx, err)
	}
	return readResponse(resp.Code(), resp.ReadBody)
}

// Put issues a PUT for path with a CBOR payload.
func (t *CoAPTransport) Put(ctx context.Context, address, path string, payload []byte) ([]byte, error) {
	conn, target, err := t.conn(address)
	if err != nil {
		return nil, err
	}
	resp, err := conn.Put(ctx, path, message.AppCBOR, bytes.NewReader(payload))
	if err != nil {
		t.drop(target, conn)
		return nil, exchangeErr(ctx, err)
	}
	return readResponse(resp.Code(), resp.ReadBody)
}

// Close closes every cached connection.
func (t *CoAPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	for target, c := range t.conns {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(t.conns, target)
	}
	return errors.Join(errs...)
}

func (t *CoAPTransport) conn(address string) (*client.Conn, string, error) {
	target, err := ResolveAddress(address, t.port)
	if err != nil {
		return nil, "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.conns[target]; ok {
		select {
		case <-c.Done():
			delete(t.conns, target)
		default:
			return c, target, nil
		}
	}

	c, err := udp.Dial(target)
	if err != nil {
		return nil, "", fmt.Errorf("dialing %s: %w", target, err)
	}
	t.conns[target] = c
	return c, target, nil
}

// drop discards a connection after a failed exchange so the next call redials.
func (t *CoAPTransport) drop(target string, c *client.Conn) {
	t.mu.Lock()
	if t.conns[target] == c {
		delete(t.conns, target)
	}
	t.mu.Unlock()
	_ = c.Close() //nolint:errcheck // already failed
}

func exchangeErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

func readResponse(code codes.Code, body func() ([]byte, error)) ([]byte, error) {
	if !isSuccess(code) {
		return nil, fmt.Errorf("%w: %v", ErrNonSuccess, code)
	}
	payload, err := body()
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return payload, nil
}

// isSuccess reports a 2.xx response class.
func isSuccess(code codes.Code) bool {
	return code>>5 == 2
}

// ResolveAddress turns a device address into a dialable host:port.
// "fd00::1" becomes "[fd00::1]:5683"; "[::1]:15683" and "host:port" are kept.
func ResolveAddress(address string, port int) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", errors.New("empty device address")
	}
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address, nil
	}
	host := strings.TrimSuffix(strings.TrimPrefix(address, "["), "]")
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

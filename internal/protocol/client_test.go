package protocol

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/venthub/internal/device"
	"github.com/nerrad567/venthub/internal/protocol/protocoltest"
)

const addr = "fd00::1"

func newTestClient(t *testing.T) (*Client, *protocoltest.Network, *protocoltest.Vent) {
	t.Helper()
	net := protocoltest.NewNetwork()
	v := net.Add(addr, protocoltest.NewVent("00124b0001abcdef"))
	return NewClient(net, time.Second), net, v
}

func TestClient_Probe(t *testing.T) {
	client, _, v := newTestClient(t)
	mv := 3600
	v.Angle, v.StateCode = 135, 2
	v.Room, v.Floor, v.Name = "kitchen", "1", "window"
	v.PowerCode, v.BatteryMv = 1, &mv
	v.FirmwareVersion = "0.2.0"

	d, err := client.Probe(context.Background(), addr)
	require.NoError(t, err)

	assert.Equal(t, "00124b0001abcdef", d.ID)
	assert.Equal(t, addr, d.Address)
	assert.Equal(t, "kitchen", d.Room)
	assert.Equal(t, "window", d.Name)
	assert.Equal(t, 135, d.Angle)
	assert.Equal(t, device.StatePartial, d.State)
	assert.Equal(t, "0.2.0", d.FirmwareVersion)
	assert.Equal(t, device.PowerBattery, d.PowerSource)
	require.NotNil(t, d.BatteryMv)
	assert.Equal(t, 3600, *d.BatteryMv)
}

func TestClient_ProbePositionalPayloads(t *testing.T) {
	client, _, v := newTestClient(t)
	v.Positional = true
	v.Angle, v.StateCode = 180, 0

	d, err := client.Probe(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, 180, d.Angle)
	assert.Equal(t, device.StateOpen, d.State)
	assert.Nil(t, d.BatteryMv)
}

func TestClient_ProbeIsAllOrNothing(t *testing.T) {
	for _, path := range []string{PathIdentity, PathPosition, PathConfig, PathHealth} {
		t.Run(path, func(t *testing.T) {
			client, net, _ := newTestClient(t)
			net.SetFailure(addr, path, errors.New("4.04 not found"))

			d, err := client.Probe(context.Background(), addr)
			assert.Nil(t, d)

			var pe *ProtocolError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, addr, pe.Address)
		})
	}
}

// stubTransport answers every exchange with a fixed payload.
type stubTransport struct {
	payload []byte
	err     error
	sent    []byte
}

func (s *stubTransport) Get(context.Context, string, string) ([]byte, error) {
	return s.payload, s.err
}

func (s *stubTransport) Put(_ context.Context, _, _ string, payload []byte) ([]byte, error) {
	s.sent = payload
	return s.payload, s.err
}

func TestClient_AbsentFieldsTakeDefaults(t *testing.T) {
	empty, err := cbor.Marshal(map[uint64]any{})
	require.NoError(t, err)
	client := NewClient(&stubTransport{payload: empty}, time.Second)
	ctx := context.Background()

	pos, err := client.GetPosition(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, Position{Angle: 90, State: device.StateClosed}, pos)

	cfg, err := client.GetConfig(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)

	health, err := client.GetHealth(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, device.PowerUSB, health.PowerSource)
	assert.Nil(t, health.BatteryMv)

	_, err = client.GetIdentity(ctx, addr)
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestClient_WireValuesNormalised(t *testing.T) {
	payload, err := cbor.Marshal(map[uint64]any{0: 250, 1: 1})
	require.NoError(t, err)
	client := NewClient(&stubTransport{payload: payload}, time.Second)

	pos, err := client.GetPosition(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, 180, pos.Angle)
	assert.Equal(t, device.StateOpen, pos.State)
}

func TestClient_SetTargetClampsBeforeSending(t *testing.T) {
	tests := []struct {
		requested, sent int
	}{
		{999, 180},
		{-50, 90},
		{135, 135},
	}
	for _, tt := range tests {
		client, net, _ := newTestClient(t)

		ack, err := client.SetTarget(context.Background(), addr, tt.requested)
		require.NoError(t, err)
		assert.Equal(t, tt.sent, ack.Angle)
		assert.Equal(t, 90, ack.PreviousAngle)

		calls := net.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, PathTarget, calls[0].Path)
		assert.EqualValues(t, tt.sent, calls[0].Payload[0])
	}
}

func TestClient_ConfigRoundTrip(t *testing.T) {
	client, _, _ := newTestClient(t)
	ctx := context.Background()
	room, floor, name := "kitchen", "1", "x"

	got, err := client.SetConfig(ctx, addr, ConfigUpdate{Room: &room, Floor: &floor, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, Config{Room: "kitchen", Floor: "1", Name: "x"}, got)

	cfg, err := client.GetConfig(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, Config{Room: "kitchen", Floor: "1", Name: "x"}, cfg)
}

func TestClient_SetConfigSendsOnlyGivenFields(t *testing.T) {
	stub := &stubTransport{}
	stub.payload, _ = cbor.Marshal(map[uint64]any{0: "hall"})
	client := NewClient(stub, time.Second)
	room := "hall"

	_, err := client.SetConfig(context.Background(), addr, ConfigUpdate{Room: &room})
	require.NoError(t, err)

	var sent map[uint64]string
	require.NoError(t, cbor.Unmarshal(stub.sent, &sent))
	assert.Equal(t, map[uint64]string{0: "hall"}, sent)
}

func TestClient_Timeout(t *testing.T) {
	net := protocoltest.NewNetwork()
	v := net.Add(addr, protocoltest.NewVent("a1"))
	v.Delay = time.Second
	client := NewClient(net, 20*time.Millisecond)

	start := time.Now()
	_, err := client.GetPosition(context.Background(), addr)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "getPosition", pe.Op)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, net.CallCount(""), "no client-side retry")
}

func TestClient_UnreachableAddress(t *testing.T) {
	client, _, _ := newTestClient(t)
	_, err := client.GetHealth(context.Background(), "fd00::dead")

	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "fd00::dead", pe.Address)
	assert.ErrorIs(t, err, protocoltest.ErrUnreachable)
}

func TestClient_MalformedPayload(t *testing.T) {
	client := NewClient(&stubTransport{payload: []byte{0x01}}, time.Second)
	_, err := client.GetPosition(context.Background(), addr)
	assert.ErrorIs(t, err, ErrDecode)
}

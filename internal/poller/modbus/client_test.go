package modbus

import (
	"errors"
	"io"
	"testing"

	"github.com/goburrow/modbus"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/plcpoll/internal/poller"
)

type call struct {
	fn   string
	addr uint16
	qty  uint16
	data []byte
}

type fakeClient struct {
	calls []call
	resp  []byte
	err   error
}

func (f *fakeClient) read(fn string, addr, qty uint16) ([]byte, error) {
	f.calls = append(f.calls, call{fn: fn, addr: addr, qty: qty})
	return f.resp, f.err
}

func (f *fakeClient) ReadCoils(addr, qty uint16) ([]byte, error) {
	return f.read("coils", addr, qty)
}

func (f *fakeClient) ReadDiscreteInputs(addr, qty uint16) ([]byte, error) {
	return f.read("discrete", addr, qty)
}

func (f *fakeClient) ReadHoldingRegisters(addr, qty uint16) ([]byte, error) {
	return f.read("holding", addr, qty)
}

func (f *fakeClient) WriteMultipleCoils(addr, qty uint16, value []byte) ([]byte, error) {
	f.calls = append(f.calls, call{fn: "write coils", addr: addr, qty: qty, data: value})
	return nil, f.err
}

func (f *fakeClient) WriteMultipleRegisters(addr, qty uint16, value []byte) ([]byte, error) {
	f.calls = append(f.calls, call{fn: "write holding", addr: addr, qty: qty, data: value})
	return nil, f.err
}

type fakeHandler struct{ closed int }

func (h *fakeHandler) Connect() error { return nil }
func (h *fakeHandler) Close() error   { h.closed++; return nil }

func newTestConn() (*Conn, *fakeClient, *fakeHandler) {
	fc := &fakeClient{}
	fh := &fakeHandler{}
	return newConn(fh, fc, "test", nil), fc, fh
}

func TestRead_DataBlockMapsToHoldingRegisters(t *testing.T) {
	c, fc, _ := newTestConn()
	fc.resp = []byte{0x12, 0x34, 0x56, 0x78}

	data, err := c.Read(poller.AreaDataBlock, 2, 4, 6)
	require.NoError(t, err)
	require.Equal(t, []byte{0x12, 0x34, 0x56, 0x78}, data)
	require.Equal(t, []call{{fn: "holding", addr: 2*BlockStride + 3, qty: 2}}, fc.calls)
}

func TestRead_BitAreas(t *testing.T) {
	c, fc, _ := newTestConn()
	fc.resp = []byte{0xAA, 0x55}

	data, err := c.Read(poller.AreaInputs, 0, 2, 3)
	require.NoError(t, err)
	require.Equal(t, []byte{0xAA, 0x55}, data)

	_, err = c.Read(poller.AreaOutputs, 0, 2, 1)
	require.NoError(t, err)

	require.Equal(t, []call{
		{fn: "discrete", addr: 24, qty: 16},
		{fn: "coils", addr: 8, qty: 16},
	}, fc.calls)
}

func TestFlags_MapToHoldingWindowZero(t *testing.T) {
	c, fc, _ := newTestConn()
	fc.resp = []byte{1, 2}

	_, err := c.Read(poller.AreaFlags, 0, 2, 10)
	require.NoError(t, err)
	require.NoError(t, c.Write(poller.AreaFlags, 0, 4, []byte{0, 7}))

	require.Equal(t, []call{
		{fn: "holding", addr: 5, qty: 1},
		{fn: "write holding", addr: 2, qty: 1, data: []byte{0, 7}},
	}, fc.calls)
}

func TestRead_RejectsUnsupportedGeometry(t *testing.T) {
	c, fc, _ := newTestConn()

	for name, tc := range map[string]struct {
		area   poller.Area
		length int
		offset int
	}{
		"odd offset":          {poller.AreaDataBlock, 2, 1},
		"odd length":          {poller.AreaDataBlock, 3, 0},
		"counters":            {poller.AreaCounters, 2, 0},
		"timers":              {poller.AreaTimers, 2, 0},
		"too many":            {poller.AreaDataBlock, 2 * (maxReadRegisters + 1), 0},
		"zero length":         {poller.AreaInputs, 0, 0},
		"flags beyond window": {poller.AreaFlags, 2, 2 * BlockStride},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := c.Read(tc.area, 1, tc.length, tc.offset)
			var pe *poller.ProtocolError
			require.ErrorAs(t, err, &pe)
		})
	}
	require.Empty(t, fc.calls)
}

func TestRead_ModbusExceptionIsProtocolError(t *testing.T) {
	c, fc, _ := newTestConn()
	fc.err = &modbus.ModbusError{FunctionCode: 3, ExceptionCode: modbus.ExceptionCodeIllegalDataAddress}

	_, err := c.Read(poller.AreaDataBlock, 1, 2, 0)
	var pe *poller.ProtocolError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, uint16(modbus.ExceptionCodeIllegalDataAddress), pe.Code())
}

func TestRead_TransportErrorPassesThrough(t *testing.T) {
	c, fc, _ := newTestConn()
	fc.err = io.ErrUnexpectedEOF

	_, err := c.Read(poller.AreaDataBlock, 1, 2, 0)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	var pe *poller.ProtocolError
	require.False(t, errors.As(err, &pe))
}

func TestRead_ShortResponse(t *testing.T) {
	c, fc, _ := newTestConn()
	fc.resp = []byte{1}

	_, err := c.Read(poller.AreaDataBlock, 1, 2, 0)
	require.Error(t, err)
	var pe *poller.ProtocolError
	require.False(t, errors.As(err, &pe))
}

func TestWrite(t *testing.T) {
	c, fc, _ := newTestConn()

	require.NoError(t, c.Write(poller.AreaDataBlock, 9, 4, []byte{0, 1, 0, 2}))
	require.NoError(t, c.Write(poller.AreaOutputs, 0, 1, []byte{0x0F}))

	require.Equal(t, []call{
		{fn: "write holding", addr: 9*BlockStride + 2, qty: 2, data: []byte{0, 1, 0, 2}},
		{fn: "write coils", addr: 8, qty: 8, data: []byte{0x0F}},
	}, fc.calls)

	var pe *poller.ProtocolError
	require.ErrorAs(t, c.Write(poller.AreaInputs, 0, 0, []byte{0, 0}), &pe)
	require.ErrorAs(t, c.Write(poller.AreaDataBlock, 0, 0, []byte{0, 0}), &pe, "no DB0")
}

func TestClose(t *testing.T) {
	c, _, fh := newTestConn()

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.Equal(t, 1, fh.closed)

	_, err := c.Read(poller.AreaDataBlock, 1, 2, 0)
	require.Error(t, err)
}

func TestDial_Validation(t *testing.T) {
	_, err := Dial(Config{}, nil)
	require.Error(t, err)

	_, err = Dial(Config{Address: "127.0.0.1:1", Transport: "udp"}, nil)
	require.Error(t, err)
}

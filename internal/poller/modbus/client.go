// internal/poller/modbus/client.go
package modbus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/joeycumines/logiface"

	"github.com/tamzrod/plcpoll/internal/poller"
)

// BlockStride is the number of holding registers reserved per data block.
// DB n starts at register n*BlockStride. Window 0 holds the flag area (M),
// so data blocks are numbered from 1.
const BlockStride = 1024

// Modbus PDU quantity limits.
const (
	maxReadBits      = 2000
	maxReadRegisters = 125
	maxWriteBits     = 1968
	maxWriteRegs     = 123
)

// Transport selects the goburrow client handler.
const (
	TransportTCP = "tcp"
	TransportRTU = "rtu"
)

// Config is minimal transport config.
type Config struct {
	Transport string
	// Address is host:port for tcp, the serial device for rtu.
	Address string
	UnitID  uint8
	Timeout time.Duration

	// rtu only
	BaudRate int
	DataBits int
	Parity   string
	StopBits int
}

// client is the subset of modbus.Client a Conn uses.
type client interface {
	ReadCoils(address, quantity uint16) ([]byte, error)
	ReadDiscreteInputs(address, quantity uint16) ([]byte, error)
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	WriteMultipleCoils(address, quantity uint16, value []byte) ([]byte, error)
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
}

// handler is the connection side of a goburrow client handler.
type handler interface {
	Connect() error
	Close() error
}

// Conn implements poller.Connection over Modbus.
// It serializes requests: the goburrow client is not safe for concurrent use.
type Conn struct {
	mu      sync.Mutex
	handler handler
	client  client
	log     *logiface.Logger[logiface.Event]
	addr    string
}

// Dial connects once. A failure is returned as-is; the scheduler
// decides when to try again.
func Dial(cfg Config, log *logiface.Logger[logiface.Event]) (*Conn, error) {
	if cfg.Address == "" {
		return nil, errors.New("modbus client: address required")
	}

	var (
		h handler
		c modbus.Client
	)
	switch cfg.Transport {
	case "", TransportTCP:
		th := modbus.NewTCPClientHandler(cfg.Address)
		th.Timeout = cfg.Timeout
		th.SlaveId = cfg.UnitID
		h, c = th, modbus.NewClient(th)
	case TransportRTU:
		rh := modbus.NewRTUClientHandler(cfg.Address)
		rh.Timeout = cfg.Timeout
		rh.SlaveId = cfg.UnitID
		if cfg.BaudRate > 0 {
			rh.BaudRate = cfg.BaudRate
		}
		if cfg.DataBits > 0 {
			rh.DataBits = cfg.DataBits
		}
		if cfg.Parity != "" {
			rh.Parity = cfg.Parity
		}
		if cfg.StopBits > 0 {
			rh.StopBits = cfg.StopBits
		}
		h, c = rh, modbus.NewClient(rh)
	default:
		return nil, fmt.Errorf("modbus client: unknown transport %q", cfg.Transport)
	}

	if err := h.Connect(); err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("modbus client: connect %s: %w", cfg.Address, err)
	}

	log.Debug().
		Str("address", cfg.Address).
		Str("transport", cfg.Transport).
		Int("unit", int(cfg.UnitID)).
		Log("modbus connected")

	return newConn(h, c, cfg.Address, log), nil
}

func newConn(h handler, c client, addr string, log *logiface.Logger[logiface.Event]) *Conn {
	return &Conn{handler: h, client: c, addr: addr, log: log}
}

// Close closes the underlying handler.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handler == nil {
		return nil
	}
	err := c.handler.Close()
	c.handler = nil
	c.log.Debug().Str("address", c.addr).Log("modbus closed")
	return err
}

// ---- poller.Connection ----

func (c *Conn) Read(area poller.Area, areaNumber, length, offset int) ([]byte, error) {
	t, err := resolve(area, areaNumber, offset, length, false)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handler == nil {
		return nil, errors.New("modbus client: not connected")
	}

	var data []byte
	switch t.kind {
	case holding:
		data, err = c.client.ReadHoldingRegisters(t.addr, t.qty)
	case discrete:
		data, err = c.client.ReadDiscreteInputs(t.addr, t.qty)
	case coils:
		data, err = c.client.ReadCoils(t.addr, t.qty)
	}
	if err != nil {
		return nil, translate("read", err)
	}
	if len(data) < length {
		return nil, fmt.Errorf("modbus client: short response: got=%d want=%d", len(data), length)
	}
	return data[:length], nil
}

func (c *Conn) Write(area poller.Area, areaNumber, offset int, data []byte) error {
	t, err := resolve(area, areaNumber, offset, len(data), true)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handler == nil {
		return errors.New("modbus client: not connected")
	}

	switch t.kind {
	case holding:
		_, err = c.client.WriteMultipleRegisters(t.addr, t.qty, data)
	case coils:
		_, err = c.client.WriteMultipleCoils(t.addr, t.qty, data)
	}
	return translate("write", err)
}

// ---- area mapping (pure geometry) ----

type kind uint8

const (
	holding kind = iota + 1
	discrete
	coils
)

type target struct {
	kind kind
	addr uint16
	qty  uint16
}

// resolve maps an S7 area access onto a Modbus table. Geometry the device
// could never serve is reported as a protocol error so it stays item-scoped.
func resolve(area poller.Area, areaNumber, offset, length int, write bool) (target, error) {
	op := "read"
	if write {
		op = "write"
	}
	reject := func(format string, args ...any) (target, error) {
		return target{}, poller.NewProtocolError(op, 0, fmt.Errorf(format, args...))
	}

	if offset < 0 || length <= 0 || areaNumber < 0 {
		return reject("invalid geometry %d/%d/%d", areaNumber, offset, length)
	}

	var (
		t     target
		start int
		limit int
	)
	switch area {
	case poller.AreaDataBlock, poller.AreaFlags:
		if offset%2 != 0 || length%2 != 0 {
			return reject("%s access must be word aligned (offset=%d length=%d)", area, offset, length)
		}
		if offset/2+length/2 > BlockStride {
			return reject("%s access beyond %d registers", area, BlockStride)
		}
		t.kind, start = holding, offset/2
		if area == poller.AreaDataBlock {
			if areaNumber < 1 {
				return reject("DB%d does not exist", areaNumber)
			}
			start += areaNumber * BlockStride
		}
		t.qty = uint16(min(length/2, 0xFFFF))
		limit = maxReadRegisters
		if write {
			limit = maxWriteRegs
		}
	case poller.AreaInputs:
		if write {
			return reject("area %s is read only", area)
		}
		t.kind, start, limit = discrete, offset*8, maxReadBits
		t.qty = uint16(min(length*8, 0xFFFF))
	case poller.AreaOutputs:
		t.kind, start, limit = coils, offset*8, maxReadBits
		if write {
			limit = maxWriteBits
		}
		t.qty = uint16(min(length*8, 0xFFFF))
	default:
		return reject("area %s not supported", area)
	}

	if int(t.qty) > limit {
		return reject("quantity %d exceeds %d", t.qty, limit)
	}
	if start+int(t.qty) > 0x10000 {
		return reject("address %d out of range", start)
	}
	t.addr = uint16(start)
	return t, nil
}

// translate keeps device exceptions item-scoped. Everything else goes
// up unchanged and counts as a transport fault.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var me *modbus.ModbusError
	if errors.As(err, &me) {
		return poller.NewProtocolError(op, uint16(me.ExceptionCode), err)
	}
	return err
}

// internal/pool/builder.go
package pool

import (
	"fmt"
	"time"

	"github.com/joeycumines/logiface"

	cfg "github.com/tamzrod/plcpoll/internal/config"
	"github.com/tamzrod/plcpoll/internal/poller"
	pmodbus "github.com/tamzrod/plcpoll/internal/poller/modbus"
)

// KeyOf derives the pool identity of a configured endpoint.
// Assumes config has already been normalized.
func KeyOf(e cfg.EndpointConfig) (EndpointKey, error) {
	fam, err := poller.ParseFamily(e.Family)
	if err != nil {
		return EndpointKey{}, fmt.Errorf("pool: endpoint %q: %w", e.ID, err)
	}
	return EndpointKey{
		Host:   e.Host,
		Family: fam,
		Rack:   e.Rack,
		Slot:   e.Slot,
		Port:   e.Port,
	}, nil
}

// TransportConfig is the Modbus transport for one endpoint.
func TransportConfig(e cfg.EndpointConfig) pmodbus.Config {
	addr := e.Host
	if e.Transport != pmodbus.TransportRTU {
		addr = fmt.Sprintf("%s:%d", e.Host, e.Port)
	}
	return pmodbus.Config{
		Transport: e.Transport,
		Address:   addr,
		UnitID:    uint8(e.Slot),
		Timeout:   time.Duration(e.TimeoutMs) * time.Millisecond,
		BaudRate:  e.Serial.BaudRate,
		DataBits:  e.Serial.DataBits,
		Parity:    e.Serial.Parity,
		StopBits:  e.Serial.StopBits,
	}
}

// ModbusDialer builds a DialFunc for every endpoint in the config.
// Endpoints sharing a key share the transport settings of the first one.
func ModbusDialer(endpoints []cfg.EndpointConfig, log *logiface.Logger[logiface.Event]) (DialFunc, error) {
	transports := make(map[EndpointKey]pmodbus.Config, len(endpoints))
	for _, e := range endpoints {
		key, err := KeyOf(e)
		if err != nil {
			return nil, err
		}
		if _, ok := transports[key]; ok {
			continue
		}
		transports[key] = TransportConfig(e)
	}

	// dial: ONE attempt per call
	return func(key EndpointKey) (poller.Connection, error) {
		tc, ok := transports[key]
		if !ok {
			return nil, fmt.Errorf("pool: no transport for endpoint %s", key)
		}
		c, err := pmodbus.Dial(tc, log)
		if err != nil {
			return nil, err
		}
		return c, nil
	}, nil
}

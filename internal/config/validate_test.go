// internal/config/validate_test.go
package config

import "testing"

// helper to build an endpoint quickly
func endpoint(id, host string, items ...ItemConfig) EndpointConfig {
	return EndpointConfig{
		ID:     id,
		Host:   host,
		Family: "S7-1200",
		Slot:   1,
		Items:  items,
	}
}

func db(number, offset, length int) ItemConfig {
	return ItemConfig{
		Area:       "DB",
		AreaNumber: number,
		Offset:     offset,
		Length:     length,
	}
}

func cfgOf(eps ...EndpointConfig) *Config {
	return &Config{Endpoints: eps}
}

// ---- tests ----

func TestValidate_NoOverlapDifferentHosts(t *testing.T) {
	cfg := cfgOf(
		endpoint("e1", "10.0.0.1", db(1, 0, 10)),
		endpoint("e2", "10.0.0.2", db(1, 0, 10)),
	)

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_NoOverlapDifferentBlocks(t *testing.T) {
	cfg := cfgOf(
		endpoint("e1", "10.0.0.1", db(1, 0, 10), db(2, 0, 10)),
	)

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_NoOverlapDifferentAreas(t *testing.T) {
	m := db(0, 0, 10)
	m.Area = "M"

	cfg := cfgOf(
		endpoint("e1", "10.0.0.1", db(1, 0, 10), m),
	)

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_TouchingRangesAllowed(t *testing.T) {
	cfg := cfgOf(
		endpoint("e1", "10.0.0.1", db(1, 0, 10)),  // 0–9
		endpoint("e2", "10.0.0.1", db(1, 10, 10)), // 10–19, same PLC
	)

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_OverlapDetected(t *testing.T) {
	cfg := cfgOf(
		endpoint("e1", "10.0.0.1", db(1, 0, 10), db(1, 5, 10)), // 0–9, 5–14
	)

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected overlap error, got nil")
	}
}

func TestValidate_OverlapAcrossSharedConnectionDetected(t *testing.T) {
	e2 := endpoint("e2", "10.0.0.1", db(1, 4, 2))
	e2.Port = 502 // same as the default

	cfg := cfgOf(
		endpoint("e1", "10.0.0.1", db(1, 0, 10)),
		e2,
	)

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected overlap error, got nil")
	}
}

func TestValidate_StatusBlockOverlapDetected(t *testing.T) {
	e := endpoint("e1", "10.0.0.1", db(9, 38, 2))
	e.Status = &StatusConfig{Area: "DB", AreaNumber: 9, Offset: 0}

	if err := Validate(cfgOf(e)); err == nil {
		t.Fatalf("expected status overlap error, got nil")
	}

	e.Items = []ItemConfig{db(9, 40, 2)}
	if err := Validate(cfgOf(e)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_StatusMustBeWordAlignedDB(t *testing.T) {
	e := endpoint("e1", "10.0.0.1")

	e.Status = &StatusConfig{Area: "M", Offset: 0}
	if err := Validate(cfgOf(e)); err == nil {
		t.Fatalf("expected error for status in M")
	}

	e.Status = &StatusConfig{Area: "DB", AreaNumber: 1, Offset: 3}
	if err := Validate(cfgOf(e)); err == nil {
		t.Fatalf("expected error for odd status offset")
	}
}

func TestValidate_MirrorTargets(t *testing.T) {
	src := db(1, 0, 4)
	src.Mirror = &MirrorConfig{Endpoint: "e2", Area: "DB", AreaNumber: 5, Offset: 0}

	ok := cfgOf(
		endpoint("e1", "10.0.0.1", src),
		endpoint("e2", "10.0.0.2"),
	)
	if err := Validate(ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	missing := db(1, 0, 4)
	missing.Mirror = &MirrorConfig{Endpoint: "nope", Area: "DB"}
	if err := Validate(cfgOf(endpoint("e1", "10.0.0.1", missing))); err == nil {
		t.Fatalf("expected error for unknown mirror endpoint")
	}

	readOnly := db(1, 0, 4)
	readOnly.Mirror = &MirrorConfig{Area: "I"}
	if err := Validate(cfgOf(endpoint("e1", "10.0.0.1", readOnly))); err == nil {
		t.Fatalf("expected error for read-only mirror area")
	}

	flags := db(1, 0, 4)
	flags.Mirror = &MirrorConfig{Area: "M", Offset: 100}
	if err := Validate(cfgOf(endpoint("e1", "10.0.0.1", flags))); err != nil {
		t.Fatalf("unexpected error for flag mirror: %v", err)
	}

	// mirroring onto a polled region of the same PLC
	loop := db(1, 0, 4)
	loop.Mirror = &MirrorConfig{Area: "DB", AreaNumber: 1, Offset: 2}
	if err := Validate(cfgOf(endpoint("e1", "10.0.0.1", loop))); err == nil {
		t.Fatalf("expected overlap error for mirror onto polled range")
	}
}

func TestValidate_EndpointFields(t *testing.T) {
	cases := map[string]func(e *EndpointConfig){
		"missing id":     func(e *EndpointConfig) { e.ID = "" },
		"missing host":   func(e *EndpointConfig) { e.Host = "" },
		"bad family":     func(e *EndpointConfig) { e.Family = "S5" },
		"bad transport":  func(e *EndpointConfig) { e.Transport = "udp" },
		"bad port":       func(e *EndpointConfig) { e.Port = 70000 },
		"neg interval":   func(e *EndpointConfig) { e.Poll.IntervalMs = -1 },
		"non-ascii name": func(e *EndpointConfig) { e.DeviceName = "presse-ü" },
		"bad area":       func(e *EndpointConfig) { e.Items = []ItemConfig{{Area: "X", Length: 1}} },
		"zero length":    func(e *EndpointConfig) { e.Items = []ItemConfig{db(1, 0, 0)} },
		"db zero":        func(e *EndpointConfig) { e.Items = []ItemConfig{db(0, 0, 2)} },
		"status db zero": func(e *EndpointConfig) { e.Status = &StatusConfig{Area: "DB"} },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			e := endpoint("e1", "10.0.0.1", db(1, 0, 2))
			mutate(&e)
			if err := Validate(cfgOf(e)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestValidate_DuplicateID(t *testing.T) {
	cfg := cfgOf(
		endpoint("e1", "10.0.0.1"),
		endpoint("e1", "10.0.0.2"),
	)

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected duplicate id error, got nil")
	}
}

func TestValidate_Empty(t *testing.T) {
	if err := Validate(&Config{}); err == nil {
		t.Fatalf("expected error for empty config")
	}
}

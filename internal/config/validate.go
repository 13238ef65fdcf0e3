// internal/config/validate.go
package config

import (
	"fmt"
	"strings"

	"github.com/tamzrod/plcpoll/internal/poller"
	"github.com/tamzrod/plcpoll/internal/status"
)

var logLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "notice": true,
	"warning": true, "error": true, "critical": true,
}

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}

	if cfg.Log.Level != "" && !logLevels[strings.ToLower(cfg.Log.Level)] {
		return fmt.Errorf("log: unknown level %q", cfg.Log.Level)
	}

	if len(cfg.Endpoints) == 0 {
		return fmt.Errorf("config: no endpoints defined")
	}

	type span struct {
		start int
		end   int // exclusive
		owner string
	}

	byID := make(map[string]EndpointConfig)

	// key = physical endpoint | area | area number
	spans := make(map[string][]span)

	claim := func(key string, s span) error {
		for _, prev := range spans[key] {
			if s.start < prev.end && prev.start < s.end {
				return fmt.Errorf(
					"memory overlap: %s range=%d-%d (%s) overlaps with range=%d-%d (%s)",
					key,
					s.start,
					s.end-1,
					s.owner,
					prev.start,
					prev.end-1,
					prev.owner,
				)
			}
		}
		spans[key] = append(spans[key], s)
		return nil
	}

	for _, e := range cfg.Endpoints {
		// ------------------------------------------------------------
		// ENDPOINT IDENTITY
		// ------------------------------------------------------------

		if e.ID == "" {
			return fmt.Errorf("endpoint: id required")
		}
		if _, dup := byID[e.ID]; dup {
			return fmt.Errorf("endpoint %q: duplicate id", e.ID)
		}
		byID[e.ID] = e

		if e.Host == "" {
			return fmt.Errorf("endpoint %q: host required", e.ID)
		}

		switch e.Transport {
		case "", "tcp", "rtu":
		default:
			return fmt.Errorf("endpoint %q: unknown transport %q", e.ID, e.Transport)
		}

		if _, err := poller.ParseFamily(e.Family); err != nil {
			return fmt.Errorf("endpoint %q: %w", e.ID, err)
		}

		if e.Port < 0 || e.Port > 65535 {
			return fmt.Errorf("endpoint %q: port %d out of range", e.ID, e.Port)
		}
		if e.Rack < 0 || e.Slot < 0 || e.Slot > 255 {
			return fmt.Errorf("endpoint %q: invalid rack/slot %d/%d", e.ID, e.Rack, e.Slot)
		}
		if e.TimeoutMs < 0 {
			return fmt.Errorf("endpoint %q: timeout_ms must be >= 0", e.ID)
		}
		if e.Poll.IntervalMs < 0 {
			return fmt.Errorf("endpoint %q: poll.interval_ms must be >= 0", e.ID)
		}

		// device_name sanity (ASCII only)
		for i := 0; i < len(e.DeviceName); i++ {
			if e.DeviceName[i] > 0x7F {
				return fmt.Errorf("endpoint %q: device_name must contain ASCII characters only", e.ID)
			}
		}

		phys := physicalKey(e)

		// ------------------------------------------------------------
		// ITEM GEOMETRY
		// ------------------------------------------------------------

		for i, it := range e.Items {
			area, err := poller.ParseArea(it.Area)
			if err != nil {
				return fmt.Errorf("endpoint %q item %d: %w", e.ID, i, err)
			}
			if it.Length <= 0 {
				return fmt.Errorf("endpoint %q item %d: length must be > 0", e.ID, i)
			}
			if it.Offset < 0 || it.AreaNumber < 0 {
				return fmt.Errorf("endpoint %q item %d: offset and area_number must be >= 0", e.ID, i)
			}
			if err := checkBlock(area, it.AreaNumber); err != nil {
				return fmt.Errorf("endpoint %q item %d: %w", e.ID, i, err)
			}

			owner := fmt.Sprintf("%s/%s", e.ID, itemLabel(it, i))
			key := fmt.Sprintf("%s|%s%d", phys, area, it.AreaNumber)
			if err := claim(key, span{start: it.Offset, end: it.Offset + it.Length, owner: owner}); err != nil {
				return err
			}
		}

		// ------------------------------------------------------------
		// DEVICE STATUS BLOCK (OPT-IN)
		// ------------------------------------------------------------

		if e.Status == nil {
			continue
		}

		area, err := poller.ParseArea(e.Status.Area)
		if err != nil {
			return fmt.Errorf("endpoint %q status: %w", e.ID, err)
		}
		if area != poller.AreaDataBlock {
			return fmt.Errorf("endpoint %q status: block must live in a DB, got %s", e.ID, area)
		}
		if e.Status.Offset < 0 || e.Status.Offset%2 != 0 || e.Status.AreaNumber < 0 {
			return fmt.Errorf("endpoint %q status: offset must be even and >= 0", e.ID)
		}
		if err := checkBlock(area, e.Status.AreaNumber); err != nil {
			return fmt.Errorf("endpoint %q status: %w", e.ID, err)
		}

		key := fmt.Sprintf("%s|%s%d", phys, area, e.Status.AreaNumber)
		if err := claim(key, span{
			start: e.Status.Offset,
			end:   e.Status.Offset + status.BlockBytes,
			owner: e.ID + "/status",
		}); err != nil {
			return err
		}
	}

	// ------------------------------------------------------------
	// MIRROR DESTINATIONS
	// ------------------------------------------------------------

	for _, e := range cfg.Endpoints {
		for i, it := range e.Items {
			m := it.Mirror
			if m == nil {
				continue
			}

			dstID := m.Endpoint
			if dstID == "" {
				dstID = e.ID
			}
			dst, ok := byID[dstID]
			if !ok {
				return fmt.Errorf("endpoint %q item %d: mirror endpoint %q not defined", e.ID, i, dstID)
			}

			area, err := poller.ParseArea(m.Area)
			if err != nil {
				return fmt.Errorf("endpoint %q item %d mirror: %w", e.ID, i, err)
			}
			if area != poller.AreaDataBlock && area != poller.AreaOutputs && area != poller.AreaFlags {
				return fmt.Errorf("endpoint %q item %d mirror: area %s is not writable", e.ID, i, area)
			}
			if m.Offset < 0 || m.AreaNumber < 0 {
				return fmt.Errorf("endpoint %q item %d mirror: offset and area_number must be >= 0", e.ID, i)
			}
			if err := checkBlock(area, m.AreaNumber); err != nil {
				return fmt.Errorf("endpoint %q item %d mirror: %w", e.ID, i, err)
			}

			key := fmt.Sprintf("%s|%s%d", physicalKey(dst), area, m.AreaNumber)
			if err := claim(key, span{
				start: m.Offset,
				end:   m.Offset + it.Length,
				owner: fmt.Sprintf("%s/%s mirror", e.ID, itemLabel(it, i)),
			}); err != nil {
				return err
			}
		}
	}

	return nil
}

// checkBlock rejects DB0. Register window 0 belongs to the flag area.
func checkBlock(area poller.Area, number int) error {
	if area == poller.AreaDataBlock && number < 1 {
		return fmt.Errorf("data block number must be >= 1, got %d", number)
	}
	return nil
}

// physicalKey mirrors the pool identity, with defaults applied.
func physicalKey(e EndpointConfig) string {
	port := e.Port
	if port == 0 && (e.Transport == "" || e.Transport == DefaultTransport) {
		port = DefaultPort
	}
	fam, _ := poller.ParseFamily(e.Family)
	return fmt.Sprintf("%s:%d/%s/r%d/s%d", e.Host, port, fam, e.Rack, e.Slot)
}

func itemLabel(it ItemConfig, i int) string {
	if it.Name != "" {
		return it.Name
	}
	return fmt.Sprintf("item[%d]", i)
}

// internal/config/normalize.go
package config

import "github.com/tamzrod/plcpoll/internal/status"

const (
	DefaultPort       = 502
	DefaultTimeoutMs  = 2000
	DefaultIntervalMs = 1000
	DefaultTransport  = "tcp"
	DefaultLogLevel   = "info"
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}

	for i := range cfg.Endpoints {
		e := &cfg.Endpoints[i]

		if e.Transport == "" {
			e.Transport = DefaultTransport
		}
		if e.Port == 0 && e.Transport == DefaultTransport {
			e.Port = DefaultPort
		}
		if e.TimeoutMs == 0 {
			e.TimeoutMs = DefaultTimeoutMs
		}
		if e.Poll.IntervalMs == 0 {
			e.Poll.IntervalMs = DefaultIntervalMs
		}

		// device_name is ASCII (validated); truncate to what the block holds
		if len(e.DeviceName) > status.DeviceNameMaxChars {
			e.DeviceName = e.DeviceName[:status.DeviceNameMaxChars]
		}
	}
}

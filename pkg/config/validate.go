package config

import (
	"fmt"
	"time"
)

// Defaults for instruments that leave settings empty
const (
	DefaultSerialBaud     = 9600
	DefaultReadTimeout    = time.Second
	DefaultReplayInterval = 50 * time.Millisecond
)

// ApplyDefaults fills in unset instrument fields
func (c *ConfigData) ApplyDefaults() {
	for i := range c.Instruments {
		in := &c.Instruments[i]
		if in.Type == "" {
			switch {
			case in.ReplayFile != "":
				in.Type = "replay"
			case in.SerialDevice != "":
				in.Type = "serial"
			default:
				in.Type = "network"
			}
		}
		if in.Type == "serial" && in.Baud == 0 {
			in.Baud = DefaultSerialBaud
		}
		if in.Scale == 0 {
			in.Scale = 1
		}
		if in.ReplayColumn == "" {
			switch in.Channel {
			case "flow":
				in.ReplayColumn = "Flow SLPM"
			case "co2":
				in.ReplayColumn = "CO2 ppm"
			}
		}
	}
}

// Validate checks the configuration for settings that cannot work
func (c *ConfigData) Validate() error {
	seen := make(map[string]bool)
	for _, in := range c.Instruments {
		if in.Name == "" {
			return fmt.Errorf("instrument without a name")
		}
		if seen[in.Name] {
			return fmt.Errorf("instrument [%s] defined more than once", in.Name)
		}
		seen[in.Name] = true

		if in.Channel != "flow" && in.Channel != "co2" {
			return fmt.Errorf("instrument [%s] has unknown channel %q", in.Name, in.Channel)
		}
		switch in.Type {
		case "network":
			if in.Hostname == "" || in.Port == "" {
				return fmt.Errorf("instrument [%s] must define hostname and port", in.Name)
			}
		case "serial":
			if in.SerialDevice == "" {
				return fmt.Errorf("instrument [%s] must define a serial device", in.Name)
			}
		case "replay":
			if in.ReplayFile == "" {
				return fmt.Errorf("instrument [%s] must define a replay file", in.Name)
			}
		default:
			return fmt.Errorf("instrument [%s] has unknown type %q", in.Name, in.Type)
		}
		if in.TokenIndex < 0 {
			return fmt.Errorf("instrument [%s] token_index must not be negative", in.Name)
		}
		for _, d := range []string{in.ReadTimeout, in.ReplayInterval} {
			if _, err := ParseDuration(d, 0); err != nil {
				return fmt.Errorf("instrument [%s]: %w", in.Name, err)
			}
		}
	}

	for _, d := range []string{c.Pipeline.NominalInterval, c.Pipeline.IntervalTolerance} {
		if _, err := ParseDuration(d, 0); err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
	}
	if c.Pipeline.HistoryCapacity < 0 || c.Pipeline.VolumeCapacity < 0 || c.Pipeline.QueueDepth < 0 {
		return fmt.Errorf("pipeline capacities must not be negative")
	}

	for _, con := range c.Controllers {
		switch con.Type {
		case "rest", "restserver":
			if con.RESTServer == nil {
				return fmt.Errorf("controller %q is missing its rest section", con.Type)
			}
		default:
			return fmt.Errorf("unknown controller type: %s", con.Type)
		}
	}

	return nil
}

// ParseDuration parses s, returning def when s is empty
func ParseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

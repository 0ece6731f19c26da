// Package config loads the capnograph configuration and watches it for
// runtime changes.
package config

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetInstruments() ([]InstrumentData, error)
	GetPipelineConfig() (*PipelineData, error)
	GetStorageConfig() (*StorageData, error)
	GetControllers() ([]ControllerData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Instruments []InstrumentData `json:"instruments"`
	Pipeline    PipelineData     `json:"pipeline"`
	Storage     StorageData      `json:"storage,omitempty"`
	Controllers []ControllerData `json:"controllers,omitempty"`
}

// InstrumentData holds configuration for one acquisition source
type InstrumentData struct {
	Name    string `json:"name"`
	Channel string `json:"channel"`        // "flow" or "co2"
	Type    string `json:"type,omitempty"` // "network", "serial" or "replay"
	Enabled bool   `json:"enabled"`

	Hostname     string `json:"hostname,omitempty"`
	Port         string `json:"port,omitempty"`
	SerialDevice string `json:"serial_device,omitempty"`
	Baud         int    `json:"baud,omitempty"`

	// Commands written once after connecting, and a command re-sent every
	// PollEvery readings to request the next batch
	InitCommands []string `json:"init_commands,omitempty"`
	PollCommand  string   `json:"poll_command,omitempty"`
	PollEvery    int      `json:"poll_every,omitempty"`
	ReadTimeout  string   `json:"read_timeout,omitempty"`

	// Which numeric token of a line holds the reading, and a factor it is
	// multiplied by
	TokenIndex int     `json:"token_index,omitempty"`
	Scale      float64 `json:"scale,omitempty"`

	ReplayFile     string `json:"replay_file,omitempty"`
	ReplayColumn   string `json:"replay_column,omitempty"`
	ReplayInterval string `json:"replay_interval,omitempty"`
	ReplayLoop     bool   `json:"replay_loop,omitempty"`
}

// PipelineData holds the metric pipeline tunables
type PipelineData struct {
	FlowTrigger       *float64 `json:"flow_trigger_slpm,omitempty"`
	CO2Trigger        *float64 `json:"co2_trigger_ppm,omitempty"`
	NominalInterval   string   `json:"nominal_interval,omitempty"`
	IntervalTolerance string   `json:"interval_tolerance,omitempty"`
	HistoryCapacity   int      `json:"history_capacity,omitempty"`
	VolumeCapacity    int      `json:"volume_capacity,omitempty"`
	QueueDepth        int      `json:"queue_depth,omitempty"`
}

// StorageData holds the configuration for the storage backends. More than
// one backend can be used simultaneously.
type StorageData struct {
	CSV         *CSVData         `json:"csv,omitempty"`
	SQLite      *SQLiteData      `json:"sqlite,omitempty"`
	TimescaleDB *TimescaleDBData `json:"timescaledb,omitempty"`
}

type CSVData struct {
	Path string `json:"path"`
}

type SQLiteData struct {
	Path string `json:"path"`
}

type TimescaleDBData struct {
	ConnectionString string `json:"connection_string"`
}

// ControllerData holds the configuration for a controller backend
type ControllerData struct {
	Type       string          `json:"type,omitempty"`
	RESTServer *RESTServerData `json:"rest,omitempty"`
}

type RESTServerData struct {
	Cert       string `json:"cert,omitempty"`
	Key        string `json:"key,omitempty"`
	Port       int    `json:"port,omitempty"`
	ListenAddr string `json:"listen_addr,omitempty"`
	EnableCORS bool   `json:"enable_cors,omitempty"`
}

package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	mu       sync.RWMutex
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// Filename returns the path of the YAML file
func (y *YAMLProvider) Filename() string {
	return y.filename
}

type instrumentYAML struct {
	Name           string   `yaml:"name"`
	Channel        string   `yaml:"channel"`
	Type           string   `yaml:"type,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
	Hostname       string   `yaml:"hostname,omitempty"`
	Port           string   `yaml:"port,omitempty"`
	SerialDevice   string   `yaml:"serial-device,omitempty"`
	Baud           int      `yaml:"baud,omitempty"`
	InitCommands   []string `yaml:"init-commands,omitempty"`
	PollCommand    string   `yaml:"poll-command,omitempty"`
	PollEvery      int      `yaml:"poll-every,omitempty"`
	ReadTimeout    string   `yaml:"read-timeout,omitempty"`
	TokenIndex     int      `yaml:"token-index,omitempty"`
	Scale          float64  `yaml:"scale,omitempty"`
	ReplayFile     string   `yaml:"replay-file,omitempty"`
	ReplayColumn   string   `yaml:"replay-column,omitempty"`
	ReplayInterval string   `yaml:"replay-interval,omitempty"`
	ReplayLoop     bool     `yaml:"replay-loop,omitempty"`
}

type pipelineYAML struct {
	FlowTrigger       *float64 `yaml:"flow-trigger-slpm,omitempty"`
	CO2Trigger        *float64 `yaml:"co2-trigger-ppm,omitempty"`
	NominalInterval   string   `yaml:"nominal-interval,omitempty"`
	IntervalTolerance string   `yaml:"interval-tolerance,omitempty"`
	HistoryCapacity   int      `yaml:"history-capacity,omitempty"`
	VolumeCapacity    int      `yaml:"volume-capacity,omitempty"`
	QueueDepth        int      `yaml:"queue-depth,omitempty"`
}

type storageYAML struct {
	CSV *struct {
		Path string `yaml:"path"`
	} `yaml:"csv,omitempty"`
	SQLite *struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite,omitempty"`
	TimescaleDB *struct {
		ConnectionString string `yaml:"connection-string"`
	} `yaml:"timescaledb,omitempty"`
}

type controllerYAML struct {
	Type       string `yaml:"type"`
	RESTServer *struct {
		Cert       string `yaml:"cert,omitempty"`
		Key        string `yaml:"key,omitempty"`
		Port       int    `yaml:"port,omitempty"`
		ListenAddr string `yaml:"listen-addr,omitempty"`
		EnableCORS bool   `yaml:"enable-cors,omitempty"`
	} `yaml:"rest,omitempty"`
}

// LoadConfig loads the complete configuration from the YAML file. Every call
// re-reads the file.
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	config, err := parseYAML(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", y.filename, err)
	}

	y.mu.Lock()
	y.config = config
	y.mu.Unlock()
	return config, nil
}

func parseYAML(data []byte) (*ConfigData, error) {
	// Load into temporary struct with YAML tags
	var yamlConfig struct {
		Instruments []instrumentYAML `yaml:"instruments"`
		Pipeline    pipelineYAML     `yaml:"pipeline,omitempty"`
		Storage     storageYAML      `yaml:"storage,omitempty"`
		Controllers []controllerYAML `yaml:"controllers,omitempty"`
	}

	if err := yaml.UnmarshalStrict(data, &yamlConfig); err != nil {
		return nil, err
	}

	// Convert to our internal format
	config := &ConfigData{
		Instruments: make([]InstrumentData, len(yamlConfig.Instruments)),
		Controllers: make([]ControllerData, len(yamlConfig.Controllers)),
		Pipeline: PipelineData{
			FlowTrigger:       yamlConfig.Pipeline.FlowTrigger,
			CO2Trigger:        yamlConfig.Pipeline.CO2Trigger,
			NominalInterval:   yamlConfig.Pipeline.NominalInterval,
			IntervalTolerance: yamlConfig.Pipeline.IntervalTolerance,
			HistoryCapacity:   yamlConfig.Pipeline.HistoryCapacity,
			VolumeCapacity:    yamlConfig.Pipeline.VolumeCapacity,
			QueueDepth:        yamlConfig.Pipeline.QueueDepth,
		},
	}

	for i, in := range yamlConfig.Instruments {
		enabled := true
		if in.Enabled != nil {
			enabled = *in.Enabled
		}
		config.Instruments[i] = InstrumentData{
			Name:           in.Name,
			Channel:        in.Channel,
			Type:           in.Type,
			Enabled:        enabled,
			Hostname:       in.Hostname,
			Port:           in.Port,
			SerialDevice:   in.SerialDevice,
			Baud:           in.Baud,
			InitCommands:   in.InitCommands,
			PollCommand:    in.PollCommand,
			PollEvery:      in.PollEvery,
			ReadTimeout:    in.ReadTimeout,
			TokenIndex:     in.TokenIndex,
			Scale:          in.Scale,
			ReplayFile:     in.ReplayFile,
			ReplayColumn:   in.ReplayColumn,
			ReplayInterval: in.ReplayInterval,
			ReplayLoop:     in.ReplayLoop,
		}
	}

	if yamlConfig.Storage.CSV != nil {
		config.Storage.CSV = &CSVData{Path: yamlConfig.Storage.CSV.Path}
	}
	if yamlConfig.Storage.SQLite != nil {
		config.Storage.SQLite = &SQLiteData{Path: yamlConfig.Storage.SQLite.Path}
	}
	if yamlConfig.Storage.TimescaleDB != nil {
		config.Storage.TimescaleDB = &TimescaleDBData{
			ConnectionString: yamlConfig.Storage.TimescaleDB.ConnectionString,
		}
	}

	for i, controller := range yamlConfig.Controllers {
		config.Controllers[i] = ControllerData{Type: controller.Type}
		if controller.RESTServer != nil {
			config.Controllers[i].RESTServer = &RESTServerData{
				Cert:       controller.RESTServer.Cert,
				Key:        controller.RESTServer.Key,
				Port:       controller.RESTServer.Port,
				ListenAddr: controller.RESTServer.ListenAddr,
				EnableCORS: controller.RESTServer.EnableCORS,
			}
		}
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (y *YAMLProvider) cached() (*ConfigData, error) {
	y.mu.RLock()
	c := y.config
	y.mu.RUnlock()
	if c != nil {
		return c, nil
	}
	return y.LoadConfig()
}

// GetInstruments returns instrument configurations
func (y *YAMLProvider) GetInstruments() ([]InstrumentData, error) {
	c, err := y.cached()
	if err != nil {
		return nil, err
	}
	return c.Instruments, nil
}

// GetPipelineConfig returns the pipeline configuration
func (y *YAMLProvider) GetPipelineConfig() (*PipelineData, error) {
	c, err := y.cached()
	if err != nil {
		return nil, err
	}
	return &c.Pipeline, nil
}

// GetStorageConfig returns storage configuration
func (y *YAMLProvider) GetStorageConfig() (*StorageData, error) {
	c, err := y.cached()
	if err != nil {
		return nil, err
	}
	return &c.Storage, nil
}

// GetControllers returns controller configurations
func (y *YAMLProvider) GetControllers() ([]ControllerData, error) {
	c, err := y.cached()
	if err != nil {
		return nil, err
	}
	return c.Controllers, nil
}

// IsReadOnly returns true since YAML files are read-only through this interface
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

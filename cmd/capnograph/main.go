package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chrissnell/capnograph/internal/app"
	"github.com/chrissnell/capnograph/internal/constants"
	"github.com/chrissnell/capnograph/internal/log"
	"github.com/chrissnell/capnograph/pkg/config"
)

func main() {
	cfgFile := flag.String("config", "capnograph.yaml", "Path to the YAML configuration file")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	logFile := flag.String("logfile", "", "Also write JSON logs to this file, rotated by size")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("capnograph %s\n", constants.Version)
		os.Exit(0)
	}

	// Set up logging
	var err error
	if *logFile != "" {
		err = log.InitWithFile(*debug, *logFile)
	} else {
		err = log.Init(*debug)
	}
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	provider, err := loadConfig(*cfgFile)
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	defer provider.Close()

	application := app.New(provider, log.GetSugaredLogger())
	if err := application.Run(context.Background()); err != nil {
		log.Errorf("Application error: %v", err)
		os.Exit(1)
	}
}

// loadConfig checks that the configuration parses before anything starts
func loadConfig(cfgFile string) (config.ConfigProvider, error) {
	filename, err := filepath.Abs(cfgFile)
	if err != nil {
		return nil, err
	}

	provider := config.NewYAMLProvider(filename)
	if _, err := provider.LoadConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file. Did you pass the -config flag? Run with -h for help: %w", err)
	}

	return provider, nil
}

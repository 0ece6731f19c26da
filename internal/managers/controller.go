package managers

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/chrissnell/capnograph/internal/controllers/restserver"
	"github.com/chrissnell/capnograph/pkg/config"
)

// Controller is an interface that provides standard methods for various controller backends
type Controller interface {
	StartController() error
}

// ControllerManager holds the configured controllers
type ControllerManager struct {
	ctx         context.Context
	wg          *sync.WaitGroup
	backends    restserver.Backends
	logger      *zap.SugaredLogger
	controllers []Controller
}

// NewControllerManager creates a new controller manager
func NewControllerManager(ctx context.Context, wg *sync.WaitGroup, cfgs []config.ControllerData, backends restserver.Backends, logger *zap.SugaredLogger) (*ControllerManager, error) {
	cm := &ControllerManager{
		ctx:      ctx,
		wg:       wg,
		backends: backends,
		logger:   logger,
	}

	for _, con := range cfgs {
		controller, err := cm.createController(con)
		if err != nil {
			return nil, fmt.Errorf("error creating controller: %w", err)
		}
		cm.controllers = append(cm.controllers, controller)
	}

	return cm, nil
}

// StartControllers starts every controller
func (cm *ControllerManager) StartControllers() error {
	cm.logger.Info("Starting controller manager...")

	for _, controller := range cm.controllers {
		if err := controller.StartController(); err != nil {
			return fmt.Errorf("error starting controller: %w", err)
		}
	}

	cm.logger.Infof("Started %d controllers successfully", len(cm.controllers))
	return nil
}

// createController creates a controller based on the controller configuration
func (cm *ControllerManager) createController(cc config.ControllerData) (Controller, error) {
	switch cc.Type {
	case "restserver", "rest":
		if cc.RESTServer == nil {
			return nil, fmt.Errorf("controller %q is missing its rest section", cc.Type)
		}
		return restserver.NewController(cm.ctx, cm.wg, *cc.RESTServer, cm.backends, cm.logger.With("controller", "rest"))
	default:
		return nil, fmt.Errorf("unknown controller type: %s", cc.Type)
	}
}

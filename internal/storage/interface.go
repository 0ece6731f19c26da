// Package storage defines the interface shared by the metric record sinks.
package storage

import (
	"context"
	"sync"

	"github.com/chrissnell/capnograph/internal/types"
)

// StorageEngineInterface is an interface that provides a few standardized
// methods for various storage backends
type StorageEngineInterface interface {
	StartStorageEngine(context.Context, *sync.WaitGroup) chan<- types.MetricRecord
}

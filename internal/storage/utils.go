package storage

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/chrissnell/capnograph/internal/types"
)

// DefaultQueueDepth is the number of records buffered for each backend
// before the storage manager starts dropping records for it
const DefaultQueueDepth = 256

// ProcessRecords provides a standard pattern for processing records from a
// channel. The caller must have called wg.Add(1). Processor errors are
// logged and the loop continues.
func ProcessRecords(ctx context.Context, wg *sync.WaitGroup, recordChan <-chan types.MetricRecord, processor func(types.MetricRecord) error, name string, logger *zap.SugaredLogger) {
	defer wg.Done()

	for {
		select {
		case r := <-recordChan:
			if err := processor(r); err != nil {
				logger.Errorf("%s record processor error: %v", name, err)
			}
		case <-ctx.Done():
			logger.Infof("cancellation request received. Cancelling %s record processor", name)
			return
		}
	}
}

// Package events re-exports the platform event bus so modules can depend
// on internal/events alone.
package events

import (
	platformevents "sales_crm_backend/platform/events"
	"sales_crm_backend/platform/logger"
)

type InMemoryBus = platformevents.InMemoryBus

func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return platformevents.NewInMemoryBus(log)
}

package port

import "time"

// Metrics receives operation outcomes from the services.
type Metrics interface {
	ObserveOperation(operation string, started time.Time, err error)
	StockShortfall(operation string)
}

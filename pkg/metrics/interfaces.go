// Package metrics batches analytics events for columnar storage.
package metrics

import "context"

// Event is one analytics row
type Event interface {
	// Table returns the ClickHouse table the row belongs to
	Table() string
	// Columns lists column names in Row order
	Columns() []string
	Row() []interface{}
}

// Writer persists a batch of rows for one table
type Writer interface {
	WriteBatch(ctx context.Context, table string, columns []string, rows [][]interface{}) error
	Close() error
}

// Recorder accepts events without blocking the caller
type Recorder interface {
	Record(event Event)
}

type discard struct{}

func (discard) Record(Event) {}

// Discard drops every event. Used when analytics storage is not configured.
var Discard Recorder = discard{}

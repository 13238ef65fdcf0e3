// internal/writer/types.go
package writer

import "github.com/tamzrod/plcpoll/internal/poller"

// Target accepts asynchronous writes. *poller.Scheduler satisfies it.
type Target interface {
	WriteArea(area poller.Area, areaNumber, offset int, data []byte) *poller.WriteHandle
}

// MirrorDest is one destination region for an item's bytes.
type MirrorDest struct {
	Endpoint   string
	Area       poller.Area
	AreaNumber int
	Offset     int
}

// Route copies one polled item into its destinations.
type Route struct {
	Name  string
	Item  poller.ItemKey
	Dests []MirrorDest
}

// StatusPlan locates the device status block (always a DB).
type StatusPlan struct {
	Endpoint   string
	AreaNumber int
	Offset     int
}

// Plan is the fully-built write plan for one endpoint.
type Plan struct {
	EndpointID string
	Routes     []Route
	Status     *StatusPlan
}

// Writer mirrors item results into targets.
type Writer interface {
	Write(item poller.ItemKey, data []byte) error
}

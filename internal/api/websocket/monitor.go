package websocket

import (
	"context"
	"time"
)

const TypeProgramOverview = "program.overview"

// OverviewSource supplies the program-wide snapshot pushed to consoles.
type OverviewSource interface {
	Overview(ctx context.Context) (interface{}, error)
}

// OverviewFunc adapts a function to OverviewSource.
type OverviewFunc func(ctx context.Context) (interface{}, error)

func (f OverviewFunc) Overview(ctx context.Context) (interface{}, error) {
	return f(ctx)
}

// MonitorService periodically broadcasts the program overview while at
// least one console is connected.
type MonitorService struct {
	hub      *Hub
	source   OverviewSource
	interval time.Duration
}

func NewMonitorService(hub *Hub, source OverviewSource, interval time.Duration) *MonitorService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &MonitorService{hub: hub, source: source, interval: interval}
}

// Run blocks until ctx is cancelled.
func (m *MonitorService) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.broadcast(ctx)
		}
	}
}

func (m *MonitorService) broadcast(ctx context.Context) {
	if m.hub.ClientCount() == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	overview, err := m.source.Overview(ctx)
	if err != nil {
		m.hub.logger.Error("Failed to build program overview: %v", err)
		return
	}
	m.hub.Broadcast(TypeProgramOverview, overview)
}

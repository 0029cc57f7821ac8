package orchestrator

import (
	"context"
	"log"

	"github.com/JawadKotaichh/aubus/internal/domain"
)

// MultiSink fans one event out to several EventSinks. A sink failing logs
// and is skipped rather than failing the others or the caller — Publish is
// always best-effort from the orchestrator's point of view.
type MultiSink struct {
	Sinks []EventSink
}

func NewMultiSink(sinks ...EventSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) Publish(ctx context.Context, evt domain.RideRequestEvent) error {
	for _, sink := range m.Sinks {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, evt); err != nil {
			log.Printf("orchestrator: event sink publish failed: %v", err)
		}
	}
	return nil
}

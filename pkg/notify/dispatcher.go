// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package notify delivers published snapshots to systems outside the engine.
// Listeners run inside the engine's match lock, so every sink sits behind a
// bounded queue drained by its own goroutine.
package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/bacx00/mrvl-livescore/pkg/constants"
	"github.com/bacx00/mrvl-livescore/pkg/envelope"
	"github.com/bacx00/mrvl-livescore/pkg/metrics"
	"github.com/bacx00/mrvl-livescore/pkg/models"
	"github.com/bacx00/mrvl-livescore/pkg/scoring"
)

// Sink delivers one snapshot. Deliver may block.
type Sink interface {
	Name() string
	Deliver(scope *envelope.Scope, snapshot *models.Snapshot) error
}

// Dispatcher queues snapshots for a Sink and drops them when the queue is full.
type Dispatcher struct {
	sink    Sink
	queue   chan *models.Snapshot
	metrics metrics.ScoringMetrics
}

func NewDispatcher(sink Sink, queueSize int, metricsCollector metrics.ScoringMetrics) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		sink:    sink,
		queue:   make(chan *models.Snapshot, queueSize),
		metrics: metricsCollector,
	}
}

func (d *Dispatcher) OnSnapshot(scope *envelope.Scope, snapshot *models.Snapshot) {
	select {
	case d.queue <- snapshot:
	default:
		d.metrics.AddNotificationDropped(d.sink.Name())
		scope.Log.WithFields(logrus.Fields{
			constants.LogFieldMatchID: snapshot.MatchID,
			constants.LogFieldVersion: snapshot.Version,
			"sink":                    d.sink.Name(),
		}).Warn("notification queue full, snapshot dropped")
	}
}

// Run delivers queued snapshots until scope.Ctx ends, then delivers what is already
// queued and returns nil.
func (d *Dispatcher) Run(rootScope *envelope.Scope) error {
	for {
		select {
		case snapshot := <-d.queue:
			d.deliver(rootScope, snapshot)
		case <-rootScope.Ctx.Done():
			drainScope := envelope.NewRootScope(context.Background(), "Dispatcher.drain", rootScope.TraceID)
			defer drainScope.Finish()
			for {
				select {
				case snapshot := <-d.queue:
					d.deliver(drainScope, snapshot)
				default:
					return nil
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(rootScope *envelope.Scope, snapshot *models.Snapshot) {
	scope := rootScope.NewChildScope("Dispatcher.deliver")
	defer scope.Finish()

	if err := d.sink.Deliver(scope, snapshot); err != nil {
		scope.Log.WithFields(logrus.Fields{
			constants.LogFieldMatchID: snapshot.MatchID,
			constants.LogFieldVersion: snapshot.Version,
			"sink":                    d.sink.Name(),
		}).WithError(err).Error("unable to deliver snapshot")
	}
}

// Fanout forwards every snapshot to each listener in order.
type Fanout []scoring.SnapshotListener

func (f Fanout) OnSnapshot(scope *envelope.Scope, snapshot *models.Snapshot) {
	for _, listener := range f {
		listener.OnSnapshot(scope, snapshot)
	}
}

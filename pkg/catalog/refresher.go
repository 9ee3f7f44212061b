// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package catalog

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bacx00/mrvl-livescore/pkg/envelope"
)

// Refresher re-reads a roster file into a StaticCatalog on a fixed interval.
type Refresher struct {
	catalog  *StaticCatalog
	path     string
	interval time.Duration
}

func NewRefresher(catalog *StaticCatalog, path string, interval time.Duration) *Refresher {
	return &Refresher{catalog: catalog, path: path, interval: interval}
}

// Refresh loads the file once. A failed load keeps the current roster.
func (r *Refresher) Refresh(rootScope *envelope.Scope) error {
	scope := rootScope.NewChildScope("Refresher.Refresh")
	defer scope.Finish()

	heroes, err := LoadFile(r.path)
	if err != nil {
		scope.Log.WithError(err).Warn("hero catalog refresh failed, keeping current roster")
		return err
	}

	r.catalog.Replace(heroes)
	scope.Log.WithFields(logrus.Fields{"path": r.path, "heroes": r.catalog.Len()}).Debug("hero catalog refreshed")

	return nil
}

// Run refreshes until scope.Ctx ends. It returns nil on cancellation.
func (r *Refresher) Run(scope *envelope.Scope) error {
	if r.interval <= 0 {
		<-scope.Ctx.Done()
		return nil
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-scope.Ctx.Done():
			return nil
		case <-ticker.C:
			_ = r.Refresh(scope)
		}
	}
}

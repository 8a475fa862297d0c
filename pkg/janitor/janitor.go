package janitor

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/workshoplabs/workshop/pkg/log"
	"github.com/workshoplabs/workshop/pkg/metrics"
	"github.com/workshoplabs/workshop/pkg/store"
)

const (
	// interval between cleanup cycles
	interval = time.Hour

	// presenceRetention is how long dead presence rows are kept
	presenceRetention = 7 * 24 * time.Hour
)

// Janitor deletes expired messages and long-dead presence rows. Failures
// are logged and retried on the next tick, never fatal. Blobs are never
// touched.
type Janitor struct {
	store         store.Store
	retentionDays int
	logger        zerolog.Logger
	stopCh        chan struct{}
}

// New creates a janitor with the given message retention in days
func New(st store.Store, retentionDays int) *Janitor {
	return &Janitor{
		store:         st,
		retentionDays: retentionDays,
		logger:        log.WithComponent("janitor"),
		stopCh:        make(chan struct{}),
	}
}

// Start runs one cleanup immediately, then hourly
func (j *Janitor) Start() {
	go j.run()
}

// Stop stops the cleanup loop
func (j *Janitor) Stop() {
	close(j.stopCh)
}

func (j *Janitor) run() {
	j.Sweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.Sweep()
		case <-j.stopCh:
			return
		}
	}
}

// Sweep performs one cleanup cycle
func (j *Janitor) Sweep() {
	now := float64(time.Now().UnixNano()) / 1e9

	msgCutoff := now - float64(j.retentionDays)*86400
	if n, err := j.store.PurgeMessages(msgCutoff); err != nil {
		j.logger.Error().Err(err).Msg("failed to purge messages")
	} else if n > 0 {
		metrics.MessagesPurged.Add(float64(n))
		j.logger.Info().Int64("deleted", n).Msg("purged expired messages")
	}

	presenceCutoff := now - presenceRetention.Seconds()
	if n, err := j.store.PurgePresence(presenceCutoff); err != nil {
		j.logger.Error().Err(err).Msg("failed to purge presence")
	} else if n > 0 {
		j.logger.Info().Int64("deleted", n).Msg("purged dead presence rows")
	}
}

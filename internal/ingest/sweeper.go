package ingest

import (
	"context"
	"fmt"
	"log/slog"

	rcron "github.com/robfig/cron/v3"
)

// Sweeper runs the watch-directory import on a cron schedule.
type Sweeper struct {
	cron    *rcron.Cron
	entryID rcron.EntryID
	logger  *slog.Logger
}

// NewSweeper schedules importer.Process with the given cron expression,
// standard five-field format.
func NewSweeper(importer *Importer, spec string, logger *slog.Logger) (*Sweeper, error) {
	s := &Sweeper{
		cron:   rcron.New(),
		logger: logger.With("component", "sweeper"),
	}

	id, err := s.cron.AddFunc(spec, func() {
		chunks, err := importer.Process(context.Background())
		if err != nil {
			s.logger.Error("scheduled sweep failed", "error", err)
			return
		}
		if chunks > 0 {
			s.logger.Info("scheduled sweep complete", "chunks", chunks)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	s.entryID = id
	return s, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("sweep scheduled", "next", s.cron.Entry(s.entryID).Next)
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("sweep stopped")
}

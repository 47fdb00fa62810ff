package main

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Scheduler periodically removes expired rows from the api_responses table
// and reclaims space in the embedded cache.
type Scheduler struct {
	cfg       *apiConfig
	pruneChan <-chan time.Time
	stop      chan struct{}
	done      chan struct{}
	ticker    *time.Ticker
	running   sync.Mutex
	pruneJobs func()
}

func NewScheduler(cfg *apiConfig, pruneInterval time.Duration) *Scheduler {
	ticker := time.NewTicker(pruneInterval)
	s := &Scheduler{
		cfg:       cfg,
		pruneChan: ticker.C,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		ticker:    ticker,
	}
	s.pruneJobs = s.runPruneJobs
	return s
}

func (s *Scheduler) Start() {
	go func() {
		defer close(s.done)
		for {
			select {
			case <-s.pruneChan:
				s.cfg.logger.Debug("scheduler: running prune jobs")
				s.runLocked()
			case <-s.stop:
				s.cfg.logger.Info("scheduler: stopping")
				s.ticker.Stop()
				return
			}
		}
	}()
}

// Stop signals the loop to exit and waits for a running job to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
	s.running.Lock()
	defer s.running.Unlock()
}

// runLocked keeps ticker runs and manual runs from overlapping.
func (s *Scheduler) runLocked() {
	s.running.Lock()
	defer s.running.Unlock()
	s.pruneJobs()
}

func (s *Scheduler) runPruneJobs() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if s.cfg.dbQueries != nil {
		n, err := s.cfg.dbQueries.DeleteExpiredAPIResponses(ctx, time.Now().UTC())
		if err != nil {
			s.cfg.logger.Error("scheduler: failed to prune expired responses", "error", err)
		} else {
			s.cfg.logger.Info("scheduler: pruned expired responses", "rows", n)
		}
	}

	if s.cfg.badger != nil {
		if err := s.cfg.badger.RunGC(); err != nil {
			s.cfg.logger.Error("scheduler: badger value log GC failed", "error", err)
		} else {
			s.cfg.logger.Debug("scheduler: badger value log GC completed")
		}
	}
}

// handlerRunSchedulerJobs is a development-only endpoint that manually
// triggers a prune run.

// @Summary      Manually trigger cache pruning (development only)
// @Description  Removes expired rows from the api_responses table and runs badger value log GC.
// @Tags         development
// @Produce      json
// @Success      202  {object}  map[string]string "Example: `{\"status\": \"prune jobs triggered\"}`"
// @Router       /dev/run-prune [post]
func (s *Scheduler) handlerRunSchedulerJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}
	s.cfg.logger.Info("manual prune run triggered")

	s.ticker.Reset(s.cfg.pruneInterval)
	go func() {
		s.runLocked()
		s.cfg.logger.Info("manual prune run finished")
	}()

	s.cfg.respondWithJSON(w, http.StatusAccepted, map[string]string{"status": "prune jobs triggered"})
}

package service

import (
	"context"
	"errors"
	"log"
	"time"
)

// Start launches the auto-run loop, which takes run.StepsPerTick steps every
// run.TickInterval while the service is not paused. It returns immediately.
func (s *SimulationService) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	interval := s.run.TickInterval
	if interval <= 0 {
		log.Printf("Invalid tick interval %s, using 1s default", interval)
		interval = time.Second
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				log.Printf("Stopping auto-run loop")
				return
			case <-ticker.C:
				s.tick(loopCtx)
			}
		}
	}()

	log.Printf("Started auto-run loop (interval=%s, steps=%d, dt=%g)", interval, s.run.StepsPerTick, s.run.TimeStep)
}

// tick runs one batch of steps unless the service is paused or finished
func (s *SimulationService) tick(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused || s.finished {
		return
	}

	steps := s.run.StepsPerTick
	if steps < 1 {
		steps = 1
	}
	if _, err := s.stepLocked(ctx, steps); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Auto-run step failed: %v", err)
	}
}

// Stop ends the auto-run loop and waits for it to exit
func (s *SimulationService) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
}

// Pause stops the auto-run loop from stepping; manual steps still work
func (s *SimulationService) Pause() {
	s.setPaused(true, EventRunPaused)
}

// Resume lets the auto-run loop step again
func (s *SimulationService) Resume() {
	s.setPaused(false, EventRunResumed)
}

func (s *SimulationService) setPaused(paused bool, event EventType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused == paused {
		return
	}
	s.paused = paused
	s.eventBus.Publish(Event{Type: event, Payload: s.infoLocked()})
}

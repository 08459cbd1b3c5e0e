package session

import (
	"context"
	"log"

	"github.com/mossy-p/collab-signaling/internal/models"
)

// shutdown runs the disconnect cleanup exactly once. Every step is
// bounded by the configured timeout and a timed-out step is logged and
// skipped: nothing here may keep a dead connection's resources alive.
func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosing))
		// The sender is gone; pending candidates are dropped, not flushed.
		s.batch.Discard()

		uid := s.UserID()
		if uid != "" {
			s.runStep("broadcast user-left", func(ctx context.Context) error {
				left := models.New(models.SignalTypeUserLeft, uid, map[string]any{
					"uid":  uid,
					"room": s.Room,
				})
				frame, err := left.Encode()
				if err != nil {
					return err
				}
				return s.deps.Bus.Publish(ctx, s.Room, frame, s.ID)
			})

			s.runStep("release screen share", func(ctx context.Context) error {
				claim, err := s.deps.ScreenShare.State(ctx, s.Room)
				if err != nil || claim == nil || claim.Owner != uid {
					return err
				}
				if _, err := s.deps.ScreenShare.ForceStop(ctx, s.Room); err != nil {
					return err
				}
				stopped := models.New(models.SignalTypeScreenShareStopped, uid, map[string]any{
					"room":         s.Room,
					"sharing_user": uid,
					"reason":       "user disconnected",
				})
				frame, err := stopped.Encode()
				if err != nil {
					return err
				}
				return s.deps.Bus.Publish(ctx, s.Room, frame, s.ID)
			})
		}

		s.runStep("leave group", func(ctx context.Context) error {
			return s.deps.Bus.LeaveGroup(ctx, s.Room, s.ID)
		})

		// Registry leave may trigger room teardown with its cache and
		// asset cleanup; run it detached so a slow store never delays
		// releasing this connection.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 4*s.deps.CleanupTimeout)
			defer cancel()
			s.deps.Registry.Leave(ctx, s.Room)
		}()

		close(s.done)
		s.conn.Close()
		s.state.Store(int32(StateClosed))
		log.Printf("Session %s left room %s", s.ID, s.Room)
	})
}

// runStep executes one cleanup action under the step timeout. The
// action runs in its own goroutine so a blocked collaborator call
// cannot stall teardown past the deadline.
func (s *Session) runStep(name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.deps.CleanupTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			log.Printf("Cleanup step %q for session %s failed (non-fatal): %v", name, s.ID, err)
		}
	case <-ctx.Done():
		log.Printf("Cleanup step %q for session %s timed out (non-fatal)", name, s.ID)
	}
}

package core

import (
	"context"
	"errors"
	"sync"
)

// Session is the optional session collaborator. It is notified of every
// field mutation made through a bound object and never drives the engine.
type Session interface {
	Add(ctx context.Context, obj Object) error
}

// RecordingSession collects mutated objects once each, in first-mutation
// order, and saves them on Flush. Objects are told apart by identity and,
// once they carry an id, by key.
type RecordingSession struct {
	mu      sync.Mutex
	objects []Object
	seen    map[Object]struct{}
	keys    map[string]struct{}
}

// NewRecordingSession returns an empty session.
func NewRecordingSession() *RecordingSession {
	s := &RecordingSession{}
	s.reset()
	return s
}

func (s *RecordingSession) reset() {
	s.objects = nil
	s.seen = make(map[Object]struct{})
	s.keys = make(map[string]struct{})
}

// Add implements Session.
func (s *RecordingSession) Add(_ context.Context, obj Object) error {
	if obj == nil {
		return errors.New("session: nil object")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.reset()
	}
	if _, dup := s.seen[obj]; dup {
		return nil
	}
	if key := obj.Key(); key.Assigned() {
		if _, dup := s.keys[key.String()]; dup {
			return nil
		}
		s.keys[key.String()] = struct{}{}
	}
	s.seen[obj] = struct{}{}
	s.objects = append(s.objects, obj)
	return nil
}

// Objects returns the pending objects.
func (s *RecordingSession) Objects() []Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Object(nil), s.objects...)
}

// Flush saves every pending object through svc and clears the session. All
// objects are attempted; their errors are joined.
func (s *RecordingSession) Flush(ctx context.Context, svc *Service, scope *Scope) ([]SaveReport, error) {
	s.mu.Lock()
	pending := s.objects
	s.reset()
	s.mu.Unlock()

	reports := make([]SaveReport, 0, len(pending))
	var errs []error
	for _, obj := range pending {
		report, err := svc.Save(ctx, scope, obj)
		reports = append(reports, report)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return reports, errors.Join(errs...)
}

package loader

import (
	"context"
	"errors"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/tag-search/pkg/errors"
)

// Registry is the slice of the registry service the index sink writes
// through.
type Registry interface {
	Register(ctx context.Context, id string) error
	Attach(ctx context.Context, id, tag string) error
}

// IndexSink applies records to a Registry. Re-registering an entity or
// re-attaching a tag is counted, not treated as a failure, so a load can be
// replayed.
type IndexSink struct {
	reg Registry

	mu               sync.Mutex
	entitiesCreated  int
	entitiesExisting int
	tagsAttached     int
	tagsDuplicate    int
}

func NewIndexSink(reg Registry) *IndexSink {
	return &IndexSink{reg: reg}
}

func (s *IndexSink) Put(ctx context.Context, rec Record) error {
	created := true
	if err := s.reg.Register(ctx, rec.EntityID); err != nil {
		if !errors.Is(err, apperrors.ErrEntityExists) {
			return err
		}
		created = false
	}

	attached, duplicate := 0, 0
	for _, tag := range rec.Tags {
		err := s.reg.Attach(ctx, rec.EntityID, tag)
		switch {
		case err == nil:
			attached++
		case errors.Is(err, apperrors.ErrAlreadyTagged):
			duplicate++
		default:
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if created {
		s.entitiesCreated++
	} else {
		s.entitiesExisting++
	}
	s.tagsAttached += attached
	s.tagsDuplicate += duplicate
	return nil
}

func (s *IndexSink) Count(stats *Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats.EntitiesCreated = s.entitiesCreated
	stats.EntitiesExisting = s.entitiesExisting
	stats.TagsAttached = s.tagsAttached
	stats.TagsDuplicate = s.tagsDuplicate
}

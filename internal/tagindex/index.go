// Package tagindex keeps a registry of entities and the tags attached to
// them. It maintains two views of the same relation, entity -> tags and
// tag -> entities, and answers ranked multi-tag lookups over the inverted
// view.
//
// Both maps are owned by an Index and are only ever changed together under
// a single write lock, so for every entity e and tag t:
//
//	t in TagsOf(e)  <=>  e in EntitiesWithTag(t)
//
// Every read returns a fresh, sorted copy. The package performs no I/O.
package tagindex

import (
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/tag-search/pkg/errors"
)

type set map[string]struct{}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Index is the in-memory tag index. The zero value is not usable; call New.
type Index struct {
	mu       sync.RWMutex
	entities map[string]set
	tags     map[string]set
	revision uint64
}

func New() *Index {
	return &Index{
		entities: make(map[string]set),
		tags:     make(map[string]set),
	}
}

// RegisterEntity creates an entity with no tags. It reports false without
// changing anything when id is already registered.
func (x *Index) RegisterEntity(id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("entity id is empty: %w", apperrors.ErrInvalidInput)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, exists := x.entities[id]; exists {
		return false, nil
	}
	x.entities[id] = make(set)
	x.revision++
	return true, nil
}

// AttachTag adds tag to the entity and the entity to the tag's bucket. It
// reports false when the tag was already attached and returns
// ErrEntityNotFound for an unregistered id.
func (x *Index) AttachTag(id, tag string) (bool, error) {
	if err := validatePair(id, tag); err != nil {
		return false, err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	tags, exists := x.entities[id]
	if !exists {
		return false, fmt.Errorf("entity %q: %w", id, apperrors.ErrEntityNotFound)
	}
	if _, tagged := tags[tag]; tagged {
		return false, nil
	}
	tags[tag] = struct{}{}
	bucket, ok := x.tags[tag]
	if !ok {
		bucket = make(set)
		x.tags[tag] = bucket
	}
	bucket[id] = struct{}{}
	x.revision++
	return true, nil
}

// DetachTag removes tag from the entity and the entity from the tag's
// bucket, dropping the bucket once it is empty. It reports false when the
// tag was not attached.
func (x *Index) DetachTag(id, tag string) (bool, error) {
	if err := validatePair(id, tag); err != nil {
		return false, err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	tags, exists := x.entities[id]
	if !exists {
		return false, fmt.Errorf("entity %q: %w", id, apperrors.ErrEntityNotFound)
	}
	if _, tagged := tags[tag]; !tagged {
		return false, nil
	}
	delete(tags, tag)
	if bucket, ok := x.tags[tag]; ok {
		delete(bucket, id)
		if len(bucket) == 0 {
			delete(x.tags, tag)
		}
	}
	x.revision++
	return true, nil
}

// TagsOf returns the entity's tags in ascending order. Unknown entities
// yield an empty slice.
func (x *Index) TagsOf(id string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	tags, ok := x.entities[id]
	if !ok {
		return []string{}
	}
	return tags.sorted()
}

// EntitiesWithTag returns the ids carrying tag in ascending order.
func (x *Index) EntitiesWithTag(tag string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	bucket, ok := x.tags[tag]
	if !ok {
		return []string{}
	}
	return bucket.sorted()
}

// AllTags returns every tag attached to at least one entity, sorted.
func (x *Index) AllTags() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]string, 0, len(x.tags))
	for tag, bucket := range x.tags {
		if len(bucket) > 0 {
			out = append(out, tag)
		}
	}
	sort.Strings(out)
	return out
}

func (x *Index) HasEntity(id string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.entities[id]
	return ok
}

// Len returns the number of registered entities.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entities)
}

func (x *Index) TagCount() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.tags)
}

// Revision increases by one with every mutation that changed the index.
// No-op calls leave it untouched.
func (x *Index) Revision() uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.revision
}

func validatePair(id, tag string) error {
	if id == "" {
		return fmt.Errorf("entity id is empty: %w", apperrors.ErrInvalidInput)
	}
	if tag == "" {
		return fmt.Errorf("tag is empty: %w", apperrors.ErrInvalidInput)
	}
	return nil
}

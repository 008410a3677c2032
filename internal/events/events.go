// Package events defines the tag-event schema carried on the Kafka
// tag-events topic and its validation rules.
package events

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type Op string

const (
	OpRegister Op = "register"
	OpAttach   Op = "attach"
	OpDetach   Op = "detach"
)

const maxFieldLength = 256

// TagEvent is one index mutation. Tag is empty for register events.
type TagEvent struct {
	Op        Op        `json:"op"`
	EntityID  string    `json:"entity_id"`
	Tag       string    `json:"tag,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
}

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		keys = append(keys, field)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, field := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", field, e.Fields[field]))
	}
	return strings.Join(parts, "; ")
}

func Validate(ev TagEvent) error {
	errs := make(map[string]string)

	switch ev.Op {
	case OpRegister, OpAttach, OpDetach:
	case "":
		errs["op"] = "op is required"
	default:
		errs["op"] = fmt.Sprintf("unknown op %q", ev.Op)
	}

	if ev.EntityID == "" {
		errs["entity_id"] = "entity_id is required"
	} else if len(ev.EntityID) > maxFieldLength {
		errs["entity_id"] = fmt.Sprintf("entity_id must be at most %d characters", maxFieldLength)
	}

	if ev.Op == OpAttach || ev.Op == OpDetach {
		if ev.Tag == "" {
			errs["tag"] = "tag is required for " + string(ev.Op)
		} else if len(ev.Tag) > maxFieldLength {
			errs["tag"] = fmt.Sprintf("tag must be at most %d characters", maxFieldLength)
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// Package records defines the capability boundary between the engine and the
// host application's business data. The engine holds weak (type, id)
// references only: every access goes through a Resolver and a vanished
// record is an explicit outcome, never silently tolerated.
package records

import (
	"context"
	"errors"
	"strings"

	"github.com/procwise/procwise/pkg/models"
)

// ErrNotFound is returned by resolvers when the referenced record no longer
// exists.
var ErrNotFound = errors.New("record not found")

// Record is an opaque snapshot of a business record supporting dotted-path
// attribute reads.
type Record interface {
	// Get resolves a dotted field path ("partner.country.code"). It returns
	// false as soon as any intermediate segment is absent or nil.
	Get(path string) (any, bool)

	// Map returns the record's attributes for expression bindings.
	Map() map[string]any
}

// Resolver looks records up by their weak reference.
type Resolver interface {
	Resolve(ctx context.Context, ref models.TargetRef) (Record, error)
}

// Mutator is the record-mutation capability auto-actions delegate to. The
// engine never mutates business records itself.
type Mutator interface {
	Archive(ctx context.Context, ref models.TargetRef) error
}

// IsNotFound reports whether err means the target record is gone.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// MapRecord is a map-backed Record, used by in-process hosts and tests.
// Nested maps model related records.
type MapRecord map[string]any

func (r MapRecord) Get(path string) (any, bool) {
	var current any = map[string]any(r)

	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		value, ok := m[segment]
		if !ok || value == nil {
			return nil, false
		}

		current = value
	}

	return current, true
}

func (r MapRecord) Map() map[string]any {
	return map[string]any(r)
}

// MapResolver is an in-memory Resolver keyed by (type, id). It doubles as
// the Mutator for hosts that keep their records in process.
type MapResolver struct {
	records map[string]MapRecord
}

// NewMapResolver creates an empty in-memory resolver.
func NewMapResolver() *MapResolver {
	return &MapResolver{records: make(map[string]MapRecord)}
}

func key(ref models.TargetRef) string {
	return ref.Type + "/" + ref.ID
}

// Put stores or replaces a record snapshot.
func (r *MapResolver) Put(ref models.TargetRef, record MapRecord) {
	r.records[key(ref)] = record
}

// Delete removes a record, making later resolutions fail explicitly.
func (r *MapResolver) Delete(ref models.TargetRef) {
	delete(r.records, key(ref))
}

func (r *MapResolver) Resolve(_ context.Context, ref models.TargetRef) (Record, error) {
	record, ok := r.records[key(ref)]
	if !ok {
		return nil, ErrNotFound
	}

	return record, nil
}

// Archive marks an in-memory record inactive, mirroring how hosts archive
// soft-deletable records.
func (r *MapResolver) Archive(_ context.Context, ref models.TargetRef) error {
	record, ok := r.records[key(ref)]
	if !ok {
		return ErrNotFound
	}

	record["active"] = false

	return nil
}

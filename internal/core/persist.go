package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"romekv/pkg/domain"
)

// SaveReport lists the outcome of every record reached by one save call.
type SaveReport struct {
	Root     domain.EntityKey
	Records  []domain.RecordResult
	Duration time.Duration
}

// Err returns a *domain.PersistPartialFailureError when any record failed.
func (r SaveReport) Err() error {
	var failed []domain.RecordResult
	for _, rec := range r.Records {
		if rec.State == domain.StateFailed {
			failed = append(failed, rec)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &domain.PersistPartialFailureError{Root: r.Root, Failed: failed}
}

// Result returns the outcome for key.
func (r SaveReport) Result(key domain.EntityKey) (domain.RecordResult, bool) {
	for _, rec := range r.Records {
		if rec.Key.String() == key.String() {
			return rec, true
		}
	}
	return domain.RecordResult{}, false
}

// Count returns how many records reached state, either as their write
// resolution or as their terminal state.
func (r SaveReport) Count(state domain.RecordState) int {
	n := 0
	for _, rec := range r.Records {
		if rec.Resolution == state || rec.State == state {
			n++
		}
	}
	return n
}

// Engine runs the save protocol: key booking, foreign-key sync,
// simplification, merge-before-write, timestamping and driver writes.
type Engine struct {
	rt *runtime
}

type keyAllocator struct {
	rt   *runtime
	last map[string]int64
}

// next books an id for typ. Ids handed out within one call are strictly
// increasing per type even if the driver misbehaves.
func (a *keyAllocator) next(ctx context.Context, typ string) (int64, error) {
	id, err := a.rt.driver.NextKey(ctx, typ)
	if err != nil {
		return 0, fmt.Errorf("next key for %s: %w", typ, err)
	}
	if last, ok := a.last[typ]; ok && id <= last {
		a.rt.logger.Warn("driver issued a non-increasing key", "type", typ, "issued", id, "previous", last)
		id = last + 1
	}
	a.last[typ] = id
	a.rt.logger.Debug("booked key", "type", typ, "id", id)
	return id, nil
}

// Save persists obj and every new or caller-assigned object reachable from
// it. A failure on one record does not stop the others; the returned error
// is then a *domain.PersistPartialFailureError. Errors before the write loop
// (booking the root key, simplification) abort the call.
func (en *Engine) Save(ctx context.Context, scope *Scope, obj Object) (report SaveReport, err error) {
	ctx, span := en.rt.tracer.Start(ctx, "save")
	start := time.Now()
	defer func() {
		report.Duration = time.Since(start)
		en.rt.metrics.Observe(ctx, "save", err == nil, report.Duration)
		span.End(err)
	}()
	if scope == nil {
		return report, errors.New("save requires a request scope")
	}
	if obj == nil {
		return report, errors.New("save requires an object")
	}
	root, err := obj.Materialize(ctx)
	if err != nil {
		return report, err
	}
	if root.schema == nil {
		return report, domain.UnresolvedTypeError{Type: root.typ}
	}
	root.attach(scope)

	alloc := &keyAllocator{rt: en.rt, last: make(map[string]int64)}
	booked := make(map[string]bool)
	if !root.Key().Assigned() {
		id, err := alloc.next(ctx, root.typ)
		if err != nil {
			return report, err
		}
		root.assignID(id)
		booked[root.Key().String()] = true
	}
	report.Root = root.Key()
	en.syncForeignKeys(ctx, root)

	first, err := Simplify(root)
	if err != nil {
		return report, err
	}
	results := make(map[*Entity]*domain.RecordResult, len(first.Order))
	for _, key := range first.Order {
		e := first.Targets[key]
		res := &domain.RecordResult{Key: key, State: domain.StateNew}
		results[e] = res
		if !key.Provisional() {
			continue
		}
		id, err := alloc.next(ctx, key.Type)
		if err != nil {
			res.State = domain.StateFailed
			res.Err = err
			continue
		}
		e.assignID(id)
		res.Key = e.Key()
		res.State = domain.StateKeyAssigned
		booked[res.Key.String()] = true
	}
	for _, key := range first.Order {
		en.syncForeignKeys(ctx, first.Targets[key])
	}

	// With every id known, simplify again so tokens and foreign keys carry
	// final ids.
	final, err := Simplify(root)
	if err != nil {
		return report, err
	}
	for _, key := range final.Order {
		e := final.Targets[key]
		res, ok := results[e]
		if !ok {
			res = &domain.RecordResult{Key: key, State: domain.StateNew}
		}
		if res.State == domain.StateFailed {
			report.Records = append(report.Records, *res)
			en.rt.metrics.RecordState(key.Type, res.State)
			continue
		}
		res.Key = key
		res.State = domain.StateSimplified
		rec, dropped := withoutUnbooked(final.Records[key])
		if len(dropped) > 0 {
			en.rt.logger.Warn("dropping references to unbooked records", "key", key.String(), "fields", dropped)
		}
		written := en.write(ctx, e, key, rec, booked[key.String()], res)
		report.Records = append(report.Records, *res)
		en.rt.metrics.RecordState(key.Type, res.State)
		switch res.State {
		case domain.StatePersisted:
			en.adopt(scope, e, key, written)
		case domain.StateSkipped:
			en.adopt(scope, e, key, nil)
		}
	}
	return report, report.Err()
}

// write resolves and performs the write of one record, updating res. It
// returns the record now held by the store, nil when the write failed.
func (en *Engine) write(ctx context.Context, e *Entity, key domain.EntityKey, rec domain.Record, booked bool, res *domain.RecordResult) domain.Record {
	var out domain.Record
	if booked {
		res.Resolution = domain.StateNewWrite
		out = applyDefaults(e.schema, rec)
	} else {
		stored, err := en.rt.driver.Get(ctx, key.Type, key.ID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			res.Resolution = domain.StateNewWrite
			out = applyDefaults(e.schema, rec)
		case err != nil:
			en.fail(key, res, fmt.Errorf("read %s before merge: %w", key, err))
			return nil
		case domain.SameVersion(stored, rec, e.schema):
			res.Resolution = domain.StateSkipped
			res.State = domain.StateSkipped
			return stored
		default:
			res.Resolution = domain.StateMerged
			out = domain.MergeRecords(stored, rec)
		}
	}
	res.State = res.Resolution

	now := en.rt.clock.Now().UTC()
	if v, ok := out[domain.FieldCreatedAt]; !ok || v == nil {
		out[domain.FieldCreatedAt] = domain.EncodeTime(now)
	}
	out[domain.FieldUpdatedAt] = domain.EncodeTime(now)

	if err := en.rt.driver.Put(ctx, key.Type, key.ID, out); err != nil {
		en.fail(key, res, fmt.Errorf("put %s: %w", key, err))
		return nil
	}
	if err := en.rt.driver.AddKey(ctx, key.Type, key.ID); err != nil {
		en.fail(key, res, fmt.Errorf("index %s: %w", key, err))
		return nil
	}
	res.State = domain.StatePersisted

	if res.Resolution == domain.StateNewWrite {
		mirrorDefaults(e, out)
	}
	if created, ok, err := domain.DecodeTime(out[domain.FieldCreatedAt]); ok && err == nil {
		e.setRaw(domain.FieldCreatedAt, created)
	}
	e.setRaw(domain.FieldUpdatedAt, now)
	en.rt.logger.Debug("record written", "key", key.String(), "resolution", string(res.Resolution))
	return out
}

// withoutUnbooked returns rec without the reference tokens that still name a
// provisional key, which only survive when booking that record failed.
// Fields holding such a token are left absent, lists lose the element and
// mappings lose the entry. The names of the affected fields are returned.
func withoutUnbooked(rec domain.Record) (domain.Record, []string) {
	var dropped []string
	out := make(domain.Record, len(rec))
	for name, v := range rec {
		cleaned, keep, changed := stripUnbooked(v)
		if changed {
			dropped = append(dropped, name)
		}
		if keep {
			out[name] = cleaned
		}
	}
	sort.Strings(dropped)
	return out, dropped
}

func stripUnbooked(v any) (out any, keep, changed bool) {
	if key, ok := domain.AsToken(v); ok {
		return v, !key.Provisional(), key.Provisional()
	}
	switch val := v.(type) {
	case []any:
		list := make([]any, 0, len(val))
		for _, inner := range val {
			cleaned, keepInner, changedInner := stripUnbooked(inner)
			changed = changed || changedInner
			if keepInner {
				list = append(list, cleaned)
			}
		}
		return list, true, changed
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, inner := range val {
			cleaned, keepInner, changedInner := stripUnbooked(inner)
			changed = changed || changedInner
			if keepInner {
				m[k] = cleaned
			}
		}
		return m, true, changed
	}
	return v, true, false
}

func (en *Engine) fail(key domain.EntityKey, res *domain.RecordResult, err error) {
	res.State = domain.StateFailed
	res.Err = err
	en.rt.logger.Error("record write failed", "key", key.String(), "error", err)
}

// adopt makes e the scope's instance for key, or refreshes the instance that
// already owns the key with the written record.
func (en *Engine) adopt(scope *Scope, e *Entity, key domain.EntityKey, written domain.Record) {
	e.attach(scope)
	owner, inserted := scope.cache.adopt(key, e)
	if inserted {
		en.rt.resolver.Install(e)
		return
	}
	if owner != e && written != nil {
		en.rt.apply(scope, owner, written)
	}
}

// applyDefaults fills schema defaults into fields a new record lacks or
// holds as nil.
func applyDefaults(schema *domain.Schema, rec domain.Record) domain.Record {
	out := rec.Clone()
	for _, f := range schema.Fields {
		if f.Default == nil {
			continue
		}
		if v, ok := out[f.Name]; !ok || v == nil {
			out[f.Name] = f.Default
		}
	}
	return out
}

// mirrorDefaults copies defaults filled in by applyDefaults back onto e, so
// an unchanged entity saved again compares equal to its stored record.
func mirrorDefaults(e *Entity, written domain.Record) {
	for _, f := range e.schema.Fields {
		if f.Default == nil {
			continue
		}
		if v, ok := e.rawField(f.Name); ok && v != nil {
			continue
		}
		v, err := normalizeField(f, written[f.Name], e.scope)
		if err != nil {
			continue
		}
		e.setRaw(f.Name, v)
	}
}

// syncForeignKeys recomputes foreign-key fields from assigned relationship
// objects: a relation whose key lives locally copies the remote key in, a
// relation whose key lives remotely pushes the local key out to every
// assigned object.
func (en *Engine) syncForeignKeys(ctx context.Context, e *Entity) {
	if e.schema == nil {
		return
	}
	for _, desc := range e.schema.Relationships {
		objs := e.assigned(desc.Name)
		if len(objs) == 0 {
			continue
		}
		if desc.LocalOwnsKey() {
			if v, ok := en.remoteKey(ctx, objs[0], desc.RemoteKey); ok {
				e.setRaw(desc.LocalKey, v)
			}
			continue
		}
		local, ok := localKey(e, desc.LocalKey)
		if !ok {
			continue
		}
		for _, obj := range objs {
			child, err := obj.Materialize(ctx)
			if err != nil {
				en.rt.logger.Warn("foreign key sync skipped", "owner", e.Key().String(), "relationship", desc.Name, "error", err)
				continue
			}
			child.setRaw(desc.RemoteKey, local)
		}
	}
}

func (en *Engine) remoteKey(ctx context.Context, obj Object, field string) (any, bool) {
	if field == domain.FieldID {
		id := obj.Key().ID
		return id, id > 0
	}
	target, err := obj.Materialize(ctx)
	if err != nil {
		en.rt.logger.Warn("foreign key sync skipped", "target", obj.Key().String(), "error", err)
		return nil, false
	}
	v, ok := target.rawField(field)
	return v, ok && v != nil
}

func localKey(e *Entity, field string) (any, bool) {
	if field == domain.FieldID {
		id := e.ID()
		return id, id > 0
	}
	v, ok := e.rawField(field)
	return v, ok && v != nil
}

// Update sets every value on obj, in field-name order, then saves it.
func (en *Engine) Update(ctx context.Context, scope *Scope, obj Object, values map[string]any) (SaveReport, error) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := obj.Set(name, values[name]); err != nil {
			return SaveReport{}, fmt.Errorf("update %s.%s: %w", obj.Key(), name, err)
		}
	}
	return en.Save(ctx, scope, obj)
}

// SoftDelete drops obj from its type's key index. The record itself stays
// readable by key.
func (en *Engine) SoftDelete(ctx context.Context, obj Object) error {
	key := obj.Key()
	if !key.Assigned() {
		return fmt.Errorf("soft delete %s: no id assigned", key)
	}
	if err := en.rt.driver.RemoveKey(ctx, key.Type, key.ID); err != nil {
		return fmt.Errorf("soft delete %s: %w", key, err)
	}
	en.rt.logger.Debug("record unindexed", "key", key.String())
	return nil
}

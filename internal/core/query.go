package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"romekv/pkg/domain"
)

// Op is a filter operator.
type Op string

const (
	OpEq    Op = "eq"    // field equals Values[0]
	OpIn    Op = "in"    // field equals any of Values
	OpMatch Op = "match" // Program evaluates to true over the record
)

// Filter restricts a lookup. Reference fields compare by the id of the
// record they point to.
type Filter struct {
	Field   string
	Op      Op
	Values  []any
	Program *vm.Program
}

// Querier is the query collaborator: given a type and filters it returns the
// matching entities, materialized through the scope, in a stable order.
type Querier interface {
	Find(ctx context.Context, scope *Scope, typ string, filters ...Filter) ([]*Entity, error)
}

// DriverQuerier answers queries by scanning the driver's key index in
// ascending id order. Keys whose record has vanished are skipped.
type DriverQuerier struct {
	rt *runtime
}

// Find implements Querier.
func (q *DriverQuerier) Find(ctx context.Context, scope *Scope, typ string, filters ...Filter) ([]*Entity, error) {
	rows, err := q.scan(ctx, scope, typ, filters)
	if err != nil {
		return nil, err
	}
	return rows.All(ctx)
}

func (q *DriverQuerier) scan(ctx context.Context, scope *Scope, typ string, filters []Filter) (*Rows, error) {
	schema, err := q.rt.models.Resolve(typ)
	if err != nil {
		return nil, err
	}
	ids, err := q.rt.driver.Keys(ctx, schema.Table)
	if err != nil {
		return nil, fmt.Errorf("list %s keys: %w", schema.Table, err)
	}
	rows := &Rows{rt: q.rt, scope: scope}
	for _, id := range ids {
		rec, err := q.rt.driver.Get(ctx, schema.Table, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("fetch %s %d: %w", schema.Table, id, err)
		}
		ok, err := matches(rec, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			rows.keys = append(rows.keys, domain.NewKey(schema.Table, id))
			rows.records = append(rows.records, rec)
		}
	}
	return rows, nil
}

func matches(rec domain.Record, filters []Filter) (bool, error) {
	for _, f := range filters {
		switch f.Op {
		case OpEq, OpIn, "":
			v, present := rec[f.Field]
			if !present {
				return false, nil
			}
			if !matchesAny(v, f.Values) {
				return false, nil
			}
		case OpMatch:
			if f.Program == nil {
				return false, fmt.Errorf("match filter without program")
			}
			out, err := expr.Run(f.Program, predicateEnv(rec))
			if err != nil {
				return false, fmt.Errorf("evaluate match: %w", err)
			}
			if b, _ := out.(bool); !b {
				return false, nil
			}
		default:
			return false, fmt.Errorf("unknown filter operator %q", f.Op)
		}
	}
	return true, nil
}

func matchesAny(v any, candidates []any) bool {
	if key, ok := domain.AsToken(v); ok {
		v = key.ID
	}
	for _, c := range candidates {
		switch cv := c.(type) {
		case Object:
			c = cv.Key().ID
		case map[string]any:
			if key, ok := domain.AsToken(cv); ok {
				c = key.ID
			}
		case time.Time:
			c = domain.EncodeTime(cv)
		}
		if domain.ValuesEqual(v, c) {
			return true
		}
	}
	return false
}

// predicateEnv exposes a record to match expressions with references
// collapsed to ids and timestamps decoded.
func predicateEnv(rec domain.Record) map[string]any {
	env := make(map[string]any, len(rec))
	for k, v := range rec {
		env[k] = plainValue(v)
	}
	return env
}

// CompileMatch compiles a boolean expression for OpMatch filters.
func CompileMatch(expression string) (*vm.Program, error) {
	program, err := expr.Compile(expression, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", expression, err)
	}
	return program, nil
}

// Rows holds matched records and materializes each one only when accessed.
type Rows struct {
	rt      *runtime
	scope   *Scope
	keys    []domain.EntityKey
	records []domain.Record
}

// Len returns the number of matched records.
func (r *Rows) Len() int { return len(r.keys) }

// Keys returns the keys of the matched records in order.
func (r *Rows) Keys() []domain.EntityKey {
	return append([]domain.EntityKey(nil), r.keys...)
}

// At materializes the i-th row through the scope's identity cache.
func (r *Rows) At(ctx context.Context, i int) (*Entity, error) {
	if i < 0 || i >= len(r.keys) {
		return nil, fmt.Errorf("row %d out of range [0,%d)", i, len(r.keys))
	}
	return r.rt.load(ctx, r.scope, r.keys[i], r.records[i], false)
}

// All materializes every row.
func (r *Rows) All(ctx context.Context) ([]*Entity, error) {
	out := make([]*Entity, 0, len(r.keys))
	for i := range r.keys {
		e, err := r.At(ctx, i)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Query is a small builder over the query collaborator.
type Query struct {
	rt      *runtime
	scope   *Scope
	typ     string
	filters []Filter
	err     error
}

// Where keeps records whose field equals value.
func (q *Query) Where(field string, value any) *Query {
	q.filters = append(q.filters, Filter{Field: field, Op: OpEq, Values: []any{value}})
	return q
}

// In keeps records whose field equals one of values.
func (q *Query) In(field string, values ...any) *Query {
	q.filters = append(q.filters, Filter{Field: field, Op: OpIn, Values: values})
	return q
}

// Match keeps records for which the boolean expression holds, e.g.
// `report_count > 1 && host == "orion-3"`.
func (q *Query) Match(expression string) *Query {
	program, err := CompileMatch(expression)
	if err != nil {
		q.err = errors.Join(q.err, err)
		return q
	}
	q.filters = append(q.filters, Filter{Op: OpMatch, Program: program})
	return q
}

// All runs the query.
func (q *Query) All(ctx context.Context) (out []*Entity, err error) {
	if q.err != nil {
		return nil, q.err
	}
	start := time.Now()
	defer func() { q.rt.metrics.Observe(ctx, "query", err == nil, time.Since(start)) }()
	return q.rt.querier.Find(ctx, q.scope, q.typ, q.filters...)
}

// First returns the first match, or nil when nothing matches.
func (q *Query) First(ctx context.Context) (*Entity, error) {
	all, err := q.All(ctx)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[0], nil
}

// Count returns the number of matches.
func (q *Query) Count(ctx context.Context) (int, error) {
	if dq, ok := q.rt.querier.(*DriverQuerier); ok && q.err == nil {
		rows, err := dq.scan(ctx, q.scope, q.typ, q.filters)
		if err != nil {
			return 0, err
		}
		return rows.Len(), nil
	}
	all, err := q.All(ctx)
	return len(all), err
}

// Rows runs the query against the driver index without materializing the
// results; each row is materialized on access.
func (q *Query) Rows(ctx context.Context) (*Rows, error) {
	if q.err != nil {
		return nil, q.err
	}
	dq, ok := q.rt.querier.(*DriverQuerier)
	if !ok {
		dq = &DriverQuerier{rt: q.rt}
	}
	return dq.scan(ctx, q.scope, q.typ, q.filters)
}

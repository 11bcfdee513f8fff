package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"romekv/internal/core"
	"romekv/internal/entitymodel"
	"romekv/internal/registry"
	"romekv/pkg/domain"
)

// session bundles the service and scope one command invocation works in.
type session struct {
	svc   *core.Service
	reg   *registry.Registry
	scope *core.Scope
}

func loadRegistry(opts *RootOptions) (*registry.Registry, error) {
	if opts.Schema != "" {
		return registry.LoadFile(opts.Schema)
	}
	return entitymodel.Default()
}

func openSession(ctx context.Context, cmd *cobra.Command, opts *RootOptions) (*session, error) {
	reg, err := loadRegistry(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load models", err)
	}
	svcOpts, err := core.EnvOptions()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	driver, err := opts.openDriver(ctx)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open driver", err)
	}
	svc, err := core.NewService(driver, reg, append(svcOpts, core.WithLogger(opts.logger(cmd)))...)
	if err != nil {
		_ = driver.Close()
		return nil, WrapExitError(ExitCommandError, "failed to start service", err)
	}
	return &session{svc: svc, reg: reg, scope: svc.OpenScope(ctx)}, nil
}

func (s *session) close() {
	s.svc.CloseScope(s.scope)
	_ = s.svc.Close()
}

func (s *session) resolve(typ string) (*domain.Schema, error) {
	schema, err := s.reg.Resolve(typ)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "unknown type", err)
	}
	return schema, nil
}

// parseID parses a positive record id.
func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, WrapExitError(ExitCommandError, "invalid id", fmt.Errorf("%q is not a positive integer", raw))
	}
	return id, nil
}

// parseAssignment splits field=value and decodes value for the field's
// kind. String fields keep the raw text and time fields take RFC 3339;
// every other kind is read as a YAML scalar or flow collection, so 3, true,
// null and [a, b] work.
func parseAssignment(schema *domain.Schema, raw string) (string, any, error) {
	field, text, ok := strings.Cut(raw, "=")
	if !ok || field == "" {
		return "", nil, WrapExitError(ExitCommandError, "invalid assignment", fmt.Errorf("%q is not field=value", raw))
	}
	spec, known := schema.Field(field)
	if !known {
		return "", nil, WrapExitError(ExitCommandError, "invalid assignment",
			domain.UnknownFieldError{Type: schema.Name, Field: field})
	}
	switch spec.Kind {
	case domain.KindString:
		return field, text, nil
	case domain.KindTime:
		t, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return "", nil, WrapExitError(ExitCommandError, "invalid assignment", fmt.Errorf("field %s: %w", field, err))
		}
		return field, t.UTC(), nil
	}
	var v any
	if err := yaml.Unmarshal([]byte(text), &v); err != nil {
		return "", nil, WrapExitError(ExitCommandError, "invalid assignment", fmt.Errorf("field %s: %w", field, err))
	}
	return field, v, nil
}

// entityView is the output form of one entity.
type entityView struct {
	Key    string        `json:"key"`
	Record domain.Record `json:"record"`
}

func viewOf(e *core.Entity) (entityView, error) {
	sim, err := core.Simplify(e)
	if err != nil {
		return entityView{}, err
	}
	return entityView{Key: e.Key().String(), Record: sim.Records[sim.Order[0]]}, nil
}

func viewsOf(entities []*core.Entity) ([]entityView, error) {
	views := make([]entityView, 0, len(entities))
	for _, e := range entities {
		v, err := viewOf(e)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", e.Key(), err)
		}
		views = append(views, v)
	}
	return views, nil
}

func writeEntity(w io.Writer, e *core.Entity) {
	fmt.Fprintln(w, e.Key())
	for _, name := range e.FieldNames() {
		v, _ := e.Get(name)
		fmt.Fprintf(w, "  %s = %s\n", name, formatValue(v))
	}
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case core.Object:
		return val.Key().String()
	case []any:
		parts := make([]string, len(val))
		for i, inner := range val {
			parts[i] = formatValue(inner)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + formatValue(val[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return fmt.Sprint(v)
}

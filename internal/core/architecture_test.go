package core

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestNoTypeAliases ensures the core package never introduces type aliases.
func TestNoTypeAliases(t *testing.T) {
	pkg := loadCorePackage(t)
	var aliases []string

	for _, file := range pkg.Syntax {
		for _, decl := range file.Decls {
			gen, ok := decl.(*ast.GenDecl)
			if !ok || gen.Tok != token.TYPE {
				continue
			}
			for _, spec := range gen.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok || !ts.Assign.IsValid() {
					continue
				}
				pos := pkg.Fset.Position(ts.Pos())
				aliases = append(aliases, fmt.Sprintf("%s:%d type %s", filepath.Base(pos.Filename), pos.Line, ts.Name.Name))
			}
		}
	}

	if len(aliases) > 0 {
		t.Fatalf("type aliases are forbidden in internal/core; found %d:\n%s", len(aliases), strings.Join(aliases, "\n"))
	}
}

// TestRuntimeStructContract pins the collaborators every scope, proxy and the
// engine reach through the shared runtime.
func TestRuntimeStructContract(t *testing.T) {
	pkg := loadCorePackage(t)

	obj := pkg.Types.Scope().Lookup("runtime")
	if obj == nil {
		t.Fatalf("runtime type not found in package")
	}
	structType, ok := obj.Type().Underlying().(*types.Struct)
	if !ok {
		t.Fatalf("runtime is not a struct")
	}
	qualifier := func(p *types.Package) string {
		if p == nil {
			return ""
		}
		return p.Path()
	}
	fields := make(map[string]string, structType.NumFields())
	for i := 0; i < structType.NumFields(); i++ {
		field := structType.Field(i)
		fields[field.Name()] = types.TypeString(field.Type(), qualifier)
	}

	required := map[string]string{
		"driver":   "romekv/pkg/domain.Driver",
		"models":   "romekv/pkg/domain.ModelRegistry",
		"querier":  "romekv/internal/core.Querier",
		"resolver": "*romekv/internal/core.Resolver",
		"logger":   "romekv/internal/core.Logger",
		"metrics":  "romekv/internal/core.MetricsRecorder",
		"tracer":   "romekv/internal/core.Tracer",
		"clock":    "romekv/internal/core.Clock",
	}
	var problems []string
	for name, want := range required {
		got, ok := fields[name]
		switch {
		case !ok:
			problems = append(problems, "missing field "+name)
		case got != want:
			problems = append(problems, fmt.Sprintf("%s: want %s, got %s", name, want, got))
		}
	}
	if len(problems) > 0 {
		t.Fatalf("runtime struct contract violated: %s", strings.Join(problems, "; "))
	}
}

// TestServiceWritesDelegateToEngine keeps the write protocol in one place:
// every exported Service method that writes must call through s.engine.
func TestServiceWritesDelegateToEngine(t *testing.T) {
	pkg := loadCorePackage(t)
	serviceFile := findFile(t, pkg, "service.go")

	writes := map[string]bool{"Save": false, "Update": false, "SoftDelete": false}
	for _, decl := range serviceFile.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv == nil || fn.Body == nil {
			continue
		}
		if _, tracked := writes[fn.Name.Name]; !tracked {
			continue
		}
		recv := receiverName(fn)
		ast.Inspect(fn.Body, func(n ast.Node) bool {
			sel, ok := n.(*ast.SelectorExpr)
			if !ok || sel.Sel.Name != "engine" {
				return true
			}
			if ident, ok := sel.X.(*ast.Ident); ok && ident.Name == recv {
				writes[fn.Name.Name] = true
			}
			return true
		})
	}
	for name, delegates := range writes {
		if !delegates {
			t.Errorf("Service.%s does not delegate to the persistence engine", name)
		}
	}
}

func receiverName(fn *ast.FuncDecl) string {
	if len(fn.Recv.List) == 0 || len(fn.Recv.List[0].Names) == 0 {
		return ""
	}
	return fn.Recv.List[0].Names[0].Name
}

func findFile(t *testing.T, pkg *packages.Package, name string) *ast.File {
	t.Helper()
	for _, file := range pkg.Syntax {
		if filepath.Base(pkg.Fset.Position(file.Pos()).Filename) == name {
			return file
		}
	}
	t.Fatalf("file %s not found in core package", name)
	return nil
}

var (
	corePkgOnce sync.Once
	corePkg     *packages.Package
	corePkgErr  error
)

func loadCorePackage(t *testing.T) *packages.Package {
	t.Helper()

	corePkgOnce.Do(func() {
		cfg := &packages.Config{
			Mode: packages.NeedName | packages.NeedTypes | packages.NeedSyntax | packages.NeedCompiledGoFiles | packages.NeedFiles,
		}
		pkgs, err := packages.Load(cfg, "romekv/internal/core")
		if err != nil {
			corePkgErr = fmt.Errorf("load core package: %w", err)
			return
		}
		for _, pkg := range pkgs {
			if len(pkg.Errors) > 0 {
				corePkgErr = fmt.Errorf("package load errors: %v", pkg.Errors)
				return
			}
			if pkg.PkgPath == "romekv/internal/core" {
				corePkg = pkg
				return
			}
		}
		corePkgErr = fmt.Errorf("core package not found in load results")
	})

	if corePkgErr != nil {
		t.Fatalf("core package load: %v", corePkgErr)
	}
	return corePkg
}

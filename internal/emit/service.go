package emit

import (
	"fmt"
	"strconv"
	"strings"

	"proxygen/internal/descriptor"
	"proxygen/internal/diag"
	"proxygen/internal/model"
)

var opConst = map[descriptor.OperationKind]string{
	descriptor.OpQuery:  "OpQuery",
	descriptor.OpInvoke: "OpInvoke",
	descriptor.OpInsert: "OpInsert",
	descriptor.OpUpdate: "OpUpdate",
	descriptor.OpDelete: "OpDelete",
}

func (e *emitter) lookupService(name string) (*model.Service, bool) {
	for _, s := range e.m.Services {
		if s.Qualified() == name {
			return s, true
		}
	}
	return nil, false
}

func (e *emitter) renderService(name string) rendered {
	s, ok := e.lookupService(name)
	if !ok {
		return rendered{
			unit:  &Unit{Name: name},
			diags: []diag.Diagnostic{diag.NewError(diag.EmtRenderFailed, name, "service is planned but not part of the model")},
		}
	}
	e.servicesEmitted = true
	w := e.newUnit(name)
	w.use("context")
	client := exported(s.Name) + "Client"

	w.printf("// %s calls the %s operations through an Invoker.\n", client, s.Qualified())
	w.printf("type %s struct {\n\tinv Invoker\n}\n\n", client)
	w.printf("// New%s returns a client sending calls through inv.\n", client)
	w.printf("func New%s(inv Invoker) *%s {\n\treturn &%s{inv: inv}\n}\n", client, client, client)

	for _, op := range s.Operations {
		w.renderOperation(s, client, op)
	}
	return w.finish(name, fileName(name, "_client"), s.Deps)
}

func (w *unitWriter) renderOperation(s *model.Service, client string, op descriptor.Operation) {
	method := exported(op.Name)
	params := []string{"ctx context.Context"}
	args := make([]string, 0, len(op.Parameters))
	used := make(map[string]bool, len(op.Parameters))
	for _, p := range op.Parameters {
		name := unexported(p.Name)
		for n := 2; used[name]; n++ {
			name = unexported(p.Name) + strconv.Itoa(n)
		}
		used[name] = true
		params = append(params, name+" "+w.goType(p.Type, p.Collection))
		args = append(args, name)
	}
	argList := "nil"
	if len(args) > 0 {
		argList = "[]any{" + strings.Join(args, ", ") + "}"
	}
	kind := opConst[op.Kind]
	if kind == "" {
		kind = "OpInvoke"
	}
	call := fmt.Sprintf("c.inv.Invoke(ctx, %s, %s, %s, %s, ", strconv.Quote(s.Qualified()), strconv.Quote(op.Name), kind, argList)

	w.printf("\n// %s invokes the %s %s operation.\n", method, op.Name, op.Kind)
	if strings.TrimSpace(op.Returns) == "" {
		w.printf("func (c *%s) %s(%s) error {\n", client, method, strings.Join(params, ", "))
		w.printf("\treturn %snil)\n}\n", call)
		return
	}
	ret := w.goType(op.Returns, op.ReturnsCollection)
	w.printf("func (c *%s) %s(%s) (%s, error) {\n", client, method, strings.Join(params, ", "), ret)
	w.printf("\tvar out %s\n", ret)
	w.printf("\terr := %s&out)\n", call)
	w.printf("\treturn out, err\n}\n")
}

func (e *emitter) renderRuntime() rendered {
	w := e.newUnit(RuntimeUnit)
	w.use("context")
	w.printf(`// OperationKind tells the transport how an operation affects server state.
type OperationKind string

const (
	OpQuery  OperationKind = "query"
	OpInvoke OperationKind = "invoke"
	OpInsert OperationKind = "insert"
	OpUpdate OperationKind = "update"
	OpDelete OperationKind = "delete"
)

// Invoker carries a service call to the server and decodes the result into
// out, which is nil for operations without a result.
type Invoker interface {
	Invoke(ctx context.Context, service, operation string, kind OperationKind, args []any, out any) error
}
`)
	return w.finish(RuntimeUnit, RuntimeUnit+".go", nil)
}

package emit

import (
	"bytes"
	"fmt"
	"go/format"
	"sort"
	"strconv"
	"strings"

	"proxygen/internal/descriptor"
	"proxygen/internal/diag"
	"proxygen/internal/model"
)

type emitter struct {
	m       *model.Model
	plan    Plan
	opts    Options
	local   map[string]string // qualified -> package-level Go name
	aliases map[string]string // import path -> alias
	emitted map[string]bool

	servicesEmitted bool
}

func newEmitter(m *model.Model, plan Plan, opts Options) *emitter {
	e := &emitter{
		m:       m,
		plan:    plan,
		opts:    opts,
		aliases: importAliases(opts.Namespaces),
		emitted: make(map[string]bool, len(plan.Order)),
	}
	for _, name := range plan.Order {
		e.emitted[name] = true
	}
	names := make([]string, 0, len(m.Types)+len(m.External))
	for _, t := range m.Types {
		names = append(names, t.Qualified())
	}
	names = append(names, m.External...)
	e.local = localNames(names)
	return e
}

// unitWriter collects one unit's body, imports and diagnostics.
type unitWriter struct {
	e       *emitter
	subject string
	body    bytes.Buffer
	imports map[string]string // path -> alias ("" when the default name is used)
	diags   []diag.Diagnostic
	warned  map[string]bool
}

func (e *emitter) newUnit(subject string) *unitWriter {
	return &unitWriter{e: e, subject: subject, imports: make(map[string]string), warned: make(map[string]bool)}
}

func (w *unitWriter) printf(format string, args ...any) {
	fmt.Fprintf(&w.body, format, args...)
}

func (w *unitWriter) use(path string) {
	if _, ok := w.imports[path]; !ok {
		w.imports[path] = ""
	}
}

// ref returns the Go expression naming the type qualified.
func (w *unitWriter) ref(qualified string) string {
	e := w.e
	if reason, missing := e.plan.Missing[qualified]; missing && !w.warned[qualified] {
		w.warned[qualified] = true
		w.diags = append(w.diags, diag.NewWarning(diag.EmtReferencesSkipped, w.subject,
			fmt.Sprintf("%s refers to %s, which is not generated: %s", w.subject, qualified, reason)))
	}
	if !e.emitted[qualified] {
		ns, name := descriptor.SplitQualified(qualified)
		if p, ok := e.opts.Namespaces[ns]; ok && p != "" {
			alias := e.aliases[p]
			w.imports[p] = alias
			return alias + "." + exported(name)
		}
	}
	if n, ok := e.local[qualified]; ok {
		return n
	}
	return exported(qualified)
}

var primitiveGo = map[string]string{
	"int32":    "int32",
	"int64":    "int64",
	"int16":    "int16",
	"uint8":    "uint8",
	"float32":  "float32",
	"float64":  "float64",
	"decimal":  "string",
	"bool":     "bool",
	"string":   "string",
	"datetime": "time.Time",
	"guid":     "string",
	"bytes":    "[]byte",
	"duration": "time.Duration",
}

// goType renders a declared type. Non-enum references are pointers unless
// they are collections.
func (w *unitWriter) goType(declared string, collection bool) string {
	c := descriptor.Canonical(declared)
	var base string
	if g, ok := primitiveGo[c]; ok {
		base = g
		if strings.HasPrefix(g, "time.") {
			w.use("time")
		}
	} else {
		base = w.ref(c)
		if t, ok := w.e.m.Lookup(c); !collection && (!ok || t.Kind != descriptor.KindEnum) {
			base = "*" + base
		}
	}
	if collection {
		return "[]" + base
	}
	return base
}

func (w *unitWriter) finish(name, file string, deps []string) rendered {
	var src bytes.Buffer
	src.WriteString("// Code generated by proxygen. DO NOT EDIT.\n")
	fmt.Fprintf(&src, "// Source: %s\n\n", name)
	fmt.Fprintf(&src, "package %s\n\n", w.e.opts.Package)
	if len(w.imports) > 0 {
		paths := make([]string, 0, len(w.imports))
		for p := range w.imports {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		src.WriteString("import (\n")
		for _, p := range paths {
			if alias := w.imports[p]; alias != "" {
				fmt.Fprintf(&src, "\t%s %s\n", alias, strconv.Quote(p))
			} else {
				fmt.Fprintf(&src, "\t%s\n", strconv.Quote(p))
			}
		}
		src.WriteString(")\n\n")
	}
	src.Write(w.body.Bytes())

	u := &Unit{Name: name, FileName: file, Deps: deps}
	text, err := format.Source(src.Bytes())
	if err != nil {
		w.diags = append(w.diags, diag.NewError(diag.EmtRenderFailed, name, fmt.Sprintf("generated source does not parse: %v", err)))
		return rendered{unit: u, diags: w.diags}
	}
	u.Text = text
	return rendered{unit: u, diags: w.diags}
}

func (e *emitter) renderType(name string) rendered {
	t, ok := e.m.Lookup(name)
	if !ok {
		return rendered{
			unit:  &Unit{Name: name},
			diags: []diag.Diagnostic{diag.NewError(diag.EmtRenderFailed, name, "type is planned but not part of the model")},
		}
	}
	w := e.newUnit(name)
	goName := e.local[name]
	if t.Kind == descriptor.KindEnum {
		w.renderEnum(t, goName)
	} else {
		w.renderStruct(t, goName)
	}
	return w.finish(name, fileName(name, ""), t.Deps)
}

func (w *unitWriter) renderEnum(t *model.Type, goName string) {
	w.printf("// %s is the client proxy for the %s enum.\n", goName, t.Qualified())
	w.printf("type %s int64\n\n", goName)
	if len(t.Values) == 0 {
		return
	}
	w.printf("const (\n")
	for _, v := range t.Values {
		w.printf("\t%s%s %s = %d\n", goName, exported(v.Name), goName, v.Value)
	}
	w.printf(")\n\n")

	w.use("strconv")
	w.printf("// String returns the declared name of the value.\n")
	w.printf("func (v %s) String() string {\n\tswitch v {\n", goName)
	seen := make(map[int64]bool, len(t.Values))
	for _, v := range t.Values {
		if seen[v.Value] {
			continue
		}
		seen[v.Value] = true
		w.printf("\tcase %s%s:\n\t\treturn %s\n", goName, exported(v.Name), strconv.Quote(v.Name))
	}
	w.printf("\t}\n\treturn %s + strconv.FormatInt(int64(v), 10) + \")\"\n}\n", strconv.Quote(goName+"("))
}

type field struct {
	member descriptor.Member
	name   string
	typ    string
}

func (w *unitWriter) fields(t *model.Type) []field {
	out := make([]field, 0, len(t.Members))
	used := map[string]bool{"Key": true, "Validate": true}
	for _, m := range t.Members {
		name := exported(m.Name)
		if used[name] {
			name += "Field"
		}
		for n := 2; used[name]; n++ {
			name = exported(m.Name) + strconv.Itoa(n)
		}
		used[name] = true
		typ := m.Type
		if m.Association != nil {
			typ = m.Association.Target
		}
		out = append(out, field{member: m, name: name, typ: w.goType(typ, m.Collection)})
	}
	return out
}

func tags(m descriptor.Member) string {
	jsonTag := m.Name
	if !m.Key && !m.Required {
		jsonTag += ",omitempty"
	}
	var proxy []string
	if m.Key {
		proxy = append(proxy, "key")
	}
	if m.Required {
		proxy = append(proxy, "required")
	}
	if m.ComputedOnInsert {
		proxy = append(proxy, "computed=insert")
	}
	if m.ComputedOnUpdate {
		proxy = append(proxy, "computed=update")
	}
	if a := m.Association; a != nil {
		proxy = append(proxy, "assoc="+strings.TrimSpace(a.Target))
		if a.Collection || m.Collection {
			proxy = append(proxy, "many")
		}
		if len(a.ForeignKey) > 0 {
			proxy = append(proxy, "fk="+strings.Join(a.ForeignKey, "+"))
		}
	}
	tag := "json:" + strconv.Quote(jsonTag)
	if len(proxy) > 0 {
		tag += " proxy:" + strconv.Quote(strings.Join(proxy, ","))
	}
	return "`" + tag + "`"
}

func (w *unitWriter) renderStruct(t *model.Type, goName string) {
	fs := w.fields(t)
	w.printf("// %s is the client proxy for the %s %s.\n", goName, t.Qualified(), t.Kind)
	w.printf("type %s struct {\n", goName)
	for _, f := range fs {
		w.printf("\t%s %s %s\n", f.name, f.typ, tags(f.member))
	}
	w.printf("}\n\n")

	if t.Kind == descriptor.KindEntity && len(t.Keys) > 0 {
		keys := make([]string, 0, len(t.Keys))
		for _, f := range fs {
			if f.member.Key {
				keys = append(keys, "x."+f.name)
			}
		}
		w.printf("// Key returns the key member values in declaration order.\n")
		w.printf("func (x *%s) Key() []any {\n\treturn []any{%s}\n}\n\n", goName, strings.Join(keys, ", "))
	}
	w.renderValidate(goName, fs)
}

package emit

import (
	"fmt"
	"strconv"
	"strings"

	"proxygen/internal/descriptor"
)

type fieldClass uint8

const (
	classOther fieldClass = iota
	classString
	classNumber
	classNilable // pointers, slices, []byte
	classTime
)

func classify(goType string) fieldClass {
	switch {
	case strings.HasPrefix(goType, "*"), strings.HasPrefix(goType, "[]"):
		return classNilable
	case goType == "string":
		return classString
	case goType == "time.Time":
		return classTime
	}
	switch goType {
	case "int16", "int32", "int64", "uint8", "float32", "float64":
		return classNumber
	}
	return classOther
}

func number(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// renderValidate emits Validate from the required flag and the declared
// constraints. Constraints that do not apply to the field's Go type are ignored.
func (w *unitWriter) renderValidate(goName string, fs []field) {
	var checks []string
	var patterns []string
	fail := func(cond, msg string) {
		checks = append(checks, fmt.Sprintf("if %s {\n\t\terrs = append(errs, errors.New(%s))\n\t}", cond, strconv.Quote(msg)))
	}

	for _, f := range fs {
		m := f.member
		x := "x." + f.name
		class := classify(f.typ)
		required := m.Required
		for _, c := range m.Constraints {
			if c.Kind == descriptor.ConstraintRequired {
				required = true
			}
		}
		if required {
			switch class {
			case classString:
				fail(x+` == ""`, m.Name+" is required")
			case classNilable:
				if strings.HasPrefix(f.typ, "*") {
					fail(x+" == nil", m.Name+" is required")
				} else {
					fail("len("+x+") == 0", m.Name+" is required")
				}
			case classTime:
				fail(x+".IsZero()", m.Name+" is required")
			}
		}
		// необязательное пустое значение не проверяем
		guard := ""
		if !required {
			switch class {
			case classString:
				guard = x + ` != "" && `
			case classNilable:
				guard = "len(" + x + ") > 0 && "
			}
		}
		for _, c := range m.Constraints {
			switch c.Kind {
			case descriptor.ConstraintRange:
				if class != classNumber {
					continue
				}
				if c.Min != nil {
					fail(fmt.Sprintf("float64(%s) < %s", x, number(*c.Min)), fmt.Sprintf("%s must be at least %s", m.Name, number(*c.Min)))
				}
				if c.Max != nil {
					fail(fmt.Sprintf("float64(%s) > %s", x, number(*c.Max)), fmt.Sprintf("%s must be at most %s", m.Name, number(*c.Max)))
				}
			case descriptor.ConstraintLength:
				if class != classString && (class != classNilable || strings.HasPrefix(f.typ, "*")) {
					continue
				}
				if c.Min != nil {
					n := int(*c.Min)
					fail(fmt.Sprintf("%slen(%s) < %d", guard, x, n), fmt.Sprintf("%s must have length at least %d", m.Name, n))
				}
				if c.Max != nil {
					n := int(*c.Max)
					fail(fmt.Sprintf("len(%s) > %d", x, n), fmt.Sprintf("%s must have length at most %d", m.Name, n))
				}
			case descriptor.ConstraintPattern:
				if class != classString {
					continue
				}
				v := unexported(goName) + f.name + "Pattern"
				if len(patterns) > 0 {
					v += strconv.Itoa(len(patterns) + 1)
				}
				patterns = append(patterns, fmt.Sprintf("var %s = regexp.MustCompile(%s)", v, strconv.Quote(c.Pattern)))
				fail(fmt.Sprintf("%s!%s.MatchString(%s)", guard, v, x), fmt.Sprintf("%s does not match %s", m.Name, c.Pattern))
			}
		}
	}

	if len(patterns) > 0 {
		w.use("regexp")
		for _, p := range patterns {
			w.printf("%s\n", p)
		}
		w.printf("\n")
	}
	w.printf("// Validate checks the declared member constraints.\n")
	w.printf("func (x *%s) Validate() error {\n", goName)
	if len(checks) == 0 {
		w.printf("\treturn nil\n}\n")
		return
	}
	w.use("errors")
	w.printf("\tvar errs []error\n")
	for _, c := range checks {
		w.printf("\t%s\n", c)
	}
	w.printf("\treturn errors.Join(errs...)\n}\n")
}

package emit

import (
	"go/token"
	"path"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"proxygen/internal/descriptor"
)

// identifiers declared by the runtime unit
var reserved = map[string]bool{
	"Invoker":       true,
	"OperationKind": true,
}

// exported turns a declared name into an exported Go identifier:
// "order_line" -> "OrderLine", "2fa" -> "X2fa".
func exported(name string) string {
	name = norm.NFC.String(name)
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	// Caser хранит состояние: свой на каждый вызов
	titler := cases.Title(language.Und, cases.NoLower)
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(titler.String(p))
	}
	out := b.String()
	if out == "" {
		return "X"
	}
	if r, _ := utf8.DecodeRuneInString(out); !unicode.IsLetter(r) || !unicode.IsUpper(r) {
		out = "X" + out
	}
	return out
}

// unexported lowers the first rune and avoids keywords and the names used by
// generated method bodies.
func unexported(name string) string {
	e := exported(name)
	r, size := utf8.DecodeRuneInString(e)
	out := string(unicode.ToLower(r)) + e[size:]
	if token.IsKeyword(out) || out == "ctx" || out == "c" || out == "out" || out == "err" {
		out += "Arg"
	}
	return out
}

// fileName derives a stable lower-case file name from a qualified name.
func fileName(qualified, suffix string) string {
	var b strings.Builder
	for _, r := range norm.NFC.String(qualified) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteByte('_')
		}
	}
	return b.String() + suffix + ".go"
}

// uniqueFileNames suffixes file names that fold together ("Shop.Order" and
// "shop_order"), in unit order. The runtime unit keeps its name.
func uniqueFileNames(units []Unit) {
	taken := make(map[string]bool, len(units))
	for _, u := range units {
		if u.Name == RuntimeUnit {
			taken[u.FileName] = true
		}
	}
	for i := range units {
		u := &units[i]
		if u.Name == RuntimeUnit {
			continue
		}
		base := strings.TrimSuffix(u.FileName, ".go")
		name := u.FileName
		for n := 2; taken[name]; n++ {
			name = base + "_" + strconv.Itoa(n) + ".go"
		}
		taken[name] = true
		u.FileName = name
	}
}

// localNames assigns package-level Go names to every qualified name the
// package may declare or reference. Colliding simple names are prefixed with
// namespace segments, innermost first.
func localNames(qualified []string) map[string]string {
	sorted := append([]string(nil), qualified...)
	sort.Strings(sorted)

	out := make(map[string]string, len(sorted))
	taken := make(map[string]string, len(sorted))
	for _, q := range sorted {
		ns, name := descriptor.SplitQualified(q)
		segs := strings.Split(ns, ".")
		candidate := exported(name)
		for i := len(segs) - 1; ; i-- {
			if owner, clash := taken[candidate]; !reserved[candidate] && (!clash || owner == q) {
				break
			}
			if i < 0 || segs[0] == "" {
				candidate = candidate + "_" + strconv.Itoa(len(taken))
				continue
			}
			candidate = exported(segs[i]) + candidate
		}
		taken[candidate] = q
		out[q] = candidate
	}
	return out
}

// importAliases maps import paths to package aliases, unique and distinct
// from the standard packages generated code imports.
func importAliases(paths map[string]string) map[string]string {
	uniq := make([]string, 0, len(paths))
	seen := make(map[string]bool)
	for _, p := range paths {
		if p != "" && !seen[p] {
			seen[p] = true
			uniq = append(uniq, p)
		}
	}
	sort.Strings(uniq)

	used := map[string]bool{"context": true, "errors": true, "regexp": true, "strconv": true, "time": true}
	out := make(map[string]string, len(uniq))
	for _, p := range uniq {
		base := sanitizeAlias(path.Base(p))
		alias := base
		for n := 2; used[alias] || token.IsKeyword(alias); n++ {
			alias = base + strconv.Itoa(n)
		}
		used[alias] = true
		out[p] = alias
	}
	return out
}

func sanitizeAlias(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" {
		return "pkg"
	}
	if r, _ := utf8.DecodeRuneInString(out); unicode.IsDigit(r) {
		out = "p" + out
	}
	return out
}

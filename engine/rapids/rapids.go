// Package rapids builds expressions in the engine's Rapids language.
//
// Rapids is a small s-expression language: `(op arg1 arg2 ...)`, with frame
// keys as bare identifiers, strings in single quotes, lists in brackets and
// booleans as TRUE/FALSE. Expressions are built as values and rendered once
// with String.
package rapids

import (
	"math"
	"strconv"
	"strings"
)

// Expr is a renderable Rapids expression.
type Expr interface {
	String() string
}

type raw string

func (r raw) String() string { return string(r) }

// Key references a frame stored on the engine.
func Key(key string) Expr { return raw(key) }

// Str is a quoted string literal.
func Str(s string) Expr { return raw(quote(s)) }

// Num is a numeric literal.
func Num(f float64) Expr { return raw(formatNum(f)) }

// Int is an integer literal.
func Int(i int64) Expr { return raw(strconv.FormatInt(i, 10)) }

// Bool is a TRUE/FALSE literal.
func Bool(b bool) Expr {
	if b {
		return raw("TRUE")
	}
	return raw("FALSE")
}

// Nums is a numeric list literal.
func Nums(fs []float64) Expr {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = formatNum(f)
	}
	return raw("[" + strings.Join(parts, " ") + "]")
}

// Strs is a string list literal.
func Strs(ss []string) Expr {
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = quote(s)
	}
	return raw("[" + strings.Join(parts, " ") + "]")
}

type call struct {
	op   string
	args []Expr
}

func (c call) String() string {
	var b strings.Builder
	b.WriteByte('(')
	b.WriteString(c.op)
	for _, a := range c.args {
		b.WriteByte(' ')
		b.WriteString(a.String())
	}
	b.WriteByte(')')
	return b.String()
}

// Call applies op to args.
func Call(op string, args ...Expr) Expr { return call{op: op, args: args} }

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

func formatNum(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

package enginetest

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"
)

// node is a parsed Rapids expression.
type node struct {
	op    string
	args  []*node
	atom  string
	quote bool
	list  []*node
	isLst bool
}

type parser struct {
	src string
	pos int
}

func parseRapids(src string) (*node, error) {
	p := &parser{src: src}
	n, err := p.expr()
	if err != nil {
		return nil, err
	}
	p.space()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("trailing input at %d", p.pos)
	}
	return n, nil
}

func (p *parser) space() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\n' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) expr() (*node, error) {
	p.space()
	if p.pos >= len(p.src) {
		return nil, fmt.Errorf("unexpected end of input")
	}
	switch p.src[p.pos] {
	case '(':
		p.pos++
		p.space()
		op := p.word()
		if op == "" {
			return nil, fmt.Errorf("missing operator at %d", p.pos)
		}
		n := &node{op: op}
		for {
			p.space()
			if p.pos >= len(p.src) {
				return nil, fmt.Errorf("unclosed (")
			}
			if p.src[p.pos] == ')' {
				p.pos++
				return n, nil
			}
			arg, err := p.expr()
			if err != nil {
				return nil, err
			}
			n.args = append(n.args, arg)
		}
	case '[':
		p.pos++
		n := &node{isLst: true}
		for {
			p.space()
			if p.pos >= len(p.src) {
				return nil, fmt.Errorf("unclosed [")
			}
			if p.src[p.pos] == ']' {
				p.pos++
				return n, nil
			}
			item, err := p.expr()
			if err != nil {
				return nil, err
			}
			n.list = append(n.list, item)
		}
	case '\'':
		s, err := p.quoted()
		if err != nil {
			return nil, err
		}
		return &node{atom: s, quote: true}, nil
	default:
		w := p.word()
		if w == "" {
			return nil, fmt.Errorf("unexpected %q at %d", p.src[p.pos], p.pos)
		}
		return &node{atom: w}, nil
	}
}

func (p *parser) word() string {
	start := p.pos
	for p.pos < len(p.src) && !strings.ContainsRune(" \t\n()[]'", rune(p.src[p.pos])) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) quoted() (string, error) {
	p.pos++
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case '\\':
			if p.pos+1 < len(p.src) {
				b.WriteByte(p.src[p.pos+1])
				p.pos += 2
				continue
			}
		case '\'':
			p.pos++
			return b.String(), nil
		}
		b.WriteByte(c)
		p.pos++
	}
	return "", fmt.Errorf("unclosed string")
}

// value is the result of evaluating a node.
type value struct {
	frame *Frame
	key   string
	num   float64
	isNum bool
	str   string
	isStr bool
	nums  []float64
	strs  []string
	isLst bool
}

func (s *Server) eval(n *node) (value, error) {
	if n.isLst {
		v := value{isLst: true}
		for _, item := range n.list {
			if item.quote {
				v.strs = append(v.strs, item.atom)
				continue
			}
			f, err := parseNum(item.atom)
			if err != nil {
				return value{}, err
			}
			v.nums = append(v.nums, f)
		}
		return v, nil
	}
	if n.op == "" {
		if n.quote {
			return value{str: n.atom, isStr: true}, nil
		}
		switch n.atom {
		case "TRUE":
			return value{num: 1, isNum: true}, nil
		case "FALSE":
			return value{num: 0, isNum: true}, nil
		}
		if f, err := parseNum(n.atom); err == nil {
			return value{num: f, isNum: true}, nil
		}
		fr, ok := s.frames[n.atom]
		if !ok {
			return value{}, fmt.Errorf("frame %q not found", n.atom)
		}
		return value{frame: fr, key: n.atom}, nil
	}
	return s.apply(n)
}

func parseNum(s string) (float64, error) {
	switch s {
	case "NaN":
		return math.NaN(), nil
	case "Inf":
		return math.Inf(1), nil
	case "-Inf":
		return math.Inf(-1), nil
	}
	return strconv.ParseFloat(s, 64)
}

func (s *Server) frameArg(n *node) (*Frame, error) {
	v, err := s.eval(n)
	if err != nil {
		return nil, err
	}
	if v.frame == nil {
		return nil, fmt.Errorf("expected a frame")
	}
	return v.frame, nil
}

func (s *Server) apply(n *node) (value, error) {
	switch n.op {
	case "assign":
		if len(n.args) != 2 {
			return value{}, fmt.Errorf("assign takes 2 arguments")
		}
		fr, err := s.frameArg(n.args[1])
		if err != nil {
			return value{}, err
		}
		key := n.args[0].atom
		s.frames[key] = fr.clone()
		return value{frame: s.frames[key], key: key}, nil

	case "rm":
		delete(s.frames, n.args[0].atom)
		return value{num: 1, isNum: true}, nil

	case "cols_py":
		fr, err := s.frameArg(n.args[0])
		if err != nil {
			return value{}, err
		}
		sel, err := s.eval(n.args[1])
		if err != nil {
			return value{}, err
		}
		names := sel.strs
		if sel.isStr {
			names = []string{sel.str}
		}
		out := &Frame{}
		for _, name := range names {
			c := fr.Col(name)
			if c == nil {
				return value{}, fmt.Errorf("column %q not found", name)
			}
			out.Cols = append(out.Cols, c)
		}
		return value{frame: out}, nil

	case "rows":
		fr, err := s.frameArg(n.args[0])
		if err != nil {
			return value{}, err
		}
		pred, err := s.frameArg(n.args[1])
		if err != nil {
			return value{}, err
		}
		if len(pred.Cols) != 1 || !pred.Cols[0].Numeric() || pred.Rows() != fr.Rows() {
			return value{}, fmt.Errorf("rows: predicate must be one numeric column of %d rows", fr.Rows())
		}
		var keep []int
		for i, v := range pred.Cols[0].Num {
			if v != 0 && !math.IsNaN(v) {
				keep = append(keep, i)
			}
		}
		return value{frame: fr.pick(keep)}, nil

	case "==", "<=", ">", "&":
		return s.compare(n)

	case "h2o.runif":
		fr, err := s.frameArg(n.args[0])
		if err != nil {
			return value{}, err
		}
		seed, err := s.eval(n.args[1])
		if err != nil {
			return value{}, err
		}
		rng := rand.New(rand.NewSource(int64(seed.num)))
		col := &Column{Name: "rnd", Num: make([]float64, fr.Rows())}
		for i := range col.Num {
			col.Num[i] = rng.Float64()
		}
		return value{frame: &Frame{Cols: []*Column{col}}}, nil

	case "rbind":
		return s.rbind(n)

	case "cbind":
		out := &Frame{}
		for _, a := range n.args {
			fr, err := s.frameArg(a)
			if err != nil {
				return value{}, err
			}
			if len(out.Cols) > 0 && fr.Rows() != out.Rows() {
				return value{}, fmt.Errorf("cbind: row count mismatch %d != %d", fr.Rows(), out.Rows())
			}
			for _, c := range fr.Cols {
				name := c.Name
				for out.Col(name) != nil {
					name += "0"
				}
				out.Cols = append(out.Cols, c.clone(name))
			}
		}
		return value{frame: out}, nil

	case "cut":
		return s.cut(n)

	case "as.factor", "as.character":
		fr, err := s.frameArg(n.args[0])
		if err != nil {
			return value{}, err
		}
		out := &Frame{}
		for _, c := range fr.Cols {
			nc := &Column{Name: c.Name, Factor: n.op == "as.factor"}
			if c.Numeric() {
				nc.Str = make([]string, c.Len())
				for i := range c.Num {
					nc.Str[i] = c.cell(i)
				}
			} else {
				nc.Str = append([]string{}, c.Str...)
			}
			out.Cols = append(out.Cols, nc)
		}
		return value{frame: out}, nil

	case ":=":
		fr, err := s.frameArg(n.args[0])
		if err != nil {
			return value{}, err
		}
		src, err := s.frameArg(n.args[1])
		if err != nil {
			return value{}, err
		}
		idx, err := s.eval(n.args[2])
		if err != nil {
			return value{}, err
		}
		if len(idx.nums) != 1 || len(src.Cols) != 1 || src.Rows() != fr.Rows() {
			return value{}, fmt.Errorf(":=: need one column index and one source column")
		}
		j := int(idx.nums[0])
		if j < 0 || j >= len(fr.Cols) {
			return value{}, fmt.Errorf(":=: column index %d out of range", j)
		}
		out := fr.clone()
		out.Cols[j] = src.Cols[0].clone(fr.Cols[j].Name)
		return value{frame: out}, nil

	case "append":
		fr, err := s.frameArg(n.args[0])
		if err != nil {
			return value{}, err
		}
		col, err := s.frameArg(n.args[1])
		if err != nil {
			return value{}, err
		}
		name, err := s.eval(n.args[2])
		if err != nil {
			return value{}, err
		}
		if col.Rows() != fr.Rows() || len(col.Cols) != 1 {
			return value{}, fmt.Errorf("append: need one column of %d rows", fr.Rows())
		}
		out := fr.clone()
		out.Cols = append(out.Cols, col.Cols[0].clone(name.str))
		return value{frame: out}, nil
	}
	return value{}, fmt.Errorf("unknown operator %q", n.op)
}

func (s *Server) compare(n *node) (value, error) {
	if len(n.args) != 2 {
		return value{}, fmt.Errorf("%s takes 2 arguments", n.op)
	}
	a, err := s.frameArg(n.args[0])
	if err != nil {
		return value{}, err
	}
	if len(a.Cols) != 1 {
		return value{}, fmt.Errorf("%s: left side must be one column", n.op)
	}
	b, err := s.eval(n.args[1])
	if err != nil {
		return value{}, err
	}

	left := a.Cols[0]
	out := &Column{Name: n.op, Num: make([]float64, left.Len())}
	for i := range out.Num {
		var ok bool
		switch {
		case n.op == "&" && b.frame != nil:
			r := b.frame.Cols[0].Num[i]
			ok = left.Num[i] != 0 && r != 0
		case b.isStr && !left.Numeric():
			ok = left.Str[i] == b.str
		case b.isNum && left.Numeric():
			v := left.Num[i]
			switch n.op {
			case "==":
				ok = v == b.num
			case "<=":
				ok = v <= b.num
			case ">":
				ok = v > b.num
			}
		default:
			return value{}, fmt.Errorf("%s: incompatible operands", n.op)
		}
		if ok {
			out.Num[i] = 1
		}
	}
	return value{frame: &Frame{Cols: []*Column{out}}}, nil
}

func (s *Server) rbind(n *node) (value, error) {
	var out *Frame
	for _, a := range n.args {
		fr, err := s.frameArg(a)
		if err != nil {
			return value{}, err
		}
		if out == nil {
			out = fr.clone()
			continue
		}
		if len(fr.Cols) != len(out.Cols) {
			return value{}, fmt.Errorf("rbind: column count mismatch")
		}
		for j, c := range fr.Cols {
			dst := out.Cols[j]
			if dst.Numeric() != c.Numeric() {
				return value{}, fmt.Errorf("rbind: column %q type mismatch", c.Name)
			}
			if c.Numeric() {
				dst.Num = append(dst.Num, c.Num...)
			} else {
				dst.Str = append(dst.Str, c.Str...)
			}
		}
	}
	if out == nil {
		return value{}, fmt.Errorf("rbind: no frames")
	}
	return value{frame: out}, nil
}

func (s *Server) cut(n *node) (value, error) {
	if len(n.args) < 3 {
		return value{}, fmt.Errorf("cut takes at least 3 arguments")
	}
	fr, err := s.frameArg(n.args[0])
	if err != nil {
		return value{}, err
	}
	breaks, err := s.eval(n.args[1])
	if err != nil {
		return value{}, err
	}
	labels, err := s.eval(n.args[2])
	if err != nil {
		return value{}, err
	}
	b := breaks.nums
	if len(fr.Cols) != 1 || !fr.Cols[0].Numeric() {
		return value{}, fmt.Errorf("cut: need one numeric column")
	}
	if len(b) < 2 || !sort.Float64sAreSorted(b) {
		return value{}, fmt.Errorf("cut: breaks must be sorted with at least two values")
	}
	if len(labels.strs) != len(b)-1 {
		return value{}, fmt.Errorf("cut: %d labels for %d intervals", len(labels.strs), len(b)-1)
	}

	src := fr.Cols[0]
	out := &Column{Name: src.Name, Str: make([]string, src.Len()), Factor: true, Levels: labels.strs}
	for i, v := range src.Num {
		if math.IsNaN(v) || v <= b[0] || v > b[len(b)-1] {
			continue
		}
		// first break >= v closes the interval (b[k-1], b[k]]
		k := sort.SearchFloat64s(b, v)
		out.Str[i] = labels.strs[k-1]
	}
	return value{frame: &Frame{Cols: []*Column{out}}}, nil
}

package rapids

// Assign stores the result of e under key.
func Assign(key string, e Expr) Expr { return Call("assign", Key(key), e) }

// Remove deletes key from the engine.
func Remove(key string) Expr { return Call("rm", Key(key)) }

// Col selects one column by name.
func Col(frame Expr, name string) Expr { return Call("cols_py", frame, Str(name)) }

// Cols selects several columns by name.
func Cols(frame Expr, names []string) Expr { return Call("cols_py", frame, Strs(names)) }

// Rows keeps the rows where the single-column predicate frame is non-zero.
func Rows(frame, predicate Expr) Expr { return Call("rows", frame, predicate) }

// Eq, Le, Gt and And build element-wise predicates.
func Eq(a, b Expr) Expr { return Call("==", a, b) }
func Le(a, b Expr) Expr { return Call("<=", a, b) }
func Gt(a, b Expr) Expr { return Call(">", a, b) }
func And(a, b Expr) Expr { return Call("&", a, b) }

// Runif draws one uniform [0, 1) value per row of frame with the given seed.
func Runif(frame Expr, seed int64) Expr { return Call("h2o.runif", frame, Int(seed)) }

// Rbind concatenates frames by rows.
func Rbind(frames ...Expr) Expr { return Call("rbind", frames...) }

// Cbind concatenates frames by columns.
func Cbind(frames ...Expr) Expr { return Call("cbind", frames...) }

// Cut buckets a numeric column into labeled right-closed intervals (b[i], b[i+1]].
func Cut(col Expr, breaks []float64, labels []string) Expr {
	return Call("cut", col, Nums(breaks), Strs(labels), Bool(false), Bool(true), Int(3))
}

// AsFactor converts a column to categorical.
func AsFactor(col Expr) Expr { return Call("as.factor", col) }

// AsCharacter converts a column to strings.
func AsCharacter(col Expr) Expr { return Call("as.character", col) }

// Append adds col to frame under name.
func Append(frame, col Expr, name string) Expr { return Call("append", frame, col, Str(name)) }

// SetCol replaces column idx of frame with the single-column src.
func SetCol(frame, src Expr, idx int) Expr {
	return Call(":=", frame, src, Nums([]float64{float64(idx)}), raw("[]"))
}

package csr

// Glob is a fixed-size dense vector: one slot per bus or per unknown.
type Glob[T Number] []T

func NewGlob[T Number](n int) Glob[T] {
	return make(Glob[T], n)
}

func (g Glob[T]) Clone() Glob[T] {
	c := make(Glob[T], len(g))
	copy(c, g)
	return c
}

// Scale divides every entry by s in place.
func (g Glob[T]) Scale(s T) Glob[T] {
	for i := range g {
		g[i] /= s
	}
	return g
}

// MaxAbs returns the largest absolute value in g, zero for an empty vector.
func (g Glob[T]) MaxAbs() float64 {
	var max float64
	for _, v := range g {
		if a := Abs(v); a > max {
			max = a
		}
	}
	return max
}

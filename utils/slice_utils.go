package utils

// SliceSelect maps every element of x through f, preserving order.
func SliceSelect[T any, K any](x []T, f func(x T) K) []K {
	r := make([]K, 0, len(x))
	for _, e := range x {
		r = append(r, f(e))
	}
	return r
}

// SliceWhere returns the elements of x satisfying f, preserving order. The result is never nil.
func SliceWhere[T any](x []T, f func(x T) bool) []T {
	r := make([]T, 0)
	for _, e := range x {
		if f(e) {
			r = append(r, e)
		}
	}
	return r
}

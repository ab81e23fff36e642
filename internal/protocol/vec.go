package protocol

// vec is a vector timestamp indexed by the agreed instance ordering.
type vec []int64

func (v vec) copy() vec {
	return append(vec{}, v...)
}

// max sets v to the elementwise maximum of v and y.
func (v vec) max(y vec) {
	for i := range v {
		if y[i] > v[i] {
			v[i] = y[i]
		}
	}
}

func copyBools(b []bool) []bool {
	return append([]bool{}, b...)
}

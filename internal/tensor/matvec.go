package tensor

// MatVec computes dst = w * x where w is a matrix and x is a vector.
//
// The reduction order over a row is fixed, so equal inputs always produce
// bit-identical outputs.
func MatVec(dst []float32, w *Mat, x []float32) {
	if w.R == 0 || w.C == 0 {
		return
	}
	if len(dst) < w.R || len(x) < w.C {
		panic("matvec shape mismatch")
	}
	matVecRange(dst, w, x, 0, w.R)
}

// matVecRange computes matvec rows [rs, re) using scalar operations.
func matVecRange(dst []float32, w *Mat, x []float32, rs, re int) {
	for i := rs; i < re; i++ {
		row := w.Data[i*w.Stride : i*w.Stride+w.C]
		var sum float32
		j := 0
		for ; j+3 < w.C; j += 4 {
			sum += row[j]*x[j] + row[j+1]*x[j+1] + row[j+2]*x[j+2] + row[j+3]*x[j+3]
		}
		for ; j < w.C; j++ {
			sum += row[j] * x[j]
		}
		dst[i] = sum
	}
}

// MatMulT computes a * bᵀ where a is (n×r) and b is (m×r), giving (n×m).
func MatMulT(a, b *Mat) Mat {
	if a.C != b.C {
		panic("matmul inner dimension mismatch")
	}
	out := NewMat(a.R, b.R)
	for i := 0; i < a.R; i++ {
		ar := a.Row(i)
		orow := out.Row(i)
		for j := 0; j < b.R; j++ {
			orow[j] = Dot(ar, b.Row(j))
		}
	}
	return out
}

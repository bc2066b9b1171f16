package entity

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// singularDet порог определителя, ниже которого преобразование считается вырожденным.
const singularDet = 1e-9

// Transform проективное преобразование 3×3, хранится построчно.
//
// Преобразование переводит координаты опорного кадра в координаты текущего:
// x_cur = H · x_ref. Стабилизированный кадр строится как out(x) = frame(H · x).
type Transform [9]float64

// Identity возвращает тождественное преобразование.
func Identity() Transform {
	return Transform{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// NewTranslation возвращает сдвиг на (dx, dy).
func NewTranslation(dx, dy float64) Transform {
	return Transform{1, 0, dx, 0, 1, dy, 0, 0, 1}
}

// NewRigid возвращает поворот на angle радиан с последующим сдвигом.
func NewRigid(angle, dx, dy float64) Transform {
	c, s := math.Cos(angle), math.Sin(angle)
	return Transform{c, -s, dx, s, c, dy, 0, 0, 1}
}

// Dense возвращает копию преобразования в виде матрицы gonum.
func (t Transform) Dense() *mat.Dense {
	data := t
	return mat.NewDense(3, 3, data[:])
}

// FromDense копирует матрицу 3×3 gonum в Transform.
func FromDense(m mat.Matrix) Transform {
	var t Transform
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			t[r*3+c] = m.At(r, c)
		}
	}
	return t
}

// Mul возвращает композицию t ∘ o: сначала применяется o, затем t.
func (t Transform) Mul(o Transform) Transform {
	var out mat.Dense
	out.Mul(t.Dense(), o.Dense())
	return FromDense(&out)
}

// Inverse возвращает обратное преобразование.
func (t Transform) Inverse() (Transform, error) {
	if math.Abs(t.Det()) < singularDet {
		return Identity(), fmt.Errorf("invert transform: %w", ErrDegenerateGeometry)
	}
	var inv mat.Dense
	if err := inv.Inverse(t.Dense()); err != nil {
		return Identity(), fmt.Errorf("invert transform: %w", ErrDegenerateGeometry)
	}
	return FromDense(&inv).Normalize(), nil
}

// Det возвращает определитель матрицы.
func (t Transform) Det() float64 {
	return mat.Det(t.Dense())
}

// Normalize масштабирует матрицу так, чтобы правый нижний элемент был равен 1.
func (t Transform) Normalize() Transform {
	if t[8] == 0 || t[8] == 1 {
		return t
	}
	s := t[8]
	for i := range t {
		t[i] /= s
	}
	return t
}

// Apply переводит точку. Второй результат false, если точка уходит в бесконечность.
func (t Transform) Apply(p Point) (Point, bool) {
	w := t[6]*p.X + t[7]*p.Y + t[8]
	if math.Abs(w) < 1e-12 {
		return Point{}, false
	}
	return Point{
		X: (t[0]*p.X + t[1]*p.Y + t[2]) / w,
		Y: (t[3]*p.X + t[4]*p.Y + t[5]) / w,
	}, true
}

// Offset возвращает сдвиговую часть нормализованной матрицы.
func (t Transform) Offset() (dx, dy float64) {
	n := t.Normalize()
	return n[2], n[5]
}

// Angle возвращает угол поворота линейной части в радианах.
func (t Transform) Angle() float64 {
	n := t.Normalize()
	return math.Atan2(n[3], n[0])
}

// Valid сообщает, что элементы конечны и матрица обратима.
func (t Transform) Valid() bool {
	for _, v := range t {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return math.Abs(t.Det()) >= singularDet
}

// ApproxEqual сравнивает нормализованные матрицы поэлементно.
func (t Transform) ApproxEqual(o Transform, tol float64) bool {
	a, b := t.Normalize(), o.Normalize()
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

// IsIdentity сообщает, что преобразование тождественно с точностью tol.
func (t Transform) IsIdentity(tol float64) bool {
	return t.ApproxEqual(Identity(), tol)
}

func (t Transform) String() string {
	return fmt.Sprintf("[%.4g %.4g %.4g; %.4g %.4g %.4g; %.4g %.4g %.4g]",
		t[0], t[1], t[2], t[3], t[4], t[5], t[6], t[7], t[8])
}

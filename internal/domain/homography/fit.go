package homography

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"vision-stab/internal/domain/entity"
)

const (
	spreadEps   = 1e-9  // минимальный относительный разброс точек
	singularEps = 1e-10 // относительный порог сингулярного числа
)

type fitFunc func(points0, points1 []entity.Point, opts Options) (entity.Transform, error)

var fitters = map[entity.WarpingGroup]fitFunc{
	entity.Translation:   fitTranslation,
	entity.Rigid:         fitRigid,
	entity.Affine:        fitAffine,
	entity.Homography:    fitProjective,
	entity.RotHomography: fitRotation,
}

func centroid(points []entity.Point) entity.Point {
	var c entity.Point
	if len(points) == 0 {
		return c
	}
	for _, p := range points {
		c.X += p.X
		c.Y += p.Y
	}
	n := float64(len(points))
	return entity.Point{X: c.X / n, Y: c.Y / n}
}

// fitTranslation среднее смещение.
func fitTranslation(points0, points1 []entity.Point, _ Options) (entity.Transform, error) {
	c0, c1 := centroid(points0), centroid(points1)
	return entity.NewTranslation(c1.X-c0.X, c1.Y-c0.Y), nil
}

// fitRigid поворот и сдвиг по методу Прокруста в 2D.
func fitRigid(points0, points1 []entity.Point, _ Options) (entity.Transform, error) {
	c0, c1 := centroid(points0), centroid(points1)

	var dot, cross float64
	for i := range points0 {
		a := points0[i].Sub(c0)
		b := points1[i].Sub(c1)
		dot += a.X*b.X + a.Y*b.Y
		cross += a.X*b.Y - a.Y*b.X
	}
	if math.Hypot(dot, cross) < spreadEps {
		return entity.Identity(), fmt.Errorf("coincident points: %w", entity.ErrDegenerateGeometry)
	}

	angle := math.Atan2(cross, dot)
	c, s := math.Cos(angle), math.Sin(angle)
	dx := c1.X - (c*c0.X - s*c0.Y)
	dy := c1.Y - (s*c0.X + c*c0.Y)
	return entity.NewRigid(angle, dx, dy), nil
}

// collinear сообщает, что точки лежат на одной прямой или совпадают.
func collinear(points []entity.Point) bool {
	c := centroid(points)
	var sxx, syy, sxy float64
	for _, p := range points {
		d := p.Sub(c)
		sxx += d.X * d.X
		syy += d.Y * d.Y
		sxy += d.X * d.Y
	}
	trace := sxx + syy
	if trace < spreadEps {
		return true
	}
	return sxx*syy-sxy*sxy <= spreadEps*trace*trace
}

// fitAffine аффинное преобразование методом наименьших квадратов.
func fitAffine(points0, points1 []entity.Point, _ Options) (entity.Transform, error) {
	if collinear(points0) {
		return entity.Identity(), fmt.Errorf("collinear points: %w", entity.ErrDegenerateGeometry)
	}

	n := len(points0)
	a := mat.NewDense(2*n, 6, nil)
	b := mat.NewVecDense(2*n, nil)
	for i := range points0 {
		p, q := points0[i], points1[i]
		a.SetRow(2*i, []float64{p.X, p.Y, 1, 0, 0, 0})
		a.SetRow(2*i+1, []float64{0, 0, 0, p.X, p.Y, 1})
		b.SetVec(2*i, q.X)
		b.SetVec(2*i+1, q.Y)
	}

	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return entity.Identity(), fmt.Errorf("affine solve: %v: %w", err, entity.ErrDegenerateGeometry)
	}
	return entity.Transform{
		x.AtVec(0), x.AtVec(1), x.AtVec(2),
		x.AtVec(3), x.AtVec(4), x.AtVec(5),
		0, 0, 1,
	}, nil
}

// normalize переносит центроид в начало координат и масштабирует
// точки до среднего расстояния √2.
func normalize(points []entity.Point) (t, inv entity.Transform, out []entity.Point, err error) {
	c := centroid(points)
	mean := 0.0
	for _, p := range points {
		mean += p.Dist(c)
	}
	mean /= float64(len(points))
	if mean < spreadEps {
		err = fmt.Errorf("coincident points: %w", entity.ErrDegenerateGeometry)
		return entity.Identity(), entity.Identity(), nil, err
	}

	s := math.Sqrt2 / mean
	t = entity.Transform{s, 0, -s * c.X, 0, s, -s * c.Y, 0, 0, 1}
	inv = entity.Transform{1 / s, 0, c.X, 0, 1 / s, c.Y, 0, 0, 1}
	out = make([]entity.Point, len(points))
	for i, p := range points {
		out[i] = entity.Point{X: s * (p.X - c.X), Y: s * (p.Y - c.Y)}
	}
	return t, inv, out, nil
}

// hasCollinearTriple проверяет минимальную выборку гомографии.
func hasCollinearTriple(points []entity.Point) bool {
	for i := 0; i < len(points); i++ {
		for j := i + 1; j < len(points); j++ {
			for k := j + 1; k < len(points); k++ {
				if collinear([]entity.Point{points[i], points[j], points[k]}) {
					return true
				}
			}
		}
	}
	return false
}

// fitProjective нормализованный DLT.
func fitProjective(points0, points1 []entity.Point, _ Options) (entity.Transform, error) {
	if len(points0) == 4 && (hasCollinearTriple(points0) || hasCollinearTriple(points1)) {
		return entity.Identity(), fmt.Errorf("collinear sample: %w", entity.ErrDegenerateGeometry)
	}

	t0, _, n0, err := normalize(points0)
	if err != nil {
		return entity.Identity(), err
	}
	_, inv1, n1, err := normalize(points1)
	if err != nil {
		return entity.Identity(), err
	}

	a := mat.NewDense(2*len(n0), 9, nil)
	for i := range n0 {
		x, y := n0[i].X, n0[i].Y
		u, v := n1[i].X, n1[i].Y
		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y, -u})
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y, -v})
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return entity.Identity(), fmt.Errorf("dlt: svd failed: %w", entity.ErrDegenerateGeometry)
	}
	values := svd.Values(nil)
	if values[0] == 0 || values[7] < singularEps*values[0] {
		return entity.Identity(), fmt.Errorf("dlt: rank deficient: %w", entity.ErrDegenerateGeometry)
	}

	var v mat.Dense
	svd.VTo(&v)
	var hn entity.Transform
	for i := range hn {
		hn[i] = v.At(i, 8)
	}

	h := inv1.Mul(hn).Mul(t0)
	if math.Abs(h[8]) < singularEps {
		return entity.Identity(), fmt.Errorf("dlt: point at infinity: %w", entity.ErrDegenerateGeometry)
	}
	return h.Normalize(), nil
}

// fitRotation гомография H = K·R·K⁻¹, порождённая поворотом камеры.
// R подбирается методом Кабша по лучам, восстановленным через K⁻¹.
func fitRotation(points0, points1 []entity.Point, opts Options) (entity.Transform, error) {
	f, c := opts.Focal, opts.Center
	k := entity.Transform{f, 0, c.X, 0, f, c.Y, 0, 0, 1}
	kinv := entity.Transform{1 / f, 0, -c.X / f, 0, 1 / f, -c.Y / f, 0, 0, 1}

	ray := func(p entity.Point) *mat.VecDense {
		v := mat.NewVecDense(3, []float64{(p.X - c.X) / f, (p.Y - c.Y) / f, 1})
		v.ScaleVec(1/mat.Norm(v, 2), v)
		return v
	}

	m := mat.NewDense(3, 3, nil)
	var outer mat.Dense
	for i := range points0 {
		outer.Outer(1, ray(points1[i]), ray(points0[i]))
		m.Add(m, &outer)
	}

	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDFull); !ok {
		return entity.Identity(), fmt.Errorf("kabsch: svd failed: %w", entity.ErrDegenerateGeometry)
	}
	values := svd.Values(nil)
	if values[0] == 0 || values[1] < singularEps*values[0] {
		return entity.Identity(), fmt.Errorf("kabsch: parallel rays: %w", entity.ErrDegenerateGeometry)
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var uvt mat.Dense
	uvt.Mul(&u, v.T())
	d := mat.NewDiagDense(3, []float64{1, 1, math.Copysign(1, mat.Det(&uvt))})

	var r mat.Dense
	r.Product(&u, d, v.T())
	return k.Mul(entity.FromDense(&r)).Mul(kinv), nil
}

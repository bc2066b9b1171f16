//go:build gocv
// +build gocv

package vision

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"vision-stab/internal/domain/entity"
	"vision-stab/internal/domain/homography"
	"vision-stab/internal/domain/port"
)

// OpenCV реализует перевод в серый, перспективное преобразование и
// пирамидальный трекер Лукаса–Канаде через gocv.
type OpenCV struct{}

// NewOpenCV создаёт бэкенд OpenCV.
func NewOpenCV() *OpenCV {
	return &OpenCV{}
}

// Gray переводит кадр в оттенки серого.
func (o *OpenCV) Gray(img image.Image) (*image.Gray, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	if g, ok := img.(*image.Gray); ok {
		return g, nil
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("image to mat: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, errors.New("empty image")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)

	return matToGray(gray)
}

// Warp строит кадр того же размера: out(x) = src(h · x).
func (o *OpenCV) Warp(src image.Image, h entity.Transform) (image.Image, error) {
	if src == nil {
		return nil, errors.New("nil image")
	}
	inv, err := h.Inverse()
	if err != nil {
		return nil, fmt.Errorf("warp: %w", err)
	}

	mat, err := toMat(src)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	m := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	defer m.Close()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m.SetDoubleAt(r, c, inv[r*3+c])
		}
	}

	// WarpPerspective ожидает прямое отображение источник → результат.
	warped := gocv.NewMat()
	defer warped.Close()
	gocv.WarpPerspective(mat, &warped, m, image.Pt(mat.Cols(), mat.Rows()))

	out, err := warped.ToImage()
	if err != nil {
		return nil, fmt.Errorf("mat to image: %w", err)
	}
	return out, nil
}

// Track переносит точки пирамидальным оптическим потоком.
func (o *OpenCV) Track(prev, next *image.Gray, points []entity.Point) ([]entity.Point, []bool, error) {
	if prev.Bounds().Size() != next.Bounds().Size() {
		return nil, nil, fmt.Errorf("track: %w", entity.ErrFrameSize)
	}
	out := make([]entity.Point, len(points))
	status := make([]bool, len(points))
	copy(out, points)
	if len(points) == 0 {
		return out, status, nil
	}

	prevMat, err := gocv.ImageGrayToMatGray(prev)
	if err != nil {
		return nil, nil, fmt.Errorf("prev to mat: %w", err)
	}
	defer prevMat.Close()
	nextMat, err := gocv.ImageGrayToMatGray(next)
	if err != nil {
		return nil, nil, fmt.Errorf("next to mat: %w", err)
	}
	defer nextMat.Close()

	prevPts := gocv.NewMatWithSize(len(points), 1, gocv.MatTypeCV32FC2)
	defer prevPts.Close()
	for i, p := range points {
		prevPts.SetFloatAt(i, 0, float32(p.X))
		prevPts.SetFloatAt(i, 1, float32(p.Y))
	}

	nextPts := gocv.NewMat()
	defer nextPts.Close()
	st := gocv.NewMat()
	defer st.Close()
	errMat := gocv.NewMat()
	defer errMat.Close()

	gocv.CalcOpticalFlowPyrLK(prevMat, nextMat, prevPts, nextPts, &st, &errMat)

	for i := 0; i < st.Rows() && i < len(points); i++ {
		if st.GetUCharAt(i, 0) != 1 {
			continue
		}
		v := nextPts.GetVecfAt(i, 0)
		out[i] = entity.Point{X: float64(v[0]), Y: float64(v[1])}
		status[i] = true
	}
	return out, status, nil
}

// Fit подбирает гомографию через cv::findHomography и аффинное
// преобразование через cv::estimateAffine2D. Остальные группы считаются
// собственной реализацией RANSAC.
func (o *OpenCV) Fit(points0, points1 []entity.Point, group entity.WarpingGroup, opts homography.Options) (entity.Transform, error) {
	if group != entity.Homography && group != entity.Affine {
		return homography.FindHomographyWith(points0, points1, group, opts)
	}
	if len(points0) != len(points1) {
		return entity.Identity(), fmt.Errorf("fit: %d vs %d points: %w",
			len(points0), len(points1), entity.ErrCountMismatch)
	}
	need, err := homography.MinCorrespondences(group)
	if err != nil {
		return entity.Identity(), err
	}
	if len(points0) < need {
		return entity.Identity(), fmt.Errorf("fit: %s needs %d correspondences, got %d: %w",
			group, need, len(points0), entity.ErrInsufficientCorrespondences)
	}

	def := homography.DefaultOptions()
	if opts.Threshold <= 0 {
		opts.Threshold = def.Threshold
	}
	if opts.Iterations <= 0 {
		opts.Iterations = def.Iterations
	}
	if opts.Confidence <= 0 || opts.Confidence >= 1 {
		opts.Confidence = def.Confidence
	}

	var m gocv.Mat
	if group == entity.Homography {
		src := pointsMat(points0)
		defer src.Close()
		dst := pointsMat(points1)
		defer dst.Close()
		mask := gocv.NewMat()
		defer mask.Close()
		m = gocv.FindHomography(src, &dst, gocv.HomograpyMethodRANSAC, opts.Threshold, &mask, opts.Iterations, opts.Confidence)
	} else {
		from := gocv.NewPoint2fVectorFromPoints(points2f(points0))
		defer from.Close()
		to := gocv.NewPoint2fVectorFromPoints(points2f(points1))
		defer to.Close()
		m = gocv.EstimateAffine2D(from, to)
	}
	defer m.Close()

	if m.Empty() {
		return entity.Identity(), fmt.Errorf("fit %s: %w", group, entity.ErrDegenerateGeometry)
	}
	h := entity.Identity()
	for r := 0; r < m.Rows() && r < 3; r++ {
		for c := 0; c < 3; c++ {
			h[r*3+c] = m.GetDoubleAt(r, c)
		}
	}
	if !h.Valid() {
		return entity.Identity(), fmt.Errorf("fit %s: %s: %w", group, h, entity.ErrDegenerateGeometry)
	}
	return h.Normalize(), nil
}

func pointsMat(points []entity.Point) gocv.Mat {
	m := gocv.NewMatWithSize(len(points), 1, gocv.MatTypeCV32FC2)
	for i, p := range points {
		m.SetFloatAt(i, 0, float32(p.X))
		m.SetFloatAt(i, 1, float32(p.Y))
	}
	return m
}

func points2f(points []entity.Point) []gocv.Point2f {
	out := make([]gocv.Point2f, len(points))
	for i, p := range points {
		out[i] = gocv.Point2f{X: float32(p.X), Y: float32(p.Y)}
	}
	return out
}

func toMat(img image.Image) (gocv.Mat, error) {
	if g, ok := img.(*image.Gray); ok {
		mat, err := gocv.ImageGrayToMatGray(g)
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("image to mat: %w", err)
		}
		return mat, nil
	}
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("image to mat: %w", err)
	}
	return mat, nil
}

func matToGray(mat gocv.Mat) (*image.Gray, error) {
	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("mat to image: %w", err)
	}
	g, ok := img.(*image.Gray)
	if !ok {
		return nil, errors.New("mat is not single channel")
	}
	return g, nil
}

// Проверка реализации интерфейсов
var (
	_ port.ImageOps        = (*OpenCV)(nil)
	_ port.PointTracker    = (*OpenCV)(nil)
	_ port.TransformFitter = (*OpenCV)(nil)
)

package vision

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"math"

	"vision-stab/internal/domain/entity"
	"vision-stab/internal/domain/port"
)

// grayView доступ к пикселям *image.Gray в координатах от нуля.
type grayView struct {
	pix    []uint8
	stride int
	w, h   int
}

func newGrayView(img *image.Gray) grayView {
	b := img.Bounds()
	return grayView{
		pix:    img.Pix[img.PixOffset(b.Min.X, b.Min.Y):],
		stride: img.Stride,
		w:      b.Dx(),
		h:      b.Dy(),
	}
}

func (v grayView) at(x, y int) uint8 {
	return v.pix[y*v.stride+x]
}

// NativeImaging перевод в серый и перспективное преобразование на чистом Go.
type NativeImaging struct{}

// NewNativeImaging создаёт реализацию ImageOps без OpenCV.
func NewNativeImaging() *NativeImaging {
	return &NativeImaging{}
}

// Gray переводит кадр в оттенки серого.
func (n *NativeImaging) Gray(img image.Image) (*image.Gray, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	if g, ok := img.(*image.Gray); ok {
		return g, nil
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, errors.New("empty image")
	}
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g, nil
}

// Warp строит кадр того же размера: out(x) = src(h · x), билинейная
// интерполяция, точки вне кадра заполняются чёрным.
func (n *NativeImaging) Warp(src image.Image, h entity.Transform) (image.Image, error) {
	if src == nil {
		return nil, errors.New("nil image")
	}
	if !h.Valid() {
		return nil, fmt.Errorf("warp: %w", entity.ErrDegenerateGeometry)
	}
	if g, ok := src.(*image.Gray); ok {
		return warpGray(g, h), nil
	}

	b := src.Bounds()
	rgba, ok := src.(*image.RGBA)
	if !ok || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
	}
	return warpRGBA(rgba, h), nil
}

// sampleGrid обходит выходной кадр и вызывает fn с координатами источника.
func sampleGrid(w, h int, t entity.Transform, fn func(x, y int, sx, sy float64)) {
	for y := 0; y < h; y++ {
		fy := float64(y)
		for x := 0; x < w; x++ {
			fx := float64(x)
			den := t[6]*fx + t[7]*fy + t[8]
			if den <= 0 {
				continue
			}
			sx := (t[0]*fx + t[1]*fy + t[2]) / den
			sy := (t[3]*fx + t[4]*fy + t[5]) / den
			fn(x, y, sx, sy)
		}
	}
}

// bilinear возвращает опорные индексы и веса. ok=false, если точка вне кадра.
func bilinear(sx, sy float64, w, h int) (x0, y0, x1, y1 int, fx, fy float64, ok bool) {
	if sx < 0 || sy < 0 || sx > float64(w-1) || sy > float64(h-1) {
		return 0, 0, 0, 0, 0, 0, false
	}
	x0, y0 = int(sx), int(sy)
	x1, y1 = min(x0+1, w-1), min(y0+1, h-1)
	return x0, y0, x1, y1, sx - float64(x0), sy - float64(y0), true
}

func lerp(a, b, c, d uint8, fx, fy float64) uint8 {
	top := float64(a)*(1-fx) + float64(b)*fx
	bottom := float64(c)*(1-fx) + float64(d)*fx
	return uint8(math.Round(top*(1-fy) + bottom*fy))
}

func warpGray(src *image.Gray, t entity.Transform) *image.Gray {
	v := newGrayView(src)
	out := image.NewGray(image.Rect(0, 0, v.w, v.h))
	sampleGrid(v.w, v.h, t, func(x, y int, sx, sy float64) {
		x0, y0, x1, y1, fx, fy, ok := bilinear(sx, sy, v.w, v.h)
		if !ok {
			return
		}
		out.Pix[y*out.Stride+x] = lerp(v.at(x0, y0), v.at(x1, y0), v.at(x0, y1), v.at(x1, y1), fx, fy)
	})
	return out
}

func warpRGBA(src *image.RGBA, t entity.Transform) *image.RGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	sampleGrid(w, h, t, func(x, y int, sx, sy float64) {
		x0, y0, x1, y1, fx, fy, ok := bilinear(sx, sy, w, h)
		if !ok {
			return
		}
		i00 := y0*src.Stride + 4*x0
		i10 := y0*src.Stride + 4*x1
		i01 := y1*src.Stride + 4*x0
		i11 := y1*src.Stride + 4*x1
		o := y*out.Stride + 4*x
		for c := 0; c < 4; c++ {
			out.Pix[o+c] = lerp(src.Pix[i00+c], src.Pix[i10+c], src.Pix[i01+c], src.Pix[i11+c], fx, fy)
		}
	})
	return out
}

// Проверка реализации интерфейса
var _ port.ImageOps = (*NativeImaging)(nil)

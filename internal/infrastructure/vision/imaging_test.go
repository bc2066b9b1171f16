package vision

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"

	"vision-stab/internal/domain/entity"
)

func TestNativeImaging_Gray(t *testing.T) {
	ops := NewNativeImaging()

	rgba := image.NewRGBA(image.Rect(10, 10, 14, 13))
	rgba.Set(10, 10, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	g, err := ops.Gray(rgba)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 4, 3), g.Bounds())
	require.Equal(t, uint8(255), g.GrayAt(0, 0).Y)
	require.Equal(t, uint8(0), g.GrayAt(1, 0).Y)

	same := image.NewGray(image.Rect(0, 0, 2, 2))
	got, err := ops.Gray(same)
	require.NoError(t, err)
	require.Same(t, same, got)

	_, err = ops.Gray(nil)
	require.Error(t, err)
}

func TestNativeImaging_WarpGrayTranslation(t *testing.T) {
	ops := NewNativeImaging()
	src := scene(3, -2, 20, 200)

	out, err := ops.Warp(src, entity.NewTranslation(3, -2))
	require.NoError(t, err)

	ref := scene(0, 0, 20, 200)
	g := out.(*image.Gray)
	for y := 2; y < 100; y++ {
		for x := 0; x < 97; x++ {
			require.Equal(t, ref.GrayAt(x, y).Y, g.GrayAt(x, y).Y, "pixel (%d, %d)", x, y)
		}
	}
	// точки вне исходного кадра заполняются чёрным
	require.Equal(t, uint8(0), g.GrayAt(98, 50).Y)
	require.Equal(t, uint8(0), g.GrayAt(50, 0).Y)
}

func TestNativeImaging_WarpIdentityKeepsPixels(t *testing.T) {
	ops := NewNativeImaging()
	src := scene(0, 0, 20, 200)
	out, err := ops.Warp(src, entity.Identity())
	require.NoError(t, err)
	require.Equal(t, src.Pix, out.(*image.Gray).Pix)
}

func TestNativeImaging_WarpRGBA(t *testing.T) {
	ops := NewNativeImaging()
	src := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	src.Set(5, 4, color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	out, err := ops.Warp(src, entity.NewTranslation(1, 1))
	require.NoError(t, err)
	rgba, ok := out.(*image.RGBA)
	require.True(t, ok)
	require.Equal(t, color.RGBA{R: 200, G: 100, B: 50, A: 255}, rgba.RGBAAt(4, 3))
}

func TestNativeImaging_WarpRejectsSingular(t *testing.T) {
	_, err := NewNativeImaging().Warp(image.NewGray(image.Rect(0, 0, 4, 4)), entity.Transform{})
	require.ErrorIs(t, err, entity.ErrDegenerateGeometry)
}

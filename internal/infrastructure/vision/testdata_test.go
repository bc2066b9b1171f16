package vision

import (
	"image"
	"image/color"
)

var squares = []image.Point{{15, 15}, {60, 20}, {25, 65}, {70, 70}, {45, 42}}

// scene рисует квадраты 10×10 яркости fg на фоне bg со сдвигом (dx, dy).
func scene(dx, dy int, bg, fg uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 100, 100))
	for i := range img.Pix {
		img.Pix[i] = bg
	}
	for _, p := range squares {
		for y := 0; y < 10; y++ {
			for x := 0; x < 10; x++ {
				img.SetGray(p.X+dx+x, p.Y+dy+y, color.Gray{Y: fg})
			}
		}
	}
	return img
}

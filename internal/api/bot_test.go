package telegram

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/require"

	app "vision-stab/internal/application"
	"vision-stab/internal/domain/entity"
)

func TestParseSettings(t *testing.T) {
	defaults := entity.DefaultSettings()

	got, err := parseSettings("", defaults)
	require.NoError(t, err)
	require.Equal(t, defaults, got)

	got, err = parseSettings("rigid VIZ warp_back", defaults)
	require.NoError(t, err)
	require.Equal(t, entity.Settings{Mode: entity.WarpBack, Warping: entity.Rigid, Visualize: true}, got)

	got, err = parseSettings("track-ref", defaults)
	require.NoError(t, err)
	require.Equal(t, entity.TrackRef, got.Mode)
	require.Equal(t, entity.Homography, got.Warping)

	got, err = parseSettings("direct shaky", defaults)
	require.Error(t, err)
	require.Equal(t, defaults, got)
}

func TestFrameCaption(t *testing.T) {
	caption := frameCaption(&app.Result{Index: 3, Transform: entity.NewTranslation(1.5, -2)})
	require.Equal(t, "🎯 Кадр 3: сдвиг (1.5, -2.0), поворот 0.00°", caption)

	caption = frameCaption(&app.Result{Index: 4, Transform: entity.Identity(), Recovered: entity.ErrTrackingLost})
	require.Contains(t, caption, "Кадр 4")
	require.Contains(t, caption, entity.ErrTrackingLost.Error())
}

func TestEncodeJPEG(t *testing.T) {
	data, err := encodeJPEG(image.NewGray(image.Rect(0, 0, 16, 8)))
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 16, 8), img.Bounds())
}

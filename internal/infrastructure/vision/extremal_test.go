package vision

import (
	"image"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"vision-stab/internal/domain/entity"
)

func sortByCentroid(set entity.RegionSet) {
	sort.Slice(set, func(i, j int) bool {
		if set[i].Centroid.Y != set[j].Centroid.Y {
			return set[i].Centroid.Y < set[j].Centroid.Y
		}
		return set[i].Centroid.X < set[j].Centroid.X
	})
}

func TestExtremalDetector_BrightSquares(t *testing.T) {
	d := NewExtremalDetector()
	img := scene(0, 0, 20, 200)

	bright, err := d.Detect(img, entity.Bright)
	require.NoError(t, err)
	require.Len(t, bright, len(squares))

	dark, err := d.Detect(img, entity.Dark)
	require.NoError(t, err)
	require.Empty(t, dark)

	sortByCentroid(bright)
	for _, r := range bright {
		require.Equal(t, 100, r.Stats.Area)
		require.Equal(t, entity.Bright, r.Polarity)
		require.Zero(t, r.Stats.Variation)
		require.Equal(t, r.Stats.Bounds.Min.X+4, int(r.Centroid.X-0.5))
	}
	require.Equal(t, entity.Point{X: 19.5, Y: 19.5}, bright[0].Centroid)
	require.Equal(t, image.Rect(15, 15, 25, 25), bright[0].Stats.Bounds)
}

func TestExtremalDetector_DarkSquares(t *testing.T) {
	d := NewExtremalDetector()
	img := scene(0, 0, 220, 30)

	dark, err := d.Detect(img, entity.Dark)
	require.NoError(t, err)
	require.Len(t, dark, len(squares))

	bright, err := d.Detect(img, entity.Bright)
	require.NoError(t, err)
	require.Empty(t, bright)
}

func TestExtremalDetector_RetrieveKeepsIDs(t *testing.T) {
	d := NewExtremalDetector()
	regions, err := d.Detect(scene(0, 0, 20, 200), entity.Bright)
	require.NoError(t, err)
	for i := range regions {
		regions[i].ID = 100 + i
		regions[i].Centroid.X += 3
		regions[i].Centroid.Y -= 2
	}

	refreshed, err := d.Retrieve(scene(3, -2, 20, 200), regions, entity.Bright)
	require.NoError(t, err)
	require.Len(t, refreshed, len(regions))
	for i, r := range refreshed {
		require.Equal(t, regions[i].ID, r.ID)
		require.Equal(t, regions[i].Centroid, r.Centroid)
		require.Equal(t, 100, r.Stats.Area)
	}
}

func TestExtremalDetector_RetrieveDropsMissing(t *testing.T) {
	d := NewExtremalDetector()
	regions, err := d.Detect(scene(0, 0, 20, 200), entity.Bright)
	require.NoError(t, err)

	flat := scene(0, 0, 20, 20)
	refreshed, err := d.Retrieve(flat, regions, entity.Bright)
	require.NoError(t, err)
	require.Empty(t, refreshed)
}

func TestExtremalDetector_EmptyImage(t *testing.T) {
	_, err := NewExtremalDetector().Detect(image.NewGray(image.Rectangle{}), entity.Bright)
	require.Error(t, err)
}

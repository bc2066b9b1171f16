package app

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"vision-stab/internal/domain/entity"
	"vision-stab/internal/infrastructure/vision"
)

// scriptedEstimator возвращает результат функции и запоминает пары кадров.
type scriptedEstimator struct {
	estimate func(pair entity.FramePair) (entity.Transform, error)
	pairs    []entity.FramePair
}

func (e *scriptedEstimator) Estimate(pair entity.FramePair) (entity.Transform, error) {
	e.pairs = append(e.pairs, pair)
	return e.estimate(pair)
}

func (e *scriptedEstimator) Visualize(frame image.Image, _ entity.Transform) (image.Image, error) {
	return frame, nil
}

func identityEstimator() *scriptedEstimator {
	return &scriptedEstimator{estimate: func(entity.FramePair) (entity.Transform, error) {
		return entity.Identity(), nil
	}}
}

var allModes = []entity.Mode{entity.Direct, entity.TrackRef, entity.WarpBack}

func newTestStabilizer(t *testing.T, mode entity.Mode, estimator *scriptedEstimator) *Stabilizer {
	t.Helper()
	stab, err := NewStabilizer(blank(16, 12), StabilizerOptions{Mode: mode, Warping: entity.Homography}, estimator, vision.NewNativeImaging())
	require.NoError(t, err)
	return stab
}

func TestStabilizer_StaticSequenceStaysIdentity(t *testing.T) {
	for _, mode := range allModes {
		t.Run(mode.String(), func(t *testing.T) {
			stab := newTestStabilizer(t, mode, identityEstimator())
			for i := 1; i <= 10; i++ {
				res, err := stab.StabilizeNext(blank(16, 12))
				require.NoError(t, err)
				require.NoError(t, res.Recovered)
				require.Equal(t, i, res.Index)
				require.True(t, res.Transform.IsIdentity(1e-12))
			}
			require.Equal(t, 10, stab.Frames())
			require.Equal(t, mode, stab.Mode())
			require.Equal(t, entity.Homography, stab.Warping())
		})
	}
}

func TestStabilizer_PairSelectionPerMode(t *testing.T) {
	cases := []struct {
		mode   entity.Mode
		refIdx []int
	}{
		{entity.Direct, []int{0, 0, 0}},
		{entity.TrackRef, []int{0, 1, 2}},
		{entity.WarpBack, []int{0, 0, 0}},
	}
	for _, tc := range cases {
		t.Run(tc.mode.String(), func(t *testing.T) {
			estimator := identityEstimator()
			stab := newTestStabilizer(t, tc.mode, estimator)
			for i := 0; i < 3; i++ {
				_, err := stab.StabilizeNext(blank(16, 12))
				require.NoError(t, err)
			}
			require.Len(t, estimator.pairs, 3)
			for i, pair := range estimator.pairs {
				require.Equal(t, tc.refIdx[i], pair.ReferenceIndex)
				require.Equal(t, i+1, pair.CurrentIndex)
				require.Equal(t, entity.Homography, pair.Warping)
			}
		})
	}
}

func TestStabilizer_Composition(t *testing.T) {
	step := entity.NewTranslation(1, 0.5)

	t.Run("direct", func(t *testing.T) {
		stab := newTestStabilizer(t, entity.Direct, &scriptedEstimator{estimate: func(p entity.FramePair) (entity.Transform, error) {
			return entity.NewTranslation(float64(p.CurrentIndex), 0), nil
		}})
		var res *Result
		var err error
		for i := 0; i < 4; i++ {
			res, err = stab.StabilizeNext(blank(16, 12))
			require.NoError(t, err)
		}
		require.True(t, res.Transform.ApproxEqual(entity.NewTranslation(4, 0), 1e-12))
	})

	t.Run("track_ref", func(t *testing.T) {
		stab := newTestStabilizer(t, entity.TrackRef, &scriptedEstimator{estimate: func(entity.FramePair) (entity.Transform, error) {
			return step, nil
		}})
		for i := 0; i < 5; i++ {
			_, err := stab.StabilizeNext(blank(16, 12))
			require.NoError(t, err)
		}
		require.True(t, stab.Transform().ApproxEqual(entity.NewTranslation(5, 2.5), 1e-9))
	})

	t.Run("warp_back", func(t *testing.T) {
		stab := newTestStabilizer(t, entity.WarpBack, &scriptedEstimator{estimate: func(entity.FramePair) (entity.Transform, error) {
			return step, nil
		}})
		for i := 0; i < 5; i++ {
			_, err := stab.StabilizeNext(blank(16, 12))
			require.NoError(t, err)
		}
		require.True(t, stab.Transform().ApproxEqual(entity.NewTranslation(5, 2.5), 1e-9))
	})
}

func TestStabilizer_TrackRefWithIdentityDeltas(t *testing.T) {
	stab := newTestStabilizer(t, entity.TrackRef, identityEstimator())
	for i := 0; i < 25; i++ {
		_, err := stab.StabilizeNext(blank(16, 12))
		require.NoError(t, err)
	}
	require.True(t, stab.Transform().IsIdentity(1e-12))
}

// Смещение оценки на каждом кадре накапливается в TRACK_REF и остаётся
// ограниченным в WARP_BACK, где каждая оценка сделана относительно кадра 0.
func TestStabilizer_DriftTrackRefVersusWarpBack(t *testing.T) {
	const (
		frames = 200
		bias   = 0.05
	)
	truth := func(i int) entity.Transform { return entity.NewTranslation(0.3*float64(i), -0.2*float64(i)) }

	trackRef := newTestStabilizer(t, entity.TrackRef, &scriptedEstimator{estimate: func(entity.FramePair) (entity.Transform, error) {
		return entity.NewTranslation(0.3+bias, -0.2), nil
	}})
	warpBack := newTestStabilizer(t, entity.WarpBack, &scriptedEstimator{estimate: func(p entity.FramePair) (entity.Transform, error) {
		prior, err := p.Prior.Inverse()
		if err != nil {
			return entity.Identity(), err
		}
		return prior.Mul(truth(p.CurrentIndex)).Mul(entity.NewTranslation(bias, 0)), nil
	}})

	for i := 0; i < frames; i++ {
		_, err := trackRef.StabilizeNext(blank(16, 12))
		require.NoError(t, err)
		_, err = warpBack.StabilizeNext(blank(16, 12))
		require.NoError(t, err)
	}

	drift := func(s *Stabilizer) float64 {
		dx, dy := s.Transform().Offset()
		tx, ty := truth(frames).Offset()
		return math.Hypot(dx-tx, dy-ty)
	}
	require.Greater(t, drift(trackRef), 5.0)
	require.Less(t, drift(warpBack), 0.5)
}

func TestStabilizer_RecoverableErrorUsesFallback(t *testing.T) {
	first := entity.NewTranslation(2, 1)
	for _, tc := range []struct {
		mode  entity.Mode
		delta entity.Transform
	}{
		{entity.Direct, first},
		{entity.TrackRef, entity.Identity()},
		{entity.WarpBack, entity.Identity()},
	} {
		t.Run(tc.mode.String(), func(t *testing.T) {
			estimator := &scriptedEstimator{estimate: func(p entity.FramePair) (entity.Transform, error) {
				if p.CurrentIndex == 2 {
					return entity.Identity(), entity.ErrInsufficientCorrespondences
				}
				return first, nil
			}}
			stab := newTestStabilizer(t, tc.mode, estimator)

			res, err := stab.StabilizeNext(blank(16, 12))
			require.NoError(t, err)
			require.NoError(t, res.Recovered)

			res, err = stab.StabilizeNext(blank(16, 12))
			require.NoError(t, err)
			require.ErrorIs(t, res.Recovered, entity.ErrInsufficientCorrespondences)
			require.True(t, res.Delta.ApproxEqual(tc.delta, 1e-12))
			require.True(t, res.Transform.ApproxEqual(first, 1e-12))
			require.Equal(t, 2, res.Index)
		})
	}
}

func TestStabilizer_RejectsSingularComposition(t *testing.T) {
	calls := 0
	stab := newTestStabilizer(t, entity.Direct, &scriptedEstimator{estimate: func(entity.FramePair) (entity.Transform, error) {
		calls++
		if calls == 2 {
			return entity.Transform{}, nil
		}
		return entity.NewTranslation(1, 1), nil
	}})

	_, err := stab.StabilizeNext(blank(16, 12))
	require.NoError(t, err)
	res, err := stab.StabilizeNext(blank(16, 12))
	require.NoError(t, err)
	require.ErrorIs(t, res.Recovered, entity.ErrDegenerateGeometry)
	require.True(t, res.Transform.ApproxEqual(entity.NewTranslation(1, 1), 1e-12))
}

func TestStabilizer_FatalErrorsPropagate(t *testing.T) {
	stab := newTestStabilizer(t, entity.TrackRef, &scriptedEstimator{estimate: func(entity.FramePair) (entity.Transform, error) {
		return entity.Identity(), entity.ErrNoSnapshot
	}})

	res, err := stab.StabilizeNext(blank(16, 12))
	require.Nil(t, res)
	require.ErrorIs(t, err, entity.ErrNoSnapshot)
	require.Zero(t, stab.Frames())
}

func TestStabilizer_FrameSizeMismatch(t *testing.T) {
	stab := newTestStabilizer(t, entity.Direct, identityEstimator())
	_, err := stab.StabilizeNext(blank(20, 12))
	require.ErrorIs(t, err, entity.ErrFrameSize)
}

func TestStabilizer_WarpsOutputWithRunningTransform(t *testing.T) {
	frame := blank(16, 12)
	frame.SetGray(6, 5, color.Gray{Y: 255})

	stab := newTestStabilizer(t, entity.Direct, &scriptedEstimator{estimate: func(entity.FramePair) (entity.Transform, error) {
		return entity.NewTranslation(2, 1), nil
	}})
	res, err := stab.StabilizeNext(frame)
	require.NoError(t, err)

	out, ok := res.Frame.(*image.Gray)
	require.True(t, ok)
	require.Equal(t, uint8(255), out.GrayAt(4, 4).Y)
	require.Equal(t, uint8(0), out.GrayAt(6, 5).Y)
}

func TestStabilizer_Visualization(t *testing.T) {
	stab, err := NewStabilizer(blank(16, 12), StabilizerOptions{Mode: entity.Direct, Warping: entity.Affine, Visualize: true},
		identityEstimator(), vision.NewNativeImaging())
	require.NoError(t, err)
	require.Nil(t, stab.Visualization())

	_, err = stab.StabilizeNext(blank(16, 12))
	require.NoError(t, err)
	require.NotNil(t, stab.Visualization())
}

func TestNewStabilizer_Validation(t *testing.T) {
	_, err := NewStabilizer(blank(4, 4), StabilizerOptions{Mode: entity.Direct}, nil, vision.NewNativeImaging())
	require.Error(t, err)

	_, err = NewStabilizer(blank(4, 4), StabilizerOptions{Mode: entity.Mode(42)}, identityEstimator(), vision.NewNativeImaging())
	require.Error(t, err)
	require.False(t, errors.Is(err, entity.ErrFrameSize))
}

// brokenWarp отказывает в Warp, пока fail выставлен.
type brokenWarp struct {
	*vision.NativeImaging
	fail bool
}

func (b *brokenWarp) Warp(src image.Image, h entity.Transform) (image.Image, error) {
	if b.fail {
		return nil, errors.New("warp failed")
	}
	return b.NativeImaging.Warp(src, h)
}

func TestStabilizer_WarpFailureKeepsState(t *testing.T) {
	for _, mode := range []entity.Mode{entity.Direct, entity.TrackRef} {
		t.Run(mode.String(), func(t *testing.T) {
			ops := &brokenWarp{NativeImaging: vision.NewNativeImaging()}
			estimator := &scriptedEstimator{estimate: func(entity.FramePair) (entity.Transform, error) {
				return entity.NewTranslation(1, 2), nil
			}}
			stab, err := NewStabilizer(blank(16, 12), StabilizerOptions{Mode: mode, Warping: entity.Translation}, estimator, ops)
			require.NoError(t, err)

			_, err = stab.StabilizeNext(blank(16, 12))
			require.NoError(t, err)
			before := stab.Transform()

			ops.fail = true
			res, err := stab.StabilizeNext(blank(16, 12))
			require.Nil(t, res)
			require.Error(t, err)
			require.Equal(t, 1, stab.Frames())
			require.True(t, stab.Transform().ApproxEqual(before, 1e-12))

			ops.fail = false
			res, err = stab.StabilizeNext(blank(16, 12))
			require.NoError(t, err)
			require.Equal(t, 2, res.Index)
			require.Equal(t, res.Index, estimator.pairs[len(estimator.pairs)-1].CurrentIndex)
		})
	}
}

func TestStabilizer_DoesNotAliasCallerFrames(t *testing.T) {
	first := blank(16, 12)
	estimator := identityEstimator()
	stab, err := NewStabilizer(first, StabilizerOptions{Mode: entity.TrackRef, Warping: entity.Translation}, estimator, vision.NewNativeImaging())
	require.NoError(t, err)

	first.SetGray(3, 3, color.Gray{Y: 255})
	second := blank(16, 12)
	_, err = stab.StabilizeNext(second)
	require.NoError(t, err)
	second.SetGray(5, 5, color.Gray{Y: 255})

	_, err = stab.StabilizeNext(blank(16, 12))
	require.NoError(t, err)

	require.Len(t, estimator.pairs, 2)
	require.Equal(t, uint8(0), estimator.pairs[0].Reference.GrayAt(3, 3).Y)
	require.Equal(t, uint8(0), estimator.pairs[1].Reference.GrayAt(5, 5).Y)
}

func TestStabilizer_WarpBackCarriesRawFrame(t *testing.T) {
	estimator := &scriptedEstimator{estimate: func(entity.FramePair) (entity.Transform, error) {
		return entity.NewTranslation(2, 0), nil
	}}
	stab := newTestStabilizer(t, entity.WarpBack, estimator)

	frame := blank(16, 12)
	frame.SetGray(8, 6, color.Gray{Y: 255})
	for i := 0; i < 2; i++ {
		_, err := stab.StabilizeNext(frame)
		require.NoError(t, err)
	}

	require.Len(t, estimator.pairs, 2)
	last := estimator.pairs[1]
	require.NotNil(t, last.Raw)
	require.Equal(t, uint8(255), last.Raw.GrayAt(8, 6).Y)
	require.Equal(t, uint8(255), last.Current.GrayAt(6, 6).Y)

	direct := identityEstimator()
	stab = newTestStabilizer(t, entity.Direct, direct)
	_, err := stab.StabilizeNext(frame)
	require.NoError(t, err)
	require.Nil(t, direct.pairs[0].Raw)
}

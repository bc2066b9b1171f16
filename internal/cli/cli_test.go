package cli

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vision-stab/config"
	"vision-stab/internal/domain/entity"
)

var squares = []image.Point{{15, 15}, {60, 20}, {25, 65}, {70, 70}, {45, 42}}

func scene(dx, dy int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 100, 100))
	for i := range img.Pix {
		img.Pix[i] = 20
	}
	for _, p := range squares {
		for y := 0; y < 10; y++ {
			for x := 0; x < 10; x++ {
				img.SetGray(p.X+dx+x, p.Y+dy+y, color.Gray{Y: 200})
			}
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func testConfig() *config.Config {
	return &config.Config{
		Backend: config.BackendNative,
		Mode:    entity.Direct,
		Warping: entity.Homography,
		Seed:    1,
	}
}

func TestListFrames(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.JPG", "notes.txt", "c.webp"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))

	frames, err := listFrames(dir)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "a.JPG"),
		filepath.Join(dir, "b.png"),
		filepath.Join(dir, "c.webp"),
	}, frames)
}

func TestOutputPath(t *testing.T) {
	require.Equal(t, filepath.Join("out", "f1.jpg"), outputPath("out", "/in/f1.jpg"))
	require.Equal(t, filepath.Join("out", "f2.png"), outputPath("out", "/in/f2.webp"))
	require.Equal(t, filepath.Join("out", "f3.png"), outputPath("out", "/in/f3.gif"))
}

func TestSaveFrameFormats(t *testing.T) {
	dir := t.TempDir()
	img := scene(0, 0)
	for _, name := range []string{"a.png", "a.jpg", "a.bmp", "a.tiff"} {
		path := filepath.Join(dir, name)
		require.NoError(t, saveFrame(path, img))
		loaded, err := loadFrame(path)
		require.NoError(t, err)
		require.Equal(t, img.Bounds(), loaded.Bounds())
	}
}

func TestFramesCommand(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writePNG(t, filepath.Join(in, "f000.png"), scene(0, 0))
	writePNG(t, filepath.Join(in, "f001.png"), scene(3, -2))
	writePNG(t, filepath.Join(in, "f002.png"), scene(5, -1))
	plot := filepath.Join(out, "trajectory.png")

	cmd := NewRootCmd(testConfig())
	cmd.SetArgs([]string{"frames", in, out, "--mode", "track_ref", "--warping", "translation", "--visualize", "--plot", plot})
	require.NoError(t, cmd.Execute())

	reference := scene(0, 0)
	for _, name := range []string{"f000.png", "f001.png", "f002.png"} {
		img, err := loadFrame(filepath.Join(out, name))
		require.NoError(t, err)
		for y := 10; y < 90; y += 3 {
			for x := 10; x < 90; x += 3 {
				r, _, _, _ := img.At(x, y).RGBA()
				require.Equal(t, uint32(reference.GrayAt(x, y).Y)*0x101, r, "%s (%d, %d)", name, x, y)
			}
		}
	}

	_, err := os.Stat(filepath.Join(out, "viz", "f002.png"))
	require.NoError(t, err)
	_, err = os.Stat(plot)
	require.NoError(t, err)
}

func TestFramesCommand_BadArguments(t *testing.T) {
	cmd := NewRootCmd(testConfig())
	cmd.SetArgs([]string{"frames", t.TempDir(), t.TempDir()})
	require.Error(t, cmd.Execute())

	in := t.TempDir()
	writePNG(t, filepath.Join(in, "f000.png"), scene(0, 0))
	cmd = NewRootCmd(testConfig())
	cmd.SetArgs([]string{"frames", in, t.TempDir(), "--mode", "sideways"})
	require.Error(t, cmd.Execute())
}

func TestRunner_FrameSizeMismatchIsFatal(t *testing.T) {
	in := t.TempDir()
	writePNG(t, filepath.Join(in, "f000.png"), scene(0, 0))
	writePNG(t, filepath.Join(in, "f001.png"), image.NewGray(image.Rect(0, 0, 50, 50)))

	runner, err := newRunner(testConfig(), &options{}, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, runner.Process(filepath.Join(in, "f000.png")))

	err = runner.Process(filepath.Join(in, "f001.png"))
	var fatal *fatalError
	require.True(t, errors.As(err, &fatal))
	require.ErrorIs(t, err, entity.ErrFrameSize)
}

func TestWatchFrames(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := make(chan string, 8)
	errc := make(chan error, 1)
	go func() {
		errc <- watchFrames(ctx, dir, func(path string) error {
			seen <- filepath.Base(path)
			return nil
		})
	}()

	// Даём наблюдателю подписаться на каталог.
	time.Sleep(200 * time.Millisecond)

	tmp := filepath.Join(dir, "frame.tmp")
	writePNG(t, tmp, scene(0, 0))
	require.NoError(t, os.Rename(tmp, filepath.Join(dir, "f000.png")))

	select {
	case name := <-seen:
		require.Equal(t, "f000.png", name)
	case <-time.After(5 * time.Second):
		t.Fatal("frame was not processed")
	}

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"vision-stab/config"
	"vision-stab/internal/container"
	"vision-stab/internal/domain/entity"
	"vision-stab/internal/infrastructure/storage"
)

// options общие флаги команд.
type options struct {
	mode      string
	warping   string
	visualize bool
	plot      string
}

func (o *options) settings(cfg *config.Config) (entity.Settings, error) {
	settings := cfg.Settings()
	var err error
	if o.mode != "" {
		if settings.Mode, err = entity.ParseMode(o.mode); err != nil {
			return settings, err
		}
	}
	if o.warping != "" {
		if settings.Warping, err = entity.ParseWarpingGroup(o.warping); err != nil {
			return settings, err
		}
	}
	settings.Visualize = settings.Visualize || o.visualize
	return settings, nil
}

// NewRootCmd creates the root Cobra command
func NewRootCmd(cfg *config.Config) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "stabilize",
		Short: "Stabilize a sequence of video frames",
		Long: `stabilize aligns every frame of a sequence to the first one using
tracked extremal regions and a robust transform estimate.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.mode, "mode", "m", "", "stabilization mode (direct|track_ref|warp_back)")
	rootCmd.PersistentFlags().StringVarP(&opts.warping, "warping", "w", "", "transform group (homography|rot_homography|affine|rigid|translation)")
	rootCmd.PersistentFlags().BoolVar(&opts.visualize, "visualize", false, "write correspondence overlays to <output>/viz")
	rootCmd.PersistentFlags().StringVar(&opts.plot, "plot", "", "save camera trajectory plot to this file")

	rootCmd.AddCommand(newFramesCmd(cfg, opts))
	rootCmd.AddCommand(newWatchCmd(cfg, opts))

	return rootCmd
}

func newRunner(cfg *config.Config, opts *options, outDir string) (*Runner, error) {
	settings, err := opts.settings(cfg)
	if err != nil {
		return nil, err
	}
	c := container.New(cfg, storage.NewMemorySessionRepository())
	return NewRunner(c, settings, outDir, opts.plot)
}

func newFramesCmd(cfg *config.Config, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "frames <input_directory> <output_directory>",
		Short: "Stabilize all frames of a directory in name order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			frames, err := listFrames(args[0])
			if err != nil {
				return err
			}
			if len(frames) == 0 {
				return fmt.Errorf("no frames in %s", args[0])
			}

			runner, err := newRunner(cfg, opts, args[1])
			if err != nil {
				return err
			}
			for _, path := range frames {
				if err := runner.Process(path); err != nil {
					return err
				}
			}
			return runner.Finish()
		},
	}
}

func newWatchCmd(cfg *config.Config, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <input_directory> <output_directory>",
		Short: "Stabilize frames as they appear in a directory",
		Long: `Watch a directory and stabilize each new frame against the first one
that appeared. Stops on SIGINT/SIGTERM.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := newRunner(cfg, opts, args[1])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return watch(ctx, args[0], runner)
		},
	}
}

func watch(ctx context.Context, dir string, runner *Runner) error {
	if err := watchFrames(ctx, dir, runner.Process); err != nil {
		return err
	}
	return runner.Finish()
}

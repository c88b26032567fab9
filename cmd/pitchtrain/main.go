// Command pitchtrain prepares per-speaker pitch datasets and trains the
// length/pitch predictor on them.
//
//	pitchtrain stats   --records train.txt
//	pitchtrain inspect --config pitchtrain.yaml
//	pitchtrain train   --config pitchtrain.yaml --seed 42
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Noofbiz/pitchlen/config"
	"github.com/Noofbiz/pitchlen/datasets"
	"github.com/Noofbiz/pitchlen/predictor"
	"github.com/Noofbiz/pitchlen/report"
	"github.com/Noofbiz/pitchlen/seed"
)

type app struct {
	v          *viper.Viper
	configPath string
	cfg        *config.Root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "pitchtrain",
		Short:         "Prepare pitch datasets and train the length/pitch predictor",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a YAML config file")
	flags.Int64("seed", seed.Disabled, "determinism seed, -1 disables seeding")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("records", "", "record file, one utterance per line")
	flags.String("speaker-ids", "", "YAML/JSON speaker key -> id map")
	flags.String("stats", "", "YAML/JSON speaker key -> {mean, std} map")
	flags.String("outputs", "", "output directory")
	_ = a.v.BindPFlag("seed", flags.Lookup("seed"))
	_ = a.v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("paths.records", flags.Lookup("records"))
	_ = a.v.BindPFlag("paths.speaker_ids", flags.Lookup("speaker-ids"))
	_ = a.v.BindPFlag("paths.stats", flags.Lookup("stats"))
	_ = a.v.BindPFlag("paths.outputs", flags.Lookup("outputs"))

	root.AddCommand(a.statsCmd(), a.inspectCmd(), a.trainCmd())
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	lvl, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)

	seed.Everything(cfg.Seed)
	if s, ok := seed.Current(); ok {
		log.WithField("seed", s).Debug("seeded random sources")
	}
	return nil
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Compute speaker ids and per-speaker pitch statistics from a record file",
		RunE: func(cmd *cobra.Command, args []string) error {
			records := a.cfg.Paths.Records
			if records == "" {
				return fmt.Errorf("no record file given (--records or paths.records)")
			}

			f, err := os.Open(records)
			if err != nil {
				return err
			}
			defer f.Close()

			stats, err := datasets.ComputeSpeakerStats(f)
			if err != nil {
				return fmt.Errorf("%s: %w", records, err)
			}
			ids := datasets.BuildSpeakerIDs(stats.Keys())

			out := a.cfg.Paths.Outputs
			if err := os.MkdirAll(out, 0o755); err != nil {
				return err
			}
			idsPath := filepath.Join(out, "speaker_ids.yaml")
			statsPath := filepath.Join(out, "stats.yaml")
			if err := datasets.WriteYAML(idsPath, ids); err != nil {
				return err
			}
			if err := datasets.WriteYAML(statsPath, stats); err != nil {
				return err
			}

			log.WithFields(log.Fields{
				"speakers":    len(ids),
				"speaker_ids": idsPath,
				"stats":       statsPath,
			}).Info("wrote speaker files")
			return nil
		},
	}
}

func (a *app) inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Prepare the dataset, print its scaling and plot the pitch histogram",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := a.loadDataset()
			if err != nil {
				return err
			}
			values := ds.Data.Values()
			counts := report.BinCounts(values, ds.Scaling)
			printSummary(cmd.OutOrStdout(), ds, counts)

			plotPath := filepath.Join(a.cfg.Paths.Outputs, "pitch_hist.png")
			if err := report.PitchHistogram(plotPath, values, ds.Scaling); err != nil {
				return err
			}
			log.WithField("path", plotPath).Info("wrote pitch histogram")
			return nil
		},
	}
}

func (a *app) trainCmd() *cobra.Command {
	var evalRecords string
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the length/pitch predictor",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := a.loadDataset()
			if err != nil {
				return err
			}
			evalDS := ds
			if evalRecords != "" {
				if evalDS, err = a.loadDatasetFrom(evalRecords, &ds.Scaling); err != nil {
					return err
				}
			}

			m := predictor.New(a.cfg.PredictorConfig())
			if err := m.CheckDataset(ds); err != nil {
				return fmt.Errorf("%s: %w", ds.Path, err)
			}
			if err := m.CheckDataset(evalDS); err != nil {
				return fmt.Errorf("%s: %w", evalDS.Path, err)
			}

			backend, err := predictor.NewBackend()
			if err != nil {
				return err
			}
			ctx := predictor.NewContext()

			tc := a.cfg.TrainConfig()
			log.WithFields(log.Fields{
				"examples":   ds.Len(),
				"epochs":     tc.Epochs,
				"batch_size": tc.BatchSize,
				"lr":         tc.LearningRate,
			}).Info("training")

			loss, err := m.Train(backend, ctx, ds, tc)
			if err != nil {
				return err
			}

			inf, err := m.NewInference(backend, ctx)
			if err != nil {
				return err
			}
			mse, err := inf.Evaluate(evalDS, tc.BatchSize)
			if err != nil {
				return err
			}
			log.WithFields(log.Fields{
				"train_loss": loss,
				"eval_mse":   mse,
				"eval_set":   evalDS.Path,
			}).Info("training done")
			fmt.Fprintf(cmd.OutOrStdout(), "train loss:    %.6f\n", loss)
			fmt.Fprintf(cmd.OutOrStdout(), "eval mse:      %.6f\n", mse)
			return nil
		},
	}
	cmd.Flags().StringVar(&evalRecords, "eval-records", "", "record file to evaluate on (defaults to the training set)")
	return cmd
}

func (a *app) loadDataset() (*datasets.PitchDataset, error) {
	return a.loadDatasetFrom(a.cfg.Paths.Records, nil)
}

// loadDatasetFrom prepares records. A non-nil scaling is reused instead of
// derived, so evaluation data is binned like the training data.
func (a *app) loadDatasetFrom(records string, scaling *datasets.Scaling) (*datasets.PitchDataset, error) {
	paths := a.cfg.Paths
	if records == "" || paths.SpeakerIDs == "" {
		return nil, fmt.Errorf("records and speaker ids are required (--records, --speaker-ids)")
	}
	ids, err := datasets.LoadSpeakerIDs(paths.SpeakerIDs)
	if err != nil {
		return nil, err
	}

	opts := a.cfg.DatasetOptions()
	var stats datasets.SpeakerStats
	if opts.NormalisePitch {
		if paths.Stats == "" {
			return nil, fmt.Errorf("pitch normalisation needs --stats")
		}
		if stats, err = datasets.LoadSpeakerStats(paths.Stats); err != nil {
			return nil, err
		}
	}
	if scaling != nil {
		opts.FMin, opts.Scale = &scaling.FMin, &scaling.Scale
	}

	ds, err := datasets.NewPitchDataset(records, ids, stats, opts)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"records":  records,
		"examples": ds.Len(),
		"max_len":  ds.Data.MaxLen,
	}).Info("prepared dataset")
	return ds, nil
}

func printSummary(w io.Writer, ds *datasets.PitchDataset, counts []int) {
	fmt.Fprintf(w, "examples:      %d\n", ds.Len())
	fmt.Fprintf(w, "max length:    %d\n", ds.Data.MaxLen)
	fmt.Fprintf(w, "f_min:         %.6f\n", ds.Scaling.FMin)
	fmt.Fprintf(w, "scale:         %.6f\n", ds.Scaling.Scale)
	fmt.Fprintf(w, "bins:          %d\n", ds.Scaling.NBins)
	for i, c := range counts {
		if c == 0 {
			continue
		}
		fmt.Fprintf(w, "  bin %3d: %d\n", i, c)
	}
}

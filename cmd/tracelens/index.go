package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tracelens/internal/config"
	"github.com/fyrsmithlabs/tracelens/internal/vectorstore"
)

var (
	idxCorpus string
	idxSeed   bool
	idxReplay bool
)

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexReplayCmd)

	indexBuildCmd.Flags().StringVar(&idxCorpus, "corpus", "", "corpus file, JSON array or JSONL (overrides index.corpus_path)")
	indexBuildCmd.Flags().BoolVar(&idxSeed, "seed", false, "build from the built-in seed corpus")
	indexBuildCmd.Flags().BoolVar(&idxReplay, "replay", false, "also index traces from the analysis log")
	indexBuildCmd.MarkFlagsMutuallyExclusive("corpus", "seed")
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the similarity index",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the similarity index from a corpus",
	Long: `Build the similarity index and save it to the configured location.

Without flags the corpus is read from index.corpus_path, or the built-in seed
corpus is used when that is unset.

Examples:
  # Build from a corpus file
  tracelens index build --corpus data/corpus.jsonl

  # Build from the seed corpus plus every trace analysed so far
  tracelens index build --seed --replay`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runIndexBuild(cmd, corpusSource{path: idxCorpus, seed: idxSeed}, idxReplay)
	},
}

var indexReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Rebuild the index including traces from the analysis log",
	Long: `Rebuild the similarity index from the configured corpus plus every
distinct trace recorded in the analysis log, so that past errors are returned
as related errors.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runIndexBuild(cmd, corpusSource{}, true)
	},
}

func runIndexBuild(cmd *cobra.Command, src corpusSource, replay bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newBaseApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if src.path == "" && !src.seed {
		src.path = a.cfg.Index.CorpusPath
	}
	if replay {
		src.logPath = a.cfg.Persistence.LogPath
	}

	if err := a.initEncoder(); err != nil {
		return err
	}
	idx, err := buildIndex(ctx, a.cfg.Index, a.encoder, src, a.logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d traces (%s backend, dimension %d)\n",
		idx.Len(), a.cfg.Index.Backend, idx.Dimension())
	return nil
}

// corpusSource describes where index items come from. The base corpus is
// the seed corpus, or the file at path when set. A non-empty logPath adds
// the distinct traces of the analysis log.
type corpusSource struct {
	path    string
	seed    bool
	logPath string
}

func (s corpusSource) load(logger *zap.Logger) ([]vectorstore.CorpusItem, error) {
	var items []vectorstore.CorpusItem
	if s.path != "" && !s.seed {
		loaded, err := vectorstore.LoadCorpus(s.path, logger)
		if err != nil {
			return nil, err
		}
		items = loaded
	} else {
		items = vectorstore.SeedCorpus()
	}

	if s.logPath == "" {
		return items, nil
	}
	replayed, err := vectorstore.ReplayLog(s.logPath, logger)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("no analysis log to replay", zap.String("path", s.logPath))
		return items, nil
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		seen[it.Text] = struct{}{}
	}
	for _, it := range replayed {
		if _, dup := seen[it.Text]; dup {
			continue
		}
		seen[it.Text] = struct{}{}
		items = append(items, it)
	}
	return items, nil
}

// openIndex opens a previously saved index for the configured backend.
func openIndex(cfg config.IndexConfig, enc vectorstore.Encoder, logger *zap.Logger) (vectorstore.Index, error) {
	switch cfg.Backend {
	case "chromem":
		idx, err := vectorstore.OpenChromem(chromemConfig(cfg), enc, logger)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		idx, err := vectorstore.Load(cfg.Path, enc)
		if err != nil {
			return nil, err
		}
		return idx, nil
	}
}

// buildIndex builds an index from src and persists it for the next start.
func buildIndex(ctx context.Context, cfg config.IndexConfig, enc vectorstore.Encoder, src corpusSource, logger *zap.Logger) (vectorstore.Index, error) {
	items, err := src.load(logger)
	if err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case "chromem":
		idx, err := vectorstore.BuildChromem(ctx, chromemConfig(cfg), enc, items, logger)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		idx, err := vectorstore.Build(ctx, enc, items, logger)
		if err != nil {
			return nil, err
		}
		if err := idx.Save(cfg.Path); err != nil {
			return nil, fmt.Errorf("saving index: %w", err)
		}
		logger.Info("similarity index saved", zap.String("path", cfg.Path), zap.Int("entries", idx.Len()))
		return idx, nil
	}
}

func chromemConfig(cfg config.IndexConfig) vectorstore.ChromemConfig {
	return vectorstore.ChromemConfig{
		Path:       cfg.ChromemPath,
		Compress:   true,
		Collection: cfg.Collection,
	}
}

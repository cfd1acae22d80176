package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CageChen/imagediff/internal/compare"
	"github.com/CageChen/imagediff/internal/hash"
	"github.com/CageChen/imagediff/internal/render"
	"github.com/CageChen/imagediff/internal/report"
	"github.com/CageChen/imagediff/internal/scan"
)

type compareOptions struct {
	render      bool
	output      string
	changedOnly bool
	list        bool
	manifest    bool
	sourceRef   string
	destRef     string
}

func newCompareCmd(global *globalOptions) *cobra.Command {
	opts := &compareOptions{}

	cmd := &cobra.Command{
		Use:   "compare <source> <destination>",
		Short: "Classify two image folders and optionally render diffs",
		Long: `Classify every image under <source> and <destination> as new, common or
deleted and print a summary.

With --render a difference image is written for every classified path into
the output directory. Paths present on one side only are skipped. With
--changed-only both sides are hashed and only common files whose contents
differ are rendered.`,
		Args: rootArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd, global, opts, args)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.render, "render", false, "write diff images into the output directory")
	f.StringVarP(&opts.output, "output", "o", "", "output directory for diff images and manifest (default from config: output)")
	f.BoolVar(&opts.changedOnly, "changed-only", false, "hash common files and render only those whose contents differ")
	f.BoolVar(&opts.list, "list", false, "print a table of all entries")
	f.BoolVar(&opts.manifest, "manifest", false, "write "+report.ManifestName+" into the output directory")
	f.StringVar(&opts.sourceRef, "source-ref", "", "read <source> from this git revision")
	f.StringVar(&opts.destRef, "dest-ref", "", "read <destination> from this git revision")

	return cmd
}

func runCompare(cmd *cobra.Command, global *globalOptions, opts *compareOptions, args []string) error {
	rs, err := openRoots(args, opts.sourceRef, opts.destRef)
	if err != nil {
		return err
	}

	cfg, logger, err := global.setup(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("output") {
		cfg.Output = opts.output
	}

	var scanOpts []scan.Option
	if opts.changedOnly {
		scanOpts = append(scanOpts, scan.WithHasher(hash.NewXXHasher()))
	}
	comparer := compare.NewComparer(scan.New(cfg, logger, scanOpts...), logger)

	ctx := cmd.Context()
	result, err := comparer.Compare(ctx, rs.src, rs.dst)
	if err != nil {
		return err
	}

	var changed []string
	if opts.changedOnly {
		if changed, err = compare.Changes(result); err != nil {
			return err
		}
		// Keep the summary's changed count non-nil even when nothing differs.
		if changed == nil {
			changed = []string{}
		}
	}

	out := cmd.OutOrStdout()
	if opts.list {
		writeEntryTable(out, result, changed)
	}
	_, _ = fmt.Fprintln(out, formatSummary(result.Counts, changed))

	if opts.render {
		paths := changed
		if !opts.changedOnly {
			paths = make([]string, len(result.Entries))
			for i, e := range result.Entries {
				paths[i] = e.Path
			}
		}

		s, err := render.NewRenderer(logger).RenderAll(ctx, paths, rs.src, rs.dst, cfg.Output)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, formatRenderSummary(s.Rendered, s.Skipped, s.Mismatched, cfg.Output))
	}

	if opts.manifest {
		if err := report.WriteManifest(cfg.Output, report.NewManifest(result, changed)); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
		logger.Info("wrote manifest", "dir", cfg.Output)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/phrazzld/aves-annotator/internal/batch"
	"github.com/phrazzld/aves-annotator/internal/domain"
	"github.com/spf13/cobra"
)

var (
	okColor   = color.New(color.FgGreen)
	failColor = color.New(color.FgRed)
	warnColor = color.New(color.FgYellow)
	dimColor  = color.New(color.FgHiBlack)
)

// runOptions configure a one-shot local batch.
type runOptions struct {
	images       []string
	species      string
	concurrency  int
	pollInterval time.Duration
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	ro := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [image-id...]",
		Short: "Annotate images in the foreground and print the results",
		Long: `Run starts one batch and follows it until it finishes.

Positional arguments reference images already in the catalog. Each --image
registers a local file or URI under its own path as ID, using --species.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			refs, err := ro.imageRefs(args)
			if err != nil {
				return err
			}

			stores, err := openStores(ctx, opts.cfg.Database, opts.logger)
			if err != nil {
				return err
			}
			app, err := newApplication(ctx, opts.cfg, opts.logger, stores, nil)
			if err != nil {
				_ = stores.Close()
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.cfg.Server.ShutdownTimeout)
				defer cancel()
				_ = app.shutdown(shutdownCtx)
			}()

			if err := ro.registerImages(ctx, app); err != nil {
				return err
			}
			return runBatch(ctx, app, cmd.OutOrStdout(), refs, ro.concurrency, ro.pollInterval)
		},
	}

	cmd.Flags().StringArrayVarP(&ro.images, "image", "i", nil, "Image path or URI to register and annotate (repeatable)")
	cmd.Flags().StringVarP(&ro.species, "species", "s", "", "Species depicted in the --image files")
	cmd.Flags().IntVar(&ro.concurrency, "concurrency", 0, "Items processed in parallel (0 uses batch.default_concurrency)")
	cmd.Flags().DurationVar(&ro.pollInterval, "poll", 500*time.Millisecond, "Progress refresh interval")
	return cmd
}

// imageRefs merges catalog IDs with the --image paths.
func (ro *runOptions) imageRefs(args []string) ([]string, error) {
	if len(ro.images) > 0 && strings.TrimSpace(ro.species) == "" {
		return nil, fmt.Errorf("--species is required with --image")
	}
	refs := make([]string, 0, len(args)+len(ro.images))
	refs = append(refs, args...)
	refs = append(refs, ro.images...)
	if len(refs) == 0 {
		return nil, fmt.Errorf("no images given: pass catalog IDs or --image")
	}
	return refs, nil
}

func (ro *runOptions) registerImages(ctx context.Context, app *application) error {
	for _, uri := range ro.images {
		img, err := domain.NewImage(uri, uri, ro.species)
		if err != nil {
			return err
		}
		if err := app.stores.catalog.SaveImage(ctx, img); err != nil {
			return fmt.Errorf("failed to register image %s: %w", uri, err)
		}
	}
	return nil
}

// runBatch starts a batch and reports its progress on out until the job
// finishes. Cancelling ctx cancels the job and waits for it to settle.
func runBatch(
	ctx context.Context,
	app *application,
	out io.Writer,
	refs []string,
	concurrency int,
	poll time.Duration,
) error {
	jobID, err := app.manager.StartBatch(ctx, refs, concurrency)
	if err != nil {
		return fmt.Errorf("failed to start batch: %w", err)
	}
	fmt.Fprintf(out, "batch %s started with %d image(s)\n", jobID, len(refs))

	progress, err := waitForJob(ctx, app.manager, out, jobID, poll)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, formatProgress(progress))

	items, err := app.review.ListCandidates(context.WithoutCancel(ctx), jobID)
	if err != nil {
		return fmt.Errorf("failed to list candidates: %w", err)
	}
	failures := map[uuid.UUID]string{}
	if batchItems, err := app.manager.ListItems(context.WithoutCancel(ctx), jobID); err == nil {
		for _, it := range batchItems {
			if it.LastError != "" {
				failures[it.ID] = it.LastError
			}
		}
	}

	for _, item := range items {
		switch item.Status {
		case domain.ItemStatusSucceeded:
			fmt.Fprintf(out, "%s %s: %d candidate(s)\n", okColor.Sprint("✓"), item.ImageRef, len(item.Candidates))
		case domain.ItemStatusFailed:
			fmt.Fprintf(out, "%s %s: %s\n", failColor.Sprint("✗"), item.ImageRef, failures[item.ItemID])
		default:
			fmt.Fprintf(out, "%s %s: %s\n", dimColor.Sprint("-"), item.ImageRef, item.Status)
		}
		for _, c := range item.Candidates {
			box := c.Prediction.Box
			line := fmt.Sprintf("    %-20s %-12s x=%.3f y=%.3f w=%.3f h=%.3f conf=%.2f",
				c.Term(), c.Type, box.X, box.Y, box.Width, box.Height, c.Confidence)
			switch {
			case c.Prediction.Suppressed:
				line += warnColor.Sprint(" suppressed")
			case c.Prediction.Applied:
				line += okColor.Sprintf(" adjusted (%d samples)", c.Prediction.SampleCount)
			}
			fmt.Fprintln(out, line)
		}
	}

	if progress.Status != domain.JobStatusCompleted {
		return fmt.Errorf("batch %s finished as %s", jobID, progress.Status)
	}
	return nil
}

// waitForJob polls the job until it is terminal. The first cancellation of
// ctx requests job cancellation; polling then continues without ctx so the
// final state is still reported.
func waitForJob(
	ctx context.Context,
	manager *batch.Manager,
	out io.Writer,
	jobID uuid.UUID,
	poll time.Duration,
) (batch.Progress, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	done := ctx.Done()
	last := -1
	for {
		progress, err := manager.GetJobProgress(context.WithoutCancel(ctx), jobID)
		if err != nil {
			return batch.Progress{}, fmt.Errorf("failed to read progress: %w", err)
		}
		if progress.Done() {
			return progress, nil
		}
		if progress.ProcessedItems != last {
			last = progress.ProcessedItems
			fmt.Fprintln(out, formatProgress(progress))
		}

		select {
		case <-done:
			fmt.Fprintln(out, warnColor.Sprint("interrupted, cancelling batch"))
			if _, err := manager.CancelJob(context.WithoutCancel(ctx), jobID); err != nil {
				return batch.Progress{}, fmt.Errorf("failed to cancel batch: %w", err)
			}
			done = nil
		case <-ticker.C:
		}
	}
}

// formatProgress renders one status line.
func formatProgress(p batch.Progress) string {
	var status string
	switch {
	case p.Status == domain.JobStatusCompleted && !p.HasFailures():
		status = okColor.Sprint(p.Status)
	case p.Status == domain.JobStatusCompleted:
		status = warnColor.Sprint(p.Status)
	case p.Status == domain.JobStatusFailed || p.Status == domain.JobStatusCancelled:
		status = failColor.Sprint(p.Status)
	default:
		status = string(p.Status)
	}

	return fmt.Sprintf("[%5.1f%%] %s %d/%d processed, %s succeeded, %s failed",
		p.Percent(), status, p.ProcessedItems, p.TotalItems,
		okColor.Sprint(p.SuccessfulItems), failColor.Sprint(p.FailedItems))
}

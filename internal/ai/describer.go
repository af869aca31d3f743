package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const describePrompt = "Describe this image in one short sentence (5-15 words). " +
	"Be specific about what it shows (e.g. 'training loss curve over epochs'). " +
	"Only output the description, nothing else."

// Describer produces natural-language descriptions for extracted images with
// bounded concurrency, a per-call timeout and retries. A permanently failed
// description is skipped, never fatal: ordering across images is irrelevant
// and the document must still reach ready.
type Describer struct {
	provider    IProvider
	model       string
	workers     int
	attempts    int
	callTimeout time.Duration
	backoffBase time.Duration
}

func NewDescriber(provider IProvider, model string, workers, attempts int, callTimeout time.Duration) *Describer {
	if workers <= 0 {
		workers = 4
	}
	if attempts <= 0 {
		attempts = 3
	}
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &Describer{
		provider:    provider,
		model:       model,
		workers:     workers,
		attempts:    attempts,
		callTimeout: callTimeout,
		backoffBase: time.Second,
	}
}

// Target is one image to describe; Persist is called with the finished
// description before DescribeAll returns, so downstream phases read it
// durably.
type Target struct {
	ID      int64
	Page    int
	Data    []byte
	MIME    string
	Persist func(ctx context.Context, id int64, description string) error
}

// DescribeAll describes every target. It returns an error only when the
// context is cancelled; individual failures are logged and absorbed.
func (d *Describer) DescribeAll(ctx context.Context, targets []Target) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for _, target := range targets {
		g.Go(func() error {
			description, err := d.describeOne(gctx, target)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logutil.GetLogger(gctx).Warn("image description failed, leaving null",
					zap.Int64("image_id", target.ID),
					zap.Int("page", target.Page),
					zap.Error(err))
				return nil
			}
			if err := target.Persist(gctx, target.ID, description); err != nil {
				return fmt.Errorf("persist description: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (d *Describer) describeOne(ctx context.Context, target Target) (string, error) {
	var description string
	err := retry(ctx, d.attempts, d.backoffBase, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
		defer cancel()
		result, err := d.provider.Describe(callCtx, d.model, target.Data, target.MIME, describePrompt)
		if err != nil {
			return err
		}
		if result == "" {
			return fmt.Errorf("empty description")
		}
		description = result
		return nil
	})
	return description, err
}

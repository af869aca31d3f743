// Package job holds scheduled maintenance tasks.
package job

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/paperbase/paperbase/internal/repo"
	"github.com/paperbase/paperbase/internal/service"
)

// ReaperJob marks documents stranded in a non-terminal status as failed.
// A document can strand only when the process died mid-ingestion; there is
// no resume, so the fix is a re-upload. Runs once at startup and then on a
// cron to catch anything the startup pass raced with.
type ReaperJob struct {
	docs   *repo.DocumentRepo
	ingest *service.IngestService
}

func NewReaperJob(docs *repo.DocumentRepo, ingest *service.IngestService) *ReaperJob {
	return &ReaperJob{docs: docs, ingest: ingest}
}

func (j *ReaperJob) Name() string {
	return "ingest_reaper"
}

func (j *ReaperJob) Run(ctx context.Context) error {
	docs, err := j.docs.ListUnfinished(ctx)
	if err != nil {
		return fmt.Errorf("list unfinished documents: %w", err)
	}
	for _, doc := range docs {
		// In-flight ingestions are not stranded.
		if j.ingest.Running(doc.Slug) {
			continue
		}
		logutil.GetLogger(ctx).Warn("reaping stranded document",
			zap.String("slug", doc.Slug), zap.String("status", string(doc.Status)))
		if err := j.docs.MarkError(ctx, doc.Slug, "ingestion interrupted; re-upload to retry"); err != nil {
			return fmt.Errorf("mark %s: %w", doc.Slug, err)
		}
	}
	return nil
}

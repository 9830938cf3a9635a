package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/siteforge-io/siteforge/app/repository"
	"github.com/siteforge-io/siteforge/internal/pkg/sitebackup"
)

var (
	exportClient     *sitebackup.Client
	exportClientOnce sync.Once
)

// getExportClient lazily initializes the shared S3 export client. Returns
// nil when exports are disabled or the client cannot be created.
func getExportClient() *sitebackup.Client {
	exportClientOnce.Do(func() {
		cfg, err := sitebackup.LoadConfig()
		if err != nil {
			log.Warnf("[JobQueue] S3 export config invalid, exports disabled: %v", err)
			return
		}
		if !cfg.IsEnabled() {
			log.Info("[JobQueue] S3 exports are disabled")
			return
		}
		client, err := sitebackup.NewClient(cfg)
		if err != nil {
			log.Errorf("[JobQueue] Failed to initialize S3 export client: %v", err)
			return
		}
		exportClient = client
	})
	return exportClient
}

// EnqueueProjectExport adds a project export job to the queue
func (q *Queue) EnqueueProjectExport(projectID uint, trigger string) (*Job, error) {
	payload := ProjectExportJobPayload{
		ProjectID: projectID,
		Trigger:   trigger,
	}
	return q.EnqueueJob(JobTypeProjectExport, payload.ToMap())
}

// processProjectExportJob serializes a project and uploads the archive to S3
func (q *Queue) processProjectExportJob(ctx context.Context, job *Job) error {
	payload, err := ProjectExportJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid project export payload: %w", err)
	}

	client := getExportClient()
	if client == nil {
		// Nothing to do; don't fail the job when exports are switched off
		log.Debugf("[JobQueue] Skipping export for project %d (exports disabled)", payload.ProjectID)
		return nil
	}

	repos := repository.GetGlobalRepositories()
	if repos == nil {
		return fmt.Errorf("repositories not initialized")
	}

	project, err := repos.Project.GetByID(payload.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to load project %d: %w", payload.ProjectID, err)
	}

	archive, err := sitebackup.BuildExport(project)
	if err != nil {
		return fmt.Errorf("failed to build export for project %d: %w", payload.ProjectID, err)
	}

	objectKey := client.Config().GetObjectKey(project.UUID, time.Now())
	result, err := client.UploadExport(ctx, objectKey, archive)
	if err != nil {
		return fmt.Errorf("failed to upload export for project %d: %w", payload.ProjectID, err)
	}

	log.Infof("[JobQueue] Exported project %d (trigger=%s) to s3://%s/%s (%d bytes)",
		payload.ProjectID, payload.Trigger, result.BucketName, result.ObjectKey, result.Size)
	return nil
}

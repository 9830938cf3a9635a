package sitebackup

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"time"

	"github.com/siteforge-io/siteforge/app/models"
)

// ExportArchive is the wire format written to S3 when a project leaves a
// paid tier. It keeps enough state to restore the subscription context if
// the customer comes back.
type ExportArchive struct {
	Version       int                  `json:"version"`
	ExportedAt    time.Time            `json:"exportedAt"`
	Project       ExportProject        `json:"project"`
	Subscription  models.Subscription  `json:"subscription"`
	Collaborators []ExportCollaborator `json:"collaborators"`
	Environments  []string             `json:"environments"`
	PastTiers     []string             `json:"pastTiers"`
}

type ExportProject struct {
	UUID             string `json:"uuid"`
	Name             string `json:"name"`
	OwnerEmail       string `json:"ownerEmail,omitempty"`
	ThemeID          string `json:"themeId,omitempty"`
	SSG              string `json:"ssg,omitempty"`
	CMS              string `json:"cms,omitempty"`
	CMSTitle         string `json:"cmsTitle,omitempty"`
	RepoURL          string `json:"repoUrl,omitempty"`
	DeploymentTarget string `json:"deploymentTarget,omitempty"`
	SiteURL          string `json:"siteUrl,omitempty"`
}

type ExportCollaborator struct {
	CollabID    string `json:"id"`
	UserID      *uint  `json:"userId,omitempty"`
	InviteEmail string `json:"inviteEmail,omitempty"`
	Role        string `json:"role,omitempty"`
	Status      string `json:"status"`
}

const exportArchiveVersion = 1

// BuildExport serializes a project into a gzipped JSON archive
func BuildExport(project *models.Project) ([]byte, error) {
	if project == nil {
		return nil, fmt.Errorf("project is nil")
	}

	archive := ExportArchive{
		Version:    exportArchiveVersion,
		ExportedAt: time.Now().UTC(),
		Project: ExportProject{
			UUID:             project.UUID,
			Name:             project.Name,
			OwnerEmail:       project.Owner.Email,
			ThemeID:          project.ThemeID,
			SSG:              project.SSG,
			CMS:              project.CMS,
			CMSTitle:         project.CMSTitle,
			RepoURL:          project.RepoURL,
			DeploymentTarget: project.DeploymentTarget,
			SiteURL:          project.SiteURL,
		},
		Subscription: project.Subscription,
	}

	for _, collab := range project.Collaborators {
		archive.Collaborators = append(archive.Collaborators, ExportCollaborator{
			CollabID:    collab.CollabID,
			UserID:      collab.UserID,
			InviteEmail: collab.InviteEmail,
			Role:        collab.Role,
			Status:      collab.Status(),
		})
	}
	for _, env := range project.Environments {
		archive.Environments = append(archive.Environments, env.Name)
	}
	archive.PastTiers = project.PastTierIDs()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(&archive); err != nil {
		gz.Close()
		return nil, fmt.Errorf("failed to encode export archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress export archive: %w", err)
	}

	return buf.Bytes(), nil
}

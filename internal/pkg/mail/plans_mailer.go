package mail

import (
	"fmt"
	"log"

	"github.com/siteforge-io/siteforge/app/models"
	"github.com/siteforge-io/siteforge/internal/pkg/constants"
	"github.com/siteforge-io/siteforge/internal/pkg/env"
	"github.com/siteforge-io/siteforge/internal/pkg/tier"
)

// Plan email events.
const (
	PlansEventStarted   = "started"
	PlansEventCancelled = "cancelled"
	PlansEventExpired   = "expired"
)

// Mailer sends subscription and collaboration emails. Implementations are
// best-effort: delivery failures are logged and never fail the calling
// operation.
type Mailer interface {
	SendPlansEmail(project *models.Project, owner *models.User, tierID string, event string)
	SendCollaboratorInvite(project *models.Project, email string, token string)
}

// SMTPPlansMailer delivers plan emails over the shared SMTP transport.
type SMTPPlansMailer struct{}

// NewSMTPPlansMailer creates the default mailer.
func NewSMTPPlansMailer() *SMTPPlansMailer {
	return &SMTPPlansMailer{}
}

// SendPlansEmail notifies a project owner about a subscription lifecycle
// event on one of their projects.
func (m *SMTPPlansMailer) SendPlansEmail(project *models.Project, owner *models.User, tierID string, event string) {
	if owner == nil || owner.Email == "" {
		log.Printf("plans email skipped for project %d: owner email unknown", projectID(project))
		return
	}

	tierName := tierID
	if t := tier.Get(tierID); t != nil {
		tierName = t.Name
	}

	var subject, body string
	switch event {
	case PlansEventStarted:
		subject = fmt.Sprintf("Your %s plan is active", tierName)
		body = fmt.Sprintf(
			"<p>Hi %s,</p><p>The <strong>%s</strong> plan is now active on your project <strong>%s</strong>.</p>",
			owner.Name, tierName, project.Name)
	case PlansEventCancelled:
		subject = fmt.Sprintf("Your %s plan was cancelled", tierName)
		body = fmt.Sprintf(
			"<p>Hi %s,</p><p>The <strong>%s</strong> plan on your project <strong>%s</strong> has been cancelled.</p>",
			owner.Name, tierName, project.Name)
	case PlansEventExpired:
		subject = fmt.Sprintf("Your %s plan has expired", tierName)
		body = fmt.Sprintf(
			"<p>Hi %s,</p><p>The <strong>%s</strong> plan on your project <strong>%s</strong> has expired and the project was moved to a lower plan.</p>",
			owner.Name, tierName, project.Name)
	default:
		log.Printf("plans email skipped: unknown event %q", event)
		return
	}

	if err := SendMail(owner.Email, subject, body); err != nil {
		log.Printf("plans email (%s) for project %d failed: %v", event, project.ID, err)
	}
}

// SendCollaboratorInvite emails an invitation link to a prospective
// collaborator.
func (m *SMTPPlansMailer) SendCollaboratorInvite(project *models.Project, email string, token string) {
	if email == "" || token == "" {
		return
	}

	publicDomain := env.GetEnv("PUBLIC_DOMAIN", "http://localhost:8080")
	link := fmt.Sprintf("%s%s/%s?token=%s", publicDomain, constants.InviteRoute, project.UUID, token)

	subject := fmt.Sprintf("You have been invited to %s", project.Name)
	body := fmt.Sprintf(
		"<p>You have been invited to collaborate on <strong>%s</strong>.</p>"+
			"<p><a href=\"%s\">Accept the invitation</a></p>",
		project.Name, link)

	if err := SendMail(email, subject, body); err != nil {
		log.Printf("invite email for project %d failed: %v", project.ID, err)
	}
}

func projectID(p *models.Project) uint {
	if p == nil {
		return 0
	}
	return p.ID
}

// NopMailer drops all emails. Used in tests and when SMTP is not configured.
type NopMailer struct{}

func (NopMailer) SendPlansEmail(*models.Project, *models.User, string, string) {}

func (NopMailer) SendCollaboratorInvite(*models.Project, string, string) {}

package ai

import (
	"context"
	"fmt"
	"strings"

	access "github.com/bryanwahyu/facegate/internal/domain/access"
	"github.com/bryanwahyu/facegate/internal/domain/ai"
)

// Service renders recent audit activity and asks the AI client for an
// operations review of it.
type Service struct {
	client ai.Client
	audit  access.AuditLog
}

func NewService(client ai.Client, audit access.AuditLog) *Service {
	return &Service{client: client, audit: audit}
}

// ReviewActivity pulls the latest audit records and returns the model's
// JSON review
func (s *Service) ReviewActivity(ctx context.Context, limit int) (string, error) {
	records, err := s.audit.Latest(ctx, limit)
	if err != nil {
		return "", fmt.Errorf("loading audit records: %w", err)
	}
	if len(records) == 0 {
		return "", fmt.Errorf("no access activity to review")
	}
	return s.client.Review(ctx, renderRecords(records))
}

func renderRecords(records []*access.AuditRecord) string {
	var b strings.Builder
	for _, r := range records {
		card := "-"
		if r.MatchedCardID != nil {
			card = *r.MatchedCardID
		}
		conf := "-"
		if r.Confidence != nil {
			conf = fmt.Sprintf("%.2f", *r.Confidence)
		}
		fmt.Fprintf(&b, "%s status=%s card=%s confidence=%s detection=%s\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"), r.Status, card, conf, r.DetectionID)
	}
	return b.String()
}

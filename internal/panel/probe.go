package panel

import (
	"context"
	"fmt"

	"github.com/danmuck/nonscan/internal/approval"
)

// Probe connects, sends one approval request and waits for its outcome.
// It is the bench-test path for a panel without the checkout UI.
func (s *Service) Probe(ctx context.Context, subjectID string) (approval.Result, error) {
	defer s.shutdown()
	if err := s.link.Connect(ctx); err != nil {
		return approval.Result{}, fmt.Errorf("probe connect: %w", err)
	}
	req, err := s.coord.RequestApproval(ctx, subjectID)
	if err != nil {
		return approval.Result{}, fmt.Errorf("probe request: %w", err)
	}
	return req.Wait(ctx)
}

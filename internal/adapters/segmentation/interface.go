package segmentation

import (
	"context"

	"github.com/selivandex/pricing-engine/pkg/models"
)

// Provider classifies known users into pricing segments
type Provider interface {
	// Profile returns the user's segments and pricing adjustment
	Profile(ctx context.Context, userID string) (*models.SegmentProfile, error)

	// GetName returns provider name
	GetName() string
}

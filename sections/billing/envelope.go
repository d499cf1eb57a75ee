package billing

import (
	"errors"
	"fmt"
	"strings"

	"commune-backend/common"
	"commune-backend/services"
)

// ErrMissingMetadata is returned when an event lacks metadata a handler cannot proceed without.
var ErrMissingMetadata = errors.New("missing metadata")

// Envelope is the typed view of the metadata attached to checkout sessions and subscriptions.
type Envelope struct {
	CommunityID string
	TierID      string
	UserID      string
	IsTrial     bool
}

func DecodeEnvelope(metadata map[string]string) Envelope {
	return Envelope{
		CommunityID: strings.TrimSpace(metadata[services.MetadataCommunityID]),
		TierID:      strings.TrimSpace(metadata[services.MetadataTierID]),
		UserID:      strings.TrimSpace(metadata[services.MetadataUserID]),
		IsTrial:     common.ParseBool(metadata[services.MetadataIsTrial]),
	}
}

// RequireCheckout checks the keys a completed checkout must carry.
func (e Envelope) RequireCheckout() error {
	if e.CommunityID == "" {
		return fmt.Errorf("%w: %s", ErrMissingMetadata, services.MetadataCommunityID)
	}
	if e.TierID == "" {
		return fmt.Errorf("%w: %s", ErrMissingMetadata, services.MetadataTierID)
	}
	return nil
}

package chat

import "context"

// AugmentRequest is the input of a search augmentation
type AugmentRequest struct {
	UserID  string
	Message string
	Model   string
}

// Augmentation is the retrieved context injected into the user turn
type Augmentation struct {
	Summary string
	Sources []string
}

// Augmenter enriches a turn with external context before the main completion.
// Plain chat turns use no augmenter.
type Augmenter interface {
	// Kind names the variant; it is also the citation event type
	Kind() string
	// PendingText is shown as a placeholder message while Augment runs
	PendingText() string
	// ContextLabel prefixes the summary appended to the user turn
	ContextLabel() string
	Augment(ctx context.Context, req AugmentRequest) (*Augmentation, error)
}

// Package reward drives the rewarded-ad flow state machine and the credit
// grants it produces.
package reward

import "context"

// Storage defines the persistence contract for rewarded-ad flow state.
type Storage interface {
	// GetState returns the current flow state for the specified user.
	GetState(ctx context.Context, userID string) (*FlowState, error)
	// SetState saves the provided flow state for the specified user.
	SetState(ctx context.Context, userID string, state *FlowState) error
	// ClearState removes the flow state for the specified user.
	ClearState(ctx context.Context, userID string) error
}

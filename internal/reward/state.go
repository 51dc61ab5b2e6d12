package reward

import "time"

// State represents a step of the rewarded-ad flow.
type State string

const (
	// StateIdle indicates no ad flow is in progress; ready for the next load.
	StateIdle State = "idle"
	// StateAdRequested indicates the client asked the ad SDK to load an ad.
	StateAdRequested State = "ad_requested"
	// StateAdLoaded indicates the ad SDK reported an ad ready to show.
	StateAdLoaded State = "ad_loaded"
	// StateAdShown indicates the user tapped watch and the ad is playing.
	StateAdShown State = "ad_shown"
	// StateRewardEarned indicates the ad SDK fired its reward callback.
	StateRewardEarned State = "reward_earned"
	// StateGranting indicates the credit grant is being applied.
	StateGranting State = "granting"
	// StateError indicates the flow needs a reset before continuing.
	StateError State = "error"
)

// FlowState captures the current rewarded-ad flow step for a user.
type FlowState struct {
	UserID       string                 `json:"user_id"`
	CurrentState State                  `json:"current_state"`
	Context      map[string]interface{} `json:"context"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

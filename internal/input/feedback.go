package input

import (
	"encoding/json"
	"fmt"
)

// Feedback message types sent to the client.
const (
	FeedbackRumble         = "rumble"
	FeedbackRumbleTriggers = "rumble_triggers"
	FeedbackMotionEnable   = "motion_enable"
)

// Feedback is a host-to-client gamepad feedback message.
type Feedback struct {
	Type    string `json:"type" validate:"required,oneof=rumble rumble_triggers motion_enable"`
	Gamepad int    `json:"gamepad" validate:"gte=0,lt=16"`

	// rumble
	LowFreq  uint16 `json:"low_freq,omitempty"`
	HighFreq uint16 `json:"high_freq,omitempty"`

	// rumble_triggers
	Left  uint16 `json:"left,omitempty"`
	Right uint16 `json:"right,omitempty"`

	// motion_enable
	MotionType int `json:"motion_type,omitempty"`
	ReportRate int `json:"report_rate,omitempty"`
}

// Encode serializes the feedback message.
func (f Feedback) Encode() ([]byte, error) {
	switch f.Type {
	case FeedbackRumble, FeedbackRumbleTriggers, FeedbackMotionEnable:
	default:
		return nil, fmt.Errorf("%w: feedback %q", ErrUnknownMessage, f.Type)
	}
	if err := checkSlot(f.Gamepad); err != nil {
		return nil, err
	}
	return json.Marshal(f)
}

package model

import "time"

// SignalingState is the progress of the offer/answer exchange of a session.
type SignalingState string

const (
	// SignalingCreated means no offer has been accepted yet
	SignalingCreated SignalingState = "created"

	// SignalingHasRemoteOffer means the offer was accepted and the peer is being built
	SignalingHasRemoteOffer SignalingState = "has_remote_offer"

	// SignalingAnswerPending means tracks are attached and the answer is being created
	SignalingAnswerPending SignalingState = "answer_pending"

	// SignalingHasLocalAnswer means the local answer is available
	SignalingHasLocalAnswer SignalingState = "has_local_answer"
)

// CreateSessionRequest represents the options of a new session
type CreateSessionRequest struct {
	App     string `json:"app" validate:"required"`
	Audio   *bool  `json:"audio,omitempty"`
	Video   *bool  `json:"video,omitempty"`
	Encoded *bool  `json:"encoded,omitempty"`

	Width          int    `json:"width" validate:"omitempty,gte=16,lte=7680"`
	Height         int    `json:"height" validate:"omitempty,gte=16,lte=4320"`
	FPS            int    `json:"fps" validate:"omitempty,gte=1,lte=240"`
	Bitrate        int    `json:"bitrate" validate:"gte=0"`
	Codec          string `json:"codec" validate:"omitempty,oneof=h264 vp8 vp9 av1"`
	HDR            bool   `json:"hdr"`
	ChromaSampling string `json:"chroma_sampling" validate:"omitempty,oneof=420 444"`
	AudioChannels  int    `json:"audio_channels" validate:"omitempty,oneof=1 2 6 8"`
	HostAudio      bool   `json:"host_audio"`

	PacingMode    string `json:"pacing_mode" validate:"omitempty,pacingmode"`
	SlackMs       int    `json:"slack_ms" validate:"gte=0,lte=1000"`
	MaxFrameAgeMs int    `json:"max_frame_age_ms" validate:"gte=0,lte=10000"`
	MaxAgeFrames  int    `json:"max_age_frames" validate:"gte=0,lte=120"`
	AudioMaxAgeMs int    `json:"audio_max_age_ms" validate:"gte=0,lte=10000"`
}

// MediaParams are the negotiated media parameters of a session
type MediaParams struct {
	App            string `json:"app"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	FPS            int    `json:"fps"`
	Bitrate        int    `json:"bitrate"`
	Codec          string `json:"codec"`
	HDR            bool   `json:"hdr"`
	ChromaSampling string `json:"chroma_sampling"`
	AudioChannels  int    `json:"audio_channels"`
	AudioCodec     string `json:"audio_codec"`
	HostAudio      bool   `json:"host_audio"`
}

// PacingState describes the pacing configuration and state of a session
type PacingState struct {
	Mode               string        `json:"mode"`
	Slack              time.Duration `json:"slack"`
	MaxFrameAge        time.Duration `json:"max_frame_age"`
	MaxAgeFrames       int           `json:"max_age_frames"`
	AudioMaxAge        time.Duration `json:"audio_max_age"`
	WaitingForKeyframe bool          `json:"waiting_for_keyframe"`
	DriftResets        uint64        `json:"drift_resets"`
	KeyframeRequests   uint64        `json:"keyframe_requests"`
	InFlightOverflows  uint64        `json:"in_flight_overflows"`
}

// SessionStats are the runtime counters of a session
type SessionStats struct {
	VideoPacketsSent   uint64    `json:"video_packets_sent"`
	AudioPacketsSent   uint64    `json:"audio_packets_sent"`
	VideoFramesDropped uint64    `json:"video_frames_dropped"`
	VideoFramesSkipped uint64    `json:"video_frames_skipped"`
	AudioFramesDropped uint64    `json:"audio_frames_dropped"`
	RawFramesDropped   uint64    `json:"raw_frames_dropped"`
	RawFramesReceived  uint64    `json:"raw_frames_received"`
	LastVideoSentAt    time.Time `json:"last_video_sent_at"`
	LastAudioSentAt    time.Time `json:"last_audio_sent_at"`
	LastVideoBytes     int       `json:"last_video_bytes"`
	LastAudioBytes     int       `json:"last_audio_bytes"`
	LastFrameIndex     uint64    `json:"last_frame_index"`
	LastFrameKeyframe  bool      `json:"last_frame_keyframe"`
	VideoQueueDepth    int       `json:"video_queue_depth"`
	AudioQueueDepth    int       `json:"audio_queue_depth"`
	RawQueueDepth      int       `json:"raw_queue_depth"`
	InFlight           int64     `json:"in_flight"`
}

// SessionState is a point-in-time snapshot of a session
type SessionState struct {
	ID               string         `json:"id"`
	CreatedAt        time.Time      `json:"created_at"`
	Signaling        SignalingState `json:"signaling"`
	PeerState        string         `json:"peer_state,omitempty"`
	Audio            bool           `json:"audio"`
	Video            bool           `json:"video"`
	Encoded          bool           `json:"encoded"`
	Media            MediaParams    `json:"media"`
	Pacing           PacingState    `json:"pacing"`
	Stats            SessionStats   `json:"stats"`
	InputChannelOpen bool           `json:"input_channel_open"`
	LocalCandidates  int            `json:"local_candidates"`
	LastError        string         `json:"last_error,omitempty"`
}

// SessionDescription is an SDP offer or answer
type SessionDescription struct {
	Type string `json:"type" validate:"required,oneof=offer answer pranswer"`
	SDP  string `json:"sdp" validate:"required"`
}

// CandidateRequest is a remote ICE candidate
type CandidateRequest struct {
	Candidate     string `json:"candidate" validate:"required"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex int    `json:"sdpMLineIndex" validate:"gte=0"`
}

// Candidate is a local ICE candidate with its per-session index
type Candidate struct {
	Index         uint64 `json:"index"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex int    `json:"sdpMLineIndex"`
	Candidate     string `json:"candidate"`
}

// CandidateList is a page of local candidates
type CandidateList struct {
	Candidates []Candidate `json:"candidates"`
	// Next is the index to pass as since on the next poll.
	Next uint64 `json:"next"`
}

// CaptureStatus is the result of starting capture for a session
type CaptureStatus struct {
	Started bool   `json:"started"`
	Key     string `json:"key,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// LegacyRequest marks a legacy streaming session as active for an app
type LegacyRequest struct {
	App string `json:"app" validate:"required"`
}

// FeedbackRequest is host-to-client gamepad feedback
type FeedbackRequest struct {
	Type       string `json:"type" validate:"required,oneof=rumble rumble_triggers motion_enable"`
	Gamepad    int    `json:"gamepad" validate:"gte=0,lt=16"`
	LowFreq    uint16 `json:"low_freq"`
	HighFreq   uint16 `json:"high_freq"`
	Left       uint16 `json:"left"`
	Right      uint16 `json:"right"`
	MotionType int    `json:"motion_type"`
	ReportRate int    `json:"report_rate"`
}

// FeedbackResult reports how many sessions received feedback
type FeedbackResult struct {
	Recipients int `json:"recipients"`
}

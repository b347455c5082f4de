package capture

import "errors"

// Capture start failures. Each maps to a reason string returned to the
// signaling layer.
var (
	ErrLegacySessionActive = errors.New("legacy streaming session active")
	ErrNoApplication       = errors.New("no running application")
	ErrEncoderInit         = errors.New("encoder initialization failed")
	ErrDisplayConfig       = errors.New("display configuration failed")
	ErrInvalidCodec        = errors.New("invalid codec")
)

// Reason strings.
const (
	ReasonLegacySessionActive = "legacy_session_active"
	ReasonNoApplication       = "no_application"
	ReasonEncoderInit         = "encoder_init_failed"
	ReasonDisplayConfig       = "display_config_failed"
	ReasonInvalidCodec        = "invalid_codec"
	ReasonUnknown             = "capture_failed"
)

// Reason maps a capture error to its reason string. It returns the empty
// string for a nil error.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLegacySessionActive):
		return ReasonLegacySessionActive
	case errors.Is(err, ErrNoApplication):
		return ReasonNoApplication
	case errors.Is(err, ErrEncoderInit):
		return ReasonEncoderInit
	case errors.Is(err, ErrDisplayConfig):
		return ReasonDisplayConfig
	case errors.Is(err, ErrInvalidCodec):
		return ReasonInvalidCodec
	}
	return ReasonUnknown
}

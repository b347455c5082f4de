package engine

import (
	"fmt"

	"github.com/pion/sdp/v3"
)

// OfferMedia lists the media sections found in an offer.
type OfferMedia struct {
	Video       bool
	Audio       bool
	Application bool
}

// ParseOffer validates an SDP offer and reports its media sections.
func ParseOffer(raw string) (OfferMedia, error) {
	var om OfferMedia

	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return om, fmt.Errorf("%w: %v", ErrInvalidSDP, err)
	}

	for _, md := range desc.MediaDescriptions {
		switch md.MediaName.Media {
		case "video":
			om.Video = true
		case "audio":
			om.Audio = true
		case "application":
			om.Application = true
		}
	}
	if !om.Video && !om.Audio && !om.Application {
		return om, fmt.Errorf("%w: no media sections", ErrInvalidSDP)
	}
	return om, nil
}

package engine

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu         sync.Mutex
	candidates []ICECandidate
	states     []string
}

func (o *recordingObserver) OnICECandidate(c ICECandidate) {
	o.mu.Lock()
	o.candidates = append(o.candidates, c)
	o.mu.Unlock()
}

func (o *recordingObserver) OnDataChannel(DataChannel) {}
func (o *recordingObserver) OnKeyframeRequest()        {}

func (o *recordingObserver) OnConnectionStateChange(s string) {
	o.mu.Lock()
	o.states = append(o.states, s)
	o.mu.Unlock()
}

func (o *recordingObserver) candidateCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.candidates)
}

// browserOffer builds an offer the way a receiving browser would.
func browserOffer(t *testing.T) (*webrtc.PeerConnection, webrtc.SessionDescription) {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	_, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly})
	require.NoError(t, err)
	_, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly})
	require.NoError(t, err)
	_, err = pc.CreateDataChannel("input", nil)
	require.NoError(t, err)

	offer, err := pc.CreateOffer(nil)
	require.NoError(t, err)
	require.NoError(t, pc.SetLocalDescription(offer))
	return pc, offer
}

func TestParseOffer(t *testing.T) {
	t.Parallel()
	_, offer := browserOffer(t)

	om, err := ParseOffer(offer.SDP)
	require.NoError(t, err)
	assert.True(t, om.Video)
	assert.True(t, om.Audio)
	assert.True(t, om.Application)

	_, err = ParseOffer("not sdp")
	assert.ErrorIs(t, err, ErrInvalidSDP)
}

func TestPionPeerAnswersOffer(t *testing.T) {
	t.Parallel()
	e, err := NewPionEngine(PionConfig{}, nil, nil)
	require.NoError(t, err)

	obs := &recordingObserver{}
	peer, err := e.NewPeer(obs)
	require.NoError(t, err)
	defer peer.Close()

	require.NoError(t, peer.AddVideoTrack("h264"))
	require.NoError(t, peer.AddAudioTrack(2))

	_, offer := browserOffer(t)
	require.NoError(t, peer.SetRemoteDescription(SessionDescription{Type: "offer", SDP: offer.SDP}))

	answer, err := peer.CreateAnswer()
	require.NoError(t, err)
	assert.Equal(t, "answer", answer.Type)
	assert.True(t, strings.Contains(answer.SDP, "m=video"))
	assert.True(t, strings.Contains(answer.SDP, "H264"))

	require.NoError(t, peer.SetLocalDescription(answer))
	require.Eventually(t, func() bool { return obs.candidateCount() > 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestPionPeerWriteVideo(t *testing.T) {
	t.Parallel()
	e, err := NewPionEngine(PionConfig{}, nil, nil)
	require.NoError(t, err)

	peer, err := e.NewPeer(&recordingObserver{})
	require.NoError(t, err)

	done := make(chan error, 1)
	require.NoError(t, peer.WriteVideo(VideoSample{Data: []byte{0, 0, 0, 1, 0x65}}, func(err error) { done <- err }))
	assert.ErrorIs(t, <-done, ErrNoTrack)

	require.NoError(t, peer.AddVideoTrack("vp8"))
	require.NoError(t, peer.WriteVideo(VideoSample{Data: []byte{1, 2, 3}, Duration: time.Millisecond}, func(err error) { done <- err }))
	assert.NoError(t, <-done)

	assert.ErrorIs(t, peer.WriteAudio(AudioSample{Data: []byte{0}}), ErrPCMUnsupported)

	require.NoError(t, peer.Close())
	assert.ErrorIs(t, peer.WriteVideo(VideoSample{}, func(error) {}), ErrClosed)
	assert.NoError(t, peer.Close())
}

func TestVideoMimeType(t *testing.T) {
	t.Parallel()
	mime, err := videoMimeType("AV1")
	require.NoError(t, err)
	assert.Equal(t, webrtc.MimeTypeAV1, mime)

	_, err = videoMimeType("theora")
	assert.Error(t, err)
}

package mjpeg

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	boundary          = "frame"
	keepaliveInterval = 2 * time.Second

	// NoSignalText is drawn while a camera has not produced a frame.
	NoSignalText = "Sem sinal"
)

// PlaceholderFunc renders a stand-in JPEG with the given text.
type PlaceholderFunc func(text string) ([]byte, error)

// Publisher keeps the latest annotated JPEG per camera. Writers overwrite the
// slot; readers never block a writer beyond the copy of a slice header.
type Publisher struct {
	placeholder PlaceholderFunc

	jpegMutex  sync.RWMutex
	latestJPEG map[string][]byte

	notifyMutex sync.Mutex
	watchers    map[string]map[chan struct{}]struct{}

	phOnce sync.Once
	phJPEG []byte
}

func NewPublisher(placeholder PlaceholderFunc) *Publisher {
	return &Publisher{
		placeholder: placeholder,
		latestJPEG:  make(map[string][]byte),
		watchers:    make(map[string]map[chan struct{}]struct{}),
	}
}

// Publish replaces the camera's latest frame and wakes its streamers.
func (p *Publisher) Publish(cameraID string, jpeg []byte) {
	if len(jpeg) == 0 {
		return
	}
	p.jpegMutex.Lock()
	p.latestJPEG[cameraID] = jpeg
	p.jpegMutex.Unlock()

	p.notifyStreamers(cameraID)
}

// Latest returns the camera's current frame, if any.
func (p *Publisher) Latest(cameraID string) ([]byte, bool) {
	p.jpegMutex.RLock()
	defer p.jpegMutex.RUnlock()
	b, ok := p.latestJPEG[cameraID]
	return b, ok && len(b) > 0
}

// Remove forgets the camera's frame; streamers fall back to the placeholder.
func (p *Publisher) Remove(cameraID string) {
	p.jpegMutex.Lock()
	delete(p.latestJPEG, cameraID)
	p.jpegMutex.Unlock()

	p.notifyStreamers(cameraID)
}

// Placeholder returns the cached no-signal JPEG, or nil when none can be rendered.
func (p *Publisher) Placeholder() []byte {
	p.phOnce.Do(func() {
		if p.placeholder == nil {
			return
		}
		b, err := p.placeholder(NoSignalText)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to render MJPEG placeholder")
			return
		}
		p.phJPEG = b
	})
	return p.phJPEG
}

func (p *Publisher) notifyStreamers(cameraID string) {
	p.notifyMutex.Lock()
	defer p.notifyMutex.Unlock()

	for ch := range p.watchers[cameraID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (p *Publisher) watch(cameraID string) chan struct{} {
	p.notifyMutex.Lock()
	defer p.notifyMutex.Unlock()

	ch := make(chan struct{}, 1)
	set, ok := p.watchers[cameraID]
	if !ok {
		set = make(map[chan struct{}]struct{})
		p.watchers[cameraID] = set
	}
	set[ch] = struct{}{}
	return ch
}

func (p *Publisher) unwatch(cameraID string, ch chan struct{}) {
	p.notifyMutex.Lock()
	defer p.notifyMutex.Unlock()

	if set, ok := p.watchers[cameraID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(p.watchers, cameraID)
		}
	}
}

// Streamers reports how many HTTP clients are watching a camera.
func (p *Publisher) Streamers(cameraID string) int {
	p.notifyMutex.Lock()
	defer p.notifyMutex.Unlock()
	return len(p.watchers[cameraID])
}

func (p *Publisher) current(cameraID string) []byte {
	if b, ok := p.Latest(cameraID); ok {
		return b
	}
	return p.Placeholder()
}

// StreamMJPEGHTTP writes multipart/x-mixed-replace parts until the client leaves.
func (p *Publisher) StreamMJPEGHTTP(w http.ResponseWriter, r *http.Request, cameraID string) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	notify := p.watch(cameraID)
	defer p.unwatch(cameraID, notify)

	writePart := func(jpeg []byte) bool {
		if len(jpeg) == 0 {
			return true
		}
		if _, err := io.WriteString(w, "--"+boundary+"\r\n"); err != nil {
			return false
		}
		if _, err := io.WriteString(w, "Content-Type: image/jpeg\r\n"); err != nil {
			return false
		}
		if _, err := io.WriteString(w, fmt.Sprintf("Content-Length: %d\r\n\r\n", len(jpeg))); err != nil {
			return false
		}
		if _, err := w.Write(jpeg); err != nil {
			return false
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !writePart(p.current(cameraID)) {
		return
	}

	keepaliveTicker := time.NewTicker(keepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-notify:
			if !writePart(p.current(cameraID)) {
				return
			}
		case <-keepaliveTicker.C:
			if !writePart(p.current(cameraID)) {
				return
			}
		}
	}
}

func (p *Publisher) Shutdown() {
	log.Info().Msg("MJPEG Publisher shutting down")
}

// Package display defines where the pipeline shows its frames and reads key presses from.
package display

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/edaniels/golog"
)

// KeyEscape is the key code returned when the escape key is pressed.
const KeyEscape = 27

// NoKey is the key code returned when no key was pressed before the wait elapsed.
const NoKey = -1

// A Surface shows images in named windows.
type Surface interface {
	Show(name string, img image.Image) error
	// WaitKey waits up to d for a key press, forever when d is 0, and returns its code or NoKey.
	WaitKey(ctx context.Context, d time.Duration) (int, error)
	Close() error
}

// Headless is a Surface without any window. It keeps the last image shown per window.
type Headless struct {
	mu     sync.Mutex
	shown  map[string]image.Image
	count  int
	logger golog.Logger
}

// NewHeadless returns a Surface that never displays anything.
func NewHeadless(logger golog.Logger) *Headless {
	return &Headless{shown: map[string]image.Image{}, logger: logger}
}

// Show records img as the content of window name.
func (h *Headless) Show(name string, img image.Image) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shown[name] = img
	h.count++
	return nil
}

// WaitKey returns NoKey right away, or KeyEscape once ctx is done, so an unbounded wait cannot
// block a headless run.
func (h *Headless) WaitKey(ctx context.Context, _ time.Duration) (int, error) {
	if ctx.Err() != nil {
		return KeyEscape, nil
	}
	return NoKey, nil
}

// Last returns the last image shown in window name.
func (h *Headless) Last(name string) (image.Image, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	img, ok := h.shown[name]
	return img, ok
}

// Count returns the number of Show calls.
func (h *Headless) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Close forgets the shown images.
func (h *Headless) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logger.Debugw("headless display closed", "shown", h.count)
	h.shown = map[string]image.Image{}
	return nil
}

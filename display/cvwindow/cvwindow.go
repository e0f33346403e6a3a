// Package cvwindow implements display.Surface with OpenCV HighGUI windows.
package cvwindow

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"

	"go.viam.com/vo/display"
)

// pollDelay bounds a single HighGUI wait so a cancelled context is noticed.
const pollDelay = 50 * time.Millisecond

// Surface opens one window per name on first use.
type Surface struct {
	mu      sync.Mutex
	windows map[string]*gocv.Window
	logger  golog.Logger
}

var _ display.Surface = (*Surface)(nil)

// New returns a Surface with no window open yet.
func New(logger golog.Logger) *Surface {
	return &Surface{windows: map[string]*gocv.Window{}, logger: logger}
}

// Show draws img in the window called name.
func (s *Surface) Show(name string, img image.Image) error {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return errors.Wrapf(err, "cannot convert image for window %q", name)
	}
	defer func() {
		if err := mat.Close(); err != nil {
			s.logger.Debugw("cannot release mat", "error", err)
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[name]
	if !ok {
		w = gocv.NewWindow(name)
		s.windows[name] = w
	}
	w.IMShow(mat)
	return nil
}

// WaitKey pumps the HighGUI event loop until a key is pressed, d elapses or ctx is done.
func (s *Surface) WaitKey(ctx context.Context, d time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var w *gocv.Window
	for _, w = range s.windows {
		break
	}
	if w == nil {
		// nothing shown yet, so no key can be read
		if d == 0 {
			return display.NoKey, nil
		}
		select {
		case <-ctx.Done():
			return display.KeyEscape, nil
		case <-time.After(d):
			return display.NoKey, nil
		}
	}

	var deadline time.Time
	if d > 0 {
		deadline = time.Now().Add(d)
	}
	for {
		if ctx.Err() != nil {
			return display.KeyEscape, nil
		}
		wait := pollDelay
		if !deadline.IsZero() {
			left := time.Until(deadline)
			if left <= 0 {
				return display.NoKey, nil
			}
			if left < wait {
				wait = left
			}
		}
		ms := int(wait / time.Millisecond)
		if ms < 1 {
			ms = 1
		}
		if key := w.WaitKey(ms); key >= 0 {
			return key & 0xff, nil
		}
	}
}

// Close destroys every window.
func (s *Surface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	for name, w := range s.windows {
		err = multierr.Combine(err, errors.Wrapf(w.Close(), "cannot close window %q", name))
	}
	s.windows = map[string]*gocv.Window{}
	return err
}

package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// Spinner animates a status line while a blocking call runs. It ends with
// Success, Error or Stop.
type Spinner struct {
	frames  []string
	every   time.Duration
	message string
	out     io.Writer

	mu      sync.Mutex
	stopped bool
	stop    chan struct{}
}

func newSpinner(kind spinner.Spinner, message string) *Spinner {
	return &Spinner{
		frames:  kind.Frames,
		every:   kind.FPS,
		message: message,
		out:     os.Stdout,
		stop:    make(chan struct{}),
	}
}

// NewSpinner is the default dot spinner.
func NewSpinner(message string) *Spinner {
	return newSpinner(spinner.Dot, message)
}

// NewConnectionSpinner is shown while reaching the signaling service.
func NewConnectionSpinner(message string) *Spinner {
	return newSpinner(spinner.Globe, IconConnect+" "+message)
}

// NewWaitingSpinner is shown while other players do their part of a join.
func NewWaitingSpinner(message string) *Spinner {
	return newSpinner(spinner.Points, IconWaiting+" "+message)
}

func (s *Spinner) Start() {
	go func() {
		ticker := time.NewTicker(s.every)
		defer ticker.Stop()

		for i := 0; ; i++ {
			s.mu.Lock()
			if s.stopped {
				s.mu.Unlock()
				return
			}
			fmt.Fprintf(s.out, "\r\033[K%s %s", SpinnerStyle.Render(s.frames[i%len(s.frames)]), s.message)
			s.mu.Unlock()

			select {
			case <-ticker.C:
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop clears the status line. Calls after the first are no-ops.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.stop)
	fmt.Fprint(s.out, "\r\033[K")
}

func (s *Spinner) Success(message string) {
	s.Stop()
	fmt.Fprintf(s.out, "%s %s\n", SuccessStyle.Render(IconSuccess), message)
}

func (s *Spinner) Error(message string) {
	s.Stop()
	fmt.Fprintf(s.out, "%s %s\n", ErrorStyle.Render(IconError), message)
}

// RunSpinner starts a dot spinner and returns its Stop.
func RunSpinner(message string) func() {
	sp := NewSpinner(message)
	sp.Start()
	return sp.Stop
}

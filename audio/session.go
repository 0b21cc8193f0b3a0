package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrDeviceBusy       = errors.New("audio device busy")
	ErrNoActiveCapture  = errors.New("no active capture")
	ErrCaptureCancelled = errors.New("capture cancelled")
	ErrSynthesis        = errors.New("speech synthesis failed")
	ErrPlayback         = errors.New("audio playback failed")
)

// Recorder opens the microphone.
type Recorder interface {
	Start(ctx context.Context) (Recording, error)
}

// Recording is one open microphone capture.
type Recording interface {
	// Stop ends the capture and returns the recorded audio.
	Stop(ctx context.Context) ([]byte, error)
	// Discard releases the capture without producing audio.
	Discard() error
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type Player interface {
	Play(ctx context.Context, audio []byte) (Playback, error)
}

// Playback is one clip being played.
type Playback interface {
	// Wait blocks until the clip has finished or was stopped.
	Wait(ctx context.Context) error
	Stop() error
}

// Handle identifies the capture returned by StartCapture.
type Handle string

// Session owns the single capture and the single playback of the process.
// Starting a capture tears down the previous capture, starting playback
// stops the previous playback.
type Session struct {
	recorder Recorder
	synth    Synthesizer
	player   Player

	mu       sync.Mutex
	capture  Recording
	handle   Handle
	opening  bool
	capGen   uint64
	playback Playback
	playSeq  uint64
}

func NewSession(recorder Recorder, synth Synthesizer, player Player) *Session {
	return &Session{recorder: recorder, synth: synth, player: player}
}

// StartCapture opens a new capture. A capture still open from an earlier
// trigger is discarded first; failures doing so are only logged. The lock is
// not held while the recorder opens, which may wait on a permission prompt:
// DiscardCapture or Close during that wait cancel the capture being opened,
// and a second StartCapture meanwhile fails with ErrDeviceBusy.
func (s *Session) StartCapture(ctx context.Context) (Handle, error) {
	s.mu.Lock()
	if s.opening {
		s.mu.Unlock()
		return "", fmt.Errorf("start capture: %w", ErrDeviceBusy)
	}
	stale, staleHandle := s.capture, s.handle
	s.capture, s.handle = nil, ""
	s.opening = true
	s.capGen++
	gen := s.capGen
	s.mu.Unlock()

	if stale != nil {
		slog.Warn("discarding stale capture before starting a new one", "handle", staleHandle)
		if err := stale.Discard(); err != nil {
			slog.Warn("discard stale capture failed", "handle", staleHandle, "err", err)
		}
	}

	rec, err := s.recorder.Start(ctx)

	s.mu.Lock()
	if s.capGen == gen {
		s.opening = false
	}
	if err != nil {
		s.mu.Unlock()
		return "", fmt.Errorf("start capture: %w", err)
	}
	if s.capGen != gen || ctx.Err() != nil {
		s.mu.Unlock()
		slog.Debug("capture cancelled while opening")
		if err := rec.Discard(); err != nil {
			slog.Warn("discard cancelled capture failed", "err", err)
		}
		return "", fmt.Errorf("start capture: %w", ErrCaptureCancelled)
	}
	s.capture = rec
	s.handle = Handle(uuid.NewString())
	h := s.handle
	s.mu.Unlock()
	slog.Debug("capture started", "handle", h)
	return h, nil
}

// StopCaptureAndGetAudio closes the capture identified by h and returns its
// audio. The handle is released even when stopping fails.
func (s *Session) StopCaptureAndGetAudio(ctx context.Context, h Handle) ([]byte, error) {
	s.mu.Lock()
	if s.capture == nil || h == "" || h != s.handle {
		s.mu.Unlock()
		return nil, ErrNoActiveCapture
	}
	rec := s.capture
	s.capture, s.handle = nil, ""
	s.mu.Unlock()

	data, err := rec.Stop(ctx)
	if err != nil {
		return nil, fmt.Errorf("stop capture: %w", err)
	}
	return data, nil
}

// DiscardCapture drops the open capture, if any, and cancels a capture that
// is still opening.
func (s *Session) DiscardCapture() {
	s.mu.Lock()
	rec, h := s.capture, s.handle
	s.capture, s.handle = nil, ""
	if s.opening {
		s.opening = false
		s.capGen++
	}
	s.mu.Unlock()
	if rec == nil {
		return
	}
	if err := rec.Discard(); err != nil {
		slog.Warn("discard capture failed", "handle", h, "err", err)
	}
}

// Capturing returns the live capture handle, if any.
func (s *Session) Capturing() (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle, s.capture != nil
}

func (s *Session) Synthesize(ctx context.Context, text string) ([]byte, error) {
	data, err := s.synth.Synthesize(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSynthesis, err)
	}
	return data, nil
}

// Play stops any current playback, plays audio and waits for it to end.
func (s *Session) Play(ctx context.Context, audio []byte) error {
	s.StopPlayback()

	pb, err := s.player.Play(ctx, audio)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPlayback, err)
	}
	s.mu.Lock()
	prev := s.playback
	s.playSeq++
	seq := s.playSeq
	s.playback = pb
	s.mu.Unlock()
	if prev != nil {
		_ = prev.Stop()
	}

	defer func() {
		s.mu.Lock()
		if s.playSeq == seq {
			s.playback = nil
		}
		s.mu.Unlock()
	}()
	if err := pb.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrPlayback, err)
	}
	return nil
}

// StopPlayback is a no-op when nothing is playing.
func (s *Session) StopPlayback() {
	s.mu.Lock()
	pb := s.playback
	s.playback = nil
	s.mu.Unlock()
	if pb == nil {
		return
	}
	if err := pb.Stop(); err != nil {
		slog.Warn("stop playback failed", "err", err)
	}
}

func (s *Session) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playback != nil
}

// Speak synthesizes text and plays it to completion.
func (s *Session) Speak(ctx context.Context, text string) error {
	data, err := s.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	return s.Play(ctx, data)
}

// Close releases both the capture and the playback.
func (s *Session) Close() {
	s.StopPlayback()
	s.DiscardCapture()
}

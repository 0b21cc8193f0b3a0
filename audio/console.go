package audio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
)

// LineRecorder treats each input line as one utterance. With ReadFiles set
// the line is a path and the file's bytes are returned as audio.
type LineRecorder struct {
	ReadFiles bool

	mu     sync.Mutex
	reader *bufio.Reader
	prompt io.Writer
	eof    atomic.Bool
}

func NewLineRecorder(in io.Reader, prompt io.Writer) *LineRecorder {
	return &LineRecorder{reader: bufio.NewReader(in), prompt: prompt}
}

func (r *LineRecorder) Start(ctx context.Context) (Recording, error) {
	return &lineRecording{r: r}, nil
}

// Exhausted reports whether the input has ended.
func (r *LineRecorder) Exhausted() bool {
	return r.eof.Load()
}

type lineRecording struct {
	r         *LineRecorder
	discarded atomic.Bool
}

func (l *lineRecording) Stop(ctx context.Context) ([]byte, error) {
	if l.discarded.Load() {
		return nil, ErrNoActiveCapture
	}
	l.r.mu.Lock()
	defer l.r.mu.Unlock()
	if l.r.prompt != nil {
		fmt.Fprint(l.r.prompt, "you: ")
	}
	line, err := l.r.reader.ReadString('\n')
	if err == io.EOF {
		l.r.eof.Store(true)
	}
	line = strings.TrimSpace(line)
	if err != nil && line == "" {
		return nil, err
	}
	if !l.r.ReadFiles {
		return []byte(line), nil
	}
	data, err := os.ReadFile(line)
	if err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}
	return data, nil
}

func (l *lineRecording) Discard() error {
	l.discarded.Store(true)
	return nil
}

// TextSynthesizer "synthesizes" by passing the text through unchanged, for
// consoles and tests.
type TextSynthesizer struct{}

func (TextSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return []byte(text), nil
}

// WriterPlayer prints text clips with a speaker prefix.
type WriterPlayer struct {
	W      io.Writer
	Prefix string
}

func (p WriterPlayer) Play(ctx context.Context, audio []byte) (Playback, error) {
	if _, err := fmt.Fprintf(p.W, "%s%s\n", p.Prefix, audio); err != nil {
		return nil, err
	}
	return donePlayback{}, nil
}

// FilePlayer stores each synthesized clip in Dir and reports the path.
type FilePlayer struct {
	Dir    string
	Ext    string
	Report io.Writer

	n atomic.Int64
}

func (p *FilePlayer) Play(ctx context.Context, audio []byte) (Playback, error) {
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return nil, err
	}
	ext := p.Ext
	if ext == "" {
		ext = "mp3"
	}
	path := filepath.Join(p.Dir, fmt.Sprintf("reply-%04d.%s", p.n.Add(1), ext))
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return nil, err
	}
	if p.Report != nil {
		fmt.Fprintf(p.Report, "soprano: [audio %s]\n", path)
	}
	return donePlayback{}, nil
}

type donePlayback struct{}

func (donePlayback) Wait(ctx context.Context) error { return nil }
func (donePlayback) Stop() error                    { return nil }

// NopRecorder never records. Text front ends use it since their utterances
// arrive as transcripts.
type NopRecorder struct{}

func (NopRecorder) Start(ctx context.Context) (Recording, error) {
	return nopRecording{}, nil
}

type nopRecording struct{}

func (nopRecording) Stop(ctx context.Context) ([]byte, error) { return nil, nil }
func (nopRecording) Discard() error                           { return nil }

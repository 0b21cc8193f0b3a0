package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

var (
	ErrTranscription = errors.New("transcription failed")
	ErrNoSpeech      = errors.New("no speech in recording")
)

// Transcriber turns a recorded clip into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// TextTranscriber treats the clip bytes as the transcript. Used by the
// console front end where the "recording" is already a typed line.
type TextTranscriber struct{}

func (TextTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	text := strings.TrimSpace(string(audio))
	if text == "" {
		return "", fmt.Errorf("%w: %w", ErrTranscription, ErrNoSpeech)
	}
	return text, nil
}

type OpenAIConfig struct {
	APIKey             string
	BaseURL            string
	TranscriptionModel string
	SpeechModel        string
	Voice              string
	Language           string
}

func newClient(conf OpenAIConfig) *openai.Client {
	if conf.BaseURL == "" {
		return openai.NewClient(conf.APIKey)
	}
	cc := openai.DefaultConfig(conf.APIKey)
	cc.BaseURL = conf.BaseURL
	return openai.NewClientWithConfig(cc)
}

// OpenAITranscriber sends clips to the Whisper transcription endpoint.
type OpenAITranscriber struct {
	client   *openai.Client
	model    string
	language string
}

func NewOpenAITranscriber(conf OpenAIConfig) *OpenAITranscriber {
	model := conf.TranscriptionModel
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAITranscriber{client: newClient(conf), model: model, language: conf.Language}
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("%w: %w", ErrTranscription, ErrNoSpeech)
	}
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: "utterance.m4a",
		Reader:   bytes.NewReader(audio),
		Language: t.language,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTranscription, err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("%w: %w", ErrTranscription, ErrNoSpeech)
	}
	return text, nil
}

// OpenAISynthesizer renders text with the speech endpoint as mp3.
type OpenAISynthesizer struct {
	client *openai.Client
	model  openai.SpeechModel
	voice  openai.SpeechVoice
}

func NewOpenAISynthesizer(conf OpenAIConfig) *OpenAISynthesizer {
	model := openai.SpeechModel(conf.SpeechModel)
	if model == "" {
		model = openai.TTSModel1
	}
	voice := openai.SpeechVoice(conf.Voice)
	if voice == "" {
		voice = openai.VoiceAlloy
	}
	return &OpenAISynthesizer{client: newClient(conf), model: model, voice: voice}
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("create speech: %w", err)
	}
	defer resp.Close()
	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read speech: %w", err)
	}
	return data, nil
}

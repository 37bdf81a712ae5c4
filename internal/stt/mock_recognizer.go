package stt

import (
	"context"
	"fmt"
)

type mockRecognizer struct{}

func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(_ context.Context, req Request) (Result, error) {
	return Result{
		Text:     fmt.Sprintf("[transcript length=%d]", len(req.PCM)),
		Language: req.Language,
	}, nil
}

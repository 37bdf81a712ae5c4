package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execSynth speaks through a local engine such as piper or espeak wrapped in a
// script. One process runs per utterance; utterances are serialized so the
// engine never competes with itself for the speaker.
type execSynth struct {
	args   []string
	format audioFormat
	mu     sync.Mutex
}

type audioFormat struct {
	SampleRate int `json:"sample_rate"`
	Channels   int `json:"channels"`
}

type voiceSelection struct {
	Language string `json:"language"`
	Name     string `json:"name"`
	Gender   string `json:"gender"`
}

// engineRequest is written as one JSON document to the engine's stdin.
type engineRequest struct {
	Text   string         `json:"text"`
	Voice  voiceSelection `json:"voice"`
	Format audioFormat    `json:"format"`
}

// engineChunk is one JSON document read from the engine's stdout.
type engineChunk struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
}

func NewExecSynth(command string, sampleRate, channels int) (Synthesizer, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execSynth{args: args, format: audioFormat{SampleRate: sampleRate, Channels: channels}}, nil
}

// voiceFor fills in the voice name and SSML gender when the request carries
// only a language.
func voiceFor(req SynthRequest) voiceSelection {
	v := voiceSelection{Language: req.LanguageCode, Name: req.Voice, Gender: SSMLGender(req.Gender)}
	if v.Name == "" && v.Language != "" {
		v.Name = VoiceName(v.Language, "", req.Gender)
	}
	return v
}

func (e *execSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		e.mu.Lock()
		defer e.mu.Unlock()
		if err := e.speak(ctx, req, chunks); err != nil {
			errs <- err
		}
	}()
	return chunks, errs
}

func (e *execSynth) speak(ctx context.Context, req SynthRequest, out chan<- SynthChunk) error {
	payload, err := json.Marshal(engineRequest{Text: req.Text, Voice: voiceFor(req), Format: e.format})
	if err != nil {
		return err
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.args[0], e.args[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start tts engine: %w", err)
	}

	streamErr := e.stream(ctx, json.NewDecoder(stdout), out)
	// Output after the final chunk is ignored; drain it so Wait can return.
	_, _ = io.Copy(io.Discard, stdout)
	waitErr := cmd.Wait()
	switch {
	case streamErr != nil:
		return streamErr
	case waitErr != nil:
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("tts engine: %w: %s", waitErr, msg)
		}
		return fmt.Errorf("tts engine: %w", waitErr)
	}
	return nil
}

// stream forwards decoded chunks until the engine closes stdout or marks a
// chunk final.
func (e *execSynth) stream(ctx context.Context, dec *json.Decoder, out chan<- SynthChunk) error {
	for seq := 0; ; seq++ {
		var c engineChunk
		if err := dec.Decode(&c); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode tts chunk: %w", err)
		}
		pcm, err := base64.StdEncoding.DecodeString(c.PCMBase64)
		if err != nil {
			return fmt.Errorf("decode tts pcm: %w", err)
		}
		chunk := SynthChunk{
			Sequence:   seq,
			SampleRate: e.format.SampleRate,
			Channels:   e.format.Channels,
			PCM:        pcm,
			Final:      c.Final,
		}
		select {
		case out <- chunk:
		case <-ctx.Done():
			return ctx.Err()
		}
		if c.Final {
			return nil
		}
	}
}

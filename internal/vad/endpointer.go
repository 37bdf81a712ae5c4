// Package vad segments a stream of fixed-duration PCM frames into utterances.
package vad

import "bytes"

// Endpointer collects voiced frames until a run of silence frames as long as
// the padding closes the utterance.
type Endpointer struct {
	padding   int
	triggered bool
	voiced    bytes.Buffer
	silence   int
}

// NewEndpointer sizes the padding as paddingMS/frameMS frames, at least one.
func NewEndpointer(paddingMS, frameMS int) *Endpointer {
	n := 1
	if frameMS > 0 && paddingMS/frameMS > 0 {
		n = paddingMS / frameMS
	}
	return &Endpointer{padding: n}
}

func (e *Endpointer) Padding() int { return e.padding }

func (e *Endpointer) Triggered() bool { return e.triggered }

// Push feeds one frame with its speech decision. It returns a complete
// utterance when this frame closes one. The returned slice is owned by the
// caller.
func (e *Endpointer) Push(frame []byte, speech bool) ([]byte, bool) {
	if speech {
		e.triggered = true
		e.voiced.Write(frame)
		e.silence = 0
		return nil, false
	}
	if !e.triggered {
		return nil, false
	}
	e.silence++
	if e.silence < e.padding {
		return nil, false
	}
	segment := append([]byte(nil), e.voiced.Bytes()...)
	e.Reset()
	return segment, true
}

// Reset discards any partial utterance.
func (e *Endpointer) Reset() {
	e.triggered = false
	e.voiced.Reset()
	e.silence = 0
}

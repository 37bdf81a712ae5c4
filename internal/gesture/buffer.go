package gesture

import "github.com/loqalabs/signbridge/internal/pose"

// SequenceBuffer is a sliding window over the most recent keypoint vectors.
// It never holds more than its size.
type SequenceBuffer struct {
	size  int
	items []pose.Keypoints
}

func NewSequenceBuffer(size int) *SequenceBuffer {
	if size <= 0 {
		size = 1
	}
	return &SequenceBuffer{size: size, items: make([]pose.Keypoints, 0, size)}
}

// Append adds kp as the newest entry, evicting the oldest when the window is full.
func (b *SequenceBuffer) Append(kp pose.Keypoints) {
	if len(b.items) == b.size {
		copy(b.items, b.items[1:])
		b.items[len(b.items)-1] = kp
		return
	}
	b.items = append(b.items, kp)
}

func (b *SequenceBuffer) Len() int { return len(b.items) }

func (b *SequenceBuffer) Size() int { return b.size }

func (b *SequenceBuffer) Full() bool { return len(b.items) == b.size }

// Snapshot returns an independent copy of the window, oldest first.
func (b *SequenceBuffer) Snapshot() []pose.Keypoints {
	out := make([]pose.Keypoints, len(b.items))
	copy(out, b.items)
	return out
}

func (b *SequenceBuffer) Clear() {
	b.items = b.items[:0]
}

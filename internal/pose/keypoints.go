// Package pose turns camera frames into body and hand landmarks and flattens
// them into fixed size keypoint vectors.
package pose

// Landmark layout of one observation.
const (
	PoseLandmarks = 33
	HandLandmarks = 21

	PoseBlock = PoseLandmarks * 4 // x, y, z, visibility
	HandBlock = HandLandmarks * 3 // x, y, z

	KeypointSize = PoseBlock + 2*HandBlock
)

// Landmark is one normalized point. Visibility is only meaningful for pose landmarks.
type Landmark struct {
	X          float32 `json:"x"`
	Y          float32 `json:"y"`
	Z          float32 `json:"z"`
	Visibility float32 `json:"visibility,omitempty"`
}

// Observation holds the landmark groups detected in one frame. A nil or empty
// group means the body part was not found.
type Observation struct {
	Pose      []Landmark `json:"pose,omitempty"`
	LeftHand  []Landmark `json:"left_hand,omitempty"`
	RightHand []Landmark `json:"right_hand,omitempty"`
}

// Keypoints is the flattened feature vector of one frame. It is an array so a
// produced vector cannot be mutated through a shared reference.
type Keypoints [KeypointSize]float32

// Extract flattens obs into pose, left hand and right hand blocks. Missing
// groups stay zero; groups longer than their block are truncated.
func Extract(obs Observation) Keypoints {
	var kp Keypoints
	for i, lm := range obs.Pose {
		if i >= PoseLandmarks {
			break
		}
		off := i * 4
		kp[off] = lm.X
		kp[off+1] = lm.Y
		kp[off+2] = lm.Z
		kp[off+3] = lm.Visibility
	}
	fillHand(kp[PoseBlock:PoseBlock+HandBlock], obs.LeftHand)
	fillHand(kp[PoseBlock+HandBlock:], obs.RightHand)
	return kp
}

func fillHand(dst []float32, hand []Landmark) {
	for i, lm := range hand {
		if i >= HandLandmarks {
			return
		}
		off := i * 3
		dst[off] = lm.X
		dst[off+1] = lm.Y
		dst[off+2] = lm.Z
	}
}

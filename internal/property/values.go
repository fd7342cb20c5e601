package property

import "time"

// Unavailable stands in for a value whose publisher failed the request.
// Dependents resolve on it and fall back to their defaults.
type Unavailable struct {
	Publisher string
}

// FrameSettings controls face detection for one request.
type FrameSettings struct {
	Enable bool
	Skip   bool
}

// Process reports whether the detector should run for this request.
func (s FrameSettings) Process() bool {
	return s.Enable && !s.Skip
}

// ExposureControl is the per-request AEC output.
type ExposureControl struct {
	ExposureTime time.Duration
	Gain         float32
	LuxIndex     float32
}

// WhiteBalanceControl is the per-request AWB output.
type WhiteBalanceControl struct {
	RGain, GGain, BGain float32
	CCT                 uint32
}

// Face is one detected face in frame coordinates.
type Face struct {
	X, Y, Width, Height uint32
	Confidence          uint32
}

// FaceResults is the face detection output for a request.
type FaceResults struct {
	RequestID uint64
	Faces     []Face
	// Stale is set when the value was carried forward from an earlier request.
	Stale bool
}

// MotionResults is the registration transform computed by motion estimation.
type MotionResults struct {
	RequestID  uint64
	Transform  [9]float64
	Confidence uint32
	Valid      bool
	Stale      bool
}

// MaxConfidence is the confidence reported with an identity transform when
// motion estimation is not running.
const MaxConfidence uint32 = 256

// Identity returns an identity transform with maximum confidence.
func Identity(requestID uint64) MotionResults {
	return MotionResults{
		RequestID:  requestID,
		Transform:  [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		Confidence: MaxConfidence,
		Valid:      true,
	}
}

// FocusInput carries the auto-focus mode selection and the algorithm status
// events for a request. Names follow the afsm package.
type FocusInput struct {
	Mode   string
	Events []string
}

// FocusState is the auto-focus state after a request was applied.
type FocusState struct {
	Mode    string
	State   string
	Changed bool
}

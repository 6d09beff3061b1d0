package pupil

import "testing"

func TestConfidenceFor(t *testing.T) {
	tests := []struct {
		eyes int
		want float64
	}{
		{0, 0},
		{1, 0.5},
		{2, 1.0},
		{3, 1.0},
	}
	for _, tt := range tests {
		if got := ConfidenceFor(tt.eyes); got != tt.want {
			t.Errorf("ConfidenceFor(%d) = %v, want %v", tt.eyes, got, tt.want)
		}
	}
}

func TestSelectBest(t *testing.T) {
	both := Detection{LeftEyeOpen: true, RightEyeOpen: true, Confidence: 1, FaceX: 0.8, FaceY: 0.5}
	centered := Detection{LeftEyeOpen: true, RightEyeOpen: true, Confidence: 1, FaceX: 0.52, FaceY: 0.5}
	oneEye := Detection{LeftEyeOpen: true, Confidence: 0.5, FaceX: 0.5, FaceY: 0.5}
	lowConfBoth := Detection{LeftEyeOpen: true, RightEyeOpen: true, Confidence: 0.4, FaceX: 0.5, FaceY: 0.5}

	tests := []struct {
		name string
		dets []Detection
		want *Detection
	}{
		{"empty", nil, nil},
		{"single", []Detection{oneEye}, &oneEye},
		{"confidence wins", []Detection{oneEye, both}, &both},
		{"confidence beats eyes", []Detection{lowConfBoth, oneEye}, &oneEye},
		{"closest to center", []Detection{both, centered}, &centered},
		{"first on full tie", []Detection{centered, centered}, &centered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectBest(tt.dets)
			if tt.want == nil {
				if got != nil {
					t.Errorf("got %+v, want nil", *got)
				}
				return
			}
			if got == nil {
				t.Fatal("got nil")
			}
			if *got != *tt.want {
				t.Errorf("got %+v, want %+v", *got, *tt.want)
			}
		})
	}
}

func TestDetectionEyes(t *testing.T) {
	if n := (Detection{}).Eyes(); n != 0 {
		t.Errorf("Eyes() = %d, want 0", n)
	}
	if n := (Detection{RightEyeOpen: true}).Eyes(); n != 1 {
		t.Errorf("Eyes() = %d, want 1", n)
	}
	if n := (Detection{LeftEyeOpen: true, RightEyeOpen: true}).Eyes(); n != 2 {
		t.Errorf("Eyes() = %d, want 2", n)
	}
}

package transcoder

import (
	"fmt"
	"math"
	"strings"
)

// ScaleMode selects how proxy geometry is derived from the source.
type ScaleMode string

const (
	// ScaleModeHalf halves each axis, rounding up to an even value.
	ScaleModeHalf ScaleMode = "half"
	// ScaleModeHeight targets a fixed even height and preserves aspect ratio.
	ScaleModeHeight ScaleMode = "height"
)

// ScalePolicy is the configured proxy scaling rule.
type ScalePolicy struct {
	Mode   ScaleMode
	Height int
}

// ScaleHalf is the default policy.
func ScaleHalf() ScalePolicy {
	return ScalePolicy{Mode: ScaleModeHalf}
}

// ScaleFixedHeight scales to height pixels tall, never upscaling.
func ScaleFixedHeight(height int) ScalePolicy {
	return ScalePolicy{Mode: ScaleModeHeight, Height: height}
}

// ParseScalePolicy builds a policy from configuration values. An empty mode
// is the half policy.
func ParseScalePolicy(mode string, height int) (ScalePolicy, error) {
	switch ScaleMode(strings.ToLower(strings.TrimSpace(mode))) {
	case "", ScaleModeHalf:
		return ScaleHalf(), nil
	case ScaleModeHeight:
		if height <= 0 {
			return ScalePolicy{}, fmt.Errorf("scale mode %q requires a positive height, got %d", mode, height)
		}
		return ScaleFixedHeight(height), nil
	default:
		return ScalePolicy{}, fmt.Errorf("unknown scale mode %q", mode)
	}
}

func (p ScalePolicy) String() string {
	if p.Mode == ScaleModeHeight {
		return fmt.Sprintf("height=%d", p.Height)
	}
	return string(ScaleModeHalf)
}

// Derive returns the proxy geometry for a width x height source.
func (p ScalePolicy) Derive(width, height int) (int, int, error) {
	if p.Mode != ScaleModeHeight {
		return DeriveProxyGeometry(width, height)
	}
	if err := checkGeometry(width, height); err != nil {
		return 0, 0, err
	}
	if p.Height <= 0 {
		return 0, 0, &DerivationError{Reason: ErrInvalidGeometry, Detail: fmt.Sprintf("target height %d", p.Height)}
	}

	if height <= p.Height {
		return evenUp(width), evenUp(height), nil
	}

	targetH := p.Height - p.Height%2
	if targetH < 2 {
		targetH = 2
	}
	targetW := int(math.Round(float64(width)*float64(targetH)/float64(height)/2)) * 2
	if targetW < 2 {
		targetW = 2
	}
	return targetW, targetH, nil
}

// DeriveProxyGeometry halves each axis rounding up, then bumps odd results to
// the next even value so H.264 4:2:0 encoders accept them.
func DeriveProxyGeometry(width, height int) (int, int, error) {
	if err := checkGeometry(width, height); err != nil {
		return 0, 0, err
	}
	return evenUp((width + 1) / 2), evenUp((height + 1) / 2), nil
}

// DeriveClipWindow returns the clip duration out-in. A non-positive or NaN
// duration is ErrInvalidRange.
func DeriveClipWindow(in, out float64) (float64, error) {
	d := out - in
	if math.IsNaN(d) || d <= 0 {
		return 0, &DerivationError{
			Reason: ErrInvalidRange,
			Detail: fmt.Sprintf("out_point %.3f must be greater than in_point %.3f", out, in),
		}
	}
	return d, nil
}

func checkGeometry(width, height int) error {
	if width <= 0 || height <= 0 {
		return &DerivationError{Reason: ErrInvalidGeometry, Detail: fmt.Sprintf("%dx%d", width, height)}
	}
	return nil
}

func evenUp(n int) int {
	if n%2 != 0 {
		n++
	}
	return n
}

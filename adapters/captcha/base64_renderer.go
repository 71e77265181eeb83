package captcha

import (
	"fmt"
	"image/color"

	"github.com/layer-3/gatekeeper/core"
	"github.com/layer-3/gatekeeper/ports"
	"github.com/mojocn/base64Captcha"
)

const (
	defaultHeight = 60
	defaultWidth  = 200
	noiseCount    = 2
)

// ImageRenderer draws answers as PNG data URIs
type ImageRenderer struct {
	driver *base64Captcha.DriverString
}

var _ ports.ChallengeRenderer = (*ImageRenderer)(nil)

// NewImageRenderer creates a renderer for answers of the given length
func NewImageRenderer(length int) *ImageRenderer {
	driver := base64Captcha.NewDriverString(
		defaultHeight,
		defaultWidth,
		noiseCount,
		base64Captcha.OptionShowHollowLine|base64Captcha.OptionShowSlimeLine,
		length,
		core.ChallengeAlphabet,
		&color.RGBA{R: 240, G: 240, B: 246, A: 255},
		nil,
		nil,
	)
	return &ImageRenderer{driver: driver}
}

// Render draws answer and returns it as a base64 data URI
func (r *ImageRenderer) Render(answer string) (string, error) {
	item, err := r.driver.DrawCaptcha(answer)
	if err != nil {
		return "", fmt.Errorf("failed to draw challenge: %w", err)
	}
	return item.EncodeB64string(), nil
}

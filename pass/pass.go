// Package pass builds the opaque event pass token and renders it as a QR image.
package pass

import (
	"encoding/base64"
	"fmt"
	"image/color"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

// Prefix starts every pass token.
const Prefix = "CAMPUSCONNECT"

// ImageSize is the rendered QR width and height in pixels.
const ImageSize = 300

// Token returns the opaque pass value for a registration. Consumers match it
// exactly and never split it back into its parts.
func Token(userID, eventID string, at time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%d", Prefix, userID, eventID, at.UnixMilli())
}

// PNG renders token as a black-on-white QR code.
func PNG(token string) ([]byte, error) {
	q, err := qrcode.New(token, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	q.ForegroundColor = color.Black
	q.BackgroundColor = color.White
	png, err := q.PNG(ImageSize)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	return png, nil
}

// DataURL renders token as a base64 PNG data URL for direct use in an <img> tag.
func DataURL(token string) (string, error) {
	png, err := PNG(token)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package banner prints the server's startup banner: the local URL, an
// optional public URL (supplied by a tunnel subprocess, if any), and a
// terminal-rendered QR code for the local URL.
package banner

import (
	"fmt"
	"io"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// qrPixelSize is the pixel dimension requested from the QR writer; gozxing
// scales the module matrix to this size and includes its own quiet zone.
const qrPixelSize = 116

// Print writes the startup banner to w: the local URL, the public URL if
// tunnelURL is non-empty, and a QR code for localURL.
func Print(w io.Writer, localURL, tunnelURL string) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Local:  %s\n", localURL)
	if tunnelURL != "" {
		fmt.Fprintf(w, "  Public: %s\n", tunnelURL)
	} else {
		fmt.Fprintln(w, "  Public: (no tunnel configured)")
	}
	fmt.Fprintln(w)

	qr, err := render(localURL)
	if err != nil {
		fmt.Fprintf(w, "  (QR code unavailable: %v)\n", err)
		return
	}
	fmt.Fprintln(w, qr)
}

// render encodes content as a QR code and rasterizes it to block characters
// using the half-block trick (two matrix rows per printed line) so the
// code stays compact in a terminal.
func render(content string) (string, error) {
	matrix, err := qrcode.NewQRCodeWriter().Encode(content, gozxing.BarcodeFormat_QR_CODE, qrPixelSize, qrPixelSize, nil)
	if err != nil {
		return "", fmt.Errorf("banner: encoding qr code: %w", err)
	}

	width := matrix.GetWidth()
	height := matrix.GetHeight()

	var b strings.Builder
	for y := 0; y < height; y += 2 {
		for x := 0; x < width; x++ {
			top := moduleAt(matrix, x, y)
			bottom := moduleAt(matrix, x, y+1)
			b.WriteRune(blockFor(top, bottom))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func moduleAt(matrix *gozxing.BitMatrix, x, y int) bool {
	if x < 0 || y < 0 || x >= matrix.GetWidth() || y >= matrix.GetHeight() {
		return false
	}
	return matrix.Get(x, y)
}

// blockFor picks the Unicode half-block character representing one column
// of two vertically stacked QR modules.
func blockFor(top, bottom bool) rune {
	switch {
	case top && bottom:
		return '█'
	case top && !bottom:
		return '▀'
	case !top && bottom:
		return '▄'
	default:
		return ' '
	}
}

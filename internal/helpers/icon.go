package helpers

import (
	"bytes"

	issvg "github.com/h2non/go-is-svg"
)

// IconFormat returns "png" or "svg" for icon data in one of these formats,
// and "" for anything else.
func IconFormat(data []byte) string {
	if CheckMagicAtOffset(bytes.NewReader(data), "504e47", 1) {
		return "png"
	}
	if issvg.Is(data) {
		return "svg"
	}
	return ""
}

//go:build !cgo

package preview

import (
	"fmt"
	"image"
)

func decodeHEIC([]byte) (image.Image, error) {
	return nil, fmt.Errorf("%w: heic decoding requires cgo", ErrUnsupportedFormat)
}

package metadata

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidCoordinate is returned for malformed degree/minute/second triples.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Rational is an unsigned EXIF rational.
type Rational struct {
	Numerator   uint32
	Denominator uint32
}

// Float returns the rational as a float, or an error for a zero denominator.
func (r Rational) Float() (float64, error) {
	if r.Denominator == 0 {
		return 0, fmt.Errorf("%w: zero denominator", ErrInvalidCoordinate)
	}
	return float64(r.Numerator) / float64(r.Denominator), nil
}

// DMSToDecimal converts a degrees, minutes, seconds triple to decimal degrees.
// ref is the hemisphere reference ("N", "S", "E" or "W"); "S" and "W" negate
// the result and an empty ref is treated as positive.
func DMSToDecimal(dms []Rational, ref string) (float64, error) {
	if len(dms) != 3 {
		return 0, fmt.Errorf("%w: want 3 components, got %d", ErrInvalidCoordinate, len(dms))
	}
	var parts [3]float64
	for i, r := range dms {
		v, err := r.Float()
		if err != nil {
			return 0, err
		}
		parts[i] = v
	}
	deg := parts[0] + parts[1]/60 + parts[2]/3600
	if ref == "S" || ref == "W" {
		deg = -deg
	}
	return deg, nil
}

// FormatLocation formats a coordinate pair as "lat,lon".
func FormatLocation(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)
}

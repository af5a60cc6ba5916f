package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

const (
	MaxShopNameLen  = 200
	MaxShopPhoneLen = 15
	MaxShopAreaLen  = 100

	MaxLatitude  = 90.0
	MaxLongitude = 180.0
)

// CoordinateInRange reports whether f is a finite value within ±limit.
func CoordinateInRange(f, limit float64) bool {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	return f >= -limit && f <= limit
}

// Validate checks the field rules every stored shop satisfies. Shops written
// through the API are checked field by field before they get here; imports
// rely on this alone.
func (s Shop) Validate() error {
	var errs []error
	if strings.TrimSpace(s.Name) == "" {
		errs = append(errs, errors.New("name: may not be blank"))
	}
	for _, f := range []struct {
		field, value string
		max          int
	}{
		{"name", s.Name, MaxShopNameLen},
		{"phone_number", s.PhoneNumber, MaxShopPhoneLen},
		{"state", s.State, MaxShopAreaLen},
		{"local_government_area", s.LocalGovernmentArea, MaxShopAreaLen},
	} {
		if utf8.RuneCountInString(f.value) > f.max {
			errs = append(errs, fmt.Errorf("%s: longer than %d characters", f.field, f.max))
		}
	}

	if (s.Latitude == nil) != (s.Longitude == nil) {
		errs = append(errs, errors.New("latitude and longitude must be provided together"))
	}
	if s.Latitude != nil && !CoordinateInRange(*s.Latitude, MaxLatitude) {
		errs = append(errs, fmt.Errorf("latitude: %v is not between -%g and %g", *s.Latitude, MaxLatitude, MaxLatitude))
	}
	if s.Longitude != nil && !CoordinateInRange(*s.Longitude, MaxLongitude) {
		errs = append(errs, fmt.Errorf("longitude: %v is not between -%g and %g", *s.Longitude, MaxLongitude, MaxLongitude))
	}

	if !s.VerificationStatus.Valid() {
		errs = append(errs, fmt.Errorf("verification_status: %q is not a valid choice", s.VerificationStatus))
	}
	if s.VerificationStatus == StatusRejected && strings.TrimSpace(s.RejectionReason) == "" {
		errs = append(errs, errors.New("rejection_reason: required when rejecting a shop"))
	}
	return errors.Join(errs...)
}

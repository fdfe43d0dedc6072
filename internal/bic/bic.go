// Package bic derives structure from SWIFT/BIC code strings.
//
// A code is 8 or 11 characters: the first 8 form the institution prefix
// (bank, country and location), the optional last 3 the branch suffix.
package bic

import (
	"errors"
	"fmt"
	"strings"
)

const (
	PrefixLength      = 8
	MaxLength         = 11
	HeadquarterSuffix = "XXX"
)

var ErrInvalidFormat = errors.New("invalid swift code format")

// Normalize trims surrounding whitespace and uppercases the code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateLength checks the 8 to 11 character boundary.
func ValidateLength(code string) error {
	if len(code) < PrefixLength || len(code) > MaxLength {
		return fmt.Errorf("%w: %q must be %d to %d characters", ErrInvalidFormat, code, PrefixLength, MaxLength)
	}
	return nil
}

// InstitutionPrefix returns the first 8 characters of the code.
func InstitutionPrefix(code string) (string, error) {
	if len(code) < PrefixLength {
		return "", fmt.Errorf("%w: %q is shorter than %d characters", ErrInvalidFormat, code, PrefixLength)
	}
	return code[:PrefixLength], nil
}

// BranchSuffix returns characters 9 to 11, or "" for an 8 character code.
func BranchSuffix(code string) string {
	if len(code) <= PrefixLength {
		return ""
	}
	return code[PrefixLength:]
}

// SamePrefix reports whether both codes belong to the same institution.
func SamePrefix(a, b string) bool {
	pa, err := InstitutionPrefix(a)
	if err != nil {
		return false
	}
	pb, err := InstitutionPrefix(b)
	if err != nil {
		return false
	}
	return pa == pb
}

// Classify returns the headquarters flag for a code. The caller supplied flag
// is authoritative; the code text is never consulted.
func Classify(_ string, explicit bool) bool {
	return explicit
}

// LooksLikeHeadquarter applies the naming convention: an 8 character code or
// an "XXX" branch suffix denotes headquarters. Only bulk import falls back to
// it, when a row carries no usable code type.
func LooksLikeHeadquarter(code string) bool {
	suffix := BranchSuffix(code)
	return suffix == "" || suffix == HeadquarterSuffix
}

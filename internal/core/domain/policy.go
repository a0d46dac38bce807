package domain

import (
	"fmt"
	"strings"
)

// DuplicatePolicy governs a write when an incoming document ID already exists.
type DuplicatePolicy string

// Available duplicate policies.
const (
	// DuplicateSkip drops incoming documents whose ID already exists.
	DuplicateSkip DuplicatePolicy = "skip"

	// DuplicateOverwrite replaces existing documents with the same ID.
	DuplicateOverwrite DuplicatePolicy = "overwrite"

	// DuplicateFail rejects the whole write if any ID already exists.
	DuplicateFail DuplicatePolicy = "fail"
)

// ParseDuplicatePolicy converts a configuration string into a policy.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	p := DuplicatePolicy(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: duplicate policy %q, choose skip, overwrite or fail", ErrInvalidArgument, s)
	}
	return p, nil
}

// IsValid returns true if the policy is recognised.
func (p DuplicatePolicy) IsValid() bool {
	switch p {
	case DuplicateSkip, DuplicateOverwrite, DuplicateFail:
		return true
	default:
		return false
	}
}

// ChecksExisting returns true if the policy looks up existing IDs before writing.
func (p DuplicatePolicy) ChecksExisting() bool {
	return p == DuplicateSkip || p == DuplicateFail
}

// String returns the string representation.
func (p DuplicatePolicy) String() string {
	return string(p)
}

// Description returns a human-readable description of the policy.
func (p DuplicatePolicy) Description() string {
	switch p {
	case DuplicateSkip:
		return "Skip (ignore documents whose id exists)"
	case DuplicateOverwrite:
		return "Overwrite (replace documents with the same id)"
	case DuplicateFail:
		return "Fail (reject the write if any id exists)"
	default:
		return unknownDescription
	}
}

// AllDuplicatePolicies returns every duplicate policy.
func AllDuplicatePolicies() []DuplicatePolicy {
	return []DuplicatePolicy{DuplicateSkip, DuplicateOverwrite, DuplicateFail}
}

package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrEmptyId   = errors.New("manifest id must not be empty")
	ErrInvalidId = errors.New("manifest id contains illegal characters")
)

// idIllegalChars are rejected so an id can always be embedded in a filesystem
// path without escaping the storage root. Covers both Unix and Windows.
const idIllegalChars = `/\:*?"<>|`

// Id is an opaque, validated manifest identifier. Two ids are considered the
// same manifest when their case-insensitive values match, so always compare
// with Equal or key maps by Normalized.
type Id struct {
	value string
}

// NewId validates and wraps a raw identifier string.
func NewId(value string) (Id, error) {
	if err := checkIdValue(value); err != nil {
		return Id{}, err
	}
	return Id{value: value}, nil
}

func checkIdValue(value string) error {
	if strings.TrimSpace(value) == "" {
		return ErrEmptyId
	}
	if strings.Contains(value, "..") {
		return fmt.Errorf("%w: %q contains a path traversal sequence", ErrInvalidId, value)
	}
	if strings.ContainsAny(value, idIllegalChars) {
		return fmt.Errorf("%w: %q (disallowed: %s)", ErrInvalidId, value, idIllegalChars)
	}
	for _, r := range value {
		if r < 0x20 {
			return fmt.Errorf("%w: %q contains control characters", ErrInvalidId, value)
		}
	}
	return nil
}

func (id Id) String() string { return id.value }

// Normalized returns the lowercase form used for equality and as the storage
// and cache key.
func (id Id) Normalized() string { return strings.ToLower(id.value) }

func (id Id) Equal(other Id) bool { return id.Normalized() == other.Normalized() }

func (id Id) IsZero() bool { return id.value == "" }

func (id Id) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

// UnmarshalJSON accepts any non-empty string so manifests written by other
// tools still load; validation happens when the manifest is admitted to the
// pool, not at parse time.
func (id *Id) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("manifest id must be a string: %w", err)
	}
	id.value = s
	return nil
}

// IdService generates new validated manifest identifiers. Ids follow the
// "<publisher>.<name>.<version>" convention for addressable content and a
// uuid-backed form for referrals that have no stable upstream identity.
type IdService struct{}

// GenerateContentId builds a deterministic id from publisher, name, and
// version so re-resolving the same content yields the same identity.
func (IdService) GenerateContentId(publisher, name, version string) (Id, error) {
	parts := []string{slugify(publisher), slugify(name), slugify(version)}
	for _, p := range parts {
		if p == "" {
			return Id{}, fmt.Errorf("%w: publisher, name, and version are all required", ErrEmptyId)
		}
	}
	return NewId(strings.Join(parts, "."))
}

// GenerateReferralId creates a unique id for referral manifests.
func (IdService) GenerateReferralId(prefix string) (Id, error) {
	prefix = slugify(prefix)
	if prefix == "" {
		prefix = "referral"
	}
	return NewId(prefix + "." + uuid.NewString())
}

// slugify lowercases and replaces characters that are illegal in ids with
// hyphens, collapsing runs.
func slugify(s string) string {
	var b strings.Builder
	lastHyphen := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

package storage

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidPatientID = errors.New("invalid patient id")
	ErrInvalidKey       = errors.New("invalid object key")
)

const (
	maxBaseNameLen = 120
	maxExtLen      = 20
	maxFileNameLen = 180
)

var (
	patientIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	baseNameStrip    = regexp.MustCompile(`[^A-Za-z0-9_-]`)
	extStrip         = regexp.MustCompile(`[^A-Za-z0-9.]`)
)

// ValidatePatientID rejects any patient id containing characters outside the
// strict token alphabet. This runs before any key is built, so a patient id
// can never introduce path separators into object keys.
func ValidatePatientID(patientID string) error {
	if !patientIDPattern.MatchString(patientID) {
		return fmt.Errorf("%w: %q", ErrInvalidPatientID, patientID)
	}
	return nil
}

// SanitizeFileName strips any path component from name and restricts the
// remainder to a bounded safe character set: base name up to 120 chars of
// [A-Za-z0-9_-], extension up to 20 chars of [A-Za-z0-9.], combined length
// capped at 180. Disallowed base-name characters become underscores.
func SanitizeFileName(name string) string {
	// Drop everything up to the last path separator, either flavor.
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)

	base = baseNameStrip.ReplaceAllString(base, "_")
	if len(base) > maxBaseNameLen {
		base = base[:maxBaseNameLen]
	}
	if base == "" {
		base = "file"
	}

	ext = extStrip.ReplaceAllString(ext, "")
	if len(ext) > maxExtLen {
		ext = ext[:maxExtLen]
	}

	out := base + ext
	if len(out) > maxFileNameLen {
		out = out[:maxFileNameLen]
	}
	return out
}

// BuildKey manufactures a unique object key for an upload:
// {patientId}/{unixMillis}-{randomSuffix}-{sanitizedFileName}.
// The millisecond timestamp plus random suffix keeps keys collision-free even
// for identical filenames uploaded in the same millisecond.
func BuildKey(patientID, sanitizedName string) string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%s/%d-%s-%s", patientID, time.Now().UnixMilli(), suffix, sanitizedName)
}

// NormalizeKey accepts either a bare object key or a full URL and returns the
// bare key. For absolute URLs the path is taken, leading slashes stripped, and
// the first segment dropped if and only if it equals the bucket name. For
// non-URL input, leading slashes are stripped and a literal "{bucket}/" prefix
// removed if present. An empty result is an error.
func NormalizeKey(keyOrURL, bucket string) (string, error) {
	var key string
	if u, err := url.Parse(keyOrURL); err == nil && u.IsAbs() {
		p := strings.TrimLeft(u.Path, "/")
		segs := strings.Split(p, "/")
		if len(segs) > 0 && segs[0] == bucket {
			segs = segs[1:]
		}
		key = strings.Join(segs, "/")
	} else {
		key = strings.TrimLeft(keyOrURL, "/")
		key = strings.TrimPrefix(key, bucket+"/")
	}

	if key == "" {
		return "", fmt.Errorf("%w: empty after normalization", ErrInvalidKey)
	}
	return key, nil
}

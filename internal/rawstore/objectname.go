package rawstore

import (
	"path"
	"regexp"
	"strings"
)

var (
	sha256HexRe = regexp.MustCompile(`^[0-9a-f]{64}$`)
	dayRe       = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// RawObjectRef is a parsed reference to an immutable raw object in the
// landing zone.
type RawObjectRef struct {
	Dataset    string
	Day        string
	SHA256     string
	Ext        string
	ObjectName string
}

func IsValidSHA256Hex(value string) bool {
	return sha256HexRe.MatchString(strings.ToLower(value))
}

// BuildRawObjectName builds the landing-zone object name
// <raw_prefix>/<dataset>/<YYYY-MM-DD>/<sha256><ext>. The prefix may contain
// slashes (e.g. "raw/dev") or be empty.
func BuildRawObjectName(rawPrefix, dataset, day, sha256, ext string) string {
	prefix := strings.Trim(rawPrefix, "/")
	extNorm := strings.ToLower(ext)
	if extNorm != "" && !strings.HasPrefix(extNorm, ".") {
		extNorm = "." + extNorm
	}
	name := dataset + "/" + day + "/" + sha256 + extNorm
	if prefix != "" {
		return prefix + "/" + name
	}
	return name
}

// ParseRawObjectName parses an object name written by BuildRawObjectName.
// Returns nil for anything that does not match the scheme, so event intake
// can silently ignore unrelated objects in the bucket.
func ParseRawObjectName(rawPrefix, objectName string) *RawObjectRef {
	obj := strings.TrimLeft(objectName, "/")
	if obj == "" {
		return nil
	}
	prefix := strings.Trim(rawPrefix, "/")

	remainder := obj
	if prefix != "" {
		if !strings.HasPrefix(remainder, prefix+"/") {
			return nil
		}
		remainder = remainder[len(prefix)+1:]
	}

	parts := strings.Split(remainder, "/")
	if len(parts) != 3 {
		return nil
	}
	dataset, day, filename := parts[0], parts[1], parts[2]

	// Only accept the day partition shape we write.
	if !dayRe.MatchString(day) {
		return nil
	}

	ext := strings.ToLower(path.Ext(filename))
	sha := strings.ToLower(strings.TrimSuffix(filename, path.Ext(filename)))
	if !IsValidSHA256Hex(sha) {
		return nil
	}

	return &RawObjectRef{
		Dataset:    dataset,
		Day:        day,
		SHA256:     sha,
		Ext:        ext,
		ObjectName: obj,
	}
}

// ParseGSURI splits a gs://bucket/object URI.
func ParseGSURI(uri string) (bucket, object string, ok bool) {
	const scheme = "gs://"
	if !strings.HasPrefix(uri, scheme) {
		return "", "", false
	}
	rest := strings.TrimPrefix(uri, scheme)
	i := strings.IndexByte(rest, '/')
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

package recorder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

// Policy API response keys.
const (
	keyRecordName  = "record_name"
	keyLimit       = "limit"
	keyUploadURL   = "place"
	keyHash        = "hash"
	keyHash2       = "hash2"
	keyManualStart = "manual_start"
	keyTitle       = "title"
	keyComment     = "comment"
	keyAction      = "act"
)

var requiredKeys = []string{keyRecordName, keyLimit, keyHash, keyHash2}

// ParsePolicy decodes a policy API response body. referer comes from
// configuration, not from the API.
func ParsePolicy(body []byte, referer string) (Policy, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return Policy{}, fmt.Errorf("%w: %w", ErrPolicyParse, err)
	}
	if obj == nil {
		return Policy{}, fmt.Errorf("%w: response is not a JSON object", ErrPolicyParse)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Policy{}, fmt.Errorf("%w: trailing data after JSON object", ErrPolicyParse)
	}
	return PolicyFromMap(obj, referer)
}

// PolicyFromMap builds a Policy from a decoded JSON object. Numbers should be
// decoded as json.Number so they stringify exactly as sent.
func PolicyFromMap(obj map[string]any, referer string) (Policy, error) {
	var missing []string
	for _, k := range requiredKeys {
		if v, ok := obj[k]; !ok || v == nil {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return Policy{}, fmt.Errorf("%w: missing %s", ErrPolicyIncomplete, strings.Join(missing, ", "))
	}

	limit, err := strconv.ParseInt(stringify(obj[keyLimit]), 10, 64)
	if err != nil {
		return Policy{}, fmt.Errorf("%w: limit: %w", ErrPolicyParse, err)
	}
	if limit < 0 {
		return Policy{}, fmt.Errorf("%w: limit must not be negative, got %d", ErrPolicyParse, limit)
	}

	return Policy{
		FilenameTemplate:    stringify(obj[keyRecordName]),
		SegmentLimitMinutes: limit,
		AutoRecord:          autoRecord(obj),
		UploadURL:           optional(obj, keyUploadURL),
		Hash:                stringify(obj[keyHash]),
		Hash2:               stringify(obj[keyHash2]),
		Referer:             referer,
		Title:               optional(obj, keyTitle),
		Comment:             optional(obj, keyComment),
		Action:              optional(obj, keyAction),
	}, nil
}

// autoRecord is false only when manual_start is present and reads as the
// integer 1. Strings like "true" or "false" and any other number all mean
// auto-record.
func autoRecord(obj map[string]any) bool {
	v, ok := obj[keyManualStart]
	if !ok || v == nil {
		return true
	}
	n, err := strconv.Atoi(stringify(v))
	return err != nil || n != 1
}

func optional(obj map[string]any, key string) string {
	v, ok := obj[key]
	if !ok || v == nil {
		return ""
	}
	return stringify(v)
}

// stringify renders a decoded JSON value as text: strings verbatim, numbers
// as written, everything else as compact JSON.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// LogValue implements slog.LogValuer. Hashes are left out.
func (p Policy) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("template", p.FilenameTemplate),
		slog.Int64("limit_minutes", p.SegmentLimitMinutes),
		slog.Bool("auto_record", p.AutoRecord),
		slog.String("upload_url", p.UploadURL),
		slog.String("title", p.Title),
		slog.String("action", p.Action),
	)
}

// IsPolicyError reports whether err came from fetching or parsing a policy.
func IsPolicyError(err error) bool {
	return errors.Is(err, ErrPolicyFetch) || errors.Is(err, ErrPolicyParse) || errors.Is(err, ErrPolicyIncomplete)
}

// Package canon provides the canonical JSON encoding and HMAC signing used
// by the fitness ledger (§3, §4.G) and shared by every signer and verifier
// in the fabric, so there is exactly one definition of "the bytes that get
// signed".
package canon

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
)

// Marshal produces the canonical JSON encoding of v: object keys sorted,
// tight separators, no HTML escaping. v must marshal to a JSON object or
// this returns an error.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canon: marshal: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("canon: not an object: %w", err)
	}
	return MarshalMap(generic)
}

// MarshalMap canonicalizes an already-decoded JSON object: keys sorted,
// separators tight ("," and ":"), matching Python's
// json.dumps(d, sort_keys=True, separators=(",", ":")).
func MarshalMap(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshalNoHTMLEscape(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := canonValue(m[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func canonValue(v any) ([]byte, error) {
	switch t := v.(type) {
	case map[string]any:
		return MarshalMap(t)
	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			eb, err := canonValue(e)
			if err != nil {
				return nil, err
			}
			buf.Write(eb)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	default:
		return marshalNoHTMLEscape(v)
	}
}

// marshalNoHTMLEscape encodes a scalar like json.Marshal but leaves <, >
// and & unescaped.
func marshalNoHTMLEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Sign computes the HMAC-SHA256 of the canonical JSON of body (which must
// NOT contain a "sig" key) under key, returning the lowercase hex digest.
func Sign(body map[string]any, key []byte) (string, error) {
	canonical, err := MarshalMap(body)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(canonical)
	return fmt.Sprintf("%x", mac.Sum(nil)), nil
}

// Verify reports whether sig is the valid HMAC-SHA256 of body under key.
// Comparison is constant-time.
func Verify(body map[string]any, sig string, key []byte) bool {
	expect, err := Sign(body, key)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expect), []byte(sig))
}

// ObservationFields converts an Observation-shaped struct, already decoded
// to a map (e.g. via a round-trip through encoding/json), into the subset
// that gets signed: every field except "sig". The canonicalized layer is
// exactly this map — no outer schema_version wrapper is included, resolving
// the ambiguity flagged in the specification's Design Notes.
func ObservationFields(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k == "sig" {
			continue
		}
		out[k] = v
	}
	return out
}

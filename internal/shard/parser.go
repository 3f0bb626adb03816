package shard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/symbol"
)

// Parse decodes one shard file. It accepts the generator's JavaScript form
//
//	var searchData=
//	[
//	  ['i2c_5f',['i2c_',['../classPx4flow__i2c.html#a4e72...',1,'Px4flow_i2c']]],
//	  ...
//	];
//
// as well as plain JSON of the same shape. Each record is
// [rawKey, [displayName, [url, flag, scopeLabel]+]]. A malformed record fails
// the whole shard.
func Parse(category symbol.Category, data []byte) ([]symbol.Entry, error) {
	body, err := toJSON(stripAssignment(data))
	if err != nil {
		return nil, err
	}
	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decoding shard records: %w", err)
	}
	entries := make([]symbol.Entry, 0, len(records))
	for i, raw := range records {
		parsed, err := parseRecord(category, raw)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		entries = append(entries, parsed...)
	}
	return entries, nil
}

func parseRecord(category symbol.Category, raw json.RawMessage) ([]symbol.Entry, error) {
	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
		return nil, fmt.Errorf("expected [key, body] pair")
	}
	var rawKey string
	if err := json.Unmarshal(pair[0], &rawKey); err != nil {
		return nil, fmt.Errorf("key is not a string")
	}
	key := symbol.NormalizeKey(rawKey)
	if key == "" {
		return nil, fmt.Errorf("empty key")
	}
	var body []json.RawMessage
	if err := json.Unmarshal(pair[1], &body); err != nil || len(body) < 2 {
		return nil, fmt.Errorf("key %q: expected [displayName, target...]", key)
	}
	var display string
	if err := json.Unmarshal(body[0], &display); err != nil {
		return nil, fmt.Errorf("key %q: display name is not a string", key)
	}
	display = html.UnescapeString(display)

	entries := make([]symbol.Entry, 0, len(body)-1)
	for _, ref := range body[1:] {
		var fields []any
		if err := json.Unmarshal(ref, &fields); err != nil || len(fields) == 0 {
			return nil, fmt.Errorf("key %q: malformed target", key)
		}
		url, ok := fields[0].(string)
		if !ok {
			return nil, fmt.Errorf("key %q: target url is not a string", key)
		}
		target, err := parseTarget(url)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		var label string
		if len(fields) >= 3 {
			label, _ = fields[2].(string)
		}
		entries = append(entries, symbol.Entry{
			Key:         key,
			DisplayName: display,
			Scope:       scopeOf(html.UnescapeString(label), display),
			Target:      target,
			Category:    category,
		})
	}
	return entries, nil
}

// parseTarget splits "../page.html#anchor" into its page and anchor.
func parseTarget(url string) (symbol.Target, error) {
	for strings.HasPrefix(url, "../") {
		url = url[len("../"):]
	}
	page, anchor, _ := strings.Cut(url, "#")
	if page == "" {
		return symbol.Target{}, fmt.Errorf("target %q has no page", url)
	}
	return symbol.Target{PageID: page, Anchor: anchor}, nil
}

// scopeOf reduces a label such as "MAV::imu()" to the owning scope "MAV".
// Labels that do not end in the member name are already a scope.
func scopeOf(label, display string) string {
	if idx := strings.LastIndex(label, "::"+display); idx >= 0 {
		return label[:idx]
	}
	return label
}

func stripAssignment(data []byte) []byte {
	data = bytes.TrimSpace(data)
	if bytes.HasPrefix(data, []byte("var ")) {
		if eq := bytes.IndexByte(data, '='); eq >= 0 {
			data = data[eq+1:]
		}
	}
	data = bytes.TrimSpace(data)
	return bytes.TrimSuffix(data, []byte(";"))
}

// toJSON rewrites JavaScript string literals, single- or double-quoted, as
// JSON strings. Everything outside string literals passes through unchanged.
func toJSON(src []byte) ([]byte, error) {
	var out bytes.Buffer
	out.Grow(len(src) + len(src)/8)
	for i := 0; i < len(src); i++ {
		c := src[i]
		if c != '"' && c != '\'' {
			out.WriteByte(c)
			continue
		}
		end, err := scanString(src, i, c)
		if err != nil {
			return nil, err
		}
		text, err := unescapeJS(src[i+1 : end])
		if err != nil {
			return nil, fmt.Errorf("string at offset %d: %w", i, err)
		}
		quoted, err := json.Marshal(text)
		if err != nil {
			return nil, fmt.Errorf("re-encoding string at offset %d: %w", i, err)
		}
		out.Write(quoted)
		i = end
	}
	return out.Bytes(), nil
}

// scanString returns the offset of the quote closing the literal opened at
// start.
func scanString(src []byte, start int, quote byte) (int, error) {
	for j := start + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case quote:
			return j, nil
		}
	}
	return 0, fmt.Errorf("unterminated string at offset %d", start)
}

// unescapeJS decodes the escape sequences of a JavaScript string literal body.
func unescapeJS(s []byte) (string, error) {
	if bytes.IndexByte(s, '\\') < 0 {
		return string(s), nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		i++
		if i >= len(s) {
			return "", errors.New("dangling backslash")
		}
		switch c := s[i]; c {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		case '0':
			b.WriteByte(0)
		case '\n':
			// line continuation
		case '\r':
			if i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
		case 'x':
			v, err := hexValue(s, i+1, 2)
			if err != nil {
				return "", err
			}
			b.WriteRune(rune(v))
			i += 2
		case 'u':
			r, n, err := unicodeEscape(s, i+1)
			if err != nil {
				return "", err
			}
			b.WriteRune(r)
			i += n
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// unicodeEscape decodes the part of a \u escape starting at s[i]: either
// XXXX, a surrogate pair XXXX\uXXXX, or {X...}. It returns the rune and the
// number of bytes consumed.
func unicodeEscape(s []byte, i int) (rune, int, error) {
	if i < len(s) && s[i] == '{' {
		end := bytes.IndexByte(s[i:], '}')
		if end < 2 || end > 7 {
			return 0, 0, fmt.Errorf("bad \\u{} escape at %d", i)
		}
		v, err := hexValue(s, i+1, end-1)
		if err != nil {
			return 0, 0, err
		}
		if v > unicode.MaxRune {
			return 0, 0, fmt.Errorf("code point %X out of range", v)
		}
		return rune(v), end + 1, nil
	}
	v, err := hexValue(s, i, 4)
	if err != nil {
		return 0, 0, err
	}
	r := rune(v)
	if utf16.IsSurrogate(r) && i+10 <= len(s) && s[i+4] == '\\' && s[i+5] == 'u' {
		if lo, err := hexValue(s, i+6, 4); err == nil {
			if pair := utf16.DecodeRune(r, rune(lo)); pair != unicode.ReplacementChar {
				return pair, 10, nil
			}
		}
	}
	return r, 4, nil
}

func hexValue(s []byte, i, n int) (uint32, error) {
	if i+n > len(s) {
		return 0, fmt.Errorf("truncated escape at %d", i)
	}
	var v uint32
	for _, c := range s[i : i+n] {
		var d byte
		switch {
		case c >= '0' && c <= '9':
			d = c - '0'
		case c >= 'a' && c <= 'f':
			d = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			d = c - 'A' + 10
		default:
			return 0, fmt.Errorf("invalid hex digit %q in escape", c)
		}
		v = v<<4 | uint32(d)
	}
	return v, nil
}

package ess

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// compactSEMS re-serializes a JSON document the way the SEMS web client does
// before base64 encoding it into a session token. Object keys keep their
// upstream order, items are separated by ", " and keys by ": ", and every
// non-ASCII rune is written as a \uXXXX escape (surrogate pairs above the BMP).
// The portal compares the token byte for byte so encoding/json output is not
// accepted.
func compactSEMS(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var buf bytes.Buffer
	if err := writeSEMSValue(&buf, dec); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after json value")
	}
	return buf.Bytes(), nil
}

func writeSEMSValue(buf *bytes.Buffer, dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("failed to read json token: %w", err)
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			buf.WriteByte('{')
			for i := 0; dec.More(); i++ {
				if i > 0 {
					buf.WriteString(", ")
				}
				key, err := dec.Token()
				if err != nil {
					return fmt.Errorf("failed to read json key: %w", err)
				}
				ks, ok := key.(string)
				if !ok {
					return fmt.Errorf("unexpected json key %v", key)
				}
				writeSEMSString(buf, ks)
				buf.WriteString(": ")
				if err := writeSEMSValue(buf, dec); err != nil {
					return err
				}
			}
			if _, err := dec.Token(); err != nil {
				return fmt.Errorf("failed to close json object: %w", err)
			}
			buf.WriteByte('}')
		case '[':
			buf.WriteByte('[')
			for i := 0; dec.More(); i++ {
				if i > 0 {
					buf.WriteString(", ")
				}
				if err := writeSEMSValue(buf, dec); err != nil {
					return err
				}
			}
			if _, err := dec.Token(); err != nil {
				return fmt.Errorf("failed to close json array: %w", err)
			}
			buf.WriteByte(']')
		default:
			return fmt.Errorf("unexpected json delimiter %v", v)
		}
	case string:
		writeSEMSString(buf, v)
	case json.Number:
		buf.WriteString(semsNumber(v))
	case bool:
		buf.WriteString(strconv.FormatBool(v))
	case nil:
		buf.WriteString("null")
	default:
		return fmt.Errorf("unexpected json token %T", tok)
	}
	return nil
}

// semsNumber keeps integers verbatim. Fractional numbers use the shortest
// round-tripping digits, positional with a trailing ".0" when needed and in
// exponent form below 1e-4 or from 1e16 up.
func semsNumber(n json.Number) string {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		return s
	}
	f, err := n.Float64()
	if err != nil {
		return s
	}
	mant, exp, _ := strings.Cut(strconv.FormatFloat(f, 'e', -1, 64), "e")
	if x, _ := strconv.Atoi(exp); x < -4 || x >= 16 {
		return mant + "e" + exp
	}
	out := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(out, ".") {
		out += ".0"
	}
	return out
}

func writeSEMSString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			switch {
			case r < 0x20 || (r >= 0x7f && r <= 0xffff):
				fmt.Fprintf(buf, `\u%04x`, r)
			case r > 0xffff:
				r1, r2 := utf16.EncodeRune(r)
				fmt.Fprintf(buf, `\u%04x\u%04x`, r1, r2)
			default:
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

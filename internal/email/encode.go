package email

import (
	"encoding/base64"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// base64LineLength is the maximum encoded line length of RFC 2045.
const base64LineLength = 76

// encodedWord returns s as an RFC 2047 "B" encoded word in UTF-8.
func encodedWord(s string) string {
	return "=?utf-8?B?" + base64.StdEncoding.EncodeToString([]byte(s)) + "?="
}

// formatAddress renders "=?utf-8?B?...?= <email>", or "<email>" when name is
// empty.
func formatAddress(name, email string) string {
	if name == "" {
		return "<" + email + ">"
	}
	return encodedWord(name) + " <" + email + ">"
}

// formatAddressList renders every entry of addrs, ordered by email, joined
// with ", ". An empty map yields "".
func formatAddressList(addrs map[string]string) string {
	if len(addrs) == 0 {
		return ""
	}

	emails := sortedKeys(addrs)
	formatted := make([]string, 0, len(emails))
	for _, email := range emails {
		formatted = append(formatted, formatAddress(addrs[email], email))
	}
	return strings.Join(formatted, ", ")
}

// encodeBase64Lines encodes data to base64 split into 76-character lines, each
// terminated by CRLF.
func encodeBase64Lines(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)

	var b strings.Builder
	b.Grow(len(encoded) + 2*(len(encoded)/base64LineLength+1))
	for i := 0; i < len(encoded); i += base64LineLength {
		end := i + base64LineLength
		if end > len(encoded) {
			end = len(encoded)
		}
		b.WriteString(encoded[i:end])
		b.WriteString(crlf)
	}
	return b.String()
}

// encodeCharset converts the UTF-8 text s to charset. Characters the charset
// cannot represent are replaced.
func encodeCharset(s, charset string) ([]byte, error) {
	if isUTF8(charset) {
		return []byte(s), nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, &UnsupportedCharsetError{Charset: charset, Err: err}
	}

	out, err := encoding.ReplaceUnsupported(enc.NewEncoder()).String(s)
	if err != nil {
		return nil, &UnsupportedCharsetError{Charset: charset, Err: err}
	}
	return []byte(out), nil
}

func isUTF8(charset string) bool {
	return charset == "" || strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "utf8")
}

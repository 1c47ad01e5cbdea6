package email

import (
	"log/slog"
	"regexp"
	"strings"
)

var (
	rawFromPattern    = regexp.MustCompile(`([^< ]+@[^> ]+)`)
	rawAddressPattern = regexp.MustCompile(`^(.+)\s+<(.+)>$`)
	rawDatePattern    = regexp.MustCompile(`(?m)^Date: [^\r\n]+`)
)

// rawHeaderLine scans the header block of raw, stopping at the first empty
// line, and returns the first line whose header name equals name ignoring case.
func rawHeaderLine(raw, name string) string {
	if raw == "" {
		return ""
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			break
		}

		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		if strings.EqualFold(line[:idx], name) {
			return line
		}
	}

	return ""
}

// rawFromEmail extracts the first email-looking token of the From header.
func rawFromEmail(raw string) string {
	m := rawFromPattern.FindStringSubmatch(rawHeaderLine(raw, "from"))
	if m == nil {
		return ""
	}
	return m[1]
}

// parseRawAddresses splits a full header line such as
// "To: Alice <a@x.com>, b@x.com" into email -> display name.
//
// Fragments are split on every comma, so a comma inside a quoted display name
// splits that address in two.
func parseRawAddresses(line string) map[string]string {
	result := make(map[string]string)

	idx := strings.Index(line, ":")
	if idx < 0 {
		return result
	}

	for _, fragment := range strings.Split(line[idx+1:], ",") {
		fragment = strings.TrimSpace(fragment)
		if fragment == "" {
			continue
		}

		if m := rawAddressPattern.FindStringSubmatch(fragment); m != nil {
			result[strings.TrimSpace(m[2])] = strings.TrimSpace(m[1])
			continue
		}

		addr := strings.TrimSuffix(strings.TrimPrefix(fragment, "<"), ">")
		if !strings.Contains(addr, "@") || strings.ContainsAny(addr, " \t<>") {
			slog.Warn("malformed address in raw header, keeping it as a bare address",
				"header", line[:idx],
				"fragment", fragment,
			)
		}
		result[addr] = ""
	}

	return result
}

// splitRaw separates the header block of raw from the rest of the message
// at the first blank line, whatever its line ending. The returned body starts
// with that blank line.
func splitRaw(raw string) (headers, body string) {
	end := -1
	for _, sep := range []string{"\r\n\r\n", "\n\r\n", "\n\n"} {
		if idx := strings.Index(raw, sep); idx >= 0 && (end < 0 || idx < end) {
			end = idx
		}
	}
	if end < 0 {
		return raw, ""
	}
	return raw[:end], raw[end:]
}

// rewriteRawDate replaces every Date line of the raw header block with date.
func rewriteRawDate(raw, date string) (string, error) {
	headers, body := splitRaw(raw)
	if !rawDatePattern.MatchString(headers) {
		return "", &RawMailDateRewriteError{Reason: "no Date header found"}
	}

	updated := rawDatePattern.ReplaceAllLiteralString(headers, "Date: "+date) + body
	if updated == raw {
		return "", &RawMailDateRewriteError{Reason: "Date header unchanged after rewrite"}
	}
	return updated, nil
}

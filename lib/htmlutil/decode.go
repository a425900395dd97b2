package htmlutil

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/japanese"
)

// Decode converts a raw response body into utf-8. the charset is taken
// from the content type, then from <meta> tags. the central racing pages
// are served as EUC-JP, some regional ones as Shift_JIS.
func Decode(body []byte, contentType string) (string, error) {
	enc, name, certain := charset.DetermineEncoding(body, contentType)
	if !certain && utf8.Valid(body) {
		return string(body), nil
	}
	if name == "utf-8" {
		return string(body), nil
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// DecodeEUCJP decodes a body known to be EUC-JP regardless of what the
// server claims, the netkeiba database pages often omit the header.
func DecodeEUCJP(body []byte) (string, error) {
	decoded, err := japanese.EUCJP.NewDecoder().Bytes(body)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// LooksEUCJP reports whether the document declares EUC-JP in its head.
func LooksEUCJP(body []byte) bool {
	head := body
	if len(head) > 2048 {
		head = head[:2048]
	}
	return bytes.Contains(bytes.ToLower(head), []byte("euc-jp")) ||
		strings.Contains(strings.ToLower(string(head)), "x-euc-jp")
}

package main

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// StringTransformer applies a transform.Transformer to a string. It exists so
// tests can substitute a failing transformer.
type StringTransformer interface {
	TransformString(t transform.Transformer, s string) (string, int, error)
}

type defaultTransformer struct{}

func (dt defaultTransformer) TransformString(t transform.Transformer, s string) (string, int, error) {
	return transform.String(t, s)
}

var transformer StringTransformer = defaultTransformer{}

// normalizeCityName folds a city name for use in cache keys: diacritics are
// removed ("Kraków" becomes "Krakow"), surrounding and repeated whitespace is
// collapsed and the result is lowercased.
func normalizeCityName(s string) (string, error) {
	if !utf8.ValidString(s) {
		return "", fmt.Errorf("input string is not valid UTF-8")
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transformer.TransformString(t, s)
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.Join(strings.Fields(result), " ")), nil
}

// Package lang validates language codes for the --language flag and
// the transcription requests built from it.
package lang

import (
	"fmt"
	"strings"
)

// supported holds the ISO 639-1 base codes the transcription provider
// accepts. Not the full standard; codes are added as needed.
var supported = map[string]bool{
	"af": true, "ar": true, "bg": true, "bn": true, "ca": true,
	"cs": true, "da": true, "de": true, "el": true, "en": true,
	"es": true, "et": true, "fa": true, "fi": true, "fr": true,
	"gu": true, "he": true, "hi": true, "hr": true, "hu": true,
	"id": true, "it": true, "ja": true, "kn": true, "ko": true,
	"lt": true, "lv": true, "mk": true, "ml": true, "mr": true,
	"ms": true, "nl": true, "no": true, "pa": true, "pl": true,
	"pt": true, "ro": true, "ru": true, "sk": true, "sl": true,
	"sr": true, "sv": true, "sw": true, "ta": true, "te": true,
	"th": true, "tl": true, "tr": true, "uk": true, "ur": true,
	"vi": true, "zh": true,
}

// Normalize lowercases a code and folds underscores to hyphens, so
// "pt_BR", "PT-BR" and "pt-br" compare equal.
func Normalize(code string) string {
	return strings.ToLower(strings.ReplaceAll(code, "_", "-"))
}

// BaseCode strips the regional suffix from a locale: "pt-BR" becomes
// "pt". The transcription API accepts base codes only.
func BaseCode(code string) string {
	base, _, _ := strings.Cut(Normalize(code), "-")
	return base
}

// Validate accepts the empty string (auto-detect), any supported base
// code and any locale whose base code is supported.
func Validate(code string) error {
	if code == "" {
		return nil
	}
	if !supported[BaseCode(code)] {
		return fmt.Errorf("unsupported language code %q (use ISO 639-1 codes like \"en\" or \"pt-BR\"): %w",
			code, ErrInvalid)
	}
	return nil
}

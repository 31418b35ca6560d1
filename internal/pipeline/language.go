package pipeline

import "unicode"

// detectLanguages inspects the extracted text for Hebrew and Latin script.
// Hebrew documents drive RTL-aware handling downstream, and most real
// invoices here mix Hebrew item names with Latin product codes, so both
// scripts can be reported together.
func detectLanguages(text string) []string {
	hebrew, latin := 0, 0
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Hebrew, r):
			hebrew++
		case unicode.IsLetter(r) && r < 0x0250:
			latin++
		}
	}

	var langs []string
	if hebrew > 0 {
		langs = append(langs, "he")
	}
	if latin > 0 {
		langs = append(langs, "en")
	}
	if len(langs) == 0 {
		langs = []string{"unknown"}
	}
	return langs
}

// mergeLanguages unions detected languages with the OCR engine's own
// detection, preserving first-seen order.
func mergeLanguages(detected, reported []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, lang := range append(detected, reported...) {
		if lang == "" || lang == "unknown" {
			continue
		}
		if normalized := normalizeLang(lang); !seen[normalized] {
			seen[normalized] = true
			out = append(out, normalized)
		}
	}
	if len(out) == 0 {
		out = []string{"unknown"}
	}
	return out
}

func normalizeLang(lang string) string {
	switch lang {
	case "heb", "he", "iw":
		return "he"
	case "eng", "en":
		return "en"
	default:
		return lang
	}
}

// primaryLanguage reduces the detected set to the single value stored on the
// catalog row: "he", "en", "mixed", or "unknown".
func primaryLanguage(langs []string) string {
	he, en := false, false
	for _, l := range langs {
		switch l {
		case "he":
			he = true
		case "en":
			en = true
		}
	}
	switch {
	case he && en:
		return "mixed"
	case he:
		return "he"
	case en:
		return "en"
	default:
		return "unknown"
	}
}

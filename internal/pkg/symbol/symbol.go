// Package symbol normalizes instrument names. Marlin symbols are
// Hyperliquid-style perp names ("ETH-PERP"); the base coin ("ETH") is what
// most exchange endpoints key on.
package symbol

import "strings"

// Unicode hyphen variants occasionally pasted into configs.
var hyphens = strings.NewReplacer(
	"‐", "-", "‑", "-", "‒", "-",
	"–", "-", "—", "-", "−", "-",
)

// Normalize upper-cases and fixes exotic hyphens: "eth–perp" -> "ETH-PERP".
func Normalize(sym string) string {
	return strings.ToUpper(strings.TrimSpace(hyphens.Replace(sym)))
}

// Base returns the coin part: "ETH-PERP" -> "ETH", "ETH" -> "ETH".
func Base(sym string) string {
	sym = Normalize(sym)
	if i := strings.IndexByte(sym, '-'); i > 0 {
		return sym[:i]
	}
	return sym
}

// Perp returns the canonical perp symbol for a coin: "ETH" -> "ETH-PERP".
func Perp(coin string) string {
	return Base(coin) + "-PERP"
}

// IsPerp reports whether the symbol names a perpetual instrument.
func IsPerp(sym string) bool {
	return strings.HasSuffix(Normalize(sym), "-PERP")
}

// Matches reports whether an exchange-reported coin field refers to the
// given symbol, accepting either the full symbol or the bare base coin.
func Matches(reported, sym string) bool {
	r := Normalize(reported)
	if r == "" {
		return false
	}
	return r == Normalize(sym) || r == Base(sym)
}

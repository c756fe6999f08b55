package extract

import (
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/crypto/blake2b"

	"diario/internal/monitor/models"
)

// KeyStrategy derives a stable natural key for a publication the registry
// did not assign an identifier to. Strategies are versioned because changing
// the derivation invalidates the seen-set history: a new version is a
// seen-set migration, never a silent swap.
type KeyStrategy interface {
	Version() string
	Key(payload models.PublicationPayload) string
}

// ContentHashV1 hashes a normalized subset of fields: case number digits,
// publication date (day precision) and court body. The subset is stable
// against whitespace and formatting noise but sensitive to substantive
// changes.
type ContentHashV1 struct{}

func (ContentHashV1) Version() string { return "v1" }

func (ContentHashV1) Key(payload models.PublicationPayload) string {
	parts := []string{
		digitsOnly(payload.CaseNumber),
		payload.PublishedAt.Format("2006-01-02"),
		normalizeText(payload.CourtBody),
	}
	sum := blake2b.Sum256([]byte(strings.Join(parts, "|")))
	return "v1:" + hex.EncodeToString(sum[:])
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizeText lowercases and collapses runs of whitespace so cosmetic
// reformatting by the registry does not change the key.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Package extract maps raw registry documents into normalized publication
// candidates. Extractors are pure and deterministic: the same raw input
// always yields the same natural key, which is what keeps repeated fetches
// of an unchanged window from creating duplicate records.
package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"diario/internal/monitor/models"
	"diario/internal/registry"
)

// Extractor turns one raw record into a candidate. A nil candidate with a
// nil error means the record is not a publication (an ad, a banner row); an
// error is a per-record extraction anomaly the caller logs and skips.
type Extractor interface {
	Extract(raw registry.RawRecord) (*models.PublicationCandidate, error)
}

// gazetteRecord tolerates the field spellings the registry has served over
// time. The schema is unstable; every field is optional at the wire level.
type gazetteRecord struct {
	ID          string `json:"id"`
	CaseNumber  string `json:"numeroProcesso"`
	CaseNumber2 string `json:"numero_processo"`
	Published   string `json:"dataDisponibilizacao"`
	Published2  string `json:"data_publicacao"`
	CourtBody   string `json:"orgaoJulgador"`
	CourtBody2  string `json:"orgao_julgador"`
	Court       string `json:"siglaTribunal"`
	Court2      string `json:"tribunal"`
	Gazette     string `json:"caderno"`
	Content     string `json:"texto"`
	Content2    string `json:"conteudo"`
	CaseURL     string `json:"link"`
	Kind        string `json:"tipoComunicacao"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// GazetteExtractor is the reference extractor for the JSON gazette variant.
type GazetteExtractor struct {
	keys KeyStrategy
	now  func() time.Time
}

// GazetteOption configures a GazetteExtractor.
type GazetteOption func(*GazetteExtractor)

// WithKeyStrategy overrides the fallback natural-key derivation.
func WithKeyStrategy(s KeyStrategy) GazetteOption {
	return func(e *GazetteExtractor) {
		e.keys = s
	}
}

// WithClock injects a deterministic observation clock for tests.
func WithClock(now func() time.Time) GazetteOption {
	return func(e *GazetteExtractor) {
		e.now = now
	}
}

func NewGazetteExtractor(opts ...GazetteOption) *GazetteExtractor {
	e := &GazetteExtractor{
		keys: ContentHashV1{},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract decodes one gazette document. Rows without a case number and
// content are not publications and are dropped silently.
func (e *GazetteExtractor) Extract(raw registry.RawRecord) (*models.PublicationCandidate, error) {
	var rec gazetteRecord
	if err := json.Unmarshal(raw.Data, &rec); err != nil {
		return nil, fmt.Errorf("decode gazette record: %w", err)
	}

	caseNumber := firstNonEmpty(rec.CaseNumber, rec.CaseNumber2)
	content := firstNonEmpty(rec.Content, rec.Content2)
	if caseNumber == "" && content == "" {
		return nil, nil
	}
	if caseNumber == "" {
		return nil, fmt.Errorf("gazette record missing case number")
	}

	published, err := parsePublishedDate(firstNonEmpty(rec.Published, rec.Published2))
	if err != nil {
		return nil, fmt.Errorf("gazette record %q: %w", caseNumber, err)
	}

	payload := models.PublicationPayload{
		CaseNumber:  NormalizeCaseNumber(caseNumber),
		Court:       firstNonEmpty(rec.Court, rec.Court2),
		CourtBody:   firstNonEmpty(rec.CourtBody, rec.CourtBody2),
		Gazette:     rec.Gazette,
		PublishedAt: published,
		Content:     strings.TrimSpace(content),
		CaseURL:     rec.CaseURL,
	}

	key := rec.ID
	if key == "" {
		key = e.keys.Key(payload)
	}

	return &models.PublicationCandidate{
		NaturalKey: key,
		Payload:    payload,
		ObservedAt: e.now().UTC(),
	}, nil
}

var publishedFormats = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
}

func parsePublishedDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("missing publication date")
	}
	for _, layout := range publishedFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable publication date %q", s)
}

var caseNumberDigits = regexp.MustCompile(`\D`)

// NormalizeCaseNumber formats a 20-digit docket number in the standard
// NNNNNNN-DD.AAAA.J.TR.OOOO layout. Anything else passes through untouched.
func NormalizeCaseNumber(v string) string {
	nums := caseNumberDigits.ReplaceAllString(v, "")
	if len(nums) != 20 {
		return v
	}
	return fmt.Sprintf("%s-%s.%s.%s.%s.%s",
		nums[0:7], nums[7:9], nums[9:13], nums[13:14], nums[14:16], nums[16:20])
}

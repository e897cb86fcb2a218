package app

import (
	"encoding/json"
	"fmt"
	"html"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"listing_sync/internal/domain"
)

// maxCount caps bedroom/bathroom values so absurd floats cannot overflow int.
const maxCount = 10_000

// maxUnescape bounds entity decoding of nested encodings like "&amp;lt;".
const maxUnescape = 4

// Sanitizer turns untrusted provider entries into listings. Policies are
// built once; Clean is safe for concurrent use.
type Sanitizer struct {
	text *bluemonday.Policy
	rich *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		text: bluemonday.StrictPolicy(),
		rich: bluemonday.UGCPolicy(),
	}
}

// Clean keeps entries in their original order. Entries without an id, entries
// that are not objects and repeated ids are dropped and reported.
func (s *Sanitizer) Clean(raw []domain.RawEntry) ([]domain.Listing, []*domain.ValidationError) {
	out := make([]domain.Listing, 0, len(raw))
	var dropped []*domain.ValidationError
	seen := make(map[string]struct{}, len(raw))

	for i, e := range raw {
		if e.Malformed != nil {
			dropped = append(dropped, &domain.ValidationError{Index: i, Reason: "entry is not an object"})
			continue
		}
		id := flexID(e.ID)
		if id == "" {
			id = flexID(e.LegacyID)
		}
		if id == "" {
			dropped = append(dropped, &domain.ValidationError{Index: i, Reason: "missing id"})
			continue
		}
		if _, dup := seen[id]; dup {
			dropped = append(dropped, &domain.ValidationError{Index: i, ExternalID: id, Reason: "duplicate id in snapshot"})
			continue
		}
		seen[id] = struct{}{}

		out = append(out, domain.Listing{
			ExternalID:  id,
			Title:       s.plainText(e.Title),
			Description: s.richText(e.Description),
			BookingURL:  webURL(flexString(e.ExternalListingURL)),
			Bedrooms:    flexCount(e.Bedrooms),
			Bathrooms:   flexCount(e.Bathrooms),
			Photos:      photoURLs(e.Photos),
		})
	}
	return out, dropped
}

/********** text **********/

// plainText decodes entities before stripping so encoded markup is removed
// too. The result stays HTML-escaped and is never unescaped again.
func (s *Sanitizer) plainText(v any) string {
	t := flexString(v)
	if t == "" {
		return ""
	}
	for i := 0; i < maxUnescape; i++ {
		d := html.UnescapeString(t)
		if d == t {
			break
		}
		t = d
	}
	t = s.text.Sanitize(t)
	return strings.Join(strings.Fields(t), " ")
}

func (s *Sanitizer) richText(v any) string {
	t := flexString(v)
	if t == "" {
		return ""
	}
	return strings.TrimSpace(s.rich.Sanitize(t))
}

// flexString accepts strings only; numbers and objects in a text field are noise.
func flexString(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// flexID: string or integral number.
func flexID(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || t != math.Trunc(t) {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		n := strings.TrimSpace(t.String())
		if _, err := strconv.ParseInt(n, 10, 64); err != nil && !bigInteger(n) {
			return ""
		}
		return n
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}

// bigInteger reports whether n is an integer literal beyond int64 range.
func bigInteger(n string) bool {
	n = strings.TrimPrefix(n, "-")
	if n == "" {
		return false
	}
	for _, c := range n {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

/********** numbers **********/

// flexCount: non-negative int from float64/int/numeric string ("2", "2.5", "2,0").
// Anything else is 0.
func flexCount(v any) int {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		x, err := t.Float64()
		if err != nil {
			return 0
		}
		f = x
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(t, ",", "."))
		x, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = x
	default:
		return 0
	}
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f > maxCount {
		return maxCount
	}
	return int(math.Floor(f))
}

/********** urls **********/

// webURL returns the normalized form of an absolute http(s) URL with a host,
// else "". Scheme and host are lower-cased.
func webURL(s string) string {
	if s == "" {
		return ""
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	switch u.Scheme {
	case "http", "https":
		u.Host = strings.ToLower(u.Host)
		return u.String()
	}
	return ""
}

// photoURLs accepts []any with either strings or {xlarge, large, url} objects
// and keeps the first MaxPhotos valid URLs in order.
func photoURLs(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, domain.MaxPhotos)
	for _, it := range raw {
		if len(out) == domain.MaxPhotos {
			break
		}
		var candidate string
		switch t := it.(type) {
		case string:
			candidate = webURL(strings.TrimSpace(t))
		case map[string]any:
			for _, k := range []string{"xlarge", "large", "url"} {
				if u := webURL(flexString(t[k])); u != "" {
					candidate = u
					break
				}
			}
		}
		if candidate != "" {
			out = append(out, candidate)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func describeDrops(dropped []*domain.ValidationError) []domain.Problem {
	out := make([]domain.Problem, 0, len(dropped))
	for _, d := range dropped {
		out = append(out, domain.Problem{
			Kind:       domain.ProblemValidation,
			ExternalID: d.ExternalID,
			Detail:     fmt.Sprintf("entry %d: %s", d.Index, d.Reason),
		})
	}
	return out
}

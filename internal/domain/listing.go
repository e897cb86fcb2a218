package domain

import (
	"bytes"
	"encoding/json"
)

// RawEntry is one item of the provider's listings payload. Every field is
// untrusted and may be absent or of the wrong JSON type.
type RawEntry struct {
	ID                 any `json:"id"`
	LegacyID           any `json:"_id"`
	Title              any `json:"title"`
	Description        any `json:"description"`
	ExternalListingURL any `json:"externalListingUrl"`
	Bedrooms           any `json:"bedrooms"`
	Bathrooms          any `json:"bathrooms"`
	Photos             any `json:"photos"`

	// Malformed is set when the item was not a JSON object.
	Malformed error `json:"-"`
}

// UnmarshalJSON never fails: a non-object item is kept and flagged so one bad
// entry cannot fail the whole snapshot. Numbers decode as json.Number so
// large numeric ids keep their exact digits.
func (e *RawEntry) UnmarshalJSON(b []byte) error {
	type plain RawEntry
	var p plain
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		*e = RawEntry{Malformed: err}
		return nil
	}
	*e = RawEntry(p)
	return nil
}

// Listing is a sanitized remote entry, valid for one sync cycle.
type Listing struct {
	ExternalID  string
	Title       string
	Description string
	BookingURL  string
	Bedrooms    int
	Bathrooms   int
	Photos      []string // at most MaxPhotos, first is primary
}

const MaxPhotos = 5

func (l Listing) PrimaryPhoto() (string, bool) {
	if len(l.Photos) == 0 {
		return "", false
	}
	return l.Photos[0], true
}

func (l Listing) Fields() RecordFields {
	return RecordFields{
		ExternalID:  l.ExternalID,
		Title:       l.Title,
		Description: l.Description,
		BookingURL:  l.BookingURL,
		Bedrooms:    l.Bedrooms,
		Bathrooms:   l.Bathrooms,
	}
}

package domain

import "time"

type Status string

const (
	StatusActive  Status = "active"
	StatusRetired Status = "retired"
)

// AssetRef points at a locally cached image (object key or public URL).
type AssetRef string

// PropertyRecord is the persisted form of a listing. ExternalID is unique across
// all records, retired ones included.
type PropertyRecord struct {
	ID            int64      `json:"id"`
	ExternalID    string     `json:"external_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	BookingURL    string     `json:"booking_url"`
	Bedrooms      int        `json:"bedrooms"`
	Bathrooms     int        `json:"bathrooms"`
	FeaturedImage *AssetRef  `json:"featured_image,omitempty"`
	Status        Status     `json:"status"`
	RetiredAt     *time.Time `json:"retired_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (r PropertyRecord) IsActive() bool { return r.Status == StatusActive }

// Fields returns the mutable part of the record.
func (r PropertyRecord) Fields() RecordFields {
	return RecordFields{
		ExternalID:  r.ExternalID,
		Title:       r.Title,
		Description: r.Description,
		BookingURL:  r.BookingURL,
		Bedrooms:    r.Bedrooms,
		Bathrooms:   r.Bathrooms,
	}
}

// RecordFields is what a sync writes. FeaturedImage is only honoured by Create.
type RecordFields struct {
	ExternalID    string
	Title         string
	Description   string
	BookingURL    string
	Bedrooms      int
	Bathrooms     int
	FeaturedImage *AssetRef
}

// SameContent reports whether two field sets would store the same record,
// ignoring FeaturedImage.
func (f RecordFields) SameContent(o RecordFields) bool {
	return f.ExternalID == o.ExternalID &&
		f.Title == o.Title &&
		f.Description == o.Description &&
		f.BookingURL == o.BookingURL &&
		f.Bedrooms == o.Bedrooms &&
		f.Bathrooms == o.Bathrooms
}

package models

import (
	"encoding/json"
	"html"
	"strings"
	"time"
)

// ProductType is the classified category of a product.
type ProductType string

const (
	TypeScooter     ProductType = "scooter"
	TypeEbike       ProductType = "ebike"
	TypeEskateboard ProductType = "eskateboard"
	TypeEUC         ProductType = "euc"
	TypeHoverboard  ProductType = "hoverboard"
)

// RemoteProductRecord is a product as served by the legacy API.
type RemoteProductRecord struct {
	ID             int64    `json:"id"`
	Slug           string   `json:"slug"`
	Title          string   `json:"title"`
	Status         string   `json:"status"`
	MediaReference int64    `json:"featured_media"`
	FieldBag       FieldBag `json:"acf"`
}

// UnmarshalJSON accepts the title either as a plain string or as the
// {"rendered": "..."} object the legacy API returns.
func (r *RemoteProductRecord) UnmarshalJSON(data []byte) error {
	type alias RemoteProductRecord
	aux := struct {
		*alias
		Title json.RawMessage `json:"title"`
	}{alias: (*alias)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.Title = ""
	if len(aux.Title) == 0 {
		return nil
	}
	var plain string
	if err := json.Unmarshal(aux.Title, &plain); err == nil {
		r.Title = html.UnescapeString(strings.TrimSpace(plain))
		return nil
	}
	var rendered struct {
		Rendered string `json:"rendered"`
	}
	if err := json.Unmarshal(aux.Title, &rendered); err != nil {
		return err
	}
	r.Title = html.UnescapeString(strings.TrimSpace(rendered.Rendered))
	return nil
}

// LocalProductEntity is the migrated product in the content store.
type LocalProductEntity struct {
	ID               int64                  `bson:"_id" json:"id"`
	RemoteID         int64                  `bson:"remote_id" json:"remote_id"`
	Slug             string                 `bson:"slug" json:"slug"`
	Title            string                 `bson:"title" json:"title"`
	Status           string                 `bson:"status" json:"status"`
	Type             ProductType            `bson:"type" json:"type"`
	StructuredFields map[string]interface{} `bson:"structured_fields" json:"structured_fields"`
	TaxonomyRefs     map[string][]string    `bson:"taxonomy_refs,omitempty" json:"taxonomy_refs,omitempty"`
	Image            *MediaRef              `bson:"image,omitempty" json:"image,omitempty"`
	CreatedAt        time.Time              `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time              `bson:"updated_at" json:"updated_at"`
}

// HasImage reports whether a representative image is already attached.
func (e *LocalProductEntity) HasImage() bool {
	return e != nil && e.Image != nil && e.Image.FileID != ""
}

// MediaRef points at a sideloaded image.
type MediaRef struct {
	FileID      string    `bson:"file_id" json:"file_id"`
	SourceURL   string    `bson:"source_url" json:"source_url"`
	Filename    string    `bson:"filename" json:"filename"`
	ContentType string    `bson:"content_type" json:"content_type"`
	Size        int64     `bson:"size" json:"size"`
	AttachedAt  time.Time `bson:"attached_at" json:"attached_at"`
}

// ProductIdentity is the projection used to build the slug index.
type ProductIdentity struct {
	ID       int64       `bson:"_id"`
	RemoteID int64       `bson:"remote_id"`
	Slug     string      `bson:"slug"`
	Type     ProductType `bson:"type"`
}

// Package stac holds the SpatioTemporal Asset Catalog shapes whose asset
// hrefs can be signed. Only the common members are modelled. Documents that
// must round trip without loss are better handled as map[string]interface{}.
package stac

import (
	"context"
	"fmt"

	"github.com/mitchellh/copystructure"
)

// STAC object types, as found in the "type" member.
const (
	TypeItem           = "Feature"
	TypeCollection     = "Collection"
	TypeItemCollection = "FeatureCollection"
)

// Asset is a file referenced by an Item or Collection.
type Asset struct {
	Href        string   `json:"href"`
	Type        string   `json:"type,omitempty"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}

// Link is a relation to another document.
type Link struct {
	Rel    string                 `json:"rel"`
	Href   string                 `json:"href"`
	Type   string                 `json:"type,omitempty"`
	Method string                 `json:"method,omitempty"`
	Body   map[string]interface{} `json:"body,omitempty"`
}

// Item is a GeoJSON Feature with assets.
type Item struct {
	Type        string                 `json:"type"`
	StacVersion string                 `json:"stac_version,omitempty"`
	ID          string                 `json:"id"`
	Collection  string                 `json:"collection,omitempty"`
	Geometry    interface{}            `json:"geometry"`
	BBox        []float64              `json:"bbox,omitempty"`
	Properties  map[string]interface{} `json:"properties"`
	Links       []Link                 `json:"links,omitempty"`
	Assets      map[string]*Asset      `json:"assets"`
}

// Collection describes a set of items and may carry assets of its own.
type Collection struct {
	Type        string                 `json:"type"`
	StacVersion string                 `json:"stac_version,omitempty"`
	ID          string                 `json:"id"`
	Title       string                 `json:"title,omitempty"`
	Description string                 `json:"description"`
	License     string                 `json:"license,omitempty"`
	Extent      map[string]interface{} `json:"extent,omitempty"`
	Links       []Link                 `json:"links,omitempty"`
	Assets      map[string]*Asset      `json:"assets,omitempty"`
}

// ItemCollection is a GeoJSON FeatureCollection of items.
type ItemCollection struct {
	Type     string  `json:"type"`
	Features []*Item `json:"features"`
	Links    []Link  `json:"links,omitempty"`
}

// Searcher lazily produces items, typically from a STAC API search.
type Searcher interface {
	ItemCollection(ctx context.Context) (*ItemCollection, error)
}

func deepCopy[T any](v T) T {
	out, err := copystructure.Copy(v)
	if err != nil {
		// Only plain data types are copied, which copystructure always handles.
		panic(fmt.Sprintf("stac: copy %T: %v", v, err))
	}
	return out.(T)
}

// Clone returns a deep copy of a.
func (a *Asset) Clone() *Asset { return deepCopy(a) }

// Clone returns a deep copy of i.
func (i *Item) Clone() *Item { return deepCopy(i) }

// Clone returns a deep copy of c.
func (c *Collection) Clone() *Collection { return deepCopy(c) }

// Clone returns a deep copy of ic.
func (ic *ItemCollection) Clone() *ItemCollection { return deepCopy(ic) }

// NewItemCollection wraps items in a FeatureCollection.
func NewItemCollection(items []*Item) *ItemCollection {
	return &ItemCollection{Type: TypeItemCollection, Features: items}
}

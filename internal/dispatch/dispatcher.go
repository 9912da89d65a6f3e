// Package dispatch signs every storage URL found in a value of one of the
// supported shapes:
//
//   - string: a single URL, or XML-like text (for instance a GDAL VRT)
//     embedding storage URLs
//   - *stac.Asset, *stac.Item, *stac.Collection, *stac.ItemCollection and
//     []*stac.Item
//   - map[string]interface{} following a references manifest (version,
//     templates, refs), a STAC Item or Collection, or a FeatureCollection
//   - stac.Searcher, whose items are fetched before signing
//
// Each shape is turned into a target listing its hrefs and able to write
// signed values back. All hrefs of a value are signed in one SignMany call.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"tld/internal/config"
	"tld/internal/signing"
	"tld/pkg/stac"
)

// UnsupportedInputError reports a value of a shape that cannot be signed.
type UnsupportedInputError struct {
	Type string
}

func (e *UnsupportedInputError) Error() string {
	return fmt.Sprintf("cannot sign a value of type %s: expected a URL or markup string, a STAC asset, item, collection, item collection, search, or a mapping", e.Type)
}

// Signer signs URL lists. *signing.Client implements it.
type Signer interface {
	SignMany(ctx context.Context, urls []string, route signing.Route) (map[string]string, error)
}

// Dispatcher signs the URLs held by values of any supported shape.
type Dispatcher struct {
	signer Signer
	domain string
	logger *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithStorageDomain sets the domain whose URLs are located in markup text.
func WithStorageDomain(domain string) Option {
	return func(d *Dispatcher) {
		d.domain = domain
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// New creates a Dispatcher.
func New(signer Signer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		signer: signer,
		domain: config.DefaultStorageDomain,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Sign returns a signed copy of v. v itself is left untouched.
func (d *Dispatcher) Sign(ctx context.Context, v interface{}) (interface{}, error) {
	return d.sign(ctx, v, true)
}

// SignInPlace rewrites the hrefs of v and returns it. Strings are immutable
// and are returned signed as with Sign.
func (d *Dispatcher) SignInPlace(ctx context.Context, v interface{}) (interface{}, error) {
	return d.sign(ctx, v, false)
}

// SignString signs a URL or a markup document.
func (d *Dispatcher) SignString(ctx context.Context, s string) (string, error) {
	out, err := d.sign(ctx, s, false)
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (d *Dispatcher) sign(ctx context.Context, v interface{}, copy bool) (interface{}, error) {
	t, err := d.targetFor(ctx, v, copy)
	if err != nil {
		return nil, err
	}

	hrefs := t.hrefs()
	d.logger.Debug("Signing value", "type", fmt.Sprintf("%T", v), "hrefs", len(hrefs))
	if len(hrefs) == 0 {
		return t.value(), nil
	}

	signed, err := d.signer.SignMany(ctx, hrefs, signing.RouteRead)
	if err != nil {
		return nil, err
	}
	t.apply(signed)
	return t.value(), nil
}

func (d *Dispatcher) targetFor(ctx context.Context, v interface{}, copy bool) (target, error) {
	switch x := v.(type) {
	case string:
		if IsMarkup(x) {
			return newMarkupTarget(x, d.domain), nil
		}
		return &urlTarget{url: x}, nil

	case *stac.Asset:
		if x == nil {
			break
		}
		if copy {
			x = x.Clone()
		}
		a := x
		return &slotTarget{v: a, slots: []slot{{href: a.Href, set: func(s string) { a.Href = s }}}}, nil

	case *stac.Item:
		if x == nil {
			break
		}
		if copy {
			x = x.Clone()
		}
		return &slotTarget{v: x, slots: assetSlots(x.Assets)}, nil

	case *stac.Collection:
		if x == nil {
			break
		}
		if copy {
			x = x.Clone()
		}
		return &slotTarget{v: x, slots: assetSlots(x.Assets)}, nil

	case *stac.ItemCollection:
		if x == nil {
			break
		}
		if copy {
			x = x.Clone()
		}
		return &slotTarget{v: x, slots: itemsSlots(x.Features)}, nil

	case []*stac.Item:
		if copy {
			items := make([]*stac.Item, len(x))
			for i, it := range x {
				if it != nil {
					items[i] = it.Clone()
				}
			}
			x = items
		}
		return &slotTarget{v: x, slots: itemsSlots(x)}, nil

	case map[string]interface{}:
		if x == nil {
			break
		}
		return newMappingTarget(x, copy)

	case stac.Searcher:
		ic, err := x.ItemCollection(ctx)
		if err != nil {
			return nil, fmt.Errorf("search failed: %w", err)
		}
		return &slotTarget{v: ic, slots: itemsSlots(ic.Features)}, nil
	}

	return nil, &UnsupportedInputError{Type: fmt.Sprintf("%T", v)}
}

package dispatch

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"tld/pkg/stac"

	"github.com/mitchellh/copystructure"
)

// target is one supported input shape: the hrefs it contains and a way to
// write signed values back.
type target interface {
	hrefs() []string
	apply(signed map[string]string)
	value() interface{}
}

// slot is one href inside a structure.
type slot struct {
	href string
	set  func(string)
}

// slotTarget covers every structured shape: its hrefs are a list of slots.
type slotTarget struct {
	v     interface{}
	slots []slot
}

func (t *slotTarget) hrefs() []string {
	out := make([]string, 0, len(t.slots))
	for _, s := range t.slots {
		out = append(out, s.href)
	}
	return out
}

func (t *slotTarget) apply(signed map[string]string) {
	for _, s := range t.slots {
		if v, ok := signed[s.href]; ok {
			s.set(v)
		}
	}
}

func (t *slotTarget) value() interface{} { return t.v }

func assetSlots(assets map[string]*stac.Asset) []slot {
	keys := make([]string, 0, len(assets))
	for k := range assets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	slots := make([]slot, 0, len(keys))
	for _, k := range keys {
		a := assets[k]
		if a == nil {
			continue
		}
		slots = append(slots, slot{href: a.Href, set: func(v string) { a.Href = v }})
	}
	return slots
}

func itemsSlots(items []*stac.Item) []slot {
	var slots []slot
	for _, it := range items {
		if it != nil {
			slots = append(slots, assetSlots(it.Assets)...)
		}
	}
	return slots
}

// urlTarget is a single bare URL.
type urlTarget struct {
	url    string
	signed string
}

func (t *urlTarget) hrefs() []string { return []string{t.url} }

func (t *urlTarget) apply(signed map[string]string) {
	t.signed = t.url
	if v, ok := signed[t.url]; ok {
		t.signed = v
	}
}

func (t *urlTarget) value() interface{} { return t.signed }

// markupTarget is XML-like text, such as a GDAL VRT, embedding storage URLs.
type markupTarget struct {
	text string
	urls []string
	out  string
}

// storageURLPattern matches storage URLs up to the next tag, on the domain
// itself or any of its subdomains, like signing.InDomain.
func storageURLPattern(domain string) *regexp.Regexp {
	return regexp.MustCompile(`https://(?:[A-Za-z0-9-]+\.)*` + regexp.QuoteMeta(domain) + `/[^<]+`)
}

func newMarkupTarget(text, domain string) *markupTarget {
	seen := map[string]bool{}
	var urls []string
	for _, u := range storageURLPattern(domain).FindAllString(text, -1) {
		if !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	return &markupTarget{text: text, urls: urls, out: text}
}

func (t *markupTarget) hrefs() []string { return t.urls }

// apply substitutes every changed URL in one pass. Alternatives are sorted
// longest first so a URL that prefixes another never wins the match.
func (t *markupTarget) apply(signed map[string]string) {
	replacements := make(map[string]string)
	var patterns []string
	for _, u := range t.urls {
		v, ok := signed[u]
		if !ok || v == u {
			continue
		}
		replacements[u] = EscapeMarkup(v)
		patterns = append(patterns, u)
	}
	if len(patterns) == 0 {
		t.out = t.text
		return
	}

	sort.Slice(patterns, func(i, j int) bool { return len(patterns[i]) > len(patterns[j]) })
	quoted := make([]string, len(patterns))
	for i, p := range patterns {
		quoted[i] = regexp.QuoteMeta(p)
	}
	re := regexp.MustCompile(strings.Join(quoted, "|"))
	t.out = re.ReplaceAllStringFunc(t.text, func(m string) string {
		return replacements[m]
	})
}

func (t *markupTarget) value() interface{} { return t.out }

// EscapeMarkup escapes the ampersands of a signed query string.
func EscapeMarkup(s string) string {
	return strings.ReplaceAll(s, "&", "&amp;")
}

// IsMarkup reports whether s looks like an XML-like document.
func IsMarkup(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">")
}

// Mapping schemas returned by Schema.
const (
	SchemaReferences        = "references"
	SchemaSTAC              = "stac"
	SchemaFeatureCollection = "feature_collection"
	SchemaUnknown           = ""
)

// Schema identifies which known layout m follows.
func Schema(m map[string]interface{}) string {
	_, hasVersion := m["version"]
	_, hasTemplates := m["templates"]
	_, hasRefs := m["refs"]
	if hasVersion && hasTemplates && hasRefs {
		return SchemaReferences
	}

	switch m["type"] {
	case stac.TypeItem, stac.TypeCollection:
		return SchemaSTAC
	case stac.TypeItemCollection:
		if features, ok := m["features"].([]interface{}); ok && len(features) > 0 {
			return SchemaFeatureCollection
		}
	}
	return SchemaUnknown
}

func newMappingTarget(m map[string]interface{}, copy bool) (*slotTarget, error) {
	if copy {
		c, err := copystructure.Copy(m)
		if err != nil {
			return nil, fmt.Errorf("failed to copy mapping: %w", err)
		}
		m = c.(map[string]interface{})
	}

	t := &slotTarget{v: m}
	switch Schema(m) {
	case SchemaReferences:
		if templates, ok := m["templates"].(map[string]interface{}); ok {
			t.slots = stringValueSlots(templates)
		}
	case SchemaSTAC:
		t.slots = mapAssetSlots(m)
	case SchemaFeatureCollection:
		for _, f := range m["features"].([]interface{}) {
			if feature, ok := f.(map[string]interface{}); ok {
				t.slots = append(t.slots, mapAssetSlots(feature)...)
			}
		}
	}
	return t, nil
}

func stringValueSlots(m map[string]interface{}) []slot {
	keys := sortedKeys(m)
	var slots []slot
	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			slots = append(slots, slot{href: s, set: func(v string) { m[k] = v }})
		}
	}
	return slots
}

func mapAssetSlots(feature map[string]interface{}) []slot {
	assets, ok := feature["assets"].(map[string]interface{})
	if !ok {
		return nil
	}
	var slots []slot
	for _, k := range sortedKeys(assets) {
		asset, ok := assets[k].(map[string]interface{})
		if !ok {
			continue
		}
		if href, ok := asset["href"].(string); ok {
			slots = append(slots, slot{href: href, set: func(v string) { asset["href"] = v }})
		}
	}
	return slots
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package update

import (
	"github.com/opencrdt/ydoc/encoding"
	"github.com/opencrdt/ydoc/store"
)

// Convert decodes data in its current format and re-encodes it in the
// other one (spec §4.9 "a pass-through with an identity block
// transformer"): the struct graph and delete set are untouched, only the
// byte layout changes.
func Convert(data []byte, fromV2 bool) ([]byte, error) {
	u, err := Decode(data, fromV2)
	if err != nil {
		return nil, err
	}
	return u.Encode(!fromV2), nil
}

// Obfuscate decodes data, replaces every item's content payload with a
// synthetic placeholder of the same length, and re-encodes it — IDs,
// parents, origins, parent-sub keys, and deletions are all preserved so
// the structural shape of a bug report survives without leaking the
// original text (spec §4.9 "preserving lengths, IDs, parents, and
// deletions").
func Obfuscate(data []byte, v2 bool) ([]byte, error) {
	u, err := Decode(data, v2)
	if err != nil {
		return nil, err
	}
	for _, client := range u.ClientIDs() {
		for _, s := range u.clients[client] {
			if s.kind != kindItem {
				continue
			}
			s.item.Content = obfuscateContent(s.item.Content)
		}
	}
	return u.Encode(v2), nil
}

// obfuscateContent returns a content value of the same wire tag and
// length as c, but with every payload scalar replaced by a fixed
// placeholder — preserving shape (how many visible units a sequence item
// occupies) while discarding the actual text/values.
func obfuscateContent(c store.Content) store.Content {
	switch v := c.(type) {
	case *store.StringContent:
		units := make([]uint16, len(v.Units))
		for i := range units {
			units[i] = 'x'
		}
		return &store.StringContent{Units: units}
	case *store.AnyContent:
		vals := make([]encoding.Any, len(v.Values))
		for i := range vals {
			vals[i] = encoding.Any{Kind: encoding.AnyString, String: "x"}
		}
		return &store.AnyContent{Values: vals}
	case *store.BinaryContent:
		return &store.BinaryContent{Data: []byte{0}}
	case *store.EmbedContent:
		return &store.EmbedContent{Value: encoding.Any{Kind: encoding.AnyString, String: "x"}}
	case *store.FormatContent:
		return &store.FormatContent{Key: "x", Value: encoding.Any{Kind: encoding.AnyBool, Bool: true}}
	case *store.JSONContent:
		vals := make([]string, len(v.Values))
		for i := range vals {
			vals[i] = "x"
		}
		return &store.JSONContent{Values: vals}
	default:
		// DeletedContent, TypeContent, DocContent carry no free-text
		// payload worth scrubbing; content travels unchanged.
		return c
	}
}

// Package headerwire defines the adapter-neutral wire shape for a decoded
// header list once it leaves HPACK (C3) or QPACK (C4): a flat NUL-delimited
// name/value sequence carried as a frame.Frame's Data. This lets the
// server (C6) and client (C7) work with header lists without depending on
// either adapter's compression-table package directly.
package headerwire

import "bytes"

// Header is a single decoded header field (including pseudo-headers like
// :path, :method, :scheme, :authority).
type Header struct {
	Name, Value string
}

// Encode flattens fields into a NUL-delimited name\x00value\x00... block.
func Encode(fields []Header) []byte {
	var dst []byte
	for _, f := range fields {
		dst = append(dst, f.Name...)
		dst = append(dst, 0)
		dst = append(dst, f.Value...)
		dst = append(dst, 0)
	}
	return dst
}

// Decode parses the block produced by Encode back into a Header slice.
func Decode(block []byte) []Header {
	var out []Header
	for len(block) > 0 {
		i := bytes.IndexByte(block, 0)
		if i < 0 {
			break
		}
		name := string(block[:i])
		block = block[i+1:]
		j := bytes.IndexByte(block, 0)
		if j < 0 {
			break
		}
		value := string(block[:j])
		block = block[j+1:]
		out = append(out, Header{Name: name, Value: value})
	}
	return out
}

// Map is a convenience view used by RequestContext/ResponseContext (spec
// §3): last-value-wins, like net/http's canonical single-value headers.
func Map(fields []Header) map[string]string {
	m := make(map[string]string, len(fields))
	for _, f := range fields {
		m[f.Name] = f.Value
	}
	return m
}

// Package canonjson produces a deterministic JSON encoding: object keys
// sorted, no insignificant whitespace. Mandate proofs sign this encoding so
// signer and verifier never disagree on byte layout.
package canonjson

import (
	"bytes"
	"encoding/json"
	"io"
	"sort"
)

// Marshal encodes v canonically. Struct values are first flattened through
// their ordinary JSON encoding so tags apply, then re-encoded with sorted keys.
func Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var norm any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&norm); err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	if err := encode(buf, norm); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(w io.Writer, v any) error {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		_, _ = w.Write([]byte("{"))
		for i, k := range keys {
			if i > 0 {
				_, _ = w.Write([]byte(","))
			}
			kb, _ := json.Marshal(k)
			_, _ = w.Write(kb)
			_, _ = w.Write([]byte(":"))
			if err := encode(w, t[k]); err != nil {
				return err
			}
		}
		_, _ = w.Write([]byte("}"))
		return nil
	case []any:
		_, _ = w.Write([]byte("["))
		for i, vv := range t {
			if i > 0 {
				_, _ = w.Write([]byte(","))
			}
			if err := encode(w, vv); err != nil {
				return err
			}
		}
		_, _ = w.Write([]byte("]"))
		return nil
	case json.Number:
		_, err := w.Write([]byte(t.String()))
		return err
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	}
}

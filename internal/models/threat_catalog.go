package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ThreatCategory is a named bucket of signatures. Signatures are literal
// substrings; matching order is the slice order.
type ThreatCategory struct {
	Name       string
	Signatures []string
}

// ThreatCatalog is the ordered signature catalog. On disk it is a JSON object
// keyed by category name; key order is significant and preserved both ways.
type ThreatCatalog []ThreatCategory

// Get returns the signatures for a category.
func (c ThreatCatalog) Get(name string) ([]string, bool) {
	for _, cat := range c {
		if cat.Name == name {
			return cat.Signatures, true
		}
	}
	return nil, false
}

// Set replaces a category in place, or appends it when missing.
func (c *ThreatCatalog) Set(name string, signatures []string) {
	for i := range *c {
		if (*c)[i].Name == name {
			(*c)[i].Signatures = signatures
			return
		}
	}
	*c = append(*c, ThreatCategory{Name: name, Signatures: signatures})
}

// Names lists category names in catalog order.
func (c ThreatCatalog) Names() []string {
	names := make([]string, 0, len(c))
	for _, cat := range c {
		names = append(names, cat.Name)
	}
	return names
}

// Clone returns a deep copy.
func (c ThreatCatalog) Clone() ThreatCatalog {
	if c == nil {
		return nil
	}
	out := make(ThreatCatalog, len(c))
	for i, cat := range c {
		out[i] = ThreatCategory{Name: cat.Name, Signatures: append([]string(nil), cat.Signatures...)}
	}
	return out
}

// MarshalJSON writes the catalog as an object, keeping category order.
func (c ThreatCatalog) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, cat := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalNoEscape(cat.Name)
		if err != nil {
			return nil, err
		}
		sigs := cat.Signatures
		if sigs == nil {
			sigs = []string{}
		}
		val, err := marshalNoEscape(sigs)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON merges an object into the receiver. Categories already present
// are replaced in place, new ones are appended in document order. Entries whose
// value is not a list of strings are ignored, and so is a non-object document.
func (c *ThreatCatalog) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("threat catalog: unexpected key %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var sigs []string
		if err := json.Unmarshal(raw, &sigs); err != nil || sigs == nil {
			continue
		}
		c.Set(name, sigs)
	}
	_, err = dec.Token()
	return err
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

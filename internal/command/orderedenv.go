package command

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// OrderedEnv is an insertion-ordered string map, used for Runtime.Env so the
// export preamble in a command's script is reproducible regardless of Go's
// unordered map iteration.
type OrderedEnv struct {
	keys   []string
	values map[string]string
}

// NewOrderedEnv builds an OrderedEnv from key/value pairs in order.
func NewOrderedEnv(keys []string, values map[string]string) OrderedEnv {
	return OrderedEnv{keys: append([]string(nil), keys...), values: values}
}

// Get returns the value for key and whether it was present.
func (e OrderedEnv) Get(key string) (string, bool) {
	v, ok := e.values[key]
	return v, ok
}

// Keys returns the keys in declaration order.
func (e OrderedEnv) Keys() []string { return e.keys }

// Len returns the number of entries.
func (e OrderedEnv) Len() int { return len(e.keys) }

// Set adds or overwrites key, preserving first-seen order.
func (e *OrderedEnv) Set(key, value string) {
	if e.values == nil {
		e.values = make(map[string]string)
	}
	if _, ok := e.values[key]; !ok {
		e.keys = append(e.keys, key)
	}
	e.values[key] = value
}

// UnmarshalYAML implements yaml.Unmarshaler on *OrderedEnv (pointer receiver
// so the zero-value construction lands on the caller's field), decoding the
// mapping node pair-wise to preserve declaration order.
func (e *OrderedEnv) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == 0 {
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("env: expected a mapping, got kind %d", value.Kind)
	}
	e.values = make(map[string]string, len(value.Content)/2)
	e.keys = e.keys[:0]
	for i := 0; i+1 < len(value.Content); i += 2 {
		var k, v string
		if err := value.Content[i].Decode(&k); err != nil {
			return fmt.Errorf("env key: %w", err)
		}
		if err := value.Content[i+1].Decode(&v); err != nil {
			return fmt.Errorf("env value for %q: %w", k, err)
		}
		e.Set(k, v)
	}
	return nil
}

func (e *OrderedEnv) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range e.keys {
		keyNode := &yaml.Node{}
		_ = keyNode.Encode(k)
		valNode := &yaml.Node{}
		_ = valNode.Encode(e.values[k])
		node.Content = append(node.Content, keyNode, valNode)
	}
	return node, nil
}

func (e *OrderedEnv) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range e.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(e.values[k])
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (e *OrderedEnv) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	// JSON object key order is not preserved by encoding/json; this path is
	// only used for the wire protocol round-trip (§8), where the producer
	// is this same process and re-marshals with MarshalJSON, so order is
	// recovered via a second decode pass using json.Decoder token order.
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("env: expected object")
	}
	e.keys = nil
	e.values = make(map[string]string, len(raw))
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var val string
		if err := dec.Decode(&val); err != nil {
			return err
		}
		e.Set(key, val)
	}
	return nil
}

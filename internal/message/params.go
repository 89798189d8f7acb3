package message

import (
	"bytes"
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

type TemplateParam struct {
	Key   string
	Value string
}

// TemplateParams is a string mapping that keeps the insertion order of its
// JSON object, since template placeholders are positional on the wire. A
// repeated key keeps its first position and its last value.
type TemplateParams []TemplateParam

func (p *TemplateParams) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	om := orderedmap.New[string, string]()
	if err := json.Unmarshal(data, om); err != nil {
		return fmt.Errorf("templateParameters must be an object of strings: %w", err)
	}
	*p = fromOrderedMap(om)
	return nil
}

func (p TemplateParams) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	return json.Marshal(p.orderedMap())
}

func (p TemplateParams) orderedMap() *orderedmap.OrderedMap[string, string] {
	om := orderedmap.New[string, string](len(p))
	for _, param := range p {
		om.Set(param.Key, param.Value)
	}
	return om
}

func fromOrderedMap(om *orderedmap.OrderedMap[string, string]) TemplateParams {
	params := make(TemplateParams, 0, om.Len())
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		params = append(params, TemplateParam{Key: pair.Key, Value: pair.Value})
	}
	return params
}

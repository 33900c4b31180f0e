package gateway

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/GriffinCanCode/AgentOS/shell/internal/shared/types"
)

// Kind is the expected type of a payload field
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindObject Kind = "object"
	KindArray  Kind = "array"
	KindAny    Kind = "any"
)

// Field describes one payload key
type Field struct {
	Kind     Kind `yaml:"kind" json:"kind"`
	Required bool `yaml:"required" json:"required"`
}

// Schema describes the payload shape of a channel
type Schema struct {
	Fields     map[string]Field `yaml:"fields" json:"fields"`
	AllowExtra bool             `yaml:"allow_extra" json:"allow_extra"`
}

// Check returns a descriptive error for the first mismatches found
func (s *Schema) Check(p types.Payload) error {
	if s == nil {
		return nil
	}

	var problems []string

	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		field := s.Fields[name]
		v, present := p[name]
		if !present || v == nil {
			if field.Required {
				problems = append(problems, fmt.Sprintf("missing %q", name))
			}
			continue
		}
		if !field.Kind.matches(v) {
			problems = append(problems, fmt.Sprintf("%q: want %s, got %T", name, field.Kind, v))
		}
	}

	if !s.AllowExtra {
		var extra []string
		for name := range p {
			if _, known := s.Fields[name]; !known {
				extra = append(extra, name)
			}
		}
		sort.Strings(extra)
		for _, name := range extra {
			problems = append(problems, fmt.Sprintf("unexpected %q", name))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(problems, "; "))
}

func (k Kind) valid() bool {
	switch k {
	case KindString, KindNumber, KindBool, KindObject, KindArray, KindAny:
		return true
	}
	return false
}

func (k Kind) matches(v interface{}) bool {
	switch k {
	case KindAny:
		return true
	case KindString:
		_, ok := v.(string)
		return ok
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindNumber:
		switch v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return true
		}
		return false
	case KindObject:
		switch v.(type) {
		case map[string]interface{}, types.Payload:
			return true
		}
		return false
	case KindArray:
		rv := reflect.ValueOf(v)
		return rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array
	}
	return false
}

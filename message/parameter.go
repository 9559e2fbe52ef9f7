// Package message implements the protocol message model: a case-sensitive,
// ordered-insertion parameter map shared by every endpoint's request and
// response, plus the typed Request/Response views built on top of it.
package message

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the concrete shape a Parameter currently holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindString
	KindStringArray
	KindJSON
)

// Parameter is a tagged variant over the value shapes OAuth2/OIDC wire
// parameters can take: absent, boolean, integer, string, an ordered string
// sequence (e.g. "resource" repeated, or a pre-split "scope"), or arbitrary
// JSON (e.g. the "address" claim object).
type Parameter struct {
	kind   Kind
	b      bool
	i      int64
	s      string
	arr    []string
	rawKey json.RawMessage
}

// Null reports whether the parameter is absent/empty.
func (p Parameter) Null() bool { return p.kind == KindNull }

func NullParameter() Parameter { return Parameter{kind: KindNull} }

func BoolParameter(v bool) Parameter { return Parameter{kind: KindBool, b: v} }

func Int64Parameter(v int64) Parameter { return Parameter{kind: KindInt64, i: v} }

func StringParameter(v string) Parameter {
	if v == "" {
		return NullParameter()
	}
	return Parameter{kind: KindString, s: v}
}

func StringArrayParameter(v []string) Parameter {
	if len(v) == 0 {
		return NullParameter()
	}
	out := make([]string, len(v))
	copy(out, v)
	return Parameter{kind: KindStringArray, arr: out}
}

func JSONParameter(raw json.RawMessage) Parameter {
	if len(raw) == 0 {
		return NullParameter()
	}
	return Parameter{kind: KindJSON, rawKey: raw}
}

func (p Parameter) Kind() Kind { return p.kind }

// String renders the parameter as a wire-ready string. A string array is
// space-joined (the OAuth2 "scope" convention); other kinds use their
// natural textual form. JSON values are serialized compactly.
func (p Parameter) String() string {
	switch p.kind {
	case KindNull:
		return ""
	case KindBool:
		if p.b {
			return "true"
		}
		return "false"
	case KindInt64:
		return fmt.Sprintf("%d", p.i)
	case KindString:
		return p.s
	case KindStringArray:
		out := ""
		for i, v := range p.arr {
			if i > 0 {
				out += " "
			}
			out += v
		}
		return out
	case KindJSON:
		return string(p.rawKey)
	default:
		return ""
	}
}

func (p Parameter) Bool() (bool, bool) {
	if p.kind != KindBool {
		return false, false
	}
	return p.b, true
}

func (p Parameter) Int64() (int64, bool) {
	if p.kind != KindInt64 {
		return 0, false
	}
	return p.i, true
}

func (p Parameter) StringArray() ([]string, bool) {
	switch p.kind {
	case KindStringArray:
		out := make([]string, len(p.arr))
		copy(out, p.arr)
		return out, true
	case KindString:
		if p.s == "" {
			return nil, true
		}
		return []string{p.s}, true
	default:
		return nil, false
	}
}

func (p Parameter) JSON() (json.RawMessage, bool) {
	if p.kind != KindJSON {
		return nil, false
	}
	return p.rawKey, true
}

// MarshalJSON round-trips the Parameter through OAuth's mixed-shape wire
// format: scalars marshal as themselves, arrays as JSON arrays, and nested
// JSON values pass through untouched.
func (p Parameter) MarshalJSON() ([]byte, error) {
	switch p.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(p.b)
	case KindInt64:
		return json.Marshal(p.i)
	case KindString:
		return json.Marshal(p.s)
	case KindStringArray:
		return json.Marshal(p.arr)
	case KindJSON:
		return p.rawKey, nil
	default:
		return []byte("null"), nil
	}
}

func (p *Parameter) UnmarshalJSON(data []byte) error {
	var probe interface{}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	switch v := probe.(type) {
	case nil:
		*p = NullParameter()
	case bool:
		*p = BoolParameter(v)
	case float64:
		*p = Int64Parameter(int64(v))
	case string:
		*p = StringParameter(v)
	case []interface{}:
		arr := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				*p = JSONParameter(json.RawMessage(data))
				return nil
			}
			arr = append(arr, s)
		}
		*p = StringArrayParameter(arr)
	default:
		*p = JSONParameter(json.RawMessage(data))
	}
	return nil
}

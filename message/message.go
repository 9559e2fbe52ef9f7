package message

import "encoding/json"

// Message is an ordered-insertion, case-sensitive mapping from parameter
// name to Parameter. Request and Response build typed accessors on top of
// it; handlers that need a parameter the typed views don't expose fall
// back to Get/Set directly.
type Message struct {
	order  []string
	values map[string]Parameter
}

func New() *Message {
	return &Message{values: make(map[string]Parameter)}
}

// Add sets name to value only if it is not already present.
func (m *Message) Add(name string, value Parameter) {
	if m.Has(name) {
		return
	}
	m.Set(name, value)
}

// Set assigns value to name. Setting a null/empty value removes the name.
func (m *Message) Set(name string, value Parameter) {
	if value.Null() {
		m.Remove(name)
		return
	}
	if _, ok := m.values[name]; !ok {
		m.order = append(m.order, name)
	}
	m.values[name] = value
}

func (m *Message) SetString(name, value string) { m.Set(name, StringParameter(value)) }

func (m *Message) Get(name string) Parameter {
	return m.values[name]
}

func (m *Message) GetString(name string) string {
	return m.values[name].String()
}

func (m *Message) GetStringArray(name string) []string {
	arr, _ := m.values[name].StringArray()
	return arr
}

func (m *Message) Has(name string) bool {
	_, ok := m.values[name]
	return ok
}

func (m *Message) Remove(name string) {
	if _, ok := m.values[name]; !ok {
		return
	}
	delete(m.values, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *Message) Count() int { return len(m.order) }

// Names returns parameter names in insertion order.
func (m *Message) Names() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// sensitiveParameters are redacted by the debug serializer.
var sensitiveParameters = map[string]bool{
	"access_token":             true,
	"refresh_token":            true,
	"id_token":                 true,
	"id_token_hint":            true,
	"code":                     true,
	"client_secret":            true,
	"assertion":                true,
	"client_assertion":         true,
	"password":                 true,
	"token":                    true,
}

// DebugJSON serializes the message to JSON with sensitive parameters
// replaced by a redaction marker. Intended for logging, never for the wire.
func (m *Message) DebugJSON() ([]byte, error) {
	out := make(map[string]Parameter, len(m.order))
	for _, name := range m.order {
		if sensitiveParameters[name] {
			out[name] = StringParameter("[redacted]")
			continue
		}
		out[name] = m.values[name]
	}
	return json.Marshal(out)
}

// MarshalJSON emits the wire representation: a flat JSON object in
// insertion order is not representable by encoding/json's map marshaling,
// so this builds the object by hand.
func (m *Message) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, name := range m.order {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := m.values[name].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	buf = append(buf, '}')
	return buf, nil
}

func (m *Message) UnmarshalJSON(data []byte) error {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Message{values: make(map[string]Parameter)}
	for name, r := range raw {
		var p Parameter
		if err := p.UnmarshalJSON(r); err != nil {
			return err
		}
		m.Set(name, p)
	}
	return nil
}

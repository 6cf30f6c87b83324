package abi

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NotFoundError reports an unresolvable method name.
type NotFoundError struct {
	Interface string
	Method    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("abi: no method %q in interface %q", e.Method, e.Interface)
}

type interfaceJSON struct {
	Name    string       `json:"name"`
	Desc    string       `json:"desc"`
	Methods []methodJSON `json:"methods"`
}

type methodJSON struct {
	Name string    `json:"name"`
	Desc string    `json:"desc"`
	Args []argJSON `json:"args"`
	Ret  argJSON   `json:"returns"`
}

type argJSON struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Desc string `json:"desc"`
}

// Interface is the method registry for one contract program. It is built once
// and read-only afterwards, so it is safe for concurrent use.
type Interface struct {
	Name    string
	Desc    string
	methods []Method
	byName  map[string]int
}

// LoadInterface parses an interface description and validates every type.
func LoadInterface(data []byte) (*Interface, error) {
	var raw interfaceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("abi: decode interface: %w", err)
	}
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return nil, fmt.Errorf("abi: interface name is required")
	}
	iface := &Interface{
		Name:    name,
		Desc:    raw.Desc,
		methods: make([]Method, 0, len(raw.Methods)),
		byName:  make(map[string]int, len(raw.Methods)),
	}
	for _, rm := range raw.Methods {
		m, err := parseMethod(rm)
		if err != nil {
			return nil, fmt.Errorf("abi: interface %s: %w", name, err)
		}
		if _, dup := iface.byName[m.Name]; dup {
			return nil, fmt.Errorf("abi: interface %s: duplicate method %q", name, m.Name)
		}
		iface.byName[m.Name] = len(iface.methods)
		iface.methods = append(iface.methods, m)
	}
	return iface, nil
}

func parseMethod(rm methodJSON) (Method, error) {
	m := Method{
		Name: strings.TrimSpace(rm.Name),
		Desc: rm.Desc,
		Args: make([]Arg, 0, len(rm.Args)),
	}
	if m.Name == "" {
		return Method{}, fmt.Errorf("method name is required")
	}
	for i, ra := range rm.Args {
		k, err := ParseKind(ra.Type)
		if err != nil {
			return Method{}, fmt.Errorf("method %s arg %d: %w", m.Name, i, err)
		}
		if k == KindVoid {
			return Method{}, fmt.Errorf("method %s arg %d: void is not an argument type", m.Name, i)
		}
		m.Args = append(m.Args, Arg{Name: ra.Name, Type: ra.Type, Kind: k, Desc: ra.Desc})
	}
	retType := rm.Ret.Type
	if strings.TrimSpace(retType) == "" {
		retType = "void"
	}
	rk, err := ParseKind(retType)
	if err != nil {
		return Method{}, fmt.Errorf("method %s returns: %w", m.Name, err)
	}
	if rk.IsTxn() || rk == KindGroupRef {
		return Method{}, fmt.Errorf("method %s returns: %s cannot be returned", m.Name, rk)
	}
	m.Returns = Return{Type: retType, Kind: rk, Desc: rm.Ret.Desc}
	m.selector = computeSelector(m.Signature())
	return m, nil
}

func (i *Interface) Resolve(name string) (Method, error) {
	idx, ok := i.byName[name]
	if !ok {
		return Method{}, &NotFoundError{Interface: i.Name, Method: name}
	}
	return i.methods[idx].clone(), nil
}

// BySelector finds the method whose selector matches the first app argument.
func (i *Interface) BySelector(sel []byte) (Method, bool) {
	for _, m := range i.methods {
		if m.HasSelector(sel) {
			return m.clone(), true
		}
	}
	return Method{}, false
}

func (i *Interface) Methods() []Method {
	out := make([]Method, len(i.methods))
	for j, m := range i.methods {
		out[j] = m.clone()
	}
	return out
}

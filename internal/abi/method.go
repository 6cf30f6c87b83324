package abi

import (
	"bytes"
	"crypto/sha512"
	"strings"
)

type Arg struct {
	Name string
	Type string
	Kind Kind
	Desc string
}

type Return struct {
	Type string
	Kind Kind
	Desc string
}

// Method is a resolved method signature: ordered typed parameters plus the
// return type.
type Method struct {
	Name     string
	Desc     string
	Args     []Arg
	Returns  Return
	selector [4]byte
}

func (m Method) clone() Method {
	m.Args = append([]Arg(nil), m.Args...)
	return m
}

// Signature renders the canonical name(arg,...)ret form used for selectors.
func (m Method) Signature() string {
	var b strings.Builder
	b.WriteString(m.Name)
	b.WriteByte('(')
	for i, a := range m.Args {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(a.Kind.String())
	}
	b.WriteByte(')')
	b.WriteString(m.Returns.Kind.String())
	return b.String()
}

func (m Method) Selector() [4]byte {
	return m.selector
}

func (m Method) HasSelector(arg []byte) bool {
	return len(arg) == len(m.selector) && bytes.Equal(arg, m.selector[:])
}

func (m Method) TxnArgCount() int {
	n := 0
	for _, a := range m.Args {
		if a.Kind.IsTxn() {
			n++
		}
	}
	return n
}

func computeSelector(signature string) [4]byte {
	sum := sha512.Sum512_256([]byte(signature))
	var sel [4]byte
	copy(sel[:], sum[:4])
	return sel
}

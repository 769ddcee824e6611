package ast

import (
	"bytes"
	"encoding/gob"
)

func init() {
	gob.Register(Namespace{})
	gob.Register(Use{})
	gob.Register(UseGroup{})
	gob.Register(Class{})
	gob.Register(Interface{})
	gob.Register(Trait{})
	gob.Register(Function{})
	gob.Register(Method{})
	gob.Register(Property{})
	gob.Register(New{})
	gob.Register(StaticCall{})
	gob.Register(ClassConst{})
	gob.Register(Instanceof{})
	gob.Register(Include{})
	gob.Register(Other{})
}

// Encode gob-encodes a Node for the Store's ast_nodes.payload BLOB
// column.
func Encode(n Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode.
func Decode(payload []byte) (Node, error) {
	var n Node
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&n); err != nil {
		return nil, err
	}
	return n, nil
}

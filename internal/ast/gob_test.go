package ast

import "testing"

func TestEncodeDecodeRoundTripsClass(t *testing.T) {
	want := Class{
		Pos:        NewSpan(10, 120),
		Name:       "Foo",
		FQN:        `App\Foo`,
		Namespace:  "App",
		Extends:    `App\Base`,
		Implements: []string{`App\Iface`},
		IsAbstract: false,
		IsFinal:    true,
		Source:     "class Foo extends Base implements Iface {}",
	}

	payload, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	got, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	gotClass, ok := got.(Class)
	if !ok {
		t.Fatalf("Decode() returned %T, want Class", got)
	}
	if gotClass.FQN != want.FQN || gotClass.Extends != want.Extends ||
		gotClass.IsFinal != want.IsFinal || gotClass.Source != want.Source ||
		len(gotClass.Implements) != 1 || gotClass.Implements[0] != want.Implements[0] {
		t.Errorf("Decode() = %+v, want %+v", gotClass, want)
	}
}

func TestEncodeDecodeRoundTripsUseGroup(t *testing.T) {
	want := UseGroup{
		Pos:       NewSpan(0, 30),
		Namespace: "App",
		Prefix:    `Foo`,
		Imports: []UseImport{
			{FQN: `Foo\Bar`},
			{FQN: `Foo\Baz`, Alias: "Qux"},
		},
	}

	payload, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	got, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	gotGroup, ok := got.(UseGroup)
	if !ok {
		t.Fatalf("Decode() returned %T, want UseGroup", got)
	}
	if gotGroup.Kind() != KindUseGroup {
		t.Errorf("Kind() = %v, want %v", gotGroup.Kind(), KindUseGroup)
	}
	if len(gotGroup.Imports) != 2 || gotGroup.Imports[1].Alias != "Qux" {
		t.Errorf("Imports round-trip mismatch: %+v", gotGroup.Imports)
	}
}

func TestDecodeInvalidPayloadFails(t *testing.T) {
	if _, err := Decode([]byte("not a gob payload")); err == nil {
		t.Error("expected Decode() to fail on garbage input")
	}
}

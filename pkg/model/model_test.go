package model

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestObjectReferenceValidate(t *testing.T) {
	tests := []struct {
		name    string
		ref     ObjectReference
		wantErr bool
	}{
		{"logical node", "simpleIOGenericIO/GGIO1", false},
		{"attribute", "simpleIOGenericIO/GGIO1.AnIn1.mag.f", false},
		{"with fc", "simpleIOGenericIO/GGIO1.AnIn1[MX]", false},
		{"empty", "", true},
		{"no slash", "GGIO1.AnIn1", true},
		{"empty ld", "/GGIO1", true},
		{"empty ln", "LD/", true},
		{"two slashes", "LD/GGIO1/AnIn1", true},
		{"empty segment", "LD/GGIO1..mag", true},
		{"trailing dot", "LD/GGIO1.", true},
		{"whitespace", "LD/GGIO1. AnIn1", true},
		{"unknown fc", "LD/GGIO1.AnIn1[XX]", true},
		{"unclosed fc", "LD/GGIO1.AnIn1[MX", true},
		{"too long", ObjectReference("LD/" + strings.Repeat("a", MaxReferenceLength)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ref.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidReference) {
				t.Errorf("expected ErrInvalidReference, got %v", err)
			}
		})
	}
}

func TestObjectReferenceMaxLength(t *testing.T) {
	ref := ObjectReference("LD/" + strings.Repeat("a", MaxReferenceLength-3))
	if len(ref) != MaxReferenceLength {
		t.Fatalf("test setup: length %d", len(ref))
	}
	if err := ref.Validate(); err != nil {
		t.Errorf("reference of exactly %d characters should be valid: %v", MaxReferenceLength, err)
	}
}

func TestObjectReferenceChild(t *testing.T) {
	ln, err := LogicalNodeRef("simpleIOGenericIO", "GGIO1")
	if err != nil {
		t.Fatalf("LogicalNodeRef failed: %v", err)
	}
	if ln != "simpleIOGenericIO/GGIO1" {
		t.Errorf("expected simpleIOGenericIO/GGIO1, got %s", ln)
	}

	do, err := ln.Child("AnIn1")
	if err != nil {
		t.Fatalf("Child failed: %v", err)
	}
	if do != "simpleIOGenericIO/GGIO1.AnIn1" {
		t.Errorf("unexpected child reference %s", do)
	}

	for _, bad := range []string{"", "a.b", "a[MX]", "a/b", "a b"} {
		if _, err := do.Child(bad); !errors.Is(err, ErrInvalidReference) {
			t.Errorf("Child(%q): expected ErrInvalidReference, got %v", bad, err)
		}
	}

	long := ObjectReference("LD/" + strings.Repeat("a", MaxReferenceLength-5))
	if _, err := long.Child("xyz"); !errors.Is(err, ErrInvalidReference) {
		t.Errorf("expected length error, got %v", err)
	}

	if _, err := LogicalNodeRef("", "GGIO1"); err == nil {
		t.Error("expected error for empty logical device")
	}
}

func TestObjectReferenceFC(t *testing.T) {
	ref := ObjectReference("LD/GGIO1.AnIn1").WithFC(FCMX)
	if ref != "LD/GGIO1.AnIn1[MX]" {
		t.Fatalf("unexpected reference %s", ref)
	}

	base, fc, ok := ref.SplitFC()
	if !ok || fc != FCMX || base != "LD/GGIO1.AnIn1" {
		t.Errorf("SplitFC = (%s, %s, %v)", base, fc, ok)
	}

	base, fc, ok = ObjectReference("LD/GGIO1.AnIn1").SplitFC()
	if ok || fc != "" || base != "LD/GGIO1.AnIn1" {
		t.Errorf("SplitFC without suffix = (%s, %s, %v)", base, fc, ok)
	}
}

func TestNodeWalk(t *testing.T) {
	root := &Node{Name: "AnIn1", Reference: "LD/GGIO1.AnIn1", Class: ClassDataObject}
	mag := &Node{Name: "mag", Reference: "LD/GGIO1.AnIn1.mag", Class: ClassDataAttribute}
	f := &Node{Name: "f", Reference: "LD/GGIO1.AnIn1.mag.f", Class: ClassDataAttribute}
	q := &Node{Name: "q", Reference: "LD/GGIO1.AnIn1.q", Class: ClassDataAttribute}
	mag.Children = []*Node{f}
	root.Children = []*Node{mag, q}

	var order []string
	var depths []int
	err := root.Walk(func(n *Node, depth int) error {
		order = append(order, n.Name)
		depths = append(depths, depth)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	want := []string{"AnIn1", "mag", "f", "q"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("expected order %v, got %v", want, order)
	}
	if depths[2] != 2 || depths[3] != 1 {
		t.Errorf("unexpected depths %v", depths)
	}

	if got := root.Find("LD/GGIO1.AnIn1.mag.f"); got != f {
		t.Errorf("Find returned %v", got)
	}
	if got := root.Find("LD/GGIO1.AnIn1.t"); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
	if root.Count() != 4 {
		t.Errorf("expected 4 nodes, got %d", root.Count())
	}
	if !f.IsLeaf() || root.IsLeaf() {
		t.Error("unexpected IsLeaf result")
	}

	stop := errors.New("stop")
	visited := 0
	err = root.Walk(func(*Node, int) error {
		visited++
		return stop
	})
	if !errors.Is(err, stop) || visited != 1 {
		t.Errorf("expected walk to stop after first node, visited %d, err %v", visited, err)
	}
}

func TestDataSetValidate(t *testing.T) {
	ds := &DataSet{
		Reference: "LD1/LLN0.Values",
		Entries:   References("LD1/GGIO1.AnIn1[MX]", "LD1/GGIO1.AnIn2[MX]"),
	}
	if err := ds.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if ds.IndexOf("LD1/GGIO1.AnIn2[MX]") != 1 {
		t.Error("expected index 1")
	}
	if ds.IndexOf("LD1/GGIO1.AnIn3[MX]") != -1 {
		t.Error("expected index -1")
	}

	clone := ds.Clone()
	clone.Entries[0] = "LD1/GGIO1.Other"
	if ds.Entries[0] == clone.Entries[0] {
		t.Error("clone shares entries with original")
	}

	empty := &DataSet{Reference: "LD1/LLN0.Empty"}
	if err := empty.Validate(); !errors.Is(err, ErrInvalidReference) {
		t.Errorf("expected ErrInvalidReference for empty entry list, got %v", err)
	}

	bad := &DataSet{Reference: "LD1/LLN0.Bad", Entries: References("LD1/GGIO1.AnIn1", "nope")}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidReference) {
		t.Errorf("expected ErrInvalidReference for bad entry, got %v", err)
	}
}

func TestValueAccessors(t *testing.T) {
	t.Run("Float", func(t *testing.T) {
		f, ok := FloatValue(1.5).AsFloat()
		if !ok || f != 1.5 {
			t.Errorf("AsFloat = %v, %v", f, ok)
		}
		i, ok := IntValue(-3).AsFloat()
		if !ok || i != -3 {
			t.Errorf("AsFloat(int) = %v, %v", i, ok)
		}
		if _, ok := StringValue("x").AsFloat(); ok {
			t.Error("expected AsFloat to fail for a string")
		}
	})

	t.Run("Bool", func(t *testing.T) {
		b, ok := BoolValue(true).AsBool()
		if !ok || !b {
			t.Errorf("AsBool = %v, %v", b, ok)
		}
	})

	t.Run("Time", func(t *testing.T) {
		ts := time.Date(2024, 3, 1, 12, 0, 0, 5e6, time.UTC)
		got, ok := TimeValue(ts).AsTime()
		if !ok || !got.Equal(ts) {
			t.Errorf("AsTime = %v, %v", got, ok)
		}
	})

	t.Run("Structure", func(t *testing.T) {
		v := StructValue(FloatValue(2), BitStringValue([]byte{0x40}, 2))
		e, ok := v.Element(1)
		if !ok || e.Type != TypeBitString {
			t.Fatalf("Element(1) = %v, %v", e, ok)
		}
		if e.Bit(0) || !e.Bit(1) {
			t.Errorf("unexpected bits %s", e)
		}
		if _, ok := v.Element(2); ok {
			t.Error("expected out-of-range element to fail")
		}
		if v.String() != "{2, 01}" {
			t.Errorf("unexpected string %s", v.String())
		}
	})

	t.Run("AccessError", func(t *testing.T) {
		v := ErrorValue(AccessErrorObjectNonExistent)
		if !v.IsError() {
			t.Error("expected IsError")
		}
		if v.String() != "<error: object non-existent>" {
			t.Errorf("unexpected string %s", v.String())
		}
	})

	t.Run("Equal", func(t *testing.T) {
		if !ArrayValue(IntValue(1), StringValue("a")).Equal(ArrayValue(IntValue(1), StringValue("a"))) {
			t.Error("expected equal arrays")
		}
		if IntValue(1).Equal(UintValue(1)) {
			t.Error("values of different types must not be equal")
		}
	})
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		typ     ValueType
		in      string
		want    Value
		wantErr bool
	}{
		{TypeBoolean, "true", BoolValue(true), false},
		{TypeInteger, "-42", IntValue(-42), false},
		{TypeUnsigned, "0x10", UintValue(16), false},
		{TypeFloat, "1.25", FloatValue(1.25), false},
		{TypeVisibleString, "hello", StringValue("hello"), false},
		{TypeFloat, "abc", Value{}, true},
		{TypeStructure, "x", Value{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.typ.String()+"/"+tt.in, func(t *testing.T) {
			got, err := ParseValue(tt.typ, tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if typ, ok := ParseValueType("visible-string"); !ok || typ != TypeVisibleString {
		t.Errorf("ParseValueType = %v, %v", typ, ok)
	}
	if _, ok := ParseValueType("nope"); ok {
		t.Error("expected unknown type name to fail")
	}
}

func TestAccessString(t *testing.T) {
	if AccessReadWrite.String() != "RW" || AccessReadOnly.String() != "R" || Access(0).String() != "-" {
		t.Error("unexpected access strings")
	}
}

func TestFCAccess(t *testing.T) {
	tests := []struct {
		fc    FC
		read  bool
		write bool
	}{
		{FCDC, true, true},
		{FCSP, true, true},
		{FCCF, true, true},
		{FCMX, true, false},
		{FCST, true, false},
		{FCRP, true, false},
		{FCCO, false, false},
		{FC("XX"), false, false},
	}
	for _, tt := range tests {
		a := tt.fc.Access()
		if a.CanRead() != tt.read || a.CanWrite() != tt.write {
			t.Errorf("%s: access %s, want read=%v write=%v", tt.fc, a, tt.read, tt.write)
		}
	}
}

package plan

import (
	"errors"
	"testing"

	bridgeerrors "github.com/wippyai/nativebridge/errors"
)

func TestMarshallerName(t *testing.T) {
	tests := []struct {
		name        string
		typ         *Type
		annotations []string
		want        string
	}{
		{"object", Object("geo.Point"), nil, "pointMarshaller"},
		{"generic", Object("List", Object("java.lang.String")), nil, "listOfStringMarshaller"},
		{"two args", Object("Map", Object("Key"), Object("Value")), nil, "mapOfKeyAndValueMarshaller"},
		{"extends", Object("List", Extends(Object("Shape"))), nil, "listOfExtendsShapeMarshaller"},
		{"super", Object("Sink", Super(Object("Shape"))), nil, "sinkOfSuperShapeMarshaller"},
		{"wildcard", Object("Box", Wildcard()), nil, "boxOfWildcardMarshaller"},
		{"variable", Object("Box", Var("T")), nil, "boxOfTMarshaller"},
		{"array", ArrayOf(Object("Point")), nil, "pointArrayMarshaller"},
		{"primitive array", ArrayOf(Int32), nil, "int32ArrayMarshaller"},
		{"annotation", Object("Point"), []string{"@geo.Packed"}, "pointWithPackedMarshaller"},
		{"error", ErrorType, nil, "errorMarshaller"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MarshallerName(tt.typ, tt.annotations); got != tt.want {
				t.Errorf("MarshallerName = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMarshallerName_AnnotationOrderIrrelevant(t *testing.T) {
	a := MarshallerName(Object("Point"), []string{"@x.B", "@y.A"})
	b := MarshallerName(Object("Point"), []string{"@y.A", "@x.B", "@x.B"})
	if a != b {
		t.Fatalf("names differ: %q vs %q", a, b)
	}
	if a != "pointWithAWithBMarshaller" {
		t.Fatalf("got %q", a)
	}
}

func TestType_Erased(t *testing.T) {
	tests := []struct {
		in   *Type
		want string
	}{
		{Object("List", Object("String")), "List"},
		{Var("T"), "object"},
		{Extends(Object("Shape")), "Shape"},
		{Super(Object("Shape")), "object"},
		{ArrayOf(Object("List", Var("T"))), "List[]"},
		{Int64, "int64"},
	}
	for _, tt := range tests {
		if got := tt.in.Erased().String(); got != tt.want {
			t.Errorf("%s.Erased() = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestType_Shape(t *testing.T) {
	grid := ArrayOf(ArrayOf(Float64))
	if grid.Dimensions() != 2 {
		t.Errorf("Dimensions = %d, want 2", grid.Dimensions())
	}
	if grid.Component() != Float64 {
		t.Errorf("Component = %s, want float64", grid.Component())
	}
	if grid.IsPrimitiveArray() {
		t.Error("two-dimensional array is not a primitive array")
	}
	widths := map[*Type]int{Bool: 1, Int8: 1, Int16: 2, Char: 2, Int32: 4, Float32: 4, Int64: 8, Float64: 8, String: 0}
	for typ, w := range widths {
		if typ.Width() != w {
			t.Errorf("%s width = %d, want %d", typ, typ.Width(), w)
		}
	}
}

func TestPlan_Validate(t *testing.T) {
	tests := []struct {
		name string
		plan *Plan
		ok   bool
	}{
		{"value scalar", Value(Int32), true},
		{"value directional array", Value(ArrayOf(Int8), Out(Transfer{})), true},
		{"value directional string", Value(String, Out(Transfer{})), false},
		{"value directional nested", Value(ArrayOf(ArrayOf(Int8)), In(Transfer{})), false},
		{"trim on input", Value(ArrayOf(Int8), In(Transfer{TrimToResult: true})), false},
		{"reference", Reference(Object("Counter")), true},
		{"reference array", Reference(ArrayOf(Object("Counter")), SameDirection()), true},
		{"reference of scalar", Reference(Int32), false},
		{"reference with direction", Reference(Object("Counter"), Out(Transfer{})), false},
		{"custom accessor", Reference(Object("Counter"), CustomAccessor("proxy")), true},
		{"peer reference", PeerReference(Object("Counter")), true},
		{"peer reference dispatch", PeerReference(Object("Counter"), Dispatch("proxy")), false},
		{"custom", Custom(Object("Point"), nil), true},
		{"custom update", Custom(Object("Point"), nil, In(Transfer{}), Out(Transfer{})), true},
		{"custom ranged", Custom(Object("Point"), nil, Out(Transfer{LengthParam: "n"})), false},
		{"custom same direction", Custom(Object("Point"), nil, SameDirection()), false},
		{"no type", &Plan{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestNewMethod(t *testing.T) {
	buf := Param{Name: "buf", Plan: Value(ArrayOf(Int8), Out(Transfer{OffsetParam: "off", TrimToResult: true}))}
	off := Param{Name: "off", Plan: Value(Int32)}

	t.Run("valid", func(t *testing.T) {
		m, err := NewMethod(3, "read", []Param{buf, off}, Value(Int32))
		if err != nil {
			t.Fatal(err)
		}
		if i, ok := m.ParamIndex("off"); !ok || i != 1 {
			t.Fatalf("ParamIndex(off) = %d, %v", i, ok)
		}
		if got := m.OutParams(); len(got) != 1 || got[0] != 0 {
			t.Fatalf("OutParams = %v", got)
		}
	})

	tests := []struct {
		name   string
		id     uint32
		params []Param
		result *Plan
		opts   []MethodOption
	}{
		{"reserved id", ReleaseMethodID, nil, nil, nil},
		{"unknown transfer param", 1, []Param{buf}, Value(Int32), nil},
		{"trim without int result", 1, []Param{buf, off}, Value(Int64), nil},
		{"transfer param not int32", 1, []Param{buf, {Name: "off", Plan: Value(Int64)}}, Value(Int32), nil},
		{"duplicate param", 1, []Param{off, off}, nil, nil},
		{"idempotent void", 1, nil, nil, []MethodOption{Idempotent()}},
		{"idempotent with out", 1, []Param{buf, off}, Value(Int32), []MethodOption{Idempotent()}},
		{"custom dispatch without receiver", 1, nil, nil, []MethodOption{CustomDispatch()}},
		{"directional result", 1, nil, Value(ArrayOf(Int8), Out(Transfer{})), nil},
		{"void param", 1, []Param{{Name: "v", Plan: Value(Void)}}, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMethod(tt.id, "m", tt.params, tt.result, tt.opts...)
			if err == nil {
				t.Fatal("expected error")
			}
			var be *bridgeerrors.Error
			if !errors.As(err, &be) || be.Phase != bridgeerrors.PhasePlan {
				t.Fatalf("expected plan-phase error, got %v", err)
			}
		})
	}
}

func TestMethod_VoidResultNormalized(t *testing.T) {
	m := MustMethod(1, "reset", nil, Value(Void))
	if m.Result != nil {
		t.Fatal("void result should normalize to nil")
	}
}

func TestMethod_CheckErrors(t *testing.T) {
	m := MustMethod(1, "open", nil, Value(Int32), Raises("io"))
	if err := m.CheckErrors("io", ErrorsProtocol, ErrorsIsolateDeath); err != nil {
		t.Fatalf("declared categories rejected: %v", err)
	}
	if err := m.CheckErrors("io", "auth"); err == nil {
		t.Fatal("undeclared category accepted")
	}
}

func TestService(t *testing.T) {
	a := MustMethod(2, "b", nil, nil)
	b := MustMethod(1, "a", nil, nil)
	svc, err := NewService("calc", a, b)
	if err != nil {
		t.Fatal(err)
	}
	if m, err := svc.Lookup(2); err != nil || m != a {
		t.Fatalf("Lookup(2) = %v, %v", m, err)
	}
	_, err = svc.Lookup(9)
	if !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseDispatch, Kind: bridgeerrors.KindUnknownMethod}) {
		t.Fatalf("Lookup(9) error = %v, want unknown_method", err)
	}
	if m, ok := svc.Method("a"); !ok || m != b {
		t.Fatal("Method(a) not found")
	}
	if ms := svc.Methods(); ms[0] != b || ms[1] != a {
		t.Fatal("Methods not ordered by id")
	}

	if _, err := NewService("dup", a, MustMethod(2, "c", nil, nil)); err == nil {
		t.Fatal("duplicate id accepted")
	}
	if _, err := NewService("dup", a, MustMethod(3, "b", nil, nil)); err == nil {
		t.Fatal("duplicate name accepted")
	}
}

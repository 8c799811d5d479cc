package main

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/nativebridge/config"
	"github.com/wippyai/nativebridge/internal/demo"
	"github.com/wippyai/nativebridge/plan"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name   string
		method *plan.Method
		fields []string
		want   []any
	}{
		{"int array", demo.Sum, []string{"1, 2,3"}, []any{[]int32{1, 2, 3}}},
		{"empty array", demo.Sum, []string{""}, []any{[]int32{}}},
		{"output buffer", demo.Fill, []string{"4"}, []any{make([]byte, 4)}},
		{"scalars", demo.Divide, []string{"0x10", "-2"}, []any{int32(16), int32(-2)}},
		{"string", demo.Echo, []string{"a b"}, []any{"a b"}},
		{"floats", demo.Summarize, []string{"1.5,2"}, []any{[]float64{1.5, 2}}},
		{"no params", demo.Version, nil, []any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseArgs(tt.method, tt.fields)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("args (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseArgs_Errors(t *testing.T) {
	tests := []struct {
		name   string
		method *plan.Method
		fields []string
	}{
		{"arity", demo.Divide, []string{"1"}},
		{"overflow", demo.Divide, []string{"1", "99999999999"}},
		{"element", demo.Sum, []string{"1,x"}},
		{"buffer length", demo.Fill, []string{"-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseArgs(tt.method, tt.fields); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestParseReceiver(t *testing.T) {
	h, err := parseReceiver(demo.Increment, "0x2000000000001")
	if err != nil || uint64(h) != 0x2000000000001 {
		t.Fatalf("receiver = %v, %v", h, err)
	}
	if _, err := parseReceiver(demo.Increment, ""); err == nil {
		t.Fatal("missing receiver accepted")
	}
	if _, err := parseReceiver(demo.Sum, "1"); err == nil {
		t.Fatal("receiver accepted for a static method")
	}
}

func TestFormatMethod(t *testing.T) {
	got := formatMethod(demo.Fill, false)
	if got != "fill(buf: int8[] out) -> int32" {
		t.Fatalf("formatMethod = %q", got)
	}
	if got := formatMethod(demo.Divide, false); !strings.HasSuffix(got, "[raises arithmetic]") {
		t.Fatalf("formatMethod = %q", got)
	}
}

func TestCallOverWasm(t *testing.T) {
	cfg := config.Default()
	cfg.Peer.Transport = config.TransportWasm
	ctx := context.Background()

	p, err := dialPeer(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	args, err := parseArgs(demo.Fill, []string{"6"})
	if err != nil {
		t.Fatal(err)
	}
	result, err := p.ep.Call(ctx, demo.Fill, 0, args...)
	if err != nil {
		t.Fatal(err)
	}
	if got := formatResult(demo.Fill, args, result); got != "4\nbuf = \"wasm\\x00\\x00\"" {
		t.Fatalf("formatResult = %q", got)
	}
}

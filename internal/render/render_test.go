package render

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/example/tensordump/internal/container"
)

func f32le(vals ...float32) []byte {
	out := make([]byte, 0, len(vals)*4)
	for _, v := range vals {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}

	return out
}

func TestNormalizeFormat(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", FormatGo, false},
		{"go", FormatGo, false},
		{"JSON", FormatJSON, false},
		{" summary ", FormatSummary, false},
		{"xml", "", true},
	}

	for _, tc := range cases {
		got, err := NormalizeFormat(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("NormalizeFormat(%q): expected error", tc.in)
			}

			continue
		}

		if err != nil {
			t.Errorf("NormalizeFormat(%q): %v", tc.in, err)
		} else if got != tc.want {
			t.Errorf("NormalizeFormat(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestWrite_GoEmptyMapping(t *testing.T) {
	var buf bytes.Buffer

	err := Write(&buf, map[string]container.Tensor{}, FormatGo)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	if buf.String() != "map[]\n" {
		t.Errorf("output = %q; want %q", buf.String(), "map[]\n")
	}
}

func TestWrite_GoSortedEntries(t *testing.T) {
	tensors := map[string]container.Tensor{
		"b": {DType: "F32", Shape: []int{2}, Data: f32le(3, 4)},
		"a": {DType: "F32", Shape: []int{2}, Data: f32le(1, 2)},
	}

	var buf bytes.Buffer
	if err := Write(&buf, tensors, FormatGo); err != nil {
		t.Fatalf("Write: %v", err)
	}

	want := "map[a:F32[2]=[1 2] b:F32[2]=[3 4]]\n"
	if buf.String() != want {
		t.Errorf("output = %q; want %q", buf.String(), want)
	}
}

func TestWrite_GoUndecodableFallsBackToByteCount(t *testing.T) {
	tensors := map[string]container.Tensor{
		"w": {DType: "Q4_0", Shape: []int{32}, Data: make([]byte, 18)},
	}

	var buf bytes.Buffer
	if err := Write(&buf, tensors, FormatGo); err != nil {
		t.Fatalf("Write: %v", err)
	}

	want := "map[w:Q4_0[32]=(18 bytes)]\n"
	if buf.String() != want {
		t.Errorf("output = %q; want %q", buf.String(), want)
	}
}

func TestWrite_JSON(t *testing.T) {
	tensors := map[string]container.Tensor{
		"a": {DType: "F32", Shape: []int{1, 2}, Data: f32le(1.5, -2)},
		"q": {DType: "Q8_0", Shape: []int{32}, Data: make([]byte, 34)},
	}

	var buf bytes.Buffer
	if err := Write(&buf, tensors, FormatJSON); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var decoded map[string]struct {
		DType     string    `json:"dtype"`
		Shape     []int     `json:"shape"`
		Values    []float64 `json:"values"`
		DataBytes *int      `json:"data_bytes"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}

	a := decoded["a"]
	if a.DType != "F32" || len(a.Values) != 2 || a.Values[0] != 1.5 || a.Values[1] != -2 {
		t.Errorf("a = %+v; want F32 values [1.5 -2]", a)
	}

	q := decoded["q"]
	if q.DataBytes == nil || *q.DataBytes != 34 || q.Values != nil {
		t.Errorf("q = %+v; want data_bytes 34 and no values", q)
	}
}

func TestWrite_Summary(t *testing.T) {
	tensors := map[string]container.Tensor{
		"a": {DType: "F32", Shape: []int{2}, Data: f32le(1, 2)},
		"b": {DType: "F16", Shape: []int{1}, Data: []byte{0, 0x3c}},
	}

	var buf bytes.Buffer
	if err := Write(&buf, tensors, FormatSummary); err != nil {
		t.Fatalf("Write: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "2 tensors, 10 bytes") {
		t.Errorf("summary missing totals line: %q", out)
	}

	if !strings.Contains(out, "a") || !strings.Contains(out, "F16") {
		t.Errorf("summary missing entries: %q", out)
	}
}

func TestWrite_InvalidFormat(t *testing.T) {
	var buf bytes.Buffer

	err := Write(&buf, nil, "csv")
	if err == nil {
		t.Fatal("expected error for invalid format")
	}

	if buf.Len() != 0 {
		t.Errorf("output = %q; want nothing written on failure", buf.String())
	}
}

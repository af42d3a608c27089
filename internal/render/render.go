// Package render writes an accumulated tensor mapping to an output
// stream. The default rendering mirrors Go's native formatting of a map,
// with tensor payloads decoded into their element values.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/example/tensordump/internal/container"
)

const (
	FormatGo      = "go"
	FormatJSON    = "json"
	FormatSummary = "summary"
)

// NormalizeFormat validates and canonicalizes an output format name.
// An empty string selects the default Go rendering.
func NormalizeFormat(raw string) (string, error) {
	format := strings.ToLower(strings.TrimSpace(raw))
	if format == "" {
		format = FormatGo
	}
	switch format {
	case FormatGo, FormatJSON, FormatSummary:
		return format, nil
	default:
		return "", fmt.Errorf(
			"invalid output format %q (expected %s|%s|%s)",
			raw,
			FormatGo,
			FormatJSON,
			FormatSummary,
		)
	}
}

// Write renders the mapping to w in the given format.
func Write(w io.Writer, tensors map[string]container.Tensor, format string) error {
	format, err := NormalizeFormat(format)
	if err != nil {
		return err
	}

	switch format {
	case FormatJSON:
		return writeJSON(w, tensors)
	case FormatSummary:
		return writeSummary(w, tensors)
	default:
		return writeGo(w, tensors)
	}
}

// writeGo prints the mapping the way fmt prints a map: "map[...]" with
// entries sorted by key. Every element of every tensor is printed; no
// truncation is applied.
func writeGo(w io.Writer, tensors map[string]container.Tensor) error {
	var sb strings.Builder
	sb.WriteString("map[")

	for i, name := range sortedNames(tensors) {
		if i > 0 {
			sb.WriteByte(' ')
		}

		t := tensors[name]
		sb.WriteString(name)
		sb.WriteByte(':')
		sb.WriteString(t.DType)
		fmt.Fprintf(&sb, "%v=", t.Shape)

		if elems, ok := decode(t); ok {
			fmt.Fprintf(&sb, "%v", elems)
		} else {
			fmt.Fprintf(&sb, "(%d bytes)", len(t.Data))
		}
	}

	sb.WriteString("]")

	_, err := fmt.Fprintln(w, sb.String())
	if err != nil {
		return fmt.Errorf("render: write output: %w", err)
	}

	return nil
}

type jsonTensor struct {
	DType     string `json:"dtype"`
	Shape     []int  `json:"shape"`
	Values    any    `json:"values,omitempty"`
	DataBytes *int   `json:"data_bytes,omitempty"`
}

func writeJSON(w io.Writer, tensors map[string]container.Tensor) error {
	out := make(map[string]jsonTensor, len(tensors))
	for name, t := range tensors {
		shape := t.Shape
		if shape == nil {
			shape = []int{}
		}

		jt := jsonTensor{DType: t.DType, Shape: shape}
		if elems, ok := decode(t); ok {
			jt.Values = elems
		} else {
			n := len(t.Data)
			jt.DataBytes = &n
		}
		out[name] = jt
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("render: encode json: %w", err)
	}

	return nil
}

func writeSummary(w io.Writer, tensors map[string]container.Tensor) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	totalBytes := 0
	for _, name := range sortedNames(tensors) {
		t := tensors[name]
		totalBytes += len(t.Data)
		fmt.Fprintf(tw, "%s\t%s\t%v\t%d B\n", name, t.DType, t.Shape, len(t.Data))
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("render: write summary: %w", err)
	}

	_, err := fmt.Fprintf(w, "%d tensors, %d bytes\n", len(tensors), totalBytes)
	if err != nil {
		return fmt.Errorf("render: write summary: %w", err)
	}

	return nil
}

func sortedNames(tensors map[string]container.Tensor) []string {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

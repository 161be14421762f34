// Package settings models the session-setting overrides produced as a side
// effect of successful authentication (from an HTTP authentication server
// response or from a JWT payload).
package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Change is a single setting override. Value is a JSON scalar: string,
// float64, int64, bool or nil.
type Change struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Changes is an ordered collection of overrides. A later change for the same
// name wins when applied.
type Changes []Change

// Add appends one change.
func (c *Changes) Add(name string, value any) {
	*c = append(*c, Change{Name: name, Value: value})
}

// Merge appends all of other.
func (c *Changes) Merge(other Changes) {
	*c = append(*c, other...)
}

// Map returns the effective value per setting name.
func (c Changes) Map() map[string]any {
	out := make(map[string]any, len(c))
	for _, ch := range c {
		out[ch.Name] = ch.Value
	}
	return out
}

// String renders the changes as "a=1, b=x" in insertion order.
func (c Changes) String() string {
	parts := make([]string, 0, len(c))
	for _, ch := range c {
		parts = append(parts, ch.Name+"="+FormatValue(ch.Value))
	}
	return strings.Join(parts, ", ")
}

// FormatValue renders a scalar setting value.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprint(x)
	}
}

// Flatten converts a decoded JSON tree into dotted-path changes.
//
// Object members become "prefix.key" and array elements become
// "prefix[i]". Object keys are visited in sorted order so the result is
// deterministic. Scalars at the root produce a single change named prefix.
// Null members are skipped.
func Flatten(prefix string, tree any) Changes {
	var out Changes
	flattenInto(&out, prefix, tree)
	return out
}

func flattenInto(out *Changes, path string, node any) {
	switch n := node.(type) {
	case map[string]any:
		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := k
			if path != "" {
				child = path + "." + k
			}
			flattenInto(out, child, n[k])
		}
	case []any:
		for i, v := range n {
			flattenInto(out, path+"["+strconv.Itoa(i)+"]", v)
		}
	case nil:
		// JSON null carries no setting value.
	default:
		out.Add(path, n)
	}
}

// DecodeJSON decodes a single JSON document. Numbers become int64 when they
// are integral and float64 otherwise, so that callers can tell integer
// claims from floating point ones.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return normalizeNumbers(v), nil
}

func normalizeNumbers(node any) any {
	switch n := node.(type) {
	case map[string]any:
		for k, v := range n {
			n[k] = normalizeNumbers(v)
		}
		return n
	case []any:
		for i, v := range n {
			n[i] = normalizeNumbers(v)
		}
		return n
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		f, _ := n.Float64()
		return f
	default:
		return node
	}
}

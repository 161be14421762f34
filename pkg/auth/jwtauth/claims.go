package jwtauth

import (
	"fmt"
	"strconv"

	"github.com/marmos91/extauth/internal/logger"
	"github.com/marmos91/extauth/pkg/settings"
)

// ParseClaimsPredicate decodes a claims predicate. An empty string means no
// predicate (nil). A non-empty predicate must be a JSON object.
func ParseClaimsPredicate(claims string) (map[string]any, error) {
	if claims == "" {
		return nil, nil
	}
	v, err := settings.DecodeJSON([]byte(claims))
	if err != nil {
		return nil, fmt.Errorf("bad claims predicate: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("bad claims predicate: not an object")
	}
	return obj, nil
}

// MatchClaims reports whether payload satisfies predicate.
//
// Objects match when every predicate key is present in the payload with a
// matching value; extra payload keys are ignored. Arrays match when the
// payload is at least as long and every predicate element matches some
// payload element. Scalars match when both type and value are equal, with
// integers and floating point numbers treated as distinct types.
func MatchClaims(predicate, payload any) bool {
	return matchClaims(predicate, payload, "")
}

func matchClaims(predicate, payload any, path string) bool {
	switch p := predicate.(type) {
	case map[string]any:
		obj, ok := payload.(map[string]any)
		if !ok {
			traceMismatch(path, "object")
			return false
		}
		for k, pv := range p {
			v, ok := obj[k]
			if !ok {
				logger.Trace("Claim key not found in JWT payload", logger.KeyPath, path+"."+k)
				return false
			}
			if !matchClaims(pv, v, path+"."+k) {
				return false
			}
		}
		return true

	case []any:
		arr, ok := payload.([]any)
		if !ok {
			traceMismatch(path, "array")
			return false
		}
		if len(p) > len(arr) {
			logger.Trace("JWT payload array shorter than claim", logger.KeyPath, path)
			return false
		}
		for i, pv := range p {
			elemPath := path + "[" + strconv.Itoa(i) + "]"
			found := false
			for _, v := range arr {
				if matchClaims(pv, v, elemPath) {
					found = true
					break
				}
			}
			if !found {
				logger.Trace("JWT payload has no element matching claim", logger.KeyPath, elemPath)
				return false
			}
		}
		return true

	case bool:
		return matchScalar(p, payload, path, "bool")
	case string:
		return matchScalar(p, payload, path, "string")
	case int64, float64:
		return matchNumber(p, payload, path)

	default:
		logger.Error("JWT claim has an unsupported type", logger.KeyPath, path, "type", fmt.Sprintf("%T", predicate))
		return false
	}
}

func matchScalar[T comparable](want T, payload any, path, kind string) bool {
	got, ok := payload.(T)
	if !ok {
		traceMismatch(path, kind)
		return false
	}
	if got != want {
		logger.Trace("JWT payload value does not match claim",
			logger.KeyPath, path,
			"expected", want,
			"actual", got)
		return false
	}
	return true
}

// matchNumber compares integers exactly and mixed integer/float values
// numerically, so 1 and 1.0 are equal.
func matchNumber(want, payload any, path string) bool {
	if w, ok := want.(int64); ok {
		if g, ok := payload.(int64); ok {
			return matchScalar(w, g, path, "integer")
		}
	}
	w, ok := asFloat(want)
	if !ok {
		return false
	}
	g, ok := asFloat(payload)
	if !ok {
		traceMismatch(path, "number")
		return false
	}
	return matchScalar(w, g, path, "number")
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func traceMismatch(path, kind string) {
	logger.Trace("JWT payload type does not match claim", logger.KeyPath, path, "type", kind)
}

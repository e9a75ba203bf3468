package providers

import "strings"

const (
	TypeServiceUnavailable = "service_unavailable"
	TypeRateLimit          = "rate_limit"
	TypeBadRequest         = "bad_request"
	TypeInternal           = "internal_error"
)

type Classification struct {
	Status int
	Type   string
}

type matcher struct {
	needles []string
	class   Classification
}

// Upstream errors carry no reliable structured code, so classification is an
// ordered substring heuristic over the error text. First match wins.
var matchers = []matcher{
	{needles: []string{`"code":503`, "overloaded"}, class: Classification{Status: 503, Type: TypeServiceUnavailable}},
	{needles: []string{`"code":429`, "quota"}, class: Classification{Status: 429, Type: TypeRateLimit}},
	{needles: []string{`"code":400`, "invalid"}, class: Classification{Status: 400, Type: TypeBadRequest}},
}

func Classify(err error) Classification {
	if err == nil {
		return Classification{Status: 500, Type: TypeInternal}
	}
	// Collapse whitespace so `"code": 429` and `"code":429` both match.
	msg := strings.ToLower(strings.ReplaceAll(err.Error(), " ", ""))
	for _, m := range matchers {
		for _, needle := range m.needles {
			if strings.Contains(msg, needle) {
				return m.class
			}
		}
	}
	return Classification{Status: 500, Type: TypeInternal}
}

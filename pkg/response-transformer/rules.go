package responsetransformer

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// Rules adjust the caching headers of origin responses.
// The first matching rule wins.
type Rules []Rule

type Rule struct {
	Prefix string `yaml:"prefix"`
	Path   string `yaml:"path"`
	// Method defaults to GET, which also matches HEAD.
	Method string `yaml:"method"`
	// Statuses the rule applies to, 200 if empty.
	Statuses []int `yaml:"statuses"`
	// Default Cache-Control, set when the origin sent none.
	Default string `yaml:"default"`
	// Override replaces the Cache-Control of the origin.
	Override string            `yaml:"override"`
	Query    map[string]string `yaml:"query"`
	Headers  map[string]string `yaml:"headers"`
}

// Apply applies the first rule matching the response's request.
// It is meant to be used as a network response modifier.
func (r Rules) Apply(res *http.Response) error {
	if res.Request == nil {
		return nil
	}
	if rule := r.find(res.Request); rule != nil && rule.appliesTo(res.StatusCode) {
		applyRuleToResponse(*rule, res)
	}
	return nil
}

func applyRuleToResponse(rule Rule, res *http.Response) {
	if rule.Override != "" {
		log.Trace().Str("path", res.Request.URL.Path).Msg("Overriding Cache-Control header")
		res.Header.Set("Cache-Control", rule.Override)
	} else if rule.Default != "" && res.Header.Get("Cache-Control") == "" {
		log.Trace().Str("path", res.Request.URL.Path).Msg("Applying default Cache-Control header")
		res.Header.Set("Cache-Control", rule.Default)
	}
	for name, value := range rule.Headers {
		res.Header.Set(name, value)
	}
}

func (rule Rule) appliesTo(statusCode int) bool {
	if len(rule.Statuses) == 0 {
		return statusCode == http.StatusOK
	}
	for _, s := range rule.Statuses {
		if s == statusCode {
			return true
		}
	}
	return false
}

func (r Rules) find(req *http.Request) *Rule {
	for i := range r {
		if r[i].matches(req) {
			return &r[i]
		}
	}
	return nil
}

func (rule Rule) matches(req *http.Request) bool {
	method := rule.Method
	if method == "" {
		method = http.MethodGet
	}
	if req.Method != method && !(method == http.MethodGet && req.Method == http.MethodHead) {
		return false
	}
	if rule.Path != "" && rule.Path != req.URL.Path {
		return false
	}
	if rule.Prefix != "" && !strings.HasPrefix(req.URL.Path, rule.Prefix) {
		return false
	}
	if len(rule.Query) > 0 {
		qry := req.URL.Query()
		for name, value := range rule.Query {
			if value == "" && !qry.Has(name) {
				return false
			} else if value != "" && qry.Get(name) != value {
				return false
			}
		}
	}
	return true
}

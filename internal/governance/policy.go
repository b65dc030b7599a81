package governance

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request describes a page load a run is about to perform.
type Request struct {
	URL string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine decides whether a run may load a URL.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine allows everything except denied hosts and URLs that
// match a denied pattern. When AllowedSchemes is non-empty only those
// schemes pass.
type DefaultPolicyEngine struct {
	DeniedHosts    map[string]bool
	DeniedRegex    []*regexp.Regexp
	AllowedSchemes map[string]bool
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedHosts:    make(map[string]bool),
		DeniedRegex:    make([]*regexp.Regexp, 0),
		AllowedSchemes: make(map[string]bool),
	}
}

func (e *DefaultPolicyEngine) DenyHost(host string) {
	e.DeniedHosts[strings.ToLower(host)] = true
}

func (e *DefaultPolicyEngine) DenyURLs(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) AllowScheme(scheme string) {
	e.AllowedSchemes[strings.ToLower(scheme)] = true
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return Result{}, fmt.Errorf("parse url %q: %w", req.URL, err)
	}

	if len(e.AllowedSchemes) > 0 && !e.AllowedSchemes[strings.ToLower(u.Scheme)] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Scheme '%s' is not allowed", u.Scheme),
		}, nil
	}

	if e.DeniedHosts[strings.ToLower(u.Hostname())] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Host '%s' is restricted by navigation policy", u.Hostname()),
		}, nil
	}

	for _, re := range e.DeniedRegex {
		if re.MatchString(req.URL) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("URL matches restricted pattern: %s", re.String()),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}

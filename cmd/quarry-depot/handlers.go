package main

import (
	"context"
	"net/url"
	"regexp"

	"github.com/justapithecus/quarry-depot/session"
	"github.com/justapithecus/quarry-depot/types"
)

// hrefPattern extracts href attribute values. No HTML-parsing library
// appears in this module's dependency set or anywhere in the example pack
// this module is grounded on (see DESIGN.md); a regexp over raw bytes is
// the stdlib fallback rather than an ungrounded new dependency.
var hrefPattern = regexp.MustCompile(`(?i)href\s*=\s*["']([^"']+)["']`)

// LinkFollowerHandler is the built-in demo types.Handler registered under
// the name "links": it extracts every href from a fetched page and
// registers the resolved links for a future fetch. It exists so `quarry-
// depot run` is exercisable end-to-end without a caller-supplied Go
// Handler implementation; real deployments register their own handlers in
// handlerRegistry instead.
type LinkFollowerHandler struct {
	base       *url.URL
	discovered []types.RegistrationEvent
}

// NewLinkFollowerHandler returns a fresh handler instance; runnerFactory.run
// builds one per task.
func NewLinkFollowerHandler() *LinkFollowerHandler {
	return &LinkFollowerHandler{}
}

func (h *LinkFollowerHandler) Descriptor() types.HandlerDescriptor {
	return types.HandlerDescriptor{
		Name:                 "links",
		MaxRetries:           3,
		InitiationRetries:    1,
		RequiredCapabilities: map[string]int{"net": 1},
	}
}

func (h *LinkFollowerHandler) StartSession(ctx context.Context, driver any) error { return nil }

func (h *LinkFollowerHandler) SetURL(raw string) {
	u, err := url.Parse(raw)
	if err != nil {
		h.base = nil
		return
	}
	h.base = u
}

func (h *LinkFollowerHandler) GetSleepTime() float64 { return 0 }

func (h *LinkFollowerHandler) GetRetrySleepTime() float64 { return session.DefaultBackoff() }

func (h *LinkFollowerHandler) PreParse(raw []byte) (any, error) { return string(raw), nil }

// linksParseResult is the handler's parsed output: every link it resolved
// from the fetched page, persisted as the Collection event's output blob
// (spec §2 data flow) in addition to being registered for a future fetch.
type linksParseResult struct {
	SourceURL string   `json:"source_url"`
	Links     []string `json:"links"`
}

func (h *LinkFollowerHandler) Parse(pre any) (any, error) {
	body, _ := pre.(string)
	result := linksParseResult{}
	if h.base != nil {
		result.SourceURL = h.base.String()
	}
	for _, m := range hrefPattern.FindAllStringSubmatch(body, -1) {
		resolved := h.ExtendLink(m[1])
		if resolved == "" {
			continue
		}
		h.discovered = append(h.discovered, types.RegistrationEvent{HandlerName: "links", URL: resolved})
		result.Links = append(result.Links, resolved)
	}
	return result, nil
}

func (h *LinkFollowerHandler) LoadCache(url string) (any, error) { return nil, nil }

func (h *LinkFollowerHandler) IsSessionBroken(result types.FetchResult) bool {
	return result.Kind == types.FetchBrokenSession
}

func (h *LinkFollowerHandler) PopRegisteredLinks() []types.RegistrationEvent {
	out := h.discovered
	h.discovered = nil
	return out
}

func (h *LinkFollowerHandler) ExtendLink(raw string) string {
	if h.base == nil {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return h.base.ResolveReference(u).String()
}

var _ types.Handler = (*LinkFollowerHandler)(nil)

// handlerRegistry maps a handler name, as stored against a queued
// source-URL row, to a constructor for the types.Handler instance
// session.Worker.RunTask drives (spec §9: "dynamic handler registration
// becomes an explicit registry").
var handlerRegistry = map[string]func() types.Handler{
	"links": func() types.Handler { return NewLinkFollowerHandler() },
}

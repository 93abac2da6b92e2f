package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/justapithecus/quarry-depot/types"
)

func TestLinkFollowerHandler_ParseExtractsHrefs(t *testing.T) {
	h := NewLinkFollowerHandler()
	h.SetURL("https://example.com/a/index.html")

	body := []byte(`<a href="b.html">next</a><a href='https://other.test/x'>x</a>`)
	pre, err := h.PreParse(body)
	require.NoError(t, err)

	_, err = h.Parse(pre)
	require.NoError(t, err)

	links := h.PopRegisteredLinks()
	require.Len(t, links, 2)
	require.Equal(t, "https://example.com/a/b.html", links[0].URL)
	require.Equal(t, "https://other.test/x", links[1].URL)
	require.Equal(t, "links", links[0].HandlerName)
}

func TestLinkFollowerHandler_ParseReturnsNonNilPayload(t *testing.T) {
	h := NewLinkFollowerHandler()
	h.SetURL("https://example.com/")

	pre, err := h.PreParse([]byte(`<a href="/one">one</a>`))
	require.NoError(t, err)

	parsed, err := h.Parse(pre)
	require.NoError(t, err)
	require.NotNil(t, parsed)

	result, ok := parsed.(linksParseResult)
	require.True(t, ok)
	require.Equal(t, "https://example.com/", result.SourceURL)
	require.Equal(t, []string{"https://example.com/one"}, result.Links)
}

func TestLinkFollowerHandler_PopRegisteredLinksDrainsBuffer(t *testing.T) {
	h := NewLinkFollowerHandler()
	h.SetURL("https://example.com/")
	pre, _ := h.PreParse([]byte(`<a href="/one">one</a>`))
	_, _ = h.Parse(pre)

	require.Len(t, h.PopRegisteredLinks(), 1)
	require.Empty(t, h.PopRegisteredLinks())
}

func TestLinkFollowerHandler_ExtendLinkWithoutBase(t *testing.T) {
	h := NewLinkFollowerHandler()
	require.Equal(t, "relative", h.ExtendLink("relative"))
}

func TestLinkFollowerHandler_IsSessionBroken(t *testing.T) {
	h := NewLinkFollowerHandler()
	require.True(t, h.IsSessionBroken(types.FetchResult{Kind: types.FetchBrokenSession}))
	require.False(t, h.IsSessionBroken(types.FetchResult{Kind: types.FetchOK}))
}

func TestHandlerRegistry_KnownHandlers(t *testing.T) {
	ctor, ok := handlerRegistry["links"]
	require.True(t, ok)
	require.Equal(t, "links", ctor().Descriptor().Name)
}

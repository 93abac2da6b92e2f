// Package browsersession sketches a browser-driven session.Session
// implementation for handlers whose targets require JS rendering (spec
// §4.G: "either a request-based session or a browser-driven session").
// It is out of scope to implement a full browser driver here; this stub
// documents the contract a real implementation (e.g. over chromedp) would
// satisfy.
package browsersession

import (
	"context"
	"errors"

	"github.com/justapithecus/quarry-depot/session"
	"github.com/justapithecus/quarry-depot/types"
)

// ErrNotImplemented is returned by every Session method; construct a real
// driver-backed Session to use browser-driven handlers.
var ErrNotImplemented = errors.New("browsersession: not implemented")

// Session is an unimplemented placeholder satisfying session.Session.
type Session struct{}

var _ session.Session = (*Session)(nil)

// New returns a stub Session.
func New() *Session { return &Session{} }

func (s *Session) Get(ctx context.Context, url string) types.FetchResult {
	return types.FetchResult{Kind: types.FetchOther, Err: ErrNotImplemented}
}

func (s *Session) Close() error { return nil }

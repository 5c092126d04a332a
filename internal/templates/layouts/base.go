package layouts

import (
	"context"
	"io"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/seif/internal/middleware"
)

// navLink is one entry in the header navigation.
type navLink struct {
	Href  string
	Label string
	Admin bool
}

var navLinks = []navLink{
	{Href: "/", Label: "Vault"},
	{Href: "/privacy", Label: "Privacy"},
	{Href: "/api/v1/admin/audit", Label: "Audit", Admin: true},
}

// Base wraps body in the HTML shell: head, navigation, flash banners and
// the logout form for signed-in sessions.
func Base(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := NewPrinter(w)
		p.Raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		p.Raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		p.Raw(`<title>`)
		p.Text(title)
		p.Raw(` | Seif</title><link rel="stylesheet" href="/static/css/app.css"></head><body>`)

		p.Raw(`<header class="topbar"><a class="brand" href="/">Seif</a><nav>`)
		active := GetActivePath(ctx)
		for _, l := range navLinks {
			if l.Admin && !GetIsAdmin(ctx) {
				continue
			}
			p.Raw(`<a href="`)
			p.Text(l.Href)
			if l.Href == active {
				p.Raw(`" class="active`)
			}
			p.Raw(`">`)
			p.Text(l.Label)
			p.Raw(`</a>`)
		}
		p.Raw(`</nav>`)
		if IsAuthenticated(ctx) {
			p.Raw(`<form method="post" action="/account/logout" class="logout">`)
			CSRFField(ctx, p)
			p.Raw(`<span class="owner">`)
			p.Text(GetOwnerKey(ctx))
			p.Raw(`</span><button type="submit">Sign out</button></form>`)
		}
		p.Raw(`</header><main>`)

		if msg := GetFlashSuccess(ctx); msg != "" {
			p.Raw(`<div class="flash success" role="status">`)
			p.Text(msg)
			p.Raw(`</div>`)
		}
		if msg := GetFlashError(ctx); msg != "" {
			p.Raw(`<div class="flash error" role="alert">`)
			p.Text(msg)
			p.Raw(`</div>`)
		}
		if p.Err() != nil {
			return p.Err()
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		p.Raw(`</main></body></html>`)
		return p.Err()
	})
}

// CSRFField writes the hidden CSRF input for a form.
func CSRFField(ctx context.Context, p *Printer) {
	p.Raw(`<input type="hidden" name="csrf_token" value="`)
	p.Text(middleware.CSRFTokenFrom(ctx))
	p.Raw(`">`)
}

// Printer writes markup, remembering the first write error so callers can
// check once at the end.
type Printer struct {
	w   io.Writer
	err error
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Raw writes trusted markup.
func (p *Printer) Raw(s string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, s)
}

// Text writes s HTML-escaped.
func (p *Printer) Text(s string) {
	p.Raw(templ.EscapeString(s))
}

// Err returns the first write error.
func (p *Printer) Err() error { return p.err }

// Package pages holds the server-rendered pages. Each page is a
// templ.Component wrapped in the layouts.Base shell; the vault itself is
// driven through the JSON API.
package pages

import (
	"context"
	"io"
	"strconv"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/seif/internal/templates/layouts"
)

// Login steps.
const (
	StepCredentials   = "credentials"
	StepCode          = "code"
	StepResetRequest  = "reset-request"
	StepResetCode     = "reset-code"
	StepResetPassword = "reset-password"
)

// LoginView is the state of the sign-in page.
type LoginView struct {
	Step            string
	Email           string
	Info            string
	Error           string
	PlatformEnabled bool
	CooldownSeconds int
}

func component(fn func(ctx context.Context, p *layouts.Printer)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := layouts.NewPrinter(w)
		fn(ctx, p)
		return p.Err()
	})
}

// Landing is the root page: a welcome for anonymous visitors and the vault
// overview once signed in.
func Landing() templ.Component {
	return layouts.Base("Home", component(func(ctx context.Context, p *layouts.Printer) {
		if !layouts.IsAuthenticated(ctx) {
			p.Raw(`<section class="hero"><h1>Seif</h1>`)
			p.Raw(`<p>Encrypted storage for the passwords and notes you share at work.</p>`)
			p.Raw(`<a class="button" href="/account/login">Sign in</a></section>`)
			return
		}
		p.Raw(`<section><h1>Your vault</h1><p>Signed in as <strong>`)
		p.Text(layouts.GetOwnerKey(ctx))
		p.Raw(`</strong>.</p><ul class="links">`)
		p.Raw(`<li><a href="/api/v1/secrets">Secrets</a></li>`)
		p.Raw(`<li><a href="/api/v1/notes">Notes</a></li>`)
		p.Raw(`<li><a href="/api/v1/inbox">Inbox</a></li></ul></section>`)
	}))
}

// Privacy is the public privacy notice.
func Privacy() templ.Component {
	return layouts.Base("Privacy", component(func(_ context.Context, p *layouts.Printer) {
		p.Raw(`<article><h1>Privacy</h1>`)
		p.Raw(`<p>Passwords and details are encrypted before they are stored. Titles, saved usernames and a keyword index of details are kept unencrypted so you can search them.</p>`)
		p.Raw(`<p>Sign-ins, reveals, shares and deletions are recorded in an audit log with your email address, IP address and browser. Audit entries are kept for the retention period set by the administrators.</p>`)
		p.Raw(`<p>One-time codes are only ever sent to your email address and are never stored after use.</p></article>`)
	}))
}

// ErrorPage renders a full-page error.
func ErrorPage(code int, message string) templ.Component {
	return layouts.Base("Error", component(func(_ context.Context, p *layouts.Printer) {
		p.Raw(`<section class="error"><h1>`)
		p.Text(strconv.Itoa(code))
		p.Raw(`</h1><p>`)
		p.Text(message)
		p.Raw(`</p><a href="/">Back to start</a></section>`)
	}))
}

// Login renders the sign-in page at the given step.
func Login(v LoginView) templ.Component {
	return layouts.Base("Sign in", component(func(ctx context.Context, p *layouts.Printer) {
		p.Raw(`<section class="login">`)
		if v.Error != "" {
			p.Raw(`<div class="flash error" role="alert">`)
			p.Text(v.Error)
			p.Raw(`</div>`)
		}
		if v.Info != "" {
			p.Raw(`<div class="flash success" role="status">`)
			p.Text(v.Info)
			p.Raw(`</div>`)
		}

		switch v.Step {
		case StepCode:
			codeForm(ctx, p, "/account/verify", "Enter the 6-digit code we emailed you")
		case StepResetRequest:
			emailForm(ctx, p, "/account/password/forgot", "Reset password", v.Email)
		case StepResetCode:
			codeForm(ctx, p, "/account/password/verify", "Enter the reset code we emailed you")
		case StepResetPassword:
			p.Raw(`<h1>Choose a new password</h1><form method="post" action="/account/password/reset">`)
			layouts.CSRFField(ctx, p)
			p.Raw(`<label>New password <input type="password" name="password" autocomplete="new-password" required minlength="12"></label>`)
			p.Raw(`<label>Confirm <input type="password" name="confirm" autocomplete="new-password" required></label>`)
			p.Raw(`<button type="submit">Save password</button></form>`)
		default:
			credentialsForms(ctx, p, v)
		}

		if v.CooldownSeconds > 0 {
			p.Raw(`<p class="hint">You can request a new code in `)
			p.Text(strconv.Itoa(v.CooldownSeconds))
			p.Raw(` seconds.</p>`)
		}
		p.Raw(`</section>`)
	}))
}

func credentialsForms(ctx context.Context, p *layouts.Printer, v LoginView) {
	p.Raw(`<h1>Sign in</h1><form method="post" action="/account/login">`)
	layouts.CSRFField(ctx, p)
	p.Raw(`<label>Email <input type="email" name="email" autocomplete="username" required value="`)
	p.Text(v.Email)
	p.Raw(`"></label><label>Password <input type="password" name="password" autocomplete="current-password" required></label>`)
	p.Raw(`<button type="submit">Sign in</button>`)
	p.Raw(`<button type="submit" formaction="/account/register">Create account</button></form>`)
	p.Raw(`<p><a href="/account/login?step=`)
	p.Text(StepResetRequest)
	p.Raw(`">Forgot password?</a></p>`)

	emailForm(ctx, p, "/account/external/send-code", "External access (email code only)", "")

	if v.PlatformEnabled {
		p.Raw(`<h2>Company sign-in</h2><form method="post" action="/account/platform/send-code">`)
		layouts.CSRFField(ctx, p)
		p.Raw(`<button type="submit">Email me a code</button></form>`)
	}
}

func emailForm(ctx context.Context, p *layouts.Printer, action, heading, email string) {
	p.Raw(`<h2>`)
	p.Text(heading)
	p.Raw(`</h2><form method="post" action="`)
	p.Text(action)
	p.Raw(`">`)
	layouts.CSRFField(ctx, p)
	p.Raw(`<label>Email <input type="email" name="email" required value="`)
	p.Text(email)
	p.Raw(`"></label><button type="submit">Send code</button></form>`)
}

func codeForm(ctx context.Context, p *layouts.Printer, action, heading string) {
	p.Raw(`<h1>`)
	p.Text(heading)
	p.Raw(`</h1><form method="post" action="`)
	p.Text(action)
	p.Raw(`">`)
	layouts.CSRFField(ctx, p)
	p.Raw(`<label>Code <input name="code" inputmode="numeric" autocomplete="one-time-code" pattern="[0-9]{6}" maxlength="6" required></label>`)
	p.Raw(`<button type="submit">Verify</button></form>`)
}

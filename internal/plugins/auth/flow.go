package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/keyxmakerx/seif/internal/apperror"
	"github.com/keyxmakerx/seif/internal/identity"
	"github.com/keyxmakerx/seif/internal/otp"
	"github.com/keyxmakerx/seif/internal/plugins/audit"
	"github.com/keyxmakerx/seif/internal/plugins/smtp"
	"github.com/keyxmakerx/seif/internal/session"
)

// Flow statuses reported in FlowResponse.Status.
const (
	StatusCodeSent      = "code_sent"
	StatusValidated     = "validated"
	StatusResetVerified = "reset_verified"
	StatusPasswordReset = "password_reset"
	StatusSignedOut     = "signed_out"
)

// Audit reasons specific to the sign-in flows.
const (
	reasonPlatformMissing  = "PlatformUser_Missing"
	reasonPlatformOff      = "PlatformAuth_Disabled"
	reasonNoAccount        = "NoAccount"
	reasonResetNotVerified = "Reset_NotVerified"
)

// IdentityResolver maps a platform identity to an owner key.
type IdentityResolver interface {
	Resolve(ctx context.Context, platformUser string) identity.Resolution
}

// SessionState is the part of a session the flows read and write.
// *session.Handle satisfies it.
type SessionState interface {
	State() otp.State
	StateAt(prefix string) otp.State
	Save(ctx context.Context, s otp.State) error
	SaveAt(ctx context.Context, prefix string, s otp.State) error
	Regenerate(ctx context.Context) error
	Clear(ctx context.Context) error
}

var _ SessionState = (*session.Handle)(nil)

// FlowConfig tunes the sign-in flows.
type FlowConfig struct {
	// AllowedDomains restricts external and registering emails; empty
	// allows any domain.
	AllowedDomains []string
}

// Flow runs the sign-in state machine against a session. Every transition
// is audited; codes and passwords never reach the audit log.
type Flow struct {
	accounts AuthService
	resolver IdentityResolver
	mail     smtp.Sender
	audit    audit.Logger
	cfg      FlowConfig
	now      func() time.Time
	random   io.Reader
}

// NewFlow creates the flow runner. resolver may be nil, which disables the
// platform channel. now and random default to the wall clock and
// crypto/rand.
func NewFlow(accounts AuthService, resolver IdentityResolver, mail smtp.Sender, auditLog audit.Logger, cfg FlowConfig, now func() time.Time, random io.Reader) *Flow {
	if now == nil {
		now = time.Now
	}
	if random == nil {
		random = rand.Reader
	}
	return &Flow{
		accounts: accounts,
		resolver: resolver,
		mail:     mail,
		audit:    auditLog,
		cfg:      cfg,
		now:      now,
		random:   random,
	}
}

// PlatformEnabled reports whether the platform identity channel is wired.
func (f *Flow) PlatformEnabled() bool {
	return f.resolver != nil
}

// Register creates an account and mails a sign-in code to it.
func (f *Flow) Register(ctx context.Context, s SessionState, req CredentialsRequest) (FlowResponse, error) {
	email := identity.Normalize(req.Email)
	if req.Confirm != "" && req.Confirm != req.Password {
		err := apperror.NewValidation("passwords do not match")
		f.fail(ctx, audit.EventRegister, email, err, map[string]any{"email": email})
		return FlowResponse{}, err
	}

	account, err := f.accounts.Register(ctx, req.Email, req.Password)
	if err != nil {
		f.fail(ctx, audit.EventRegister, email, err, map[string]any{"email": email})
		return FlowResponse{}, err
	}
	f.audit.Log(ctx, audit.Entry{
		EventType:  audit.EventRegister,
		Actor:      account.Email,
		TargetType: "Account",
		TargetID:   account.ID,
		Details:    map[string]any{"email": account.Email, "isAdmin": account.IsAdmin},
	})

	return f.issueLogin(ctx, s, otp.Subject{OwnerKey: identity.FromEmail(account.Email).OwnerKey, Channel: otp.ChannelPassword}, audit.EventSendCode)
}

// Login checks the password and mails a sign-in code.
func (f *Flow) Login(ctx context.Context, s SessionState, req CredentialsRequest) (FlowResponse, error) {
	email := identity.Normalize(req.Email)

	account, err := f.accounts.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		f.fail(ctx, audit.EventLogin, email, err, map[string]any{"email": email})
		return FlowResponse{}, err
	}
	f.audit.Log(ctx, audit.Entry{
		EventType:  audit.EventLogin,
		Actor:      account.Email,
		TargetType: "Account",
		TargetID:   account.ID,
	})

	return f.issueLogin(ctx, s, otp.Subject{OwnerKey: identity.FromEmail(account.Email).OwnerKey, Channel: otp.ChannelPassword}, audit.EventSendCode)
}

// ExternalSendCode mails a code to an email address with no password. The
// address itself becomes the owner key once the code is verified.
func (f *Flow) ExternalSendCode(ctx context.Context, s SessionState, email string) (FlowResponse, error) {
	normalized, err := identity.ValidateEmail(email, f.cfg.AllowedDomains)
	if err != nil {
		appErr := apperror.NewValidation("enter a valid company email address").WithReason(apperror.ReasonInvalidEmail)
		f.fail(ctx, audit.EventExtSendCode, identity.Normalize(email), appErr, map[string]any{"email": identity.Normalize(email)})
		return FlowResponse{}, appErr
	}

	return f.issueLogin(ctx, s, otp.Subject{OwnerKey: identity.FromEmail(normalized).OwnerKey, Channel: otp.ChannelExternal}, audit.EventExtSendCode)
}

// PlatformSendCode resolves the platform identity asserted by the trusted
// proxy and mails a code to the resolved address.
func (f *Flow) PlatformSendCode(ctx context.Context, s SessionState, platformUser string) (FlowResponse, error) {
	if f.resolver == nil {
		err := apperror.NewBadRequest("company sign-in is not enabled").WithReason(reasonPlatformOff)
		f.fail(ctx, audit.EventSendCode, "", err, nil)
		return FlowResponse{}, err
	}
	if platformUser == "" {
		err := apperror.NewUnauthorized("your company identity was not provided").WithReason(reasonPlatformMissing)
		f.fail(ctx, audit.EventSendCode, "", err, nil)
		return FlowResponse{}, err
	}

	// Check the cooldown before touching the directory.
	now := f.now()
	if remaining := s.State().CooldownRemaining(now); remaining > 0 {
		res := otp.IssueResult{Reason: otp.ReasonCooldown, RetryAfter: remaining}
		err := issueError(res)
		f.fail(ctx, audit.EventSendCode, platformUser, err, map[string]any{"secLeft": res.RetryAfterSeconds()})
		return FlowResponse{}, err
	}

	res := f.resolver.Resolve(ctx, platformUser)
	if len(res.Attempts) > 0 {
		outcome := audit.OutcomeSuccess
		reason := ""
		if !res.Found() {
			outcome = audit.OutcomeFail
			reason = apperror.ReasonNoIdentity
		}
		f.audit.Log(ctx, audit.Entry{
			EventType:  audit.EventPlatformResolve,
			Actor:      platformUser,
			TargetType: "PlatformUser",
			TargetID:   platformUser,
			Outcome:    outcome,
			Reason:     reason,
			Details:    map[string]any{"attempts": res.Attempts, "source": string(res.Source)},
		})
	}
	if !res.Found() {
		err := apperror.NewForbidden("no email address is known for your account; contact an administrator").
			WithReason(apperror.ReasonNoIdentity)
		f.fail(ctx, audit.EventSendCode, platformUser, err, map[string]any{"platformUser": platformUser})
		return FlowResponse{}, err
	}

	return f.issueLogin(ctx, s, otp.Subject{
		OwnerKey:     res.OwnerKey,
		Channel:      otp.ChannelPlatform,
		PlatformUser: platformUser,
	}, audit.EventSendCode)
}

// Verify checks a sign-in code. On success the session is validated, bound
// to the owner key and moved to a fresh id.
func (f *Flow) Verify(ctx context.Context, s SessionState, code string) (FlowResponse, error) {
	st := s.State()
	event := audit.EventVerify
	if st.Channel == otp.ChannelExternal {
		event = audit.EventExtVerify
	}

	next, res := otp.Verify(st, code, f.now())
	if !res.OK() {
		if err := s.Save(ctx, next); err != nil {
			return FlowResponse{}, apperror.NewInternal(fmt.Errorf("saving otp state: %w", err))
		}
		err := verifyError(res)
		f.fail(ctx, event, st.PendingOwner, err, verifyDetails(res))
		return FlowResponse{}, err
	}

	// Only password accounts can hold the admin flag.
	if next.Channel == otp.ChannelPassword {
		if account, err := f.accounts.FindActive(ctx, next.OwnerKey); err == nil {
			next.IsAdmin = account.IsAdmin
		} else if !apperror.IsNotFound(err) {
			slog.Warn("failed to load account after verify", slog.Any("error", err))
		}
	}

	if err := s.Save(ctx, next); err != nil {
		return FlowResponse{}, apperror.NewInternal(fmt.Errorf("saving otp state: %w", err))
	}
	if err := s.Regenerate(ctx); err != nil {
		return FlowResponse{}, apperror.NewInternal(fmt.Errorf("regenerating session: %w", err))
	}

	f.audit.Log(ctx, audit.Entry{
		EventType: event,
		Actor:     next.OwnerKey,
		Details:   map[string]any{"ownerKey": next.OwnerKey, "channel": string(next.Channel)},
	})
	return FlowResponse{Status: StatusValidated, Redirect: "/"}, nil
}

// Status describes the login state of the session.
func (f *Flow) Status(s SessionState) StatusResponse {
	st := s.State()
	now := f.now()
	return StatusResponse{
		Validated:       st.Authorized(),
		OwnerKey:        st.OwnerKey,
		IsAdmin:         st.Authorized() && st.IsAdmin,
		Channel:         string(st.Channel),
		CodePending:     st.HasActiveCode(now),
		Locked:          st.IsLocked(now),
		CooldownSeconds: otp.IssueResult{RetryAfter: st.CooldownRemaining(now)}.RetryAfterSeconds(),
	}
}

// Logout audits and destroys the session.
func (f *Flow) Logout(ctx context.Context, s SessionState) (FlowResponse, error) {
	st := s.State()
	f.audit.Log(ctx, audit.Entry{
		EventType: audit.EventLogout,
		Details:   map[string]any{"ownerKey": st.OwnerKey},
	})
	if err := s.Clear(ctx); err != nil {
		return FlowResponse{}, apperror.NewInternal(fmt.Errorf("clearing session: %w", err))
	}
	return FlowResponse{Status: StatusSignedOut, Redirect: "/account/login"}, nil
}

// ForgotPassword mails a reset code when email has an active account. The
// response is the same either way so account existence is not revealed.
func (f *Flow) ForgotPassword(ctx context.Context, s SessionState, email string) (FlowResponse, error) {
	email = identity.Normalize(email)
	if email == "" {
		err := apperror.NewValidation("enter your email address")
		f.fail(ctx, audit.EventResetCode, "", err, nil)
		return FlowResponse{}, err
	}

	sent := FlowResponse{Status: StatusCodeSent, Message: "If an account exists for this address, a reset code is on its way."}

	if _, err := f.accounts.FindActive(ctx, email); err != nil {
		if !apperror.IsNotFound(err) {
			return FlowResponse{}, err
		}
		f.audit.Log(ctx, audit.Entry{
			EventType: audit.EventResetCode,
			Actor:     email,
			Outcome:   audit.OutcomeFail,
			Reason:    reasonNoAccount,
			Details:   map[string]any{"email": email},
		})
		return sent, nil
	}

	resp, err := f.issue(ctx, s, session.PrefixReset, otp.Subject{OwnerKey: email, Channel: otp.ChannelPassword}, audit.EventResetCode, smtp.ResetMail)
	if err != nil {
		return FlowResponse{}, err
	}
	resp.Message = sent.Message
	return resp, nil
}

// VerifyReset checks a reset code. Success marks the reset state verified;
// the login state is untouched.
func (f *Flow) VerifyReset(ctx context.Context, s SessionState, code string) (FlowResponse, error) {
	st := s.StateAt(session.PrefixReset)
	next, res := otp.Verify(st, code, f.now())
	if err := s.SaveAt(ctx, session.PrefixReset, next); err != nil {
		return FlowResponse{}, apperror.NewInternal(fmt.Errorf("saving reset state: %w", err))
	}
	if !res.OK() {
		err := verifyError(res)
		f.fail(ctx, audit.EventResetVerify, st.PendingOwner, err, verifyDetails(res))
		return FlowResponse{}, err
	}

	f.audit.Log(ctx, audit.Entry{
		EventType: audit.EventResetVerify,
		Actor:     next.OwnerKey,
		Details:   map[string]any{"email": next.OwnerKey},
	})
	return FlowResponse{Status: StatusResetVerified}, nil
}

// ResetPassword sets the new password for the verified reset email and
// ends the reset flow.
func (f *Flow) ResetPassword(ctx context.Context, s SessionState, req NewPasswordRequest) (FlowResponse, error) {
	st := s.StateAt(session.PrefixReset)
	if !st.Authorized() {
		err := apperror.NewForbidden("verify the reset code first").WithReason(reasonResetNotVerified)
		f.fail(ctx, audit.EventResetPassword, st.PendingOwner, err, nil)
		return FlowResponse{}, err
	}
	if req.Password != req.Confirm {
		err := apperror.NewValidation("passwords do not match")
		f.fail(ctx, audit.EventResetPassword, st.OwnerKey, err, nil)
		return FlowResponse{}, err
	}

	if err := f.accounts.ResetPassword(ctx, st.OwnerKey, req.Password); err != nil {
		f.fail(ctx, audit.EventResetPassword, st.OwnerKey, err, nil)
		return FlowResponse{}, err
	}
	if err := s.SaveAt(ctx, session.PrefixReset, otp.Clear()); err != nil {
		slog.Warn("failed to clear reset state", slog.Any("error", err))
	}

	f.audit.Log(ctx, audit.Entry{
		EventType:  audit.EventResetPassword,
		Actor:      st.OwnerKey,
		TargetType: "Account",
		Details:    map[string]any{"email": st.OwnerKey},
	})
	return FlowResponse{Status: StatusPasswordReset, Message: "Your password has been changed. You can sign in now.", Redirect: "/account/login"}, nil
}

func (f *Flow) issueLogin(ctx context.Context, s SessionState, subject otp.Subject, event string) (FlowResponse, error) {
	return f.issue(ctx, s, session.PrefixLogin, subject, event, smtp.CodeMail)
}

// issue runs otp.Issue on the state under prefix and mails the code. The
// new state is only persisted once the mail is accepted, so a delivery
// failure leaves the previous state and no cooldown behind.
func (f *Flow) issue(ctx context.Context, s SessionState, prefix string, subject otp.Subject, event string, compose func(to, code string, lifetime time.Duration) smtp.Mail) (FlowResponse, error) {
	next, res, err := otp.Issue(s.StateAt(prefix), subject, f.now(), f.random)
	if err != nil {
		appErr := apperror.NewInternal(err)
		f.fail(ctx, event, subject.OwnerKey, appErr, nil)
		return FlowResponse{}, appErr
	}
	if !res.OK() {
		appErr := issueError(res)
		f.fail(ctx, event, subject.OwnerKey, appErr, map[string]any{"secLeft": res.RetryAfterSeconds()})
		return FlowResponse{}, appErr
	}

	if err := smtp.Send(ctx, f.mail, compose(subject.OwnerKey, res.Code, otp.Lifetime)); err != nil {
		appErr := apperror.NewUnavailable("could not send the code, try again", apperror.ReasonSMTPError, err)
		f.fail(ctx, event, subject.OwnerKey, appErr, map[string]any{"to": subject.OwnerKey, "error": err.Error()})
		return FlowResponse{}, appErr
	}

	if err := s.SaveAt(ctx, prefix, next); err != nil {
		return FlowResponse{}, apperror.NewInternal(fmt.Errorf("saving otp state: %w", err))
	}

	f.audit.Log(ctx, audit.Entry{
		EventType: event,
		Actor:     subject.OwnerKey,
		Details:   map[string]any{"to": subject.OwnerKey, "channel": string(subject.Channel)},
	})
	return FlowResponse{
		Status:          StatusCodeSent,
		Message:         "We emailed you a 6-digit code.",
		CooldownSeconds: int(otp.Cooldown.Seconds()),
	}, nil
}

// fail writes a failure entry for err. actor may be empty, in which case
// the request actor is used.
func (f *Flow) fail(ctx context.Context, event, actor string, err error, details map[string]any) {
	f.audit.Log(ctx, audit.Entry{
		EventType: event,
		Actor:     actor,
		Outcome:   audit.OutcomeFail,
		Reason:    apperror.ReasonOf(err),
		Details:   details,
	})
}

// issueError maps a rejected issue to a user-facing error.
func issueError(res otp.IssueResult) *apperror.AppError {
	return apperror.NewTooManyRequests(
		fmt.Sprintf("a code was sent recently; try again in %d seconds", res.RetryAfterSeconds()),
		string(otp.ReasonCooldown),
	)
}

// verifyError maps a failed verification to a user-facing error.
func verifyError(res otp.VerifyResult) *apperror.AppError {
	switch res.Reason {
	case otp.ReasonLocked:
		return apperror.NewTooManyRequests(
			fmt.Sprintf("too many wrong codes; try again in %d minutes", res.LockMinutes()),
			string(res.Reason))
	case otp.ReasonTooManyAttempts:
		return apperror.NewTooManyRequests(
			fmt.Sprintf("too many wrong codes; you are locked out for %d minutes", res.LockMinutes()),
			string(res.Reason))
	case otp.ReasonNoActiveCode:
		return apperror.NewBadRequest("there is no active code; request a new one").WithReason(string(res.Reason))
	case otp.ReasonExpiredCode:
		return apperror.NewBadRequest("the code has expired; request a new one").WithReason(string(res.Reason))
	default:
		return apperror.NewBadRequest(
			fmt.Sprintf("wrong code; %d attempts left before lockout", res.Remaining)).WithReason(string(res.Reason))
	}
}

// verifyDetails records the attempt counters of a failed verification.
func verifyDetails(res otp.VerifyResult) map[string]any {
	d := map[string]any{"fails": res.Failures}
	switch res.Reason {
	case otp.ReasonWrongCode:
		d["remaining"] = res.Remaining
	case otp.ReasonTooManyAttempts, otp.ReasonLocked:
		d["lockMinutes"] = res.LockMinutes()
	}
	return d
}

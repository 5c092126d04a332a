// Package audit records every security-relevant outcome in the audit_log
// table: sign-in codes sent and verified, access denials, reveals of
// secret fields, shares and deletions. Entries are append-only; the only
// deletion path is the retention sweeper, which audits itself.
//
// Entries never contain one-time codes, passwords or decrypted content.
package audit

import "time"

// Outcomes.
const (
	OutcomeSuccess = "Success"
	OutcomeFail    = "Fail"
)

// ActorSystem is the actor of entries written by background jobs.
const ActorSystem = "SYSTEM"

// ActorAnonymous is the actor of requests with no identity at all.
const ActorAnonymous = "anonymous"

// Event types. Each follows the pattern "Area.Action".
const (
	EventSendCode        = "2FA.SendCode"
	EventVerify          = "2FA.Verify"
	EventExtSendCode     = "Ext2FA.SendCode"
	EventExtVerify       = "Ext2FA.Verify"
	EventPlatformResolve = "2FA.ResolveIdentity"
	EventRegister        = "Account.Register"
	EventLogin           = "Account.Login"
	EventResetCode       = "Password.ResetCode"
	EventResetVerify     = "Password.ResetVerify"
	EventResetPassword   = "Password.Reset"
	EventLogout          = "Auth.Logout"
	EventAccountUpdate   = "Account.Update"
	EventAccessDenied    = "Access.Denied"

	EventSecretCreate       = "Secret.Create"
	EventSecretViewPassword = "Secret.ViewPassword"
	EventSecretViewDetails  = "Secret.ViewDetails"
	EventSecretDelete       = "Secret.Delete"

	EventNoteAdd    = "Notes.Add"
	EventNoteDelete = "Notes.Delete"

	EventMessageSend         = "Message.Send"
	EventMessageViewPassword = "Message.ViewPassword"
	EventMessageViewDetails  = "Message.ViewDetails"
	EventMessageSave         = "Message.Save"
	EventMessageDelete       = "Message.Delete"

	EventSettingsUpdate = "Settings.Update"
	EventCleanup        = "Audit.Cleanup"
)

// Column caps, in characters. Longer values are truncated on write.
const (
	maxEventType     = 64
	maxActor         = 256
	maxTargetType    = 64
	maxTargetID      = 64
	maxOutcome       = 16
	maxReason        = 256
	maxClientIP      = 64
	maxUserAgent     = 512
	maxCorrelationID = 64
	maxDetails       = 4000
)

// MaxListRows caps one page of the admin viewer.
const MaxListRows = 200

// Entry is a single audit record. Details is serialized to JSON into
// DetailsJSON on write; reads only populate DetailsJSON.
type Entry struct {
	ID            int64          `json:"id"`
	EventTime     time.Time      `json:"event_time"`
	EventType     string         `json:"event_type"`
	Actor         string         `json:"actor"`
	TargetType    string         `json:"target_type,omitempty"`
	TargetID      string         `json:"target_id,omitempty"`
	Outcome       string         `json:"outcome"`
	Reason        string         `json:"reason,omitempty"`
	ClientIP      string         `json:"client_ip,omitempty"`
	UserAgent     string         `json:"user_agent,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Details       map[string]any `json:"-"`
	DetailsJSON   string         `json:"details,omitempty"`
}

// Filter narrows the admin viewer. Empty fields do not filter.
type Filter struct {
	Actor     string     // substring
	EventType string     // substring
	Outcome   string     // exact
	TargetID  string     // exact
	From      *time.Time // inclusive
	To        *time.Time // exclusive
	Limit     int
}

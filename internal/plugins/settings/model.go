// Package settings manages site-wide configuration stored in the
// site_settings key-value table. Values are strings in the database and
// are parsed into typed values by the service layer, falling back to
// defaults when a key is missing or unparseable.
package settings

// Setting keys used in the site_settings table.
const (
	KeyAuditRetentionDays      = "AuditRetentionDays"
	KeyAllowedUploadExtensions = "AllowedUploadExtensions"
)

// Retention bounds, in days.
const (
	DefaultRetentionDays = 90
	MinRetentionDays     = 7
	MaxRetentionDays     = 3650
)

// DefaultAllowedExtensions is the upload allow-list used when none is stored.
const DefaultAllowedExtensions = ".pfx;.cer;.pem;.crt;.txt;.pdf"

// ClampRetentionDays forces days into [MinRetentionDays, MaxRetentionDays].
func ClampRetentionDays(days int) int {
	return min(max(days, MinRetentionDays), MaxRetentionDays)
}

// View is the admin-facing settings document.
type View struct {
	AuditRetentionDays      int      `json:"audit_retention_days"`
	AllowedUploadExtensions []string `json:"allowed_upload_extensions"`
}

// UpdateRequest is the body of PUT /api/v1/admin/settings. Nil fields are
// left unchanged.
type UpdateRequest struct {
	AuditRetentionDays      *int    `json:"audit_retention_days" form:"audit_retention_days"`
	AllowedUploadExtensions *string `json:"allowed_upload_extensions" form:"allowed_upload_extensions"`
}

package secrets

// Severity levels carried by rules and findings.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// DefaultRules returns the built-in rules applied to artifact files.
// Credential patterns are high severity; patterns that are usually, but not
// always, a mistake in a template are medium or low.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "aws-access-key-id",
			Description: "AWS Access Key ID",
			Pattern:     `(A3T[A-Z0-9]|AKIA|ASIA|AROA)[A-Z0-9]{16}`,
			Severity:    SeverityHigh,
		},
		{
			ID:          "generic-api-key",
			Description: "Generic API Key",
			Pattern:     `(?i)(?:api[_-]?key|apikey)\s*[:=]\s*['"]?([A-Za-z0-9_\-]{16,64})['"]?`,
			Keywords:    []string{"api", "key"},
			Severity:    SeverityHigh,
		},
		{
			ID:          "hardcoded-password",
			Description: "Hard-coded password or secret value",
			Pattern:     `(?i)(?:password|passwd|secret)\s*[:=]\s*['"]?([^\s'"$\{]{8,})['"]?`,
			Keywords:    []string{"password", "passwd", "secret"},
			Severity:    SeverityHigh,
		},
		{
			ID:          "private-key",
			Description: "Private Key",
			Pattern:     `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----`,
			Severity:    SeverityHigh,
		},
		{
			ID:          "github-token",
			Description: "GitHub token",
			Pattern:     `(?:ghp|gho|ghu|ghs)_[A-Za-z0-9]{36}|github_pat_[A-Za-z0-9_]{22,}`,
			Severity:    SeverityHigh,
		},
		{
			ID:          "database-url",
			Description: "Connection URL with embedded credentials",
			Pattern:     `(?i)(?:postgres|postgresql|mysql|mongodb|redis|amqp|nats)://[^:\s/]+:[^@\s]+@[^\s]+`,
			Severity:    SeverityHigh,
		},
		{
			ID:          "jwt",
			Description: "JSON Web Token",
			Pattern:     `eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*`,
			Severity:    SeverityMedium,
		},
		{
			ID:          "bearer-token",
			Description: "Bearer token in a header value",
			Pattern:     `(?i)bearer\s+([A-Za-z0-9_\-\.]{20,})`,
			Keywords:    []string{"bearer"},
			Severity:    SeverityMedium,
		},
		{
			ID:          "insecure-url",
			Description: "Plain HTTP endpoint outside localhost",
			Pattern:     `http://(?:[A-Za-z0-9\-]+\.)+[A-Za-z]{2,}(?::\d+)?(?:/[^\s'"]*)?`,
			Severity:    SeverityLow,
		},
	}
}

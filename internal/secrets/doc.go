// Package secrets scans artifact files for committed credentials and other
// risky literals before they reach a repository.
//
// Two detectors run side by side: a small regexp rule set with per-rule
// severity, and the gitleaks default rule set (all gitleaks findings are
// high severity). Finding values are never retained; only rule, path and
// line are reported.
package secrets

package browser

import "strings"

// ChallengeKind classifies an interstitial that blocks the search page.
type ChallengeKind string

const (
	ChallengeNone           ChallengeKind = ""
	ChallengeReCaptcha      ChallengeKind = "recaptcha"
	ChallengeHCaptcha       ChallengeKind = "hcaptcha"
	ChallengeTurnstile      ChallengeKind = "turnstile"
	ChallengeUnusualTraffic ChallengeKind = "unusual_traffic"
	ChallengeConsent        ChallengeKind = "consent"
	ChallengeUnknown        ChallengeKind = "unknown"
)

// DetectChallenge checks page HTML for common bot checks and consent walls.
// It returns ChallengeNone when nothing is recognized.
func DetectChallenge(html string) ChallengeKind {
	lower := strings.ToLower(html)

	switch {
	case strings.Contains(lower, "unusual traffic from your computer network"),
		strings.Contains(lower, "/sorry/index"):
		return ChallengeUnusualTraffic
	case strings.Contains(lower, "g-recaptcha"), strings.Contains(lower, "recaptcha/api.js"):
		return ChallengeReCaptcha
	case strings.Contains(lower, "h-captcha"), strings.Contains(lower, "hcaptcha.com"):
		return ChallengeHCaptcha
	case strings.Contains(lower, "cf-turnstile"), strings.Contains(lower, "challenges.cloudflare.com/turnstile"):
		return ChallengeTurnstile
	case strings.Contains(lower, "consent.google.com"),
		strings.Contains(lower, "before you continue to google"):
		return ChallengeConsent
	}
	return ChallengeNone
}

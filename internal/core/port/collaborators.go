package port

import "context"

// Mailer dispatches transactional mail out-of-band.
type Mailer interface {
	Send(ctx context.Context, to, subject, text, html string) error
}

// CaptchaVerifier checks a client-supplied CAPTCHA response with the
// third-party verification service.
type CaptchaVerifier interface {
	Verify(ctx context.Context, response, remoteIP string) (bool, error)
}

// ExternalIdentity is the profile asserted by a social-login provider.
type ExternalIdentity struct {
	ID    string
	Email string
	Name  string
}

// IdentityProvider exchanges a provider access token for the profile it
// asserts.
type IdentityProvider interface {
	Resolve(ctx context.Context, accessToken string) (ExternalIdentity, error)
}

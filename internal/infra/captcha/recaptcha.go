package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Wittle-South-LLC/olsnet/internal/core/port"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/config"
)

// RecaptchaVerifier validates registration challenges against the Google
// reCAPTCHA siteverify endpoint.
type RecaptchaVerifier struct {
	secret   string
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

func NewRecaptchaVerifier(cfg config.RecaptchaSettings, log *zap.Logger) *RecaptchaVerifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &RecaptchaVerifier{
		secret:   cfg.Secret,
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   log,
	}
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify posts the challenge response to siteverify. A transport failure is
// an error, not a rejection, so callers can distinguish outages from bots.
func (v *RecaptchaVerifier) Verify(ctx context.Context, response, remoteIP string) (bool, error) {
	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", response)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("siteverify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("siteverify status %d", resp.StatusCode)
	}

	var result siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("decode siteverify response: %w", err)
	}

	if !result.Success {
		v.logger.Warn("recaptcha rejected",
			zap.Strings("error_codes", result.ErrorCodes))
	}

	return result.Success, nil
}

// AlwaysPassVerifier accepts every challenge. Wired in when no secret is
// configured so local environments work without reCAPTCHA keys.
type AlwaysPassVerifier struct{}

func (AlwaysPassVerifier) Verify(context.Context, string, string) (bool, error) {
	return true, nil
}

var (
	_ port.CaptchaVerifier = (*RecaptchaVerifier)(nil)
	_ port.CaptchaVerifier = AlwaysPassVerifier{}
)

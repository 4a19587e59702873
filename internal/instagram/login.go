package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/IvanTran-2001/Instagram-Logging/internal/cli"
)

type loginResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	ErrorType    string `json:"error_type"`
	LoggedInUser struct {
		PK       int64  `json:"pk"`
		Username string `json:"username"`
	} `json:"logged_in_user"`
	TwoFactorRequired bool `json:"two_factor_required"`
	TwoFactorInfo     struct {
		TwoFactorIdentifier string `json:"two_factor_identifier"`
	} `json:"two_factor_info"`
}

// Login reuses the saved session when the API still accepts it, otherwise
// performs a fresh credential login, handling TOTP two-factor challenges.
func (c *Client) Login(ctx context.Context) error {
	if c.session.Authorization != "" {
		if err := c.verifySession(ctx); err == nil {
			c.log.Info().Str("username", c.session.Username).Msg("reusing saved session")
			return nil
		}
		c.log.Info().Msg("saved session rejected, logging in fresh")
		c.session.Authorization = ""
	}

	form := c.signedForm(map[string]string{
		"username":            c.cfg.Username,
		"enc_password":        encPassword(c.cfg.Password, time.Now()),
		"device_id":           c.session.DeviceID,
		"phone_id":            c.session.PhoneID,
		"guid":                c.session.SessionUUID,
		"login_attempt_count": "0",
	})

	data, header, err := c.request(ctx, http.MethodPost, "/accounts/login/", nil, form)

	var out loginResponse
	if len(data) > 0 {
		// The two_factor_required flag arrives on a 400 response, decode
		// before deciding the request failed.
		if jsonErr := json.Unmarshal(data, &out); jsonErr != nil && err == nil {
			return fmt.Errorf("parsing login response: %w", jsonErr)
		}
	}

	if out.TwoFactorRequired {
		return c.twoFactorLogin(ctx, out.TwoFactorInfo.TwoFactorIdentifier)
	}
	if err != nil {
		return fmt.Errorf("login failed for %v: %w", c.cfg.Username, err)
	}

	return c.completeLogin(header, out)
}

func (c *Client) twoFactorLogin(ctx context.Context, identifier string) error {
	code, err := c.verificationCode()
	if err != nil {
		return fmt.Errorf("obtaining two-factor code: %w", err)
	}

	form := c.signedForm(map[string]string{
		"username":              c.cfg.Username,
		"verification_code":     code,
		"two_factor_identifier": identifier,
		"verification_method":   "3",
		"device_id":             c.session.DeviceID,
		"guid":                  c.session.SessionUUID,
	})

	data, header, err := c.request(ctx, http.MethodPost, "/accounts/two_factor_login/", nil, form)
	if err != nil {
		return fmt.Errorf("two-factor login failed for %v: %w", c.cfg.Username, err)
	}

	var out loginResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("parsing two-factor response: %w", err)
	}

	return c.completeLogin(header, out)
}

func (c *Client) completeLogin(header http.Header, out loginResponse) error {
	if out.LoggedInUser.PK == 0 {
		return fmt.Errorf("login rejected: %v", out.Message)
	}

	c.session.UserID = out.LoggedInUser.PK
	c.session.Username = out.LoggedInUser.Username
	if auth := header.Get("Ig-Set-Authorization"); auth != "" {
		c.session.Authorization = auth
	}

	if err := c.SaveSession(); err != nil {
		c.log.Warn().Err(err).Msg("could not persist session")
	}

	c.log.Info().Str("username", c.session.Username).Int64("user_id", c.session.UserID).Msg("logged in")
	return nil
}

func (c *Client) verifySession(ctx context.Context) error {
	data, _, err := c.request(ctx, http.MethodGet, "/accounts/current_user/", nil, nil)
	if err != nil {
		return err
	}

	var out struct {
		User struct {
			PK int64 `json:"pk"`
		} `json:"user"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("parsing current_user response: %w", err)
	}
	if out.User.PK == 0 {
		return fmt.Errorf("current_user returned no account")
	}

	c.session.UserID = out.User.PK
	return nil
}

func (c *Client) verificationCode() (string, error) {
	if c.cfg.TOTPSecret != "" {
		return totp.GenerateCode(c.cfg.TOTPSecret, time.Now())
	}
	return cli.PromptLine("Two-factor code")
}

// signedForm wraps a payload in the signed_body envelope the mobile API
// expects. Signing has been a constant prefix since Instagram dropped HMAC
// verification.
func (c *Client) signedForm(payload map[string]string) url.Values {
	data, _ := json.Marshal(payload)
	return url.Values{"signed_body": {"SIGNATURE." + string(data)}}
}

// encPassword is the versioned password envelope, version 0 is the plain
// variant accepted when no public key handshake happened.
func encPassword(password string, now time.Time) string {
	return fmt.Sprintf("#PWD_INSTAGRAM:0:%v:%v", now.Unix(), password)
}

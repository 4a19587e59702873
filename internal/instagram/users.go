package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"
)

type User struct {
	PK            int64  `json:"pk"`
	Username      string `json:"username"`
	FullName      string `json:"full_name"`
	ProfilePicURL string `json:"profile_pic_url"`
}

var profilePagePattern = regexp.MustCompile(`profilePage_([0-9]+)`)

// UserByUsername resolves a username via the private API, falling back to
// scraping the public web profile when the API refuses.
func (c *Client) UserByUsername(ctx context.Context, username string) (User, error) {
	user, apiErr := c.userFromAPI(ctx, username)
	if apiErr == nil {
		return user, nil
	}
	if errors.Is(apiErr, ErrUserNotFound) {
		return User{}, apiErr
	}

	c.log.Warn().Err(apiErr).Str("username", username).Msg("usernameinfo failed, trying web profile")

	user, webErr := c.userFromWebProfile(ctx, username)
	if webErr != nil {
		return User{}, fmt.Errorf("resolving %v: %w (web fallback: %v)", username, apiErr, webErr)
	}
	return user, nil
}

func (c *Client) userFromAPI(ctx context.Context, username string) (User, error) {
	data, _, err := c.request(ctx, http.MethodGet, "/users/"+username+"/usernameinfo/", nil, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return User{}, fmt.Errorf("%w: %v", ErrUserNotFound, username)
		}
		return User{}, err
	}

	var out struct {
		User User `json:"user"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return User{}, fmt.Errorf("parsing usernameinfo response: %w", err)
	}
	if out.User.PK == 0 {
		return User{}, fmt.Errorf("%w: %v", ErrUserNotFound, username)
	}

	return out.User, nil
}

func (c *Client) userFromWebProfile(ctx context.Context, username string) (User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.webBase+"/"+username+"/", nil)
	if err != nil {
		return User{}, fmt.Errorf("building web profile request: %w", err)
	}
	req.Header.Set("User-Agent", webUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return User{}, fmt.Errorf("fetching web profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return User{}, fmt.Errorf("%w: %v", ErrUserNotFound, username)
	}
	if resp.StatusCode != http.StatusOK {
		return User{}, fmt.Errorf("web profile returned status %v", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return User{}, fmt.Errorf("parsing web profile: %w", err)
	}

	html, err := doc.Html()
	if err != nil {
		return User{}, fmt.Errorf("serializing web profile: %w", err)
	}

	match := profilePagePattern.FindStringSubmatch(html)
	if match == nil {
		return User{}, fmt.Errorf("no profile id found on web page for %v", username)
	}
	pk, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return User{}, fmt.Errorf("parsing profile id %v: %w", match[1], err)
	}

	user := User{PK: pk, Username: username}
	if pic, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok {
		user.ProfilePicURL = pic
	}
	if title, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		user.FullName = title
	}

	return user, nil
}

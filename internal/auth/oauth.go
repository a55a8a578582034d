package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/ravenhacks/backend/internal/model"
)

// Identity is the provider profile the OAuth service cares about: the
// provider's stable user id plus the account email.
type Identity struct {
	ID       string
	Email    string
	Username string
}

// OAuthProvider abstracts one external identity provider's
// authorization-code flow. The redirect URI is passed per call because
// signin and link flows land on different callback endpoints.
type OAuthProvider interface {
	Name() model.Provider

	// AuthCodeURL returns the provider authorization URL embedding the
	// CSRF state parameter.
	AuthCodeURL(state, redirectURI string) string

	// Exchange trades the authorization code for the provider identity:
	// it performs the server-to-server token exchange, then fetches the
	// user profile with the resulting access token.
	Exchange(ctx context.Context, code, redirectURI string) (*Identity, error)
}

// discordEndpoint is Discord's OAuth2 endpoint pair; x/oauth2 has no
// built-in constant for it.
var discordEndpoint = oauth2.Endpoint{
	AuthURL:  "https://discord.com/api/oauth2/authorize",
	TokenURL: "https://discord.com/api/oauth2/token",
}

// GitHubProvider implements OAuthProvider for GitHub.
type GitHubProvider struct {
	config *oauth2.Config
}

// NewGitHubProvider creates a GitHubProvider with the given OAuth app
// credentials. Scopes cover the public profile and email addresses.
func NewGitHubProvider(clientID, clientSecret string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
	}
}

func (p *GitHubProvider) Name() model.Provider { return model.ProviderGitHub }

func (p *GitHubProvider) AuthCodeURL(state, redirectURI string) string {
	return p.config.AuthCodeURL(state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("redirect_uri", redirectURI),
	)
}

// githubUser is the subset of GitHub's /user response we unmarshal.
type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Email string `json:"email"` // empty if the user hides their email
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (p *GitHubProvider) Exchange(ctx context.Context, code, redirectURI string) (*Identity, error) {
	token, err := p.config.Exchange(ctx, code,
		oauth2.SetAuthURLParam("redirect_uri", redirectURI))
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging GitHub OAuth code: %w", err)
	}

	client := p.config.Client(ctx, token)

	var ghUser githubUser
	if err := getJSON(client, "https://api.github.com/user", &ghUser); err != nil {
		return nil, fmt.Errorf("auth: fetching GitHub profile: %w", err)
	}
	if ghUser.ID == 0 {
		return nil, fmt.Errorf("auth: GitHub returned an invalid user (ID = 0)")
	}

	email := ghUser.Email
	if email == "" {
		// Profile email is private; fall back to the email-list
		// endpoint and prefer the address flagged primary.
		var emails []githubEmail
		if err := getJSON(client, "https://api.github.com/user/emails", &emails); err != nil {
			return nil, fmt.Errorf("auth: fetching GitHub emails: %w", err)
		}
		for _, e := range emails {
			if e.Primary {
				email = e.Email
				break
			}
		}
		if email == "" && len(emails) > 0 {
			email = emails[0].Email
		}
	}
	if email == "" {
		return nil, fmt.Errorf("auth: GitHub account has no usable email address")
	}

	return &Identity{
		ID:       strconv.FormatInt(ghUser.ID, 10),
		Email:    email,
		Username: ghUser.Login,
	}, nil
}

// DiscordProvider implements OAuthProvider for Discord.
type DiscordProvider struct {
	config *oauth2.Config
}

// NewDiscordProvider creates a DiscordProvider with the given application
// credentials. The identify + email scopes expose the user id and email.
func NewDiscordProvider(clientID, clientSecret string) *DiscordProvider {
	return &DiscordProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{"identify", "email"},
			Endpoint:     discordEndpoint,
		},
	}
}

func (p *DiscordProvider) Name() model.Provider { return model.ProviderDiscord }

func (p *DiscordProvider) AuthCodeURL(state, redirectURI string) string {
	return p.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("redirect_uri", redirectURI),
	)
}

// discordUser is the subset of Discord's /users/@me response we unmarshal.
type discordUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (p *DiscordProvider) Exchange(ctx context.Context, code, redirectURI string) (*Identity, error) {
	// Discord requires the redirect_uri to be repeated on the token
	// exchange and to match the authorization request exactly.
	token, err := p.config.Exchange(ctx, code,
		oauth2.SetAuthURLParam("redirect_uri", redirectURI))
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging Discord OAuth code: %w", err)
	}

	client := p.config.Client(ctx, token)

	var dUser discordUser
	if err := getJSON(client, "https://discord.com/api/users/@me", &dUser); err != nil {
		return nil, fmt.Errorf("auth: fetching Discord profile: %w", err)
	}
	if dUser.ID == "" {
		return nil, fmt.Errorf("auth: Discord returned an invalid user (empty id)")
	}
	if dUser.Email == "" {
		return nil, fmt.Errorf("auth: Discord account has no email address")
	}

	return &Identity{
		ID:       dUser.ID,
		Email:    dUser.Email,
		Username: dUser.Username,
	}, nil
}

// getJSON performs a GET with the provider-authorized client and decodes
// the JSON body into out.
func getJSON(client *http.Client, url string, out any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

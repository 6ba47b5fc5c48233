// ABOUTME: Authorization-code flow: state issuing, code exchange, profile fetch and account upsert
// ABOUTME: Finishes by handing the member to the session resolver

package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/2389/chorale/internal/auth"
	"github.com/2389/chorale/internal/nonce"
	"github.com/2389/chorale/internal/store"
)

// Flow errors
var (
	ErrUnknownProvider = errors.New("unknown oauth provider")
	ErrInvalidState    = errors.New("invalid or expired oauth state")
)

// StateTTL bounds how long a user may take at the provider's consent screen.
const StateTTL = 10 * time.Minute

// State is remembered between the redirect to the provider and its callback.
type State struct {
	Provider    string
	CallbackURL string
}

// AccountStore is the persistence the flow needs.
type AccountStore interface {
	GetUserByAccount(ctx context.Context, provider, providerAccountID string) (*store.User, error)
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
	CreateUser(ctx context.Context, u *store.User) error
	LinkAccount(ctx context.Context, a *store.Account) error
}

// Flow runs the OAuth sign-in for all configured providers.
type Flow struct {
	providers map[string]*Provider
	states    *nonce.Store[State]
	accounts  AccountStore
	resolver  *auth.Resolver
	client    *http.Client
	logger    *slog.Logger
}

// NewFlow creates a flow over the given providers. states holds pending
// logins and is owned by the caller.
func NewFlow(providers []*Provider, states *nonce.Store[State], accounts AccountStore, resolver *auth.Resolver, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	m := make(map[string]*Provider, len(providers))
	for _, p := range providers {
		m[p.Name] = p
	}
	return &Flow{
		providers: m,
		states:    states,
		accounts:  accounts,
		resolver:  resolver,
		client:    &http.Client{Timeout: 15 * time.Second},
		logger:    logger.With("component", "oauth"),
	}
}

// Enabled lists configured providers in display order.
func (f *Flow) Enabled() []*Provider {
	var out []*Provider
	for _, name := range Names {
		if p, ok := f.providers[name]; ok {
			out = append(out, p)
		}
	}
	return out
}

// SafeCallback keeps callback URLs on this site.
func SafeCallback(u string) string {
	if !strings.HasPrefix(u, "/") || strings.HasPrefix(u, "//") || strings.HasPrefix(u, "/\\") {
		return "/"
	}
	return u
}

// AuthURL issues a state and returns the provider's consent URL.
func (f *Flow) AuthURL(provider, callbackURL string) (string, error) {
	p, ok := f.providers[provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	state, err := f.states.Issue(State{Provider: provider, CallbackURL: SafeCallback(callbackURL)})
	if err != nil {
		return "", fmt.Errorf("issuing state: %w", err)
	}
	return p.Config.AuthCodeURL(state), nil
}

// Complete handles the provider callback. It returns the new session and
// where to send the browser.
func (f *Flow) Complete(ctx context.Context, provider, code, state string) (*auth.Session, string, error) {
	p, ok := f.providers[provider]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	st, ok := f.states.Take(state)
	if !ok || st.Provider != provider {
		return nil, "", ErrInvalidState
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.client)
	tok, err := p.Config.Exchange(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("exchanging code: %w", err)
	}
	profile, err := f.fetchProfile(ctx, p, tok)
	if err != nil {
		return nil, "", err
	}

	user, err := f.upsert(ctx, provider, profile)
	if err != nil {
		return nil, "", err
	}
	session, err := f.resolver.SignIn(ctx, user.ID, auth.Method(provider))
	if err != nil {
		return nil, "", err
	}
	f.logger.Info("oauth sign-in", "provider", provider, "user_id", user.ID, "status", session.Claims.Status)
	return session, st.CallbackURL, nil
}

func (f *Flow) fetchProfile(ctx context.Context, p *Provider, tok *oauth2.Token) (Profile, error) {
	client := p.Config.Client(ctx, tok)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.ProfileURL, nil)
	if err != nil {
		return Profile{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("fetching %s profile: %w", p.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Profile{}, fmt.Errorf("reading %s profile: %w", p.Name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("fetching %s profile: status %d", p.Name, resp.StatusCode)
	}
	return p.parse(body)
}

// upsert finds or creates the member for a provider account. An account
// with a known email is linked to the existing member.
func (f *Flow) upsert(ctx context.Context, provider string, profile Profile) (*store.User, error) {
	u, err := f.accounts.GetUserByAccount(ctx, provider, profile.ID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up account: %w", err)
	}

	if profile.Email != "" {
		u, err = f.accounts.GetUserByEmail(ctx, profile.Email)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("looking up email: %w", err)
		}
	}
	if u == nil {
		u = &store.User{
			Email:  profile.Email,
			Name:   profile.Name,
			Image:  profile.Image,
			Status: store.UserStatusPending,
			Role:   store.RoleMember,
		}
		if err := f.accounts.CreateUser(ctx, u); err != nil {
			return nil, fmt.Errorf("creating user: %w", err)
		}
		f.logger.Info("new member signed up", "provider", provider, "user_id", u.ID)
	}

	if err := f.accounts.LinkAccount(ctx, &store.Account{Provider: provider, ProviderAccountID: profile.ID, UserID: u.ID}); err != nil {
		return nil, fmt.Errorf("linking account: %w", err)
	}
	return u, nil
}

// ABOUTME: OAuth provider definitions for Google, Naver and Kakao
// ABOUTME: Each provider knows its endpoints, scopes and how to read its profile response

package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/oauth2"
)

// Profile is the identity a provider asserts for the signed-in account.
type Profile struct {
	ID    string
	Email string
	Name  string
	Image string
}

// Provider is one configured OAuth identity provider.
type Provider struct {
	Name       string
	Label      string
	Config     *oauth2.Config
	ProfileURL string
	parse      func(body []byte) (Profile, error)
}

// Credentials are the client registration for a provider.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Provider names, also used as sign-in methods.
const (
	Google = "google"
	Naver  = "naver"
	Kakao  = "kakao"
)

// Names lists the supported providers in display order.
var Names = []string{Google, Naver, Kakao}

// NewProvider builds the named provider with the given credentials.
// redirectBase is the site base URL; the callback path is appended.
func NewProvider(name string, creds Credentials, redirectBase string) (*Provider, error) {
	p := &Provider{Name: name}
	cfg := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  redirectBase + "/api/auth/" + name + "/callback",
	}

	switch name {
	case Google:
		p.Label = "Google"
		cfg.Endpoint = oauth2.Endpoint{
			AuthURL:  "https://accounts.google.com/o/oauth2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
		}
		cfg.Scopes = []string{"openid", "email", "profile"}
		p.ProfileURL = "https://openidconnect.googleapis.com/v1/userinfo"
		p.parse = parseGoogle
	case Naver:
		p.Label = "네이버"
		cfg.Endpoint = oauth2.Endpoint{
			AuthURL:   "https://nid.naver.com/oauth2.0/authorize",
			TokenURL:  "https://nid.naver.com/oauth2.0/token",
			AuthStyle: oauth2.AuthStyleInParams,
		}
		p.ProfileURL = "https://openapi.naver.com/v1/nid/me"
		p.parse = parseNaver
	case Kakao:
		p.Label = "카카오"
		cfg.Endpoint = oauth2.Endpoint{
			AuthURL:   "https://kauth.kakao.com/oauth/authorize",
			TokenURL:  "https://kauth.kakao.com/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		}
		cfg.Scopes = []string{"profile_nickname", "profile_image", "account_email"}
		p.ProfileURL = "https://kapi.kakao.com/v2/user/me"
		p.parse = parseKakao
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}

	p.Config = cfg
	return p, nil
}

var errNoSubject = errors.New("profile has no account id")

func parseGoogle(body []byte) (Profile, error) {
	var v struct {
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return Profile{}, fmt.Errorf("decoding google profile: %w", err)
	}
	if v.Sub == "" {
		return Profile{}, errNoSubject
	}
	return Profile{ID: v.Sub, Email: v.Email, Name: v.Name, Image: v.Picture}, nil
}

func parseNaver(body []byte) (Profile, error) {
	var v struct {
		ResultCode string `json:"resultcode"`
		Message    string `json:"message"`
		Response   struct {
			ID           string `json:"id"`
			Email        string `json:"email"`
			Name         string `json:"name"`
			Nickname     string `json:"nickname"`
			ProfileImage string `json:"profile_image"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return Profile{}, fmt.Errorf("decoding naver profile: %w", err)
	}
	if v.ResultCode != "" && v.ResultCode != "00" {
		return Profile{}, fmt.Errorf("naver profile: %s", v.Message)
	}
	r := v.Response
	if r.ID == "" {
		return Profile{}, errNoSubject
	}
	name := r.Name
	if name == "" {
		name = r.Nickname
	}
	return Profile{ID: r.ID, Email: r.Email, Name: name, Image: r.ProfileImage}, nil
}

func parseKakao(body []byte) (Profile, error) {
	var v struct {
		ID      int64 `json:"id"`
		Account struct {
			Email   string `json:"email"`
			Profile struct {
				Nickname        string `json:"nickname"`
				ProfileImageURL string `json:"profile_image_url"`
			} `json:"profile"`
		} `json:"kakao_account"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return Profile{}, fmt.Errorf("decoding kakao profile: %w", err)
	}
	if v.ID == 0 {
		return Profile{}, errNoSubject
	}
	return Profile{
		ID:    strconv.FormatInt(v.ID, 10),
		Email: v.Account.Email,
		Name:  v.Account.Profile.Nickname,
		Image: v.Account.Profile.ProfileImageURL,
	}, nil
}

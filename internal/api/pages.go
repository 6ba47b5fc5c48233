// ABOUTME: Server-rendered login and pending pages from embedded html/template files
// ABOUTME: Everything else in the browser is served as static assets

package api

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/2389/chorale/internal/admin"
	"github.com/2389/chorale/internal/assets"
	"github.com/2389/chorale/internal/auth"
	"github.com/2389/chorale/internal/oauth"
	"github.com/2389/chorale/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

func parsePages() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"asset": assets.URL,
	}).ParseFS(templateFS, "templates/*.html")
}

// loginErrors maps the ?error= codes to what the member is shown.
var loginErrors = map[string]string{
	"rejected":    "가입 신청이 거절되었습니다. 관리자에게 문의해 주세요.",
	"credentials": "이메일 또는 비밀번호가 올바르지 않습니다.",
	"oauth":       "소셜 로그인에 실패했습니다. 다시 시도해 주세요.",
}

type loginData struct {
	Title       string
	SiteName    string
	Error       string
	CallbackURL string
	Providers   []*oauth.Provider
	Credentials bool
	Passkeys    bool
}

type pendingData struct {
	Title    string
	SiteName string
	User     *store.User
	Saved    bool
	Error    string
	CanClaim bool
	MaxName  int
	MaxIntro int
}

func (a *API) renderPage(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := a.pages.ExecuteTemplate(&buf, name, data); err != nil {
		a.logger.Error("failed to render page", "page", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}

func (a *API) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	callback := oauth.SafeCallback(q.Get("callbackUrl"))

	code := q.Get("error")
	if claims := auth.FromContext(r.Context()); claims != nil && code == "" {
		http.Redirect(w, r, landing(claims, callback), http.StatusFound)
		return
	}

	msg := ""
	if code != "" {
		msg = loginErrors[code]
		if msg == "" {
			msg = "로그인 중 오류가 발생했습니다."
		}
	}

	data := loginData{
		Title:       "로그인",
		SiteName:    a.cfg.SiteName,
		Error:       msg,
		CallbackURL: callback,
		Credentials: a.svc.Resolver.CredentialsEnabled(),
		Passkeys:    a.webauthn != nil,
	}
	if a.svc.OAuth != nil {
		data.Providers = a.svc.OAuth.Enabled()
	}
	a.renderPage(w, r, "login.html", data)
}

func (a *API) handlePendingPage(w http.ResponseWriter, r *http.Request) {
	claims := auth.MustFromContext(r.Context())
	if claims.Status != store.UserStatusPending {
		http.Redirect(w, r, landing(claims, "/"), http.StatusFound)
		return
	}

	user, err := a.svc.Store.GetUser(r.Context(), claims.UserID())
	if err != nil {
		a.sendError(w, r, err)
		return
	}

	role := store.RoleAdmin
	admins, err := a.svc.Store.CountUsers(r.Context(), store.UserFilter{Role: &role})
	if err != nil {
		a.sendError(w, r, err)
		return
	}

	q := r.URL.Query()
	data := pendingData{
		Title:    "승인 대기",
		SiteName: a.cfg.SiteName,
		User:     user,
		Saved:    q.Get("saved") != "",
		CanClaim: admins == 0,
		MaxName:  admin.MaxNameLength,
		MaxIntro: admin.MaxIntroLength,
	}
	if q.Get("error") != "" {
		data.Error = "소개를 저장하지 못했습니다."
	}
	a.renderPage(w, r, "pending.html", data)
}

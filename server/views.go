package server

import (
	"html/template"
	"net/http"
)

type loginView struct {
	ClientName string
	Email      string
	Scope      string
	ErrorMsg   string
}

var loginTemplate = template.Must(template.New("login").Parse(`<!doctype html>
<html>
<head><title>Sign in</title></head>
<body>
<h1>Sign in</h1>
<p>{{.ClientName}} is requesting access{{if .Scope}} to: {{.Scope}}{{end}}.</p>
{{if .ErrorMsg}}<p class="error">{{.ErrorMsg}}</p>{{end}}
<form method="post" action="/auth/login">
  <label>Email <input type="email" name="email" value="{{.Email}}" autofocus></label>
  <label>Password <input type="password" name="password"></label>
  <button type="submit">Sign in</button>
</form>
</body>
</html>
`))

var registerTemplate = template.Must(template.New("register").Parse(`<!doctype html>
<html>
<head><title>Create account</title></head>
<body>
<h1>Create account</h1>
<p>{{.ClientName}} is requesting access{{if .Scope}} to: {{.Scope}}{{end}}.</p>
<form method="post" action="/auth/login">
  <label>Email <input type="email" name="email" value="{{.Email}}" autofocus></label>
  <label>Password <input type="password" name="password"></label>
  <button type="submit">Create and sign in</button>
</form>
</body>
</html>
`))

func renderLogin(w http.ResponseWriter, inter *Interaction, errorMsg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = loginTemplate.Execute(w, loginView{
		ClientName: clientDisplayName(inter),
		Email:      prefillEmail(inter),
		Scope:      JoinScope(inter.Scope),
		ErrorMsg:   errorMsg,
	})
}

func renderRegister(w http.ResponseWriter, inter *Interaction) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = registerTemplate.Execute(w, loginView{
		ClientName: clientDisplayName(inter),
		Email:      prefillEmail(inter),
		Scope:      JoinScope(inter.Scope),
	})
}

func clientDisplayName(inter *Interaction) string {
	if inter.Client != nil && inter.Client.Name != "" {
		return inter.Client.Name
	}
	return inter.ClientID
}

// prefillEmail prefers the last submitted email over the login hint.
func prefillEmail(inter *Interaction) string {
	if inter.Email != "" {
		return inter.Email
	}
	return inter.LoginHint
}

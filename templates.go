package authcore

import "html/template"

// The HTML surface is deliberately small: login, registration, consent, and
// an error page. No scripts, no external resources, so the strict CSP set by
// the security headers holds.

const basePageStyle = `
		body { font-family: system-ui, sans-serif; background: #f4f4f5; margin: 0; }
		main { max-width: 24rem; margin: 4rem auto; background: #fff; padding: 2rem; border-radius: 0.5rem; box-shadow: 0 1px 3px rgba(0,0,0,0.1); }
		h1 { font-size: 1.25rem; margin-top: 0; }
		label { display: block; margin: 0.75rem 0 0.25rem; font-size: 0.875rem; }
		input { width: 100%; padding: 0.5rem; box-sizing: border-box; border: 1px solid #d4d4d8; border-radius: 0.25rem; }
		button { margin-top: 1rem; padding: 0.5rem 1rem; border: 0; border-radius: 0.25rem; cursor: pointer; }
		.primary { background: #2563eb; color: #fff; }
		.secondary { background: #e4e4e7; color: #18181b; }
		.error { color: #b91c1c; font-size: 0.875rem; margin-top: 0.75rem; }
		p.hint { font-size: 0.875rem; color: #52525b; }
		a { color: #2563eb; }
`

var loginTmpl = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head>
	<meta charset="utf-8">
	<title>Sign in</title>
	<style>` + basePageStyle + `</style>
</head>
<body>
	<main>
		<h1>Sign in</h1>
		<form method="POST" action="/login">
			<input type="hidden" name="return_to" value="{{.ReturnTo}}">
			<label for="email">Email</label>
			<input type="email" id="email" name="email" value="{{.Email}}" required autofocus>
			<label for="password">Password</label>
			<input type="password" id="password" name="password" required>
			{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
			<button type="submit" class="primary">Sign in</button>
		</form>
		<p class="hint">No account? <a href="/register?return_to={{.ReturnTo}}">Register</a></p>
	</main>
</body>
</html>
`))

var registerTmpl = template.Must(template.New("register").Parse(`<!DOCTYPE html>
<html>
<head>
	<meta charset="utf-8">
	<title>Create account</title>
	<style>` + basePageStyle + `</style>
</head>
<body>
	<main>
		<h1>Create account</h1>
		<form method="POST" action="/register">
			<input type="hidden" name="return_to" value="{{.ReturnTo}}">
			<label for="name">Name</label>
			<input type="text" id="name" name="name" value="{{.Name}}">
			<label for="email">Email</label>
			<input type="email" id="email" name="email" value="{{.Email}}" required>
			<label for="password">Password</label>
			<input type="password" id="password" name="password" required>
			{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
			<button type="submit" class="primary">Register</button>
		</form>
		<p class="hint">Already registered? <a href="/login?return_to={{.ReturnTo}}">Sign in</a></p>
	</main>
</body>
</html>
`))

var consentTmpl = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html>
<head>
	<meta charset="utf-8">
	<title>Authorize {{.ClientName}}</title>
	<style>` + basePageStyle + `</style>
</head>
<body>
	<main>
		<h1>Authorize {{.ClientName}}</h1>
		<p><strong>{{.ClientName}}</strong> is requesting access to your account{{if .Scope}} with scope <code>{{.Scope}}</code>{{end}}.</p>
		<form method="POST" action="/consent">
			<input type="hidden" name="response_type" value="{{.ResponseType}}">
			<input type="hidden" name="client_id" value="{{.ClientID}}">
			<input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
			<input type="hidden" name="scope" value="{{.Scope}}">
			<input type="hidden" name="state" value="{{.State}}">
			<input type="hidden" name="code_challenge" value="{{.CodeChallenge}}">
			<input type="hidden" name="code_challenge_method" value="{{.CodeChallengeMethod}}">
			<button type="submit" name="decision" value="allow" class="primary">Allow</button>
			<button type="submit" name="decision" value="deny" class="secondary">Deny</button>
		</form>
	</main>
</body>
</html>
`))

var errorPageTmpl = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
<head>
	<meta charset="utf-8">
	<title>Authorization error</title>
	<style>` + basePageStyle + `</style>
</head>
<body>
	<main>
		<h1>Authorization error</h1>
		<p class="error">{{.Code}}: {{.Description}}</p>
		<p class="hint">Return to the application and try again.</p>
	</main>
</body>
</html>
`))

type loginPageData struct {
	ReturnTo string
	Email    string
	Error    string
}

type registerPageData struct {
	ReturnTo string
	Name     string
	Email    string
	Error    string
}

type consentPageData struct {
	ClientName          string
	ClientID            string
	ResponseType        string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

type errorPageData struct {
	Code        string
	Description string
}

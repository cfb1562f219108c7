package handler

import "html/template"

var pages = template.Must(template.New("pages").Parse(`
{{define "landing"}}<html><body><h2>Secure Portal</h2><p>Please confirm your details to proceed.</p><form method="POST" action="/landing/{{.Token}}/submit"><label>Email</label><input name="email" type="email" value="{{.Email}}" readonly/><br/><label>Employee ID</label><input name="employeeId" type="text"/><br/><button type="submit">Continue</button></form>{{if .Debug}}<p>This is a security simulation. No credentials are stored.</p>{{end}}</body></html>{{end}}
{{define "landing_inactive"}}<html><body><h2>Simulation Completed</h2><p>This phishing awareness exercise is not active.</p></body></html>{{end}}
{{define "submit_inactive"}}<html><body><h2>Simulation Complete</h2><p>This training link is no longer active.</p></body></html>{{end}}
{{define "submitted"}}<html><body><h2>Security Simulation</h2><p>Thank you for participating. This was a controlled phishing awareness exercise. No credentials were captured. Review the learning resources on our <a href="{{.DebriefURL}}">security awareness page</a>.</p></body></html>{{end}}
`))

type landingPage struct {
	Token string
	Email string
	Debug bool
}

type submittedPage struct {
	DebriefURL string
}

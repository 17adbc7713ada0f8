package escalation

import "strings"

// Template is a notification subject/body pair with {{variable}}
// placeholders.
type Template struct {
	Subject string
	Body    string
}

// Vars maps placeholder names to their rendered values.
type Vars map[string]string

// Substitute replaces every known placeholder in text, accepting both the
// spaced "{{ name }}" and compact "{{name}}" forms. Unknown placeholders
// are left verbatim.
func Substitute(text string, vars Vars) string {
	for name, value := range vars {
		text = strings.ReplaceAll(text, "{{ "+name+" }}", value)
		text = strings.ReplaceAll(text, "{{"+name+"}}", value)
	}
	return text
}

// Render substitutes the variables into both the subject and the body.
func (t Template) Render(vars Vars) (subject, body string) {
	return Substitute(t.Subject, vars), Substitute(t.Body, vars)
}

// HTMLBody converts a plain-text body to the minimal HTML the mailer
// expects.
func HTMLBody(text string) string {
	return strings.ReplaceAll(text, "\n", "<br/>")
}

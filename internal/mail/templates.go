package mail

import (
	"bytes"
	"html/template"
)

type welcomeCopy struct {
	Subject  string
	Lang     string
	Dir      string
	Greeting string
	Body     string
	Footer   string
	Name     string
}

var welcomeText = map[string]welcomeCopy{
	"ar": {
		Subject:  "مرحباً بك في Outfred",
		Lang:     "ar",
		Dir:      "rtl",
		Greeting: "أهلاً",
		Body:     "تم إنشاء حسابك بنجاح. اكتشف المتاجر وابدأ التسوق الآن.",
		Footer:   "فريق Outfred",
	},
	"en": {
		Subject:  "Welcome to Outfred",
		Lang:     "en",
		Dir:      "ltr",
		Greeting: "Hi",
		Body:     "Your account has been created. Discover stores and start shopping now.",
		Footer:   "The Outfred team",
	},
}

var welcomeTemplate = template.Must(template.New("welcome").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}" dir="{{.Dir}}">
<body style="font-family: Arial, sans-serif; background: #f6f6f6; padding: 24px;">
<div style="max-width: 560px; margin: 0 auto; background: #ffffff; border-radius: 12px; padding: 32px;">
<h1 style="color: #111111;">{{.Subject}}</h1>
<p>{{.Greeting}} {{.Name}},</p>
<p>{{.Body}}</p>
<p style="color: #888888;">{{.Footer}}</p>
</div>
</body>
</html>`))

// WelcomeEmail renders the welcome message. Unknown languages get Arabic.
func WelcomeEmail(name, lang string) (subject, body string, err error) {
	c, ok := welcomeText[lang]
	if !ok {
		c = welcomeText["ar"]
	}
	c.Name = name

	var buf bytes.Buffer
	if err := welcomeTemplate.Execute(&buf, c); err != nil {
		return "", "", err
	}
	return c.Subject, buf.String(), nil
}

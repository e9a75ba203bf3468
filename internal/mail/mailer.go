package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/rs/zerolog"
)

type Sender struct {
	host   string
	port   string
	user   string
	pass   string
	from   string
	logger zerolog.Logger
}

func NewSender(host, port, user, pass, from string, logger zerolog.Logger) *Sender {
	return &Sender{
		host:   host,
		port:   port,
		user:   user,
		pass:   pass,
		from:   from,
		logger: logger,
	}
}

const resetTemplate = `
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2>Reset your password</h2>
        <p>We received a request to reset the password for your account.</p>
        <p style="text-align: center;">
            <a href="{{.Link}}" style="display: inline-block; padding: 10px 20px; background-color: #1a73e8; color: white; text-decoration: none; border-radius: 4px;">Choose a new password</a>
        </p>
        <p>The link expires in one hour. If you didn't ask for this, you can ignore this email.</p>
    </div>
</body>
</html>
`

var resetTmpl = template.Must(template.New("reset").Parse(resetTemplate))

func (s *Sender) SendResetEmail(to, link string) error {
	var body bytes.Buffer
	if err := resetTmpl.Execute(&body, map[string]string{"Link": link}); err != nil {
		return fmt.Errorf("execute template: %w", err)
	}

	headers := map[string]string{
		"From":         s.from,
		"To":           to,
		"Subject":      "Reset your password",
		"MIME-Version": "1.0",
		"Content-Type": `text/html; charset="UTF-8"`,
	}

	message := ""
	for k, v := range headers {
		message += fmt.Sprintf("%s: %s\r\n", k, v)
	}
	message += "\r\n" + body.String()

	// No host configured means dev mode: log instead of sending.
	if s.host == "" {
		s.logger.Info().Str("to", to).Str("link", link).Msg("mock reset email (no SMTP host configured)")
		return nil
	}

	auth := smtp.PlainAuth("", s.user, s.pass, s.host)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	if err := smtp.SendMail(addr, auth, s.from, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

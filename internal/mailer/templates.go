package mailer

import (
	"bytes"
	"html/template"
	"time"
)

var otpHTML = template.Must(template.New("otp").Parse(
	`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
<h2 style="color: #667eea;">Your password reset code</h2>
<h1 style="color: #667eea; font-size: 3em;">{{.Code}}</h1>
<p>Valid {{.Minutes}} min. If you didn't request this, ignore this email.</p>
</div>`))

// OTPMessage builds the password reset email carrying a one-time code.
func OTPMessage(to, code string, ttl time.Duration) (Message, error) {
	data := struct {
		Code    string
		Minutes int
	}{Code: code, Minutes: int(ttl.Minutes())}

	var buf bytes.Buffer
	if err := otpHTML.Execute(&buf, data); err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: "Your OTP Code",
		Text:    "Your password reset code is " + code + ". It expires in " + ttl.String() + ".",
		HTML:    buf.String(),
	}, nil
}

package adminauth

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const totpIssuer = "travelbot"

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Enrollment is what an operator needs to add the admin account to an authenticator app.
type Enrollment struct {
	Secret string
	URL    string
	QRCode []byte
}

// EnrollTOTP generates a fresh secret for admin.totp_secret together with a PNG QR code of its otpauth URL.
func EnrollTOTP(account string, qrSize int) (Enrollment, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return Enrollment{}, fmt.Errorf("totp account is empty")
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: account,
		Period:      totpOpts.Period,
		Digits:      totpOpts.Digits,
		Algorithm:   totpOpts.Algorithm,
	})
	if err != nil {
		return Enrollment{}, fmt.Errorf("generate totp secret: %w", err)
	}

	if qrSize <= 0 {
		qrSize = 256
	}
	png, err := qrcode.Encode(key.URL(), qrcode.Medium, qrSize)
	if err != nil {
		return Enrollment{}, fmt.Errorf("encode totp qr code: %w", err)
	}
	return Enrollment{Secret: key.Secret(), URL: key.URL(), QRCode: png}, nil
}

func validTOTP(secret, code string, now time.Time) bool {
	code = strings.TrimSpace(code)
	if len(code) != int(otp.DigitsSix) {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, now, totpOpts)
	return err == nil && ok
}

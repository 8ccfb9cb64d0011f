package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/nicklasc86/travelbot/internal/services/adminauth"
)

func main() {
	password := flag.String("password", "", "plain password")
	totpAccount := flag.String("totp-account", "", "generate a TOTP secret for this admin account instead of hashing a password")
	qrPath := flag.String("totp-qr", "admin-totp.png", "where to write the TOTP enrollment QR code")
	flag.Parse()

	if strings.TrimSpace(*totpAccount) != "" {
		enroll(*totpAccount, *qrPath)
		return
	}

	if strings.TrimSpace(*password) == "" {
		log.Fatal("use -password to pass plain password or -totp-account to enroll a second factor")
	}

	hash, err := adminauth.HashPassword(*password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	fmt.Println(hash)
}

func enroll(account, qrPath string) {
	enrollment, err := adminauth.EnrollTOTP(account, 256)
	if err != nil {
		log.Fatalf("enroll totp: %v", err)
	}
	if err := os.WriteFile(qrPath, enrollment.QRCode, 0o600); err != nil {
		log.Fatalf("write qr code: %v", err)
	}

	fmt.Printf("ADMIN_TOTP_SECRET=%s\n", enrollment.Secret)
	fmt.Printf("otpauth url: %s\n", enrollment.URL)
	fmt.Printf("qr code written to %s\n", qrPath)
}

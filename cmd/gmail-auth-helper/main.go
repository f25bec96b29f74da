package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"

	"customer-care/internal/handoff"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: gmail-auth-helper <credentials.json>")
	}
	credentialsFile := os.Args[1]

	credentialsData, err := os.ReadFile(credentialsFile)
	if err != nil {
		log.Fatalf("Failed to read credentials file: %v", err)
	}
	credentials, err := handoff.ParseGoogleCredentials(credentialsData)
	if err != nil {
		log.Fatalf("Failed to parse credentials: %v", err)
	}

	config := handoff.OAuthConfig(credentials, "urn:ietf:wg:oauth:2.0:oob")
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	fmt.Printf("🔗 Gmail authorization for handoff e-mails\n")
	fmt.Printf("==========================================\n")
	fmt.Printf("1. Open this URL in your browser, signed in as the support mailbox:\n")
	fmt.Printf("   %s\n\n", authURL)
	fmt.Printf("2. Allow sending e-mail\n")
	fmt.Printf("3. Paste the authorization code below\n\n")
	fmt.Printf("📝 Authorization code: ")

	var authCode string
	if _, err := fmt.Scan(&authCode); err != nil {
		log.Fatalf("Failed to read authorization code: %v", err)
	}
	token, err := config.Exchange(context.Background(), authCode)
	if err != nil {
		log.Fatalf("Failed to exchange code for token: %v", err)
	}
	if token.RefreshToken == "" {
		log.Fatal("❌ Google did not return a refresh token; revoke the app's access and run again")
	}

	abs, err := filepath.Abs(credentialsFile)
	if err != nil {
		abs = credentialsFile
	}
	fmt.Printf("\n✅ Add these to your .env file:\n\n")
	fmt.Printf("GMAIL_CREDENTIALS_JSON_PATH=%s\n", abs)
	fmt.Printf("GMAIL_REFRESH_TOKEN=%s\n", token.RefreshToken)
	fmt.Printf("HANDOFF_EMAIL_TO=support@example.com\n")
}

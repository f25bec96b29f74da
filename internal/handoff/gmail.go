package handoff

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// OAuth2Credentials is the client part of a Google credentials file.
type OAuth2Credentials struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	RedirectURIs []string `json:"redirect_uris"`
	AuthURI      string   `json:"auth_uri"`
	TokenURI     string   `json:"token_uri"`
}

// GoogleCredentialsFile is the credentials.json layout from Google Cloud Console
type GoogleCredentialsFile struct {
	Installed *OAuth2Credentials `json:"installed,omitempty"`
	Web       *OAuth2Credentials `json:"web,omitempty"`
}

// ParseGoogleCredentials accepts either a bare client object or the
// installed/web wrapped Cloud Console format.
func ParseGoogleCredentials(data []byte) (*OAuth2Credentials, error) {
	var direct OAuth2Credentials
	if err := json.Unmarshal(data, &direct); err == nil && direct.ClientID != "" && direct.ClientSecret != "" {
		return &direct, nil
	}
	var file GoogleCredentialsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse credentials as Google format: %w", err)
	}
	if file.Installed != nil {
		return file.Installed, nil
	}
	if file.Web != nil {
		return file.Web, nil
	}
	return nil, fmt.Errorf("no valid credentials found in JSON - expected 'installed' or 'web' section")
}

// OAuthConfig is the OAuth2 client allowed to send mail on behalf of the
// support mailbox.
func OAuthConfig(creds *OAuth2Credentials, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{gmail.GmailSendScope},
		Endpoint:     google.Endpoint,
	}
}

type messageSender interface {
	send(ctx context.Context, raw string) error
}

type gmailSender struct{ svc *gmail.Service }

func (g gmailSender) send(ctx context.Context, raw string) error {
	_, err := g.svc.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do()
	return err
}

// GmailNotifier e-mails handoff tickets to the support inbox.
type GmailNotifier struct {
	sender messageSender
	from   string
	to     []string
}

// NewGmailNotifier builds a notifier authorized with a stored refresh token.
func NewGmailNotifier(ctx context.Context, credentialsPath, refreshToken, from string, to []string) (*GmailNotifier, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read gmail credentials: %w", err)
	}
	creds, err := ParseGoogleCredentials(data)
	if err != nil {
		return nil, err
	}
	conf := OAuthConfig(creds, "")
	httpClient := conf.Client(ctx, &oauth2.Token{RefreshToken: refreshToken})
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &GmailNotifier{sender: gmailSender{svc: svc}, from: from, to: to}, nil
}

func (g *GmailNotifier) Notify(ctx context.Context, tk Ticket) error {
	raw := buildRawMessage(g.from, g.to, fmt.Sprintf("[handoff] session %s", tk.SessionID), tk.Summary())
	if err := g.sender.send(ctx, raw); err != nil {
		return fmt.Errorf("gmail send ticket %s: %w", tk.ID, err)
	}
	return nil
}

// buildRawMessage renders a plain-text RFC 822 message in the base64url form
// the Gmail API expects.
func buildRawMessage(from string, to []string, subject, body string) string {
	var b strings.Builder
	if from != "" && from != "me" {
		fmt.Fprintf(&b, "From: %s\r\n", from)
	}
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return base64.URLEncoding.EncodeToString([]byte(b.String()))
}

package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"receipt-api/internal/models"
	"receipt-api/pkg/logging"

	brevo "github.com/getbrevo/brevo-go/lib"
	"github.com/rs/zerolog"
)

// EmailSender delivers a single transactional email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, htmlContent, textContent string) error
}

// BrevoService sends transactional email through the Brevo API.
type BrevoService struct {
	client    *brevo.APIClient
	fromEmail string
	fromName  string
}

// NewBrevoService creates a Brevo client. basePath overrides the API endpoint
// when non-empty.
func NewBrevoService(apiKey, fromEmail, fromName, basePath string) *BrevoService {
	cfg := brevo.NewConfiguration()
	cfg.AddDefaultHeader("api-key", apiKey)
	if basePath != "" {
		cfg.BasePath = basePath
	}
	return &BrevoService{
		client:    brevo.NewAPIClient(cfg),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

// SendEmail sends one email.
func (s *BrevoService) SendEmail(ctx context.Context, to, subject, htmlContent, textContent string) error {
	_, resp, err := s.client.TransactionalEmailsApi.SendTransacEmail(ctx, brevo.SendSmtpEmail{
		Sender: &brevo.SendSmtpEmailSender{
			Name:  s.fromName,
			Email: s.fromEmail,
		},
		To:          []brevo.SendSmtpEmailTo{{Email: to}},
		Subject:     subject,
		HtmlContent: htmlContent,
		TextContent: textContent,
	})
	if err != nil {
		if resp != nil {
			return fmt.Errorf("brevo API error: status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// OpsAlerter emails operators when Apple rejects the shared secret. At most
// one alert is sent per interval.
type OpsAlerter struct {
	sender   EmailSender
	to       string
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	mu       sync.Mutex
	lastSent time.Time
	wg       sync.WaitGroup
}

// NewOpsAlerter creates an alerter sending to the given address.
func NewOpsAlerter(sender EmailSender, to string, interval time.Duration) *OpsAlerter {
	if interval <= 0 {
		interval = time.Hour
	}
	return &OpsAlerter{
		sender:   sender,
		to:       to,
		interval: interval,
		timeout:  10 * time.Second,
		now:      time.Now,
		logger:   logging.Component("ops_alerter"),
	}
}

// SharedSecretRejected sends an alert in the background unless one was sent
// within the throttle interval.
func (a *OpsAlerter) SharedSecretRejected(environment models.Environment) {
	if !a.reserve() {
		a.logger.Debug().Str("environment", string(environment)).Msg("shared secret alert throttled")
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.send(ctx, environment); err != nil {
			a.logger.Error().Err(err).Msg("failed to send shared secret alert")
		}
	}()
}

// Wait blocks until in-flight alerts finish.
func (a *OpsAlerter) Wait() {
	a.wg.Wait()
}

func (a *OpsAlerter) reserve() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	if !a.lastSent.IsZero() && now.Sub(a.lastSent) < a.interval {
		return false
	}
	a.lastSent = now
	return true
}

func (a *OpsAlerter) send(ctx context.Context, environment models.Environment) error {
	subject := fmt.Sprintf("[receipt-api] Apple rejected the shared secret (%s)", environment)
	text := fmt.Sprintf(
		"Apple verifyReceipt returned status 21004 in the %s environment at %s.\n"+
			"Check APPLE_SHARED_SECRET against App Store Connect.",
		environment, a.now().UTC().Format(time.RFC3339))
	html := fmt.Sprintf(`<p>Apple verifyReceipt returned status <b>21004</b> in the <b>%s</b> environment at %s.</p>
<p>Check <code>APPLE_SHARED_SECRET</code> against App Store Connect.</p>`,
		environment, a.now().UTC().Format(time.RFC3339))

	return a.sender.SendEmail(ctx, a.to, subject, html, text)
}

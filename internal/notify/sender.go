package notify

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
	"github.com/masakoww/jambistore-app-sub000/internal/usecase"
)

// Publisher hands a rendered email to whatever actually sends mail.
type Publisher interface {
	PublishEmail(ctx context.Context, msg usecase.EmailMsg) error
}

// Sender renders queue items and publishes them, throttled so a backlog does
// not flood the mail relay.
type Sender struct {
	r   *Renderer
	pub Publisher
	lim *rate.Limiter
}

// NewSender allows perSecond sends with the given burst. perSecond <= 0 disables
// throttling.
func NewSender(r *Renderer, pub Publisher, perSecond float64, burst int) *Sender {
	lim := rate.NewLimiter(rate.Inf, 0)
	if perSecond > 0 {
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return &Sender{r: r, pub: pub, lim: lim}
}

func (s *Sender) Send(ctx context.Context, n domain.NotificationItem) error {
	if n.Recipient == "" {
		return domain.ErrMissingCustomerEmail
	}
	mail, err := s.r.Render(n.Template, n.Data)
	if err != nil {
		return err
	}
	if err := s.lim.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return s.pub.PublishEmail(ctx, usecase.EmailMsg{
		NotificationID: n.ID,
		To:             n.Recipient,
		Template:       n.Template,
		Subject:        mail.Subject,
		Text:           mail.Text,
		HTML:           mail.HTML,
	})
}

var _ usecase.NotificationSender = (*Sender)(nil)

// LogPublisher writes emails to the log instead of a broker. Used when no mail
// relay is configured.
type LogPublisher struct {
	Log *slog.Logger
}

func (p LogPublisher) PublishEmail(_ context.Context, msg usecase.EmailMsg) error {
	p.Log.Info("email (not sent)", "to", msg.To, "template", msg.Template, "subject", msg.Subject)
	return nil
}

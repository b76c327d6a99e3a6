package notify_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
	"github.com/masakoww/jambistore-app-sub000/internal/notify"
	"github.com/masakoww/jambistore-app-sub000/internal/usecase"
)

type capturePublisher struct{ msgs []usecase.EmailMsg }

func (p *capturePublisher) PublishEmail(_ context.Context, m usecase.EmailMsg) error {
	p.msgs = append(p.msgs, m)
	return nil
}

func TestRenderDelivered(t *testing.T) {
	r, err := notify.NewRenderer("Jambi Store")
	require.NoError(t, err)

	mail, err := r.Render(domain.TemplateOrderDelivered, map[string]any{
		"order_id":      "ord-1",
		"customer_name": "Budi",
		"product_name":  "Netflix 1 Month",
		"content":       map[string]any{"email": "acc@nf.test", "password": "<pw&1>"},
		"instructions":  "Do not change the password.",
	})
	require.NoError(t, err)
	assert.Equal(t, "[Jambi Store] Your Netflix 1 Month is ready", mail.Subject)
	assert.Contains(t, mail.Text, "email: acc@nf.test")
	assert.Contains(t, mail.Text, "password: <pw&1>")
	assert.Contains(t, mail.Text, "Do not change the password.")
	assert.Contains(t, mail.HTML, "&lt;pw&amp;1&gt;")
	assert.NotContains(t, mail.HTML, "<pw&1>")
}

func TestRenderEveryTemplate(t *testing.T) {
	r, err := notify.NewRenderer("Shop")
	require.NoError(t, err)
	for _, name := range []string{
		domain.TemplateOrderCreated,
		domain.TemplateOrderDelivered,
		domain.TemplateReviewRequest,
		domain.TemplateManualPending,
	} {
		mail, err := r.Render(name, map[string]any{"order_id": "ord-9", "customer_name": "Ana", "product_name": "Key"})
		require.NoError(t, err, name)
		assert.Contains(t, mail.Subject, "[Shop]", name)
		assert.Contains(t, mail.Text, "ord-9", name)
	}

	_, err = r.Render("birthday", nil)
	assert.Error(t, err)
}

func TestSenderPublishesRenderedMail(t *testing.T) {
	r, err := notify.NewRenderer("Shop")
	require.NoError(t, err)
	pub := &capturePublisher{}
	s := notify.NewSender(r, pub, 0, 0)

	err = s.Send(context.Background(), domain.NotificationItem{
		ID: "n1", Recipient: "ana@example.com", Template: domain.TemplateReviewRequest,
		Data: map[string]any{"order_id": "ord-9", "customer_name": "Ana", "product_name": "Key"},
	})
	require.NoError(t, err)
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "n1", pub.msgs[0].NotificationID)
	assert.Equal(t, "ana@example.com", pub.msgs[0].To)
	assert.Equal(t, "[Shop] How was your Key?", pub.msgs[0].Subject)

	err = s.Send(context.Background(), domain.NotificationItem{Template: domain.TemplateReviewRequest})
	assert.ErrorIs(t, err, domain.ErrMissingCustomerEmail)
}

func TestSenderRespectsContext(t *testing.T) {
	r, err := notify.NewRenderer("Shop")
	require.NoError(t, err)
	s := notify.NewSender(r, &capturePublisher{}, 0.001, 1)
	item := domain.NotificationItem{Recipient: "a@x", Template: domain.TemplateReviewRequest}

	require.NoError(t, s.Send(context.Background(), item))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, s.Send(ctx, item))
}

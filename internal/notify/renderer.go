package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"text/template"

	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
)

// Email is a rendered notification.
type Email struct {
	Subject string
	Text    string
	HTML    string
}

type emailTemplate struct {
	subject *template.Template
	text    *template.Template
	html    *htmltemplate.Template
}

// Renderer turns queue items into emails. Template names match the queue's
// template field.
type Renderer struct {
	shop      string
	templates map[string]emailTemplate
}

func NewRenderer(shopName string) (*Renderer, error) {
	r := &Renderer{shop: shopName, templates: map[string]emailTemplate{}}
	for name, src := range sources {
		t, err := compile(name, src)
		if err != nil {
			return nil, err
		}
		r.templates[name] = t
	}
	return r, nil
}

func compile(name string, src source) (emailTemplate, error) {
	subj, err := template.New(name + ".subject").Parse(src.subject)
	if err != nil {
		return emailTemplate{}, fmt.Errorf("template %s subject: %w", name, err)
	}
	text, err := template.New(name + ".txt").Option("missingkey=zero").Parse(src.text)
	if err != nil {
		return emailTemplate{}, fmt.Errorf("template %s text: %w", name, err)
	}
	html, err := htmltemplate.New(name + ".html").Option("missingkey=zero").Parse(src.html)
	if err != nil {
		return emailTemplate{}, fmt.Errorf("template %s html: %w", name, err)
	}
	return emailTemplate{subject: subj, text: text, html: html}, nil
}

func (r *Renderer) Render(name string, data map[string]any) (*Email, error) {
	t, ok := r.templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown notification template %q", name)
	}
	view := make(map[string]any, len(data)+1)
	for k, v := range data {
		view[k] = v
	}
	view["shop"] = r.shop

	var subj, text, html bytes.Buffer
	if err := t.subject.Execute(&subj, view); err != nil {
		return nil, fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := t.text.Execute(&text, view); err != nil {
		return nil, fmt.Errorf("render %s text: %w", name, err)
	}
	if err := t.html.Execute(&html, view); err != nil {
		return nil, fmt.Errorf("render %s html: %w", name, err)
	}
	return &Email{Subject: subj.String(), Text: text.String(), HTML: html.String()}, nil
}

type source struct {
	subject string
	text    string
	html    string
}

var sources = map[string]source{
	domain.TemplateOrderCreated: {
		subject: `[{{.shop}}] Order {{.order_id}} is waiting for payment`,
		text: `Hi {{.customer_name}},

Your order {{.order_id}} for {{.amount}} has been created.
{{if .checkout_url}}Pay here: {{.checkout_url}}
{{end}}{{if .expires_at}}The payment link expires at {{.expires_at}}.
{{end}}`,
		html: `<p>Hi {{.customer_name}},</p>
<p>Your order <b>{{.order_id}}</b> for {{.amount}} has been created.</p>
{{if .checkout_url}}<p><a href="{{.checkout_url}}">Pay now</a></p>{{end}}
{{if .expires_at}}<p>The payment link expires at {{.expires_at}}.</p>{{end}}`,
	},
	domain.TemplateOrderDelivered: {
		subject: `[{{.shop}}] Your {{.product_name}} is ready`,
		text: `Hi {{.customer_name}},

Order {{.order_id}} has been delivered.
{{range $k, $v := .content}}{{$k}}: {{$v}}
{{end}}{{if .instructions}}
{{.instructions}}
{{end}}`,
		html: `<p>Hi {{.customer_name}},</p>
<p>Order <b>{{.order_id}}</b> has been delivered.</p>
<table>{{range $k, $v := .content}}<tr><td>{{$k}}</td><td><code>{{$v}}</code></td></tr>{{end}}</table>
{{if .instructions}}<p>{{.instructions}}</p>{{end}}`,
	},
	domain.TemplateReviewRequest: {
		subject: `[{{.shop}}] How was your {{.product_name}}?`,
		text: `Hi {{.customer_name}},

Thanks for order {{.order_id}}. We would love to hear how it went.
`,
		html: `<p>Hi {{.customer_name}},</p>
<p>Thanks for order <b>{{.order_id}}</b>. We would love to hear how it went.</p>`,
	},
	domain.TemplateManualPending: {
		subject: `[{{.shop}}] Order {{.order_id}} is being prepared`,
		text: `Hi {{.customer_name}},

Payment for order {{.order_id}} ({{.product_name}}) is confirmed. Our team is preparing it and will send it shortly.
{{if .instructions}}
{{.instructions}}
{{end}}`,
		html: `<p>Hi {{.customer_name}},</p>
<p>Payment for order <b>{{.order_id}}</b> ({{.product_name}}) is confirmed. Our team is preparing it and will send it shortly.</p>
{{if .instructions}}<p>{{.instructions}}</p>{{end}}`,
	},
}

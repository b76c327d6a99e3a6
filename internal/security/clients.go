package security

import "github.com/masakoww/jambistore-app-sub000/configs"

// Permissions granted to API clients.
const (
	PermOrdersRead    = "orders.read"
	PermOrdersAdmin   = "orders.admin"
	PermPaymentsWrite = "payments.write"
)

type Client struct {
	ID      string
	Secret  string
	Perms   []string
	Enabled bool
}

// Clients is the registry consulted when issuing tokens.
type Clients map[string]Client

func NewClients(cfgs []configs.ClientConfig) Clients {
	out := make(Clients, len(cfgs))
	for _, c := range cfgs {
		if c.ID == "" {
			continue
		}
		out[c.ID] = Client{ID: c.ID, Secret: c.Secret, Perms: c.Perms, Enabled: c.Enabled}
	}
	return out
}

// Authenticate returns the client only if it exists, is enabled and the secret matches.
func (cs Clients) Authenticate(id, secret string) (Client, bool) {
	c, ok := cs[id]
	if !ok || !c.Enabled || !constantTimeEqual(c.Secret, secret) {
		return Client{}, false
	}
	return c, true
}

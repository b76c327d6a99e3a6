package usecase

// PaymentEventMsg arrives on Kafka from the payment gateway relay.
type PaymentEventMsg struct {
	EventID   string `json:"eventId"`
	OrderID   string `json:"orderId"`
	Gateway   string `json:"gateway"`
	Reference string `json:"reference"`
	Status    string `json:"status"` // informational; the gateway is re-checked
}

// DispatchCmdMsg asks for a delivery retry, e.g. after stock was restocked.
type DispatchCmdMsg struct {
	OrderID   string `json:"orderId"`
	ProductID string `json:"productId,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// EmailMsg is a rendered notification handed to the mail relay.
type EmailMsg struct {
	NotificationID string `json:"notificationId,omitempty"`
	To             string `json:"to"`
	Template       string `json:"template"`
	Subject        string `json:"subject"`
	Text           string `json:"text"`
	HTML           string `json:"html"`
}

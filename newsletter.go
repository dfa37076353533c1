package newsletter

// NewsletterService is the interface that wraps outbound email.
// Every method is a best-effort side effect from the orchestrator's point of
// view: callers log failures and move on.
type NewsletterService interface {
	SendConfirmationEmail(to, token string) error
	SendWelcomeEmail(to, unsubscribeToken string) error
	SendGoodbyeEmail(to string) error
	SendStatsReport(to string, stats []DailyStat) error
	SendNewsletter(subscribers []Subscriber, subject, body string)
}

// NewsletterIssueRequest is the payload for sending an issue to all active
// subscribers.
type NewsletterIssueRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

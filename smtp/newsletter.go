package smtp

import (
	"fmt"
	"sync"

	"github.com/getsentry/sentry-go"
	"github.com/matcornic/hermes/v2"
	"github.com/pkg/errors"
	"gopkg.in/gomail.v2"

	"github.com/caribhq/newsletter"
)

// Subjects of the transactional emails. The site ships in Korean.
const (
	confirmationSubject = "뉴스레터 구독을 확인해 주세요"
	welcomeSubject      = "구독이 완료되었습니다. 환영합니다!"
	goodbyeSubject      = "구독이 해지되었습니다"
	statsReportSubject  = "Newsletter signup report"
)

type newsletterService struct {
	baseURL string
	*newsletter.Config

	dialerOnce sync.Once
	dialer     *gomail.Dialer
}

// NewNewsletterService returns a gomail-backed mailer. baseURL is the public
// server URL embedded in confirmation and unsubscribe links.
func NewNewsletterService(config *newsletter.Config, baseURL string) newsletter.NewsletterService {
	return &newsletterService{
		Config:  config,
		baseURL: baseURL,
	}
}

func (ns *newsletterService) product() hermes.Hermes {
	link := ns.Config.Newsletter.Product.Link
	if link == "" {
		link = ns.baseURL
	}
	return hermes.Hermes{
		Product: hermes.Product{
			Name: ns.Config.Newsletter.Product.Name,
			Link: link,
		},
	}
}

// SendConfirmationEmail sends the double-opt-in confirmation email
func (ns *newsletterService) SendConfirmationEmail(to, token string) error {
	return ns.sendHermes(to, confirmationSubject, ns.confirmationEmail(token))
}

func (ns *newsletterService) confirmationEmail(token string) hermes.Email {
	return hermes.Email{
		Body: hermes.Body{
			Greeting: "안녕하세요",
			Intros: []string{
				fmt.Sprintf("%s 뉴스레터 구독 신청이 접수되었습니다.", ns.Config.Newsletter.Product.Name),
				"아래 버튼을 눌러 구독을 확정해 주세요.",
			},
			Actions: []hermes.Action{
				{
					Button: hermes.Button{
						Color: "#22BC66",
						Text:  "구독 확인하기",
						Link:  fmt.Sprintf("%s/confirm?token=%s", ns.baseURL, token),
					},
				},
			},
			Outros: []string{
				"본인이 신청하지 않았다면 이 메일을 무시하셔도 됩니다.",
			},
			Signature: "감사합니다",
		},
	}
}

// SendWelcomeEmail sends the post-confirmation welcome email with a
// self-service unsubscribe link
func (ns *newsletterService) SendWelcomeEmail(to, unsubscribeToken string) error {
	return ns.sendHermes(to, welcomeSubject, ns.welcomeEmail(unsubscribeToken))
}

func (ns *newsletterService) welcomeEmail(unsubscribeToken string) hermes.Email {
	return hermes.Email{
		Body: hermes.Body{
			Greeting: "안녕하세요",
			Intros: []string{
				fmt.Sprintf("%s 뉴스레터 구독이 완료되었습니다.", ns.Config.Newsletter.Product.Name),
				"앞으로 자동화와 AI 소식을 메일함으로 보내드립니다.",
			},
			Outros: []string{
				fmt.Sprintf("구독을 원하지 않으시면 언제든지 해지할 수 있습니다: %s/unsubscribe?token=%s",
					ns.baseURL, unsubscribeToken),
			},
			Signature: "감사합니다",
		},
	}
}

// SendGoodbyeEmail confirms an unsubscribe
func (ns *newsletterService) SendGoodbyeEmail(to string) error {
	return ns.sendHermes(to, goodbyeSubject, ns.goodbyeEmail())
}

func (ns *newsletterService) goodbyeEmail() hermes.Email {
	return hermes.Email{
		Body: hermes.Body{
			Greeting: "안녕하세요",
			Intros: []string{
				"뉴스레터 구독이 해지되었습니다.",
				"더 이상 메일이 발송되지 않습니다.",
			},
			Outros: []string{
				"언제든지 다시 구독하실 수 있습니다.",
			},
			Signature: "감사합니다",
		},
	}
}

// SendStatsReport mails the recent signup counters to the admin address
func (ns *newsletterService) SendStatsReport(to string, stats []newsletter.DailyStat) error {
	rows := make([][]hermes.Entry, 0, len(stats))
	for _, stat := range stats {
		rows = append(rows, []hermes.Entry{
			{Key: "Date", Value: stat.Date},
			{Key: "Signups", Value: fmt.Sprintf("%d", stat.TotalSubscriptions)},
			{Key: "AI", Value: fmt.Sprintf("%d", stat.ByInterest[newsletter.InterestAI])},
			{Key: "Automation", Value: fmt.Sprintf("%d", stat.ByInterest[newsletter.InterestAutomation])},
			{Key: "Data analysis", Value: fmt.Sprintf("%d", stat.ByInterest[newsletter.InterestDataAnalysis])},
		})
	}

	email := hermes.Email{
		Body: hermes.Body{
			Intros: []string{
				"Newsletter signups over the report window.",
			},
			Table: hermes.Table{
				Data: rows,
			},
		},
	}

	return ns.sendHermes(to, statsReportSubject, email)
}

// SendNewsletter broadcasts one issue to the given subscribers. Per-recipient
// failures are reported and do not stop the loop.
func (ns *newsletterService) SendNewsletter(subscribers []newsletter.Subscriber, subject, body string) {
	for _, s := range subscribers {
		unsubscribeLink := fmt.Sprintf("%s/unsubscribe?token=%s", ns.baseURL, s.UnsubscribeToken)
		issue := fmt.Sprintf("%s<br><br><a href=%q>구독 해지</a>", body, unsubscribeLink)
		if err := ns.sendEmail(s.Email, subject, issue, ""); err != nil {
			sentry.CaptureException(err)
		}
	}
}

func (ns *newsletterService) sendHermes(to, subject string, email hermes.Email) error {
	h := ns.product()

	htmlBody, err := h.GenerateHTML(email)
	if err != nil {
		return errors.Errorf("failed to generate HTML email: %v", err)
	}
	textBody, err := h.GeneratePlainText(email)
	if err != nil {
		return errors.Errorf("failed to generate plain text email: %v", err)
	}

	return ns.sendEmail(to, subject, htmlBody, textBody)
}

func (ns *newsletterService) sendEmail(to, subject, htmlBody, textBody string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", ns.Config.Newsletter.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	if textBody != "" {
		m.SetBody("text/plain", textBody)
		m.AddAlternative("text/html", htmlBody)
	} else {
		m.SetBody("text/html", htmlBody)
	}

	if err := ns.getDialer().DialAndSend(m); err != nil {
		return errors.Errorf("failed to send mail to %s: %v", to, err)
	}

	return nil
}

// getDialer lazily builds the SMTP dialer exactly once, even under
// concurrent first sends.
func (ns *newsletterService) getDialer() *gomail.Dialer {
	ns.dialerOnce.Do(func() {
		ns.dialer = gomail.NewDialer(ns.Config.SMTP.Host, ns.Config.SMTP.Port, ns.Config.SMTP.Username, ns.Config.SMTP.Password)
	})

	return ns.dialer
}

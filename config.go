package newsletter

// Config represents the main config
type Config struct {
	DB struct {
		Type string // "bolt" or "sqlite"
		Path string
	}

	HTTP struct {
		Addr    string
		BaseURL string // public base URL embedded in email links
	}

	SMTP struct {
		Host     string
		Port     int
		Username string
		Password string
	}

	Newsletter struct {
		From    string
		Product struct {
			Name string
			Link string
		}
		Pages struct {
			// Redirect targets for interactive (browser) confirm and
			// unsubscribe flows. Empty means respond with JSON.
			Confirmed    string
			Unsubscribed string
		}
	}

	Marketing struct {
		BaseURL string
		APIKey  string
		ListID  string
	}

	Admin struct {
		Token string
		Email string
	}

	RateLimit struct {
		RPS   float64
		Burst int
	}

	Stats struct {
		Report struct {
			Cron struct {
				Spec string
			}
		}
	}

	Sentry struct {
		DSN string
	}

	AMQP struct {
		URL string
	}
}

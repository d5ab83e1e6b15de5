package errors

import (
	"os"
	"sync"

	"github.com/certifi/gocertifi"
	"github.com/getsentry/sentry-go"
	"moff.io/wallet-bridge/pkg/log"
)

// Set DEBUG to any value to keep errors local.
const debugMode = "DEBUG"

// Reporter receives every error built through an "...AndReport" constructor.
type Reporter interface {
	Report(error)
}

// ReporterFunc adapts a plain function to Reporter.
type ReporterFunc func(error)

func (f ReporterFunc) Report(err error) { f(err) }

var (
	reportersMu sync.RWMutex
	reporters   []Reporter
)

// Register appends r to the reporters used by the "...AndReport" helpers.
func Register(r Reporter) {
	if r == nil {
		return
	}
	reportersMu.Lock()
	reporters = append(reporters, r)
	reportersMu.Unlock()
}

func report(err error) {
	if err == nil || os.Getenv(debugMode) != "" {
		return
	}
	reportersMu.RLock()
	snapshot := make([]Reporter, len(reporters))
	copy(snapshot, reporters)
	reportersMu.RUnlock()
	for _, r := range snapshot {
		r.Report(err)
	}
}

type sentryReporter struct{}

func (sentryReporter) Report(err error) {
	sentry.CaptureException(err)
}

// NewSentryReporter initializes the sentry client and registers it as a
// reporter. An empty DSN is not an error, reporting to sentry is just skipped.
func NewSentryReporter(sentryDSN string) error {
	if sentryDSN == "" {
		log.Warn("empty DSN found, skipping sentry reporter initialization.")
		return nil
	}
	rootCAs, err := gocertifi.CACerts()
	if err != nil {
		return Wrap(err, "init sentry CA")
	}
	err = sentry.Init(sentry.ClientOptions{
		Dsn:     sentryDSN,
		CaCerts: rootCAs,
	})
	if err != nil {
		return Wrap(err, "init sentry")
	}
	Register(sentryReporter{})
	log.Info("sentry error reporter initialized.")
	return nil
}

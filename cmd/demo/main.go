// Command demo runs the demo site in-process and drives a scripted
// navigation session against it, logging each lifecycle event.
package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/webfold/partialnav/internal/events"
	"github.com/webfold/partialnav/internal/infrastructure/config"
	"github.com/webfold/partialnav/internal/infrastructure/logging"
	"github.com/webfold/partialnav/internal/intercept"
	"github.com/webfold/partialnav/internal/nav"
	"github.com/webfold/partialnav/internal/page"
	"github.com/webfold/partialnav/internal/server"
)

func main() {
	cfg := config.LoadOrDefault()
	log, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		log = logging.NewDefault()
	}
	defer log.Sync()

	base, stop := serve(cfg, log)
	defer stop()

	p, err := page.Open(base+"/", nil, log)
	if err != nil {
		log.Fatal("open page", zap.Error(err))
	}
	s, err := page.NewSession(p, page.SessionParams{
		Logger: log,
		Nav:    cfg.Nav,
	})
	if err != nil {
		log.Fatal("build session", zap.Error(err))
	}
	for _, t := range []events.Type{
		events.Send, events.Success, events.Error, events.Timeout, events.End,
	} {
		s.Bus().On(t, func(ev *events.Event) events.Decision {
			log.Info("lifecycle",
				zap.String("event", string(ev.Type)),
				zap.String("url", ev.URL),
			)
			return events.Proceed
		})
	}

	run(s, log)
}

// run walks the demo site, one behavior per step.
func run(s *page.Session, log *logging.Logger) {
	step(s, log, "partial navigation", nav.Options{URL: "/posts"})
	step(s, log, "marker-stripped pagination", nav.Options{URL: "/posts?page=2"})

	link := intercept.LinkFrom(s.Page().Document().Query().Find("nav a").First())
	if s.Click(&intercept.Activation{Link: link}) {
		log.Info("link click intercepted", zap.String("href", link.Href))
	}
	settle(s)

	step(s, log, "canonical adoption after redirect", nav.Options{URL: "/moved"})
	step(s, log, "timeout falls back", nav.Options{URL: "/slow?delay=2s", Timeout: 300 * time.Millisecond})
	step(s, log, "server error falls back", nav.Options{URL: "/boom"})

	// The error page has no container, so going back degrades to a full
	// load of the stored location.
	if s.Back() {
		settle(s)
		log.Info("went back", zap.String("location", s.History().Location()))
	}
	if s.Forward() {
		settle(s)
		log.Info("went forward", zap.String("location", s.History().Location()))
	}

	pushes, replaces := s.History().Writes()
	log.Info("session finished",
		zap.String("title", s.Page().Document().Title()),
		zap.Int("entries", s.History().Len()),
		zap.Int("pushes", pushes),
		zap.Int("replaces", replaces),
	)
}

func step(s *page.Session, log *logging.Logger, name string, opts nav.Options) {
	pending, err := s.Navigate(opts)
	if err != nil {
		log.Warn(name, zap.Error(err))
		return
	}
	if pending == nil {
		log.Info(name, zap.String("outcome", "form submission"))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := pending.Wait(ctx)
	if err != nil {
		log.Warn(name, zap.Error(err))
		return
	}
	log.Info(name,
		zap.String("outcome", string(res.Outcome)),
		zap.String("url", res.URL),
		zap.String("title", s.Page().Document().Title()),
	)
}

// settle gives asynchronous replays and full loads a moment to land.
func settle(*page.Session) { time.Sleep(200 * time.Millisecond) }

// serve starts the demo site on an ephemeral port.
func serve(cfg *config.Config, log *logging.Logger) (base string, stop func()) {
	srv := server.New(cfg.Server, log)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatal("listen", zap.Error(err))
	}
	hs := &http.Server{Handler: srv.Router()}
	go hs.Serve(ln)
	return "http://" + ln.Addr().String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		hs.Shutdown(ctx)
	}
}

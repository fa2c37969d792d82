package cmd

import (
	"fmt"
	"io"

	"github.com/kiosk404/hchbench/internal/hchbench/addr"
	"github.com/kiosk404/hchbench/internal/hchbench/config"
	"github.com/kiosk404/hchbench/internal/hchbench/errno"
	"github.com/kiosk404/hchbench/internal/hchbench/hypertext"
	"github.com/kiosk404/hchbench/internal/hchbench/logging"
	"github.com/kiosk404/hchbench/internal/hchbench/persist"
	"github.com/kiosk404/hchbench/internal/hchbench/repl"
	"github.com/kiosk404/hchbench/internal/hchbench/scheduler"
	"github.com/kiosk404/hchbench/internal/hchbench/store"
)

func runHCH(in io.Reader, out, errW io.Writer, opts *config.Options) error {
	cfg, err := config.CreateConfigFromOptions(opts)
	if err != nil {
		return err
	}
	logging.SetLevel(cfg.LogLevel)

	ds := store.New()
	sched := scheduler.New(ds)

	var db *persist.DB
	var restored []*scheduler.Session
	if cfg.DB != "" {
		db, err = persist.Open(cfg.DB)
		if err != nil {
			return err
		}
		defer db.Close()
		if _, err := db.LoadDatastore(ds); err != nil {
			return err
		}
		if err := db.LoadCache(sched); err != nil {
			return err
		}
		restored, err = db.LoadSessions()
		if err != nil {
			return err
		}
		for _, sess := range restored {
			sched.AdoptRestoredSession(sess)
		}
	}

	term := repl.NewTerminal(in, out, errW)
	var driver scheduler.Driver = term
	if cfg.ReplayLog != "" {
		rd, err := repl.NewReplayDriver(cfg.ReplayLog, term)
		if err != nil {
			return err
		}
		defer rd.Close()
		driver = rd
	}

	sessions := restored
	if len(sessions) == 0 {
		if cfg.Question == "" {
			return fmt.Errorf("cmd: --question is required when not resuming a --db session")
		}
		sess, err := sched.NewRootSession(cfg.Question)
		if err != nil {
			return err
		}
		sessions = []*scheduler.Session{sess}
	}

	var runErr error
	for _, sess := range sessions {
		if err := sched.Run(driver, sess); err != nil {
			if err == errno.ErrDoubleFulfil || err == errno.ErrAliasCycle {
				return err
			}
			runErr = err
			break
		}
	}

	if db != nil {
		if err := db.SaveDatastore(ds); err != nil {
			return err
		}
		if err := db.SaveCache(sched); err != nil {
			return err
		}
		for _, sess := range sessions {
			if sess.Done(ds) {
				if err := db.DeleteSession(sess.ID); err != nil {
					return err
				}
				continue
			}
			if err := db.SaveSession(sched, sess); err != nil {
				return err
			}
		}
	}

	if runErr != nil {
		return runErr
	}

	for _, sess := range sessions {
		if !sess.Done(ds) {
			continue
		}
		content, ok := ds.Lookup(sess.RootAnswer)
		if !ok {
			continue
		}
		text := hypertext.Render(content, func(a addr.Address) string {
			return a.String()
		})
		fmt.Fprintln(out, repl.RenderMarkdown(text, 0))
	}
	return nil
}

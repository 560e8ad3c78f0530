package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"reviewsync/internal/devserver"
	"reviewsync/internal/domain/catalog"
	"reviewsync/internal/domain/submission"
	"reviewsync/internal/export"
	"reviewsync/internal/platform/config"
	"reviewsync/internal/platform/session"
	"reviewsync/internal/transport/httpapi"
)

const usage = `usage: reviewsync [flags] <command> [args]

commands:
  status                      show the month's submission state
  kpis [next|prev]            show or page the KPI definition listing
  review <text>               set the self-review text
  rate <kpi|value> <id> <v>   set one rating (1.0-5.0)
  clear <kpi|value> <id>      remove one rating
  cert <name> [proof]         select a certification, optionally with proof
  recognitions <n>            set the recognitions count
  submit                      final-submit the month (irreversible)
  export <path.pdf>           write a PDF summary
  reject <submission-id>      manager: reopen a reportee's submission
`

func main() {
	var (
		configPath = flag.String("config", defaultConfigPath(), "YAML config file")
		baseURL    = flag.String("base-url", "", "portal base URL (overrides config)")
		email      = flag.String("email", "", "login email (overrides config)")
		month      = flag.String("month", time.Now().Format("2006-01"), "review month (YYYY-MM)")
		dev        = flag.Bool("dev", false, "run against an in-process dev backend")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	if err := cfg.ApplyFile(*configPath); err != nil {
		log.Fatalf("config: %v", err)
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *email != "" {
		cfg.Email = *email
	}
	if *dev {
		cfg.DevServer = true
	}
	if cfg.DevServer {
		addr, stop := startDevServer()
		defer stop()
		cfg.BaseURL = "http://" + addr
		if cfg.Email == "" {
			cfg.Email = "priya@example.com"
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Email == "" {
		log.Fatal("login email is required (flag -email or REVIEWSYNC_EMAIL)")
	}

	ctx := context.Background()
	token, err := httpapi.Login(ctx, cfg.BaseURL, cfg.Email, readPassword(cfg.DevServer))
	if err != nil {
		log.Fatalf("login failed: %v", err)
	}
	sess, err := session.New(token, func() {
		fmt.Fprintln(os.Stderr, "session expired; please log in again")
	})
	if err != nil {
		log.Fatalf("session: %v", err)
	}
	defer sess.Close()

	client := httpapi.NewClient(cfg.BaseURL, sess)

	if flag.Arg(0) == "reject" {
		if flag.NArg() != 2 {
			log.Fatal("usage: reviewsync reject <submission-id>")
		}
		if err := client.RejectSubmission(ctx, flag.Arg(1)); err != nil {
			log.Fatalf("reject failed: %v", err)
		}
		fmt.Println("submission reopened for edits")
		return
	}

	snapCh := make(chan submission.Snapshot, 256)
	eng := submission.New(client, submission.Options{
		AutosaveDelay: cfg.DraftAutosaveDelay,
		PageSize:      cfg.EmployeeValuesPageSize,
		Adapter:       sess.Adapter(),
		BaseContext:   sess.Context(),
		OnChange:      func(s submission.Snapshot) { snapCh <- s },
	})
	defer eng.Close()

	if err := eng.SetActiveMonth(*month); err != nil {
		log.Fatalf("month: %v", err)
	}
	waitHydrated(snapCh)

	if err := runCommand(ctx, eng, sess, flag.Args()); err != nil {
		log.Fatalf("%s: %v", flag.Arg(0), err)
	}
}

func runCommand(ctx context.Context, eng *submission.Engine, sess *session.Session, args []string) error {
	switch args[0] {
	case "status":
		printStatus(eng.Snapshot())
		return nil
	case "kpis":
		if len(args) == 2 {
			switch args[1] {
			case "next":
				if err := eng.NextPage(ctx, catalog.KindKPI); err != nil {
					return err
				}
			case "prev":
				if err := eng.PrevPage(ctx, catalog.KindKPI); err != nil {
					return err
				}
			default:
				return fmt.Errorf("usage: kpis [next|prev]")
			}
		} else if len(args) != 1 {
			return fmt.Errorf("usage: kpis [next|prev]")
		}
		printKPIPage(eng.Snapshot())
		return nil
	case "review":
		if len(args) != 2 {
			return fmt.Errorf("usage: review <text>")
		}
		if err := eng.SetSelfReviewText(args[1]); err != nil {
			return err
		}
	case "rate":
		if len(args) != 4 {
			return fmt.Errorf("usage: rate <kpi|value> <id> <rating>")
		}
		kind, err := parseKind(args[1])
		if err != nil {
			return err
		}
		v, err := strconv.ParseFloat(args[3], 64)
		if err != nil {
			return fmt.Errorf("rating must be a number")
		}
		if err := eng.SetRating(kind, args[2], v); err != nil {
			return err
		}
	case "clear":
		if len(args) != 3 {
			return fmt.Errorf("usage: clear <kpi|value> <id>")
		}
		kind, err := parseKind(args[1])
		if err != nil {
			return err
		}
		if err := eng.ClearRating(kind, args[2]); err != nil {
			return err
		}
	case "cert":
		if len(args) < 2 || len(args) > 3 {
			return fmt.Errorf("usage: cert <name> [proof]")
		}
		proof := ""
		if len(args) == 3 {
			proof = args[2]
		}
		if err := eng.SetCertification(args[1], proof); err != nil {
			return err
		}
	case "recognitions":
		if len(args) != 2 {
			return fmt.Errorf("usage: recognitions <n>")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("count must be an integer")
		}
		if err := eng.SetRecognitionsCount(n); err != nil {
			return err
		}
	case "submit":
		if err := eng.FinalSubmit(ctx); err != nil {
			return err
		}
		fmt.Println("submitted; the month is now locked")
		printStatus(eng.Snapshot())
		return nil
	case "export":
		if len(args) != 2 {
			return fmt.Errorf("usage: export <path.pdf>")
		}
		summary := export.BuildSummary(eng.Snapshot(), sess.Claims().Name)
		if err := export.WritePDF(args[1], summary); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", args[1])
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}

	// Mutating commands persist before exit; the debounce is pointless for a
	// one-shot process.
	if err := eng.SaveDraftNow(ctx); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	printStatus(eng.Snapshot())
	return nil
}

func parseKind(raw string) (catalog.Kind, error) {
	switch strings.ToLower(raw) {
	case "kpi":
		return catalog.KindKPI, nil
	case "value":
		return catalog.KindValue, nil
	}
	return "", fmt.Errorf("kind must be kpi or value")
}

func printStatus(snap submission.Snapshot) {
	fmt.Printf("month:        %s\n", snap.Month)
	status := snap.Meta.Status
	if status == "" {
		status = submission.StatusDraft
	}
	fmt.Printf("status:       %s\n", status)
	fmt.Printf("locked:       %v\n", snap.Locked)
	fmt.Printf("can submit:   %v\n", snap.CanFinalSubmit)
	fmt.Printf("draft state:  %s\n", snap.DraftStatus)
	fmt.Printf("self review:  %s\n", snap.SelfReview)
	fmt.Printf("kpis loaded:  %d (complete: %v)\n", len(snap.MasterKPIs), snap.KPIsFullyLoaded)
	for _, def := range snap.MasterKPIs {
		if v, ok := snap.KPIRatings[def.ID]; ok {
			fmt.Printf("  %-6s %-24s %.1f\n", def.ID, def.Title, v)
		} else {
			fmt.Printf("  %-6s %-24s -\n", def.ID, def.Title)
		}
	}
	for _, cert := range snap.Certifications {
		fmt.Printf("cert:         %s (proof: %s)\n", cert.Name, cert.Proof)
	}
	if snap.Err != nil {
		fmt.Printf("last error:   %v\n", snap.Err)
	}
}

func printKPIPage(snap submission.Snapshot) {
	for _, def := range snap.CurrentKPIPage {
		fmt.Printf("%-6s %-24s weight %.0f\n", def.ID, def.Title, def.Weight)
	}
	if len(snap.CurrentKPIPage) == 0 {
		fmt.Println("no KPIs on this page")
	}
}

func waitHydrated(ch chan submission.Snapshot) submission.Snapshot {
	deadline := time.After(30 * time.Second)
	for {
		select {
		case s := <-ch:
			if s.DraftStatus != submission.SyncHydrating && s.KPIsFullyLoaded && s.ValuesFullyLoaded {
				return s
			}
			if s.PrefetchFailed {
				log.Fatal("definition loading failed; eligibility cannot be determined, try again")
			}
		case <-deadline:
			log.Fatal("timed out loading the month")
		}
	}
}

func readPassword(devMode bool) string {
	if pw := os.Getenv("REVIEWSYNC_PASSWORD"); pw != "" {
		return pw
	}
	if devMode {
		return "password"
	}
	fmt.Fprint(os.Stderr, "password: ")
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		log.Fatalf("read password: %v", err)
	}
	return string(pw)
}

func startDevServer() (addr string, stop func()) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatalf("dev server: %v", err)
	}
	srv := &http.Server{Handler: devserver.New()}
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Fatalf("dev server: %v", err)
		}
	}()
	return listener.Addr().String(), func() { _ = srv.Close() }
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".reviewsync.yaml"
	}
	return filepath.Join(home, ".reviewsync.yaml")
}

// Command scheduler is the process entrypoint. It has two modes:
//
//   - "serve" (default): load configuration, open the organization
//     registry and per-org connection pools, and run the sweep daemon
//     that drives the Send Executor and Status Reconciler for every
//     organization, plus the webhook ingestion endpoint.
//   - "init-batch": compute schedules for a population of contacts and
//     materialize them as a new batch in one organization's store.
//
// Wiring follows the teacher's cmd/api/main.go style: load config, build
// the logger, open connections, construct services, run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sunridge-benefits/enroll-scheduler/internal/batchproc"
	"github.com/sunridge-benefits/enroll-scheduler/internal/config"
	"github.com/sunridge-benefits/enroll-scheduler/internal/domain"
	"github.com/sunridge-benefits/enroll-scheduler/internal/reconcile"
	"github.com/sunridge-benefits/enroll-scheduler/internal/send"
	"github.com/sunridge-benefits/enroll-scheduler/internal/store"
	"github.com/sunridge-benefits/enroll-scheduler/internal/worker"
	"github.com/sunridge-benefits/enroll-scheduler/pkg/database"
	"github.com/sunridge-benefits/enroll-scheduler/pkg/logger"
	"github.com/sunridge-benefits/enroll-scheduler/pkg/registry"
)

// osExit allows tests to intercept a fatal exit.
var osExit = os.Exit

// stubContactLookup is a placeholder for the contact lookup external
// interface (§6), out of scope for this module; a real deployment
// replaces this with a client for the system of record.
type stubContactLookup struct{ log logger.Logger }

func (s *stubContactLookup) GetContact(ctx context.Context, orgID, contactID string) (send.Contact, error) {
	// TODO: wire to the real contact lookup service.
	return send.Contact{}, &domain.ErrNotFound{Kind: "contact", ID: contactID}
}

// stubTemplater is a placeholder for the email templater external
// interface (§6); out of scope here.
type stubTemplater struct{ log logger.Logger }

func (s *stubTemplater) Render(ctx context.Context, emailType domain.EmailType, contact send.Contact, date time.Time, wantHTML bool) (send.RenderedEmail, error) {
	// TODO: wire to the real email templater.
	return send.RenderedEmail{}, domain.NewRenderError(contact.ID, "templater not configured", nil)
}

// stubProvider is a placeholder for the email provider external
// interface (§6); the concrete provider client is out of scope here.
type stubProvider struct{ log logger.Logger }

func (s *stubProvider) Send(ctx context.Context, fromAddr, fromName, to, subject, text, html string, dryRun bool) (send.SendResult, error) {
	// TODO: wire to the real email provider (e.g. SendGrid's v3 mail/send).
	return send.SendResult{}, domain.NewProviderError("", "provider not configured", nil)
}

func (s *stubProvider) QueryMessage(ctx context.Context, messageID string) (string, string, error) {
	// TODO: wire to the real provider's message status API.
	return "", "", domain.NewProviderError("", "provider not configured", nil)
}

func main() {
	mode := "serve"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		mode = args[0]
		args = args[1:]
	}

	switch mode {
	case "init-batch":
		runInitBatch(args)
	case "serve":
		runServe()
	default:
		os.Stderr.WriteString("unknown mode: " + mode + " (want serve|init-batch)\n")
		osExit(2)
	}
}

func loadRules() *config.RuleConfig {
	rulesPath := os.Getenv("RULES_PATH")
	if rulesPath == "" {
		rulesPath = "config/rules.yaml"
	}
	rules, err := config.LoadRuleConfig(rulesPath)
	if err != nil {
		os.Stderr.WriteString("failed to load rule configuration: " + err.Error() + "\n")
		osExit(1)
		return nil
	}
	return rules
}

// runServe drives the periodic sweep over every organization's pending
// and failed rows, and serves the webhook ingestion endpoint.
func runServe() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		osExit(1)
		return
	}

	appLogger := logger.NewLogger()
	appLogger.Info("starting scheduler daemon")

	database.InitializeConnectionManager(cfg.Database)
	connMgr, err := database.GetConnectionManager()
	if err != nil {
		appLogger.WithField("error", err.Error()).Fatal("failed to initialize connection manager")
		osExit(1)
		return
	}
	defer connMgr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg, err := registry.Open(ctx, cfg.Database)
	if err != nil {
		appLogger.WithField("error", err.Error()).Fatal("failed to open organization registry")
		osExit(1)
		return
	}
	defer reg.Close()

	provider := &stubProvider{log: appLogger}
	contacts := &stubContactLookup{log: appLogger}
	templater := &stubTemplater{log: appLogger}

	bind := func(ctx context.Context, orgID string) (worker.OrgBinding, error) {
		db, err := connMgr.GetOrgConnection(ctx, orgID)
		if err != nil {
			return worker.OrgBinding{}, err
		}
		orgStore := store.New(db, appLogger)

		batches, err := orgStore.ListBatches(ctx, 50, "")
		if err != nil {
			return worker.OrgBinding{}, err
		}
		batchIDs := make([]string, 0, len(batches))
		for _, b := range batches {
			if b.Pending > 0 || b.Failed > 0 {
				batchIDs = append(batchIDs, b.BatchID)
			}
		}

		executor := send.New(orgID, orgStore, contacts, templater, provider, cfg.Send, cfg.Provider.FromEmail, cfg.Provider.FromName, appLogger)
		reconciler := reconcile.New(orgStore, provider, appLogger)

		return worker.OrgBinding{OrgID: orgID, BatchIDs: batchIDs, Executor: executor, Reconciler: reconciler}, nil
	}

	daemon := worker.New(reg, bind, appLogger, worker.DefaultPollInterval, worker.DefaultChunkSize)
	go daemon.Run(ctx)

	resolveStore := func(ctx context.Context, orgID string) (reconcile.PullStore, error) {
		db, err := connMgr.GetOrgConnection(ctx, orgID)
		if err != nil {
			return nil, err
		}
		return store.New(db, appLogger), nil
	}
	dispatcher := reconcile.NewDispatcher(reg, resolveStore, provider, appLogger)

	mux := http.NewServeMux()
	mux.HandleFunc("/webhooks/provider", webhookHandler(dispatcher, cfg.Provider.WebhookKey, appLogger))

	addr := os.Getenv("WEBHOOK_LISTEN_ADDR")
	if addr == "" {
		addr = ":8090"
	}
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		appLogger.WithField("address", addr).Info("webhook listener starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithField("error", err.Error()).Error("webhook listener stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	appLogger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}

// runInitBatch computes schedules for a JSON array of contacts (read
// from a file or stdin) and materializes the matching events as a new
// batch in one organization's store. Listing which contacts belong to
// an organization is an external concern (org metadata lookup, out of
// scope); this command expects the caller to supply the population.
func runInitBatch(args []string) {
	fs := flag.NewFlagSet("init-batch", flag.ExitOnError)
	orgID := fs.String("org", "", "organization id (required)")
	contactsPath := fs.String("contacts", "-", "path to a JSON array of contacts, or - for stdin")
	scope := fs.String("scope", string(domain.ScopeAll), "batch scope: today|next_7_days|next_30_days|next_90_days|all|bulk")
	emailTypesFlag := fs.String("types", "", "comma-separated email types to include (empty = all)")
	mode := fs.String("mode", string(domain.ModeProduction), "send mode: test|production")
	testRecipient := fs.String("test-recipient", "", "recipient address used when mode=test")
	horizonYears := fs.Int("horizon-years", 2, "horizon length in years from today")
	populationSize := fs.Int("population-size", 1, "population size for AEP distribution")
	batchSize := fs.Int("batch-size", 50, "concurrency for the batch processor")
	if err := fs.Parse(args); err != nil {
		osExit(2)
		return
	}
	if *orgID == "" {
		os.Stderr.WriteString("missing required -org flag\n")
		osExit(2)
		return
	}

	rules := loadRules()

	var raw []byte
	var err error
	if *contactsPath == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(*contactsPath)
	}
	if err != nil {
		os.Stderr.WriteString("failed to read contacts: " + err.Error() + "\n")
		osExit(1)
		return
	}

	var contacts []domain.Contact
	if err := json.Unmarshal(raw, &contacts); err != nil {
		os.Stderr.WriteString("failed to parse contacts JSON: " + err.Error() + "\n")
		osExit(1)
		return
	}
	for _, c := range contacts {
		if err := c.Validate(); err != nil {
			os.Stderr.WriteString("invalid contact in input: " + err.Error() + "\n")
			osExit(1)
			return
		}
	}

	appLogger := logger.NewLogger()
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		osExit(1)
		return
	}

	database.InitializeConnectionManager(cfg.Database)
	connMgr, err := database.GetConnectionManager()
	if err != nil {
		appLogger.WithField("error", err.Error()).Fatal("failed to initialize connection manager")
		osExit(1)
		return
	}
	defer connMgr.Close()

	ctx := context.Background()
	db, err := connMgr.GetOrgConnection(ctx, *orgID)
	if err != nil {
		appLogger.WithField("error", err.Error()).Fatal("failed to open organization connection")
		osExit(1)
		return
	}
	orgStore := store.New(db, appLogger)

	processor := batchproc.New(rules, appLogger)
	now := time.Now()
	horizonStart := now
	horizonEnd := now.AddDate(*horizonYears, 0, 0)

	results := processor.ProcessContacts(ctx, contacts, horizonStart, horizonEnd, *populationSize, *batchSize)

	contactIDs := make([]string, len(contacts))
	for i, c := range contacts {
		contactIDs[i] = c.ID
	}

	var emailTypes []domain.EmailType
	if *emailTypesFlag != "" {
		for _, t := range strings.Split(*emailTypesFlag, ",") {
			emailTypes = append(emailTypes, domain.NormalizeEmailType(strings.TrimSpace(t)))
		}
	}

	batchID, err := orgStore.InitBatch(ctx, contactIDs, results, emailTypes, domain.BatchScope(*scope), domain.SendMode(*mode), *testRecipient, now)
	if err != nil {
		appLogger.WithField("error", err.Error()).Error("failed to initialize batch")
		osExit(1)
		return
	}

	appLogger.WithField("batch_id", batchID).Info("batch initialized")
	os.Stdout.WriteString(batchID + "\n")
}

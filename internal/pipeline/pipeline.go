// Package pipeline wires configuration, credentials, provider clients,
// normalization, and storage into runnable ingest and sync flows.
package pipeline

import (
	"context"
	"io"
	"os"
	"time"

	gosf "github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/sells-group/contacts-cli/internal/config"
	"github.com/sells-group/contacts-cli/internal/dedupe"
	"github.com/sells-group/contacts-cli/internal/ingest"
	"github.com/sells-group/contacts-cli/internal/model"
	"github.com/sells-group/contacts-cli/internal/normalize"
	"github.com/sells-group/contacts-cli/internal/resilience"
	"github.com/sells-group/contacts-cli/internal/secrets"
	"github.com/sells-group/contacts-cli/internal/sourcesync"
	"github.com/sells-group/contacts-cli/internal/store"
	"github.com/sells-group/contacts-cli/pkg/directory"
	"github.com/sells-group/contacts-cli/pkg/mailbox"
	sfpkg "github.com/sells-group/contacts-cli/pkg/salesforce"
)

// Runner owns the wired pipeline for one process: a store, a normalizer
// with the production enrichment chain, and the credential source.
type Runner struct {
	cfg     *config.Config
	store   store.Store
	secrets secrets.Store
	norm    *normalize.Normalizer
}

// NewRunner wires a Runner from loaded configuration, an open store, and a
// secret store.
func NewRunner(cfg *config.Config, st store.Store, sec secrets.Store) *Runner {
	return &Runner{
		cfg:     cfg,
		store:   st,
		secrets: sec,
		norm:    normalize.New(normalize.DefaultEnrichmentPipeline()),
	}
}

// Ingest streams each input file to out as line-delimited JSON, registering
// sources and lifecycle events in the store. Returns the total payload
// count written.
func (r *Runner) Ingest(ctx context.Context, out io.Writer, paths []string) (int, error) {
	return ingest.NewIngestor(out, r.store).IngestMany(ctx, paths)
}

// ReviewCandidates scans the stored records for fuzzy duplicate pairs that
// the deterministic merge key did not collapse, at the configured
// similarity threshold.
func (r *Runner) ReviewCandidates(ctx context.Context) ([]dedupe.Candidate, error) {
	records, err := r.store.ListRecords(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list records")
	}
	return dedupe.FindCandidates(records, r.cfg.Dedupe.SimilarityThreshold), nil
}

// Sync runs one sync per named source in order, stopping at the first
// failure. Batches for completed runs are returned either way.
func (r *Runner) Sync(ctx context.Context, sources []string) ([]*model.SyncBatch, error) {
	var batches []*model.SyncBatch
	for _, source := range sources {
		adapter, err := r.buildAdapter(ctx, source)
		if err != nil {
			return batches, err
		}

		if err := r.store.RecordSource(ctx, adapter.Source(), "sync provider", time.Now().UTC()); err != nil {
			return batches, eris.Wrapf(err, "pipeline: register source %s", source)
		}

		batch, err := adapter.FetchAndIngest(ctx)
		if batch != nil {
			batches = append(batches, batch)
		}
		if err != nil {
			return batches, eris.Wrapf(err, "pipeline: sync %s", source)
		}
	}
	return batches, nil
}

// buildAdapter constructs the sync adapter for a source name, resolving
// its credentials from the secret store with config fallbacks.
func (r *Runner) buildAdapter(ctx context.Context, source string) (sourcesync.Adapter, error) {
	opts := r.syncOptions(source)

	switch source {
	case model.SourceDirectory:
		apiKey := r.secret("directory.api_key", r.cfg.Directory.APIKey)
		if apiKey == "" {
			return nil, eris.New("pipeline: directory api key is not configured")
		}
		clientOpts := []directory.Option{directory.WithRateLimit(r.cfg.Directory.RateLimit)}
		if r.cfg.Directory.BaseURL != "" {
			clientOpts = append(clientOpts, directory.WithBaseURL(r.cfg.Directory.BaseURL))
		}
		client := directory.NewClient(apiKey, clientOpts...)
		return sourcesync.NewDirectoryAdapter(client, r.norm, r.store, r.cfg.Directory.Query, opts), nil

	case model.SourceMailbox:
		ts, err := r.mailboxTokenSource(ctx)
		if err != nil {
			return nil, err
		}
		client, err := mailbox.NewGmailClient(ctx, ts)
		if err != nil {
			return nil, err
		}
		return sourcesync.NewMailboxAdapter(client, r.norm, r.store, r.cfg.Mailbox.Query, opts), nil

	case model.SourceCRM:
		client, err := r.salesforceClient()
		if err != nil {
			return nil, err
		}
		return sourcesync.NewCRMAdapter(client, r.norm, r.store, r.cfg.Salesforce.Where, opts), nil

	default:
		return nil, eris.Errorf("pipeline: unknown sync source %q", source)
	}
}

func (r *Runner) syncOptions(source string) sourcesync.Options {
	retry := resilience.DefaultPolicy()
	if r.cfg.Sync.MaxAttempts > 0 {
		retry.MaxAttempts = r.cfg.Sync.MaxAttempts
	}
	if r.cfg.Sync.RetryBaseDelay > 0 {
		retry.BaseDelay = r.cfg.Sync.RetryBaseDelay
	}
	retry.OnRetry = resilience.RetryLogger(source, "fetch")

	return sourcesync.Options{
		PageSize:       r.cfg.Sync.PageSize,
		MaxResults:     r.cfg.Sync.MaxResults,
		PageDelay:      r.cfg.Sync.PageDelay,
		Retry:          retry,
		CreateTasks:    r.cfg.Sync.CreateTasks,
		DedupeBySource: r.cfg.Sync.DedupeBySource,
	}
}

// mailboxTokenSource builds an OAuth token source from a stored refresh
// token.
func (r *Runner) mailboxTokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	clientID := r.secret("mailbox.client_id", r.cfg.Mailbox.ClientID)
	clientSecret := r.secret("mailbox.client_secret", r.cfg.Mailbox.ClientSecret)
	refreshToken := r.secret("mailbox.refresh_token", r.cfg.Mailbox.RefreshToken)
	if clientID == "" || clientSecret == "" || refreshToken == "" {
		return nil, eris.New("pipeline: mailbox oauth credentials are not configured")
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
	}
	return conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}), nil
}

// salesforceClient authenticates against Salesforce with the JWT bearer
// flow.
func (r *Runner) salesforceClient() (sfpkg.Client, error) {
	keyPath := r.secret("salesforce.key_path", r.cfg.Salesforce.KeyPath)
	username := r.secret("salesforce.username", r.cfg.Salesforce.Username)
	clientID := r.secret("salesforce.client_id", r.cfg.Salesforce.ClientID)
	if keyPath == "" || username == "" || clientID == "" {
		return nil, eris.New("pipeline: salesforce credentials are not configured")
	}

	pemData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: read salesforce JWT private key")
	}

	sf, err := gosf.Init(gosf.Creds{
		Domain:         r.cfg.Salesforce.LoginURL,
		Username:       username,
		ConsumerKey:    clientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: init salesforce")
	}

	return sfpkg.NewClient(sf, sfpkg.WithRateLimit(r.cfg.Salesforce.RateLimit)), nil
}

// secret resolves a credential from the secret store, falling back to the
// config file value.
func (r *Runner) secret(key, fallback string) string {
	if r.secrets != nil {
		if v, ok := r.secrets.Get(key); ok {
			return v
		}
	}
	if fallback == "" {
		zap.L().Debug("credential not found", zap.String("key", key))
	}
	return fallback
}

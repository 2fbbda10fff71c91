package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/thecodeteam/goodbye"
	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/action"
	"github.com/simplesurance/automerger/internal/cfg"
	"github.com/simplesurance/automerger/internal/dispatcher"
	"github.com/simplesurance/automerger/internal/githubclt"
	"github.com/simplesurance/automerger/internal/logfields"
	"github.com/simplesurance/automerger/internal/mergequeue"
	"github.com/simplesurance/automerger/internal/mergequeue/pgstore"
	"github.com/simplesurance/automerger/internal/provider"
	"github.com/simplesurance/automerger/internal/provider/github"
	"github.com/simplesurance/automerger/internal/retry"
	"github.com/simplesurance/automerger/internal/rules"
	"github.com/simplesurance/automerger/internal/rulesource"
)

const metricsEndpoint = "/metrics"

// githubClient is implemented by githubclt.Client and githubclt.DryClient.
type githubClient interface {
	dispatcher.GithubClient
	mergequeue.GithubClient
	action.Client
	rulesource.GithubClient
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Receive GitHub webhook events, evaluate rules and process merge queues",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			serve()
			return nil
		},
	}
}

func startHTTPSServer(listenAddr string, certFile, keyFile string, handler http.Handler) {
	httpsServer := http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 30 * time.Second,
	}

	goodbye.Register(func(context.Context, os.Signal) {
		const shutdownTimeout = 30 * time.Second
		ctx, cancelFn := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelFn()

		logger.Debug(
			"terminating https server",
			logfields.Event("https_server_terminating"),
			zap.Duration("shutdown_timeout", shutdownTimeout),
		)

		err := httpsServer.Shutdown(ctx)
		if err != nil {
			logger.Warn(
				"shutting down https server failed",
				logfields.Event("https_server_termination_failed"),
				zap.Error(err),
			)
		}
	})

	go func() {
		defer panicHandler()

		logger.Info(
			"https server started",
			logfields.Event("https_server_started"),
			zap.String("listenAddr", listenAddr),
		)

		err := httpsServer.ListenAndServeTLS(certFile, keyFile)
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("https server terminated", logfields.Event("https_server_terminated"))
			return
		}

		logger.Fatal(
			"https server terminated unexpectedly",
			logfields.Event("https_server_terminated_unexpectedly"),
			zap.Error(err),
		)
	}()
}

func startHTTPServer(listenAddr string, handler http.Handler) {
	httpServer := http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 30 * time.Second,
	}

	goodbye.Register(func(context.Context, os.Signal) {
		const shutdownTimeout = 30 * time.Second
		ctx, cancelFn := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelFn()

		logger.Debug(
			"terminating http server",
			logfields.Event("http_server_terminating"),
			zap.Duration("shutdown_timeout", shutdownTimeout),
		)

		err := httpServer.Shutdown(ctx)
		if err != nil {
			logger.Warn(
				"shutting down http server failed",
				logfields.Event("http_server_termination_failed"),
				zap.Error(err),
			)
		}
	})

	go func() {
		defer panicHandler()

		logger.Info(
			"http server started",
			logfields.Event("http_server_started"),
			zap.String("listenAddr", listenAddr),
		)

		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("http server terminated", logfields.Event("http_server_terminated"))
			return
		}

		logger.Fatal(
			"http server terminated unexpectedly",
			logfields.Event("http_server_terminated_unexpectedly"),
			zap.Error(err),
		)
	}()
}

func mustInitGithubClient(config *cfg.Config) githubClient {
	clt := githubclt.New(config.GithubAPIToken)
	if !config.DryRun {
		return clt
	}

	logger.Info(
		"dry run mode enabled, changes on GitHub are simulated",
		logfields.Event("dry_run_enabled"),
	)

	return githubclt.NewDryClient(clt, logger)
}

func mustInitQueueStore(ctx context.Context, config *cfg.Config) mergequeue.Store {
	if config.MergeQueue.PostgresDSN == "" {
		logger.Info(
			"merge queues are stored in memory, queued entries are lost on restart",
			logfields.Event("queue_store_memory"),
		)

		return mergequeue.NewMemoryStore()
	}

	store, err := pgstore.New(ctx, config.MergeQueue.PostgresDSN)
	if err != nil {
		logger.Fatal(
			"initializing postgresql merge queue store failed",
			logfields.Event("queue_store_init_failed"),
			zap.Error(err),
		)
	}

	goodbye.Register(func(context.Context, os.Signal) {
		store.Close()
	})

	logger.Info(
		"merge queues are stored in postgresql",
		logfields.Event("queue_store_postgres"),
	)

	return store
}

func mustInitRuleSource(config *cfg.Config, clt githubClient, retryer *retry.Retryer) dispatcher.RuleSource {
	var cfgRules *rules.RuleSet

	if len(config.Rules) > 0 {
		var err error
		cfgRules, err = config.RuleSet(args.ConfigFile)
		if err != nil {
			logger.Fatal(
				"rules in configuration file are invalid",
				logfields.Event("cfg_rules_invalid"),
				zap.Error(err),
			)
		}
	}

	if config.RepositoryRulesFile == "" {
		logger.Info(
			"using rules from configuration file",
			logfields.Event("rule_source_static"),
			logfields.RuleSetVersion(cfgRules.Version()),
			zap.Int("rules", cfgRules.Len()),
		)

		return rulesource.NewStatic(cfgRules)
	}

	logger.Info(
		"using rules from repository files",
		logfields.Event("rule_source_repository"),
		zap.String("rule_file", config.RepositoryRulesFile),
		zap.Bool("fallback_rules", cfgRules != nil),
	)

	return rulesource.NewRepositoryFile(clt, retryer, config.RepositoryRulesFile, cfgRules)
}

func mustInitProvider(config *cfg.Config, evChan chan<- *provider.Event) *github.Provider {
	opts := []github.Option{github.WithPayloadSecret(config.GithubWebHookSecret)}

	if config.WebhookFilterQuery != "" {
		query, err := github.ParseFilterQuery(config.WebhookFilterQuery)
		if err != nil {
			logger.Fatal(
				"webhook_filter_query is invalid",
				logfields.Event("cfg_filter_query_invalid"),
				zap.Error(err),
			)
		}

		opts = append(opts, github.WithFilterQuery(query))
	}

	return github.New([]chan<- *provider.Event{evChan}, opts...)
}

func newRouter(config *cfg.Config, gh *github.Provider, coordinator *mergequeue.Coordinator) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Post(config.HTTPGithubWebhookEndpoint, gh.HTTPHandler)
	logger.Info(
		"registered github webhook event http endpoint",
		logfields.Event("github_http_handler_registered"),
		zap.String("endpoint", config.HTTPGithubWebhookEndpoint),
	)

	router.Get(config.MergeQueue.ListEndpoint, coordinator.HTTPHandlerList)
	logger.Info(
		"registered merge queue list http endpoint",
		logfields.Event("queue_http_handler_registered"),
		zap.String("endpoint", config.MergeQueue.ListEndpoint),
	)

	router.Handle(metricsEndpoint, promhttp.Handler())

	return router
}

func toDispatcherRepositories(repos []cfg.GithubRepository) []dispatcher.Repository {
	result := make([]dispatcher.Repository, 0, len(repos))
	for _, r := range repos {
		result = append(result, dispatcher.Repository{Owner: r.Owner, Name: r.RepositoryName})
	}

	return result
}

func serve() {
	defer panicHandler()

	defer goodbye.Exit(context.Background(), 1)
	goodbye.Notify(context.Background())

	config := mustParseCfg()
	mustInitLogger(config)

	logger.Info(
		"loaded cfg file",
		logfields.Event("cfg_loaded"),
		zap.String("cfg_file", args.ConfigFile),
		zap.String("http_server_listen_addr", config.HTTPListenAddr),
		zap.String("https_server_listen_addr", config.HTTPSListenAddr),
		zap.String("github_webhook_endpoint", config.HTTPGithubWebhookEndpoint),
		zap.String("github_webhook_secret", hide(config.GithubWebHookSecret)),
		zap.String("webhook_filter_query", config.WebhookFilterQuery),
		zap.String("github_api_token", hide(config.GithubAPIToken)),
		zap.String("log_format", config.LogFormat),
		zap.String("log_time_key", config.LogTimeKey),
		zap.String("log_level", config.LogLevel),
		zap.Bool("dry_run", config.DryRun),
		zap.Int("repositories", len(config.Repositories)),
		zap.String("repository_rules_file", config.RepositoryRulesFile),
		zap.Int("merge_queue.max_attempts", config.MergeQueue.MaxAttempts),
		zap.String("merge_queue.status_context", config.MergeQueue.StatusContext),
		zap.String("merge_queue.postgres_dsn", hide(config.MergeQueue.PostgresDSN)),
	)

	goodbye.Register(func(_ context.Context, sig os.Signal) {
		logger.Info(fmt.Sprintf("terminating, received signal %s", sig.String()))
	})

	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	retryer := retry.NewRetryer(
		retry.WithTimeout(config.MergeQueue.RetryTimeoutDuration()),
		retry.WithInitialInterval(config.MergeQueue.RetryInitialIntervalDuration()),
	)

	ghClient := mustInitGithubClient(config)
	store := mustInitQueueStore(ctx, config)
	ruleSrc := mustInitRuleSource(config, ghClient, retryer)

	coordinator := mergequeue.NewCoordinator(
		store,
		ghClient,
		retryer,
		mergequeue.WithPeriodicTriggerInterval(config.MergeQueue.PeriodicTrigger()),
		mergequeue.WithStatusContext(config.MergeQueue.StatusContext),
	)

	disp := dispatcher.New(
		ghClient,
		ruleSrc,
		action.NewExecutor(ghClient, retryer),
		coordinator,
		retryer,
		dispatcher.WithRepositories(toDispatcherRepositories(config.Repositories)...),
		dispatcher.WithStatusContext(config.MergeQueue.StatusContext),
		dispatcher.WithMaxAttempts(config.MergeQueue.MaxAttempts),
	)

	gh := mustInitProvider(config, disp.C())
	router := newRouter(config, gh, coordinator)

	if err := coordinator.Start(ctx); err != nil {
		logger.Fatal(
			"starting merge queues failed",
			logfields.Event("queue_coordinator_start_failed"),
			zap.Error(err),
		)
	}

	dispatcherDone := make(chan struct{})
	go func() {
		defer panicHandler()
		defer close(dispatcherDone)

		disp.Run(ctx)
	}()

	goodbye.Register(func(context.Context, os.Signal) {
		logger.Debug("stopping dispatcher", logfields.Event("dispatcher_stopping"))
		cancelFn()
		<-dispatcherDone

		logger.Debug("stopping merge queues", logfields.Event("queue_coordinator_stopping"))
		coordinator.Stop()

		retryer.Stop()
	})

	if config.HTTPListenAddr != "" {
		startHTTPServer(config.HTTPListenAddr, router)
	}

	if config.HTTPSListenAddr != "" {
		startHTTPSServer(
			config.HTTPSListenAddr,
			config.HTTPSCertFile,
			config.HTTPSKeyFile,
			router,
		)
	}

	if len(config.Repositories) > 0 {
		go func() {
			defer panicHandler()

			if err := disp.InitialSync(ctx); err != nil {
				logger.Warn(
					"initial synchronization of pull requests failed",
					logfields.Event("initial_sync_failed"),
					zap.Error(err),
				)
			}

			// queues restored from the store were created before the
			// pull requests were refreshed
			for _, repo := range config.Repositories {
				coordinator.KickRepository(repo.Owner, repo.RepositoryName)
			}
		}()
	}

	<-dispatcherDone
}

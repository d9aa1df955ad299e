package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentvault/vaultgate/internal/config"
	"github.com/agentvault/vaultgate/internal/events"
	"github.com/agentvault/vaultgate/internal/guardrail"
	"github.com/agentvault/vaultgate/internal/handler"
	"github.com/agentvault/vaultgate/internal/middleware"
	"github.com/agentvault/vaultgate/internal/pkg/logger"
	"github.com/agentvault/vaultgate/internal/repository"
	"github.com/agentvault/vaultgate/internal/service"
	"github.com/agentvault/vaultgate/internal/trust"
	"github.com/agentvault/vaultgate/internal/txlayer"
	"github.com/agentvault/vaultgate/internal/vault"
	"github.com/agentvault/vaultgate/internal/withdrawal"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Server.LogLevel)

	// 2. Transaction Layer (Relayer+RPC > Memory)
	var txLayer txlayer.Layer
	if cfg.Chain.RelayerURL != "" {
		txLayer = txlayer.NewEthLayer(cfg.Chain.RPCURL, cfg.Chain.RelayerURL, cfg.Chain.ChainID,
			time.Duration(cfg.Chain.CallTimeoutMs)*time.Millisecond)
		logger.Info("Using relayer transaction layer", "relayer", cfg.Chain.RelayerURL, "chain_id", cfg.Chain.ChainID)
	} else {
		txLayer = txlayer.NewMemory()
		logger.Info("No relayer configured, using in-memory transaction layer")
	}

	// 3. Persistence
	// Guardrail send log (Redis > Memory)
	var sendLog guardrail.SendLog
	if cfg.Redis.Addr != "" {
		redisClient, err := repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("Connected to Redis")
			sendLog = repository.NewRedisSendLog(redisClient)
		} else {
			logger.Error("Failed to connect to Redis, falling back to memory", "error", err)
		}
	}
	if sendLog == nil {
		sendLog = guardrail.NewMemorySendLog()
	}

	// Audit and state persistence (Postgres > Local File / Memory)
	var auditRepo service.AuditRepo
	var stateRepo service.StateRepo
	if cfg.Database.DSN != "" {
		db, err := repository.NewDB(cfg)
		if err == nil {
			logger.Info("Connected to PostgreSQL")
			auditRepo = repository.NewPostgresAuditRepo(db)
			stateRepo = repository.NewPostgresStateRepo(db)
		} else {
			logger.Error("Failed to connect to DB, audit logs will be file-only", "error", err)
		}
	}

	// 4. Core Services
	principalManager := service.NewPrincipalManager(cfg)
	idempotencyStore := middleware.NewInMemIdempotencyStore()

	ledger := vault.NewLedger(txLayer)

	resolver := buildResolver(cfg, txLayer)

	var threshold *decimal.Decimal
	if cfg.Withdrawal.MultisigThreshold != "" {
		v, err := decimal.NewFromString(cfg.Withdrawal.MultisigThreshold)
		if err != nil {
			log.Fatalf("Invalid multisig threshold: %v", err)
		}
		threshold = &v
	}
	workflow := withdrawal.New(txLayer, principalManager.Owners(), threshold)

	hub := events.NewHub()
	workflow.OnAction(hub.Broadcast)

	custodySvc := service.NewCustodyService(ledger, resolver, buildGuardrailLimits(cfg), sendLog)

	auditSvc, err := service.NewAuditService(cfg.Audit.LogDir, auditRepo)
	if err != nil {
		log.Fatalf("Failed to initialize audit service: %v", err)
	}

	stateSvc := service.NewStateService(workflow, resolver.Cache(), stateRepo)
	if err := stateSvc.Restore(context.Background()); err != nil {
		logger.Error("Failed to restore persisted state", "error", err)
	}

	// 5. Handlers
	defaultDaily := mustDecimal(cfg.Vault.DefaultDailyLimit, "1.0")
	defaultPerTx := mustDecimal(cfg.Vault.DefaultPerTxLimit, "0.1")
	vaultHandler := handler.NewVaultHandler(custodySvc, hub, defaultDaily, defaultPerTx)
	withdrawalHandler := handler.NewWithdrawalHandler(workflow)
	trustHandler := handler.NewTrustHandler(resolver)
	auditHandler := handler.NewAuditHandler(auditSvc)
	stateHandler := handler.NewStateHandler(stateSvc)

	// 6. Router
	r := gin.Default()

	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.AuditMiddleware(auditSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "vaultgate"})
	})

	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg, principalManager))
	v1.Use(middleware.RateLimitMiddleware(principalManager))
	v1.Use(middleware.IdempotencyMiddleware(idempotencyStore))
	{
		v1.GET("/vaults", vaultHandler.List)
		v1.GET("/vaults/:id", vaultHandler.Get)
		v1.POST("/vaults/:id/deposit", vaultHandler.Deposit)
		v1.POST("/vaults/:id/send", vaultHandler.Send)

		v1.GET("/trust/:address", trustHandler.Check)

		v1.GET("/withdrawals", withdrawalHandler.List)
		v1.GET("/withdrawals/:id", withdrawalHandler.Get)
		v1.GET("/withdrawals/log", withdrawalHandler.ActionLog)

		v1.GET("/audit", auditHandler.List)

		v1.GET("/events", hub.Serve)

		owner := v1.Group("")
		owner.Use(middleware.OwnerOnly())
		{
			owner.POST("/vaults", vaultHandler.Create)
			owner.POST("/vaults/:id/withdraw", vaultHandler.Withdraw)
			owner.POST("/vaults/:id/pause", vaultHandler.Pause)
			owner.POST("/vaults/:id/unpause", vaultHandler.Unpause)
			owner.POST("/vaults/:id/revoke", vaultHandler.Revoke)
			owner.POST("/vaults/:id/drain", vaultHandler.Drain)
			owner.PUT("/vaults/:id/limits", vaultHandler.SetLimits)
			owner.PUT("/vaults/:id/agent", vaultHandler.SetAgent)
			owner.PUT("/vaults/:id/whitelist", vaultHandler.SetWhitelistMode)
			owner.POST("/vaults/:id/whitelist/entries", vaultHandler.SetWhitelistEntry)

			owner.POST("/withdrawals", withdrawalHandler.Create)
			owner.POST("/withdrawals/:id/approve", withdrawalHandler.Approve)
			owner.POST("/withdrawals/:id/reject", withdrawalHandler.Reject)
			owner.POST("/withdrawals/:id/execute", withdrawalHandler.Execute)

			owner.DELETE("/trust/cache/:address", trustHandler.InvalidateCache)
			owner.DELETE("/trust/cache", trustHandler.ClearCache)

			owner.GET("/state", stateHandler.Export)
			owner.PUT("/state", stateHandler.Import)
			owner.POST("/state/persist", stateHandler.Persist)
		}
	}

	// 7. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("VaultGate started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if stateRepo != nil {
		if err := stateSvc.Persist(ctx); err != nil {
			logger.Error("Failed to persist state on shutdown", "error", err)
		}
	}
	auditSvc.Close()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	logger.Info("Server exiting")
}

// buildResolver wires the three chain registries that have contract
// addresses configured. Registries without an address stay nil and the
// resolver applies its unconfigured fallback.
func buildResolver(cfg *config.Config, txLayer txlayer.Layer) *trust.Resolver {
	var identity trust.IdentityRegistry
	var reputation trust.ReputationRegistry
	var validation trust.ValidationRegistry

	if common.IsHexAddress(cfg.Chain.IdentityRegistry) {
		reg, err := trust.NewChainIdentityRegistry(common.HexToAddress(cfg.Chain.IdentityRegistry), txLayer)
		if err != nil {
			log.Fatalf("Failed to build identity registry: %v", err)
		}
		identity = reg
	}
	if common.IsHexAddress(cfg.Chain.ReputationRegistry) {
		reg, err := trust.NewChainReputationRegistry(common.HexToAddress(cfg.Chain.ReputationRegistry), txLayer)
		if err != nil {
			log.Fatalf("Failed to build reputation registry: %v", err)
		}
		reputation = reg
	}
	if common.IsHexAddress(cfg.Chain.ValidationRegistry) {
		reg, err := trust.NewChainValidationRegistry(common.HexToAddress(cfg.Chain.ValidationRegistry), txLayer)
		if err != nil {
			log.Fatalf("Failed to build validation registry: %v", err)
		}
		validation = reg
	}

	policy := trust.Policy{
		RequireIdentity:          cfg.Trust.RequireIdentity,
		MinReputationScore:       cfg.Trust.MinReputationScore,
		RequireValidation:        cfg.Trust.RequireValidation,
		AllowList:                parseAddressSet(cfg.Trust.AllowList),
		DenyList:                 parseAddressSet(cfg.Trust.DenyList),
		FailOpenWhenUnconfigured: cfg.Trust.FailOpenWhenUnconfigured,
	}
	cache := trust.NewCache(time.Duration(cfg.Trust.CacheTTLSeconds)*time.Second, cfg.Trust.CacheMaxEntries)
	return trust.NewResolver(identity, reputation, validation, policy, cache)
}

func buildGuardrailLimits(cfg *config.Config) guardrail.Limits {
	limits := guardrail.Limits{
		Enabled:      cfg.Guardrail.Enabled,
		MaxTxPerHour: cfg.Guardrail.MaxTxPerHour,
		MaxTxPerDay:  cfg.Guardrail.MaxTxPerDay,
		AllowList:    parseAddressSet(cfg.Guardrail.AllowList),
		DenyList:     parseAddressSet(cfg.Guardrail.DenyList),
	}
	if cfg.Guardrail.MaxValue != "" {
		v, err := decimal.NewFromString(cfg.Guardrail.MaxValue)
		if err != nil {
			log.Fatalf("Invalid guardrail max value: %v", err)
		}
		limits.MaxValue = &v
	}
	if cfg.Guardrail.AutoApproveThreshold != "" {
		v, err := decimal.NewFromString(cfg.Guardrail.AutoApproveThreshold)
		if err != nil {
			log.Fatalf("Invalid guardrail auto-approve threshold: %v", err)
		}
		limits.AutoApproveThreshold = &v
	}
	return limits
}

func parseAddressSet(raw []string) map[common.Address]bool {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[common.Address]bool, len(raw))
	for _, s := range raw {
		if common.IsHexAddress(s) {
			out[common.HexToAddress(s)] = true
		} else {
			logger.Warn("Ignoring invalid address in list", "address", s)
		}
	}
	return out
}

func mustDecimal(raw, fallback string) decimal.Decimal {
	if raw == "" {
		raw = fallback
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		log.Fatalf("Invalid decimal config value %q: %v", raw, err)
	}
	return v
}

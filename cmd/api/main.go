package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"miniapp-server/internal/adapter/repo"
	"miniapp-server/internal/http/handlers"
	"miniapp-server/internal/http/httpapi"
	"miniapp-server/internal/infra"
	"miniapp-server/internal/payment"
	"miniapp-server/internal/providers/delivery"
	"miniapp-server/internal/providers/image"
	"miniapp-server/internal/providers/video"
	"miniapp-server/internal/social"
	"miniapp-server/internal/storage"
	"miniapp-server/internal/token"
	"miniapp-server/internal/wallet"
	"miniapp-server/internal/workflow"
)

func main() {
	// Load .env (optional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	if err := repo.EnsureSchema(ctx, dbpool); err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare database schema")
	}
	sessions := repo.NewSessionRepository(dbpool)
	verifications := repo.NewVerificationRepository(dbpool)

	assets, err := newAssetStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize asset storage")
	}

	videoClient, err := video.NewClient(video.Options{BaseURL: cfg.InferenceBaseURL, RequestTimeout: cfg.CallTimeout})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build video client")
	}
	imageClient, err := image.NewClient(image.Options{BaseURL: cfg.InferenceBaseURL, RequestTimeout: cfg.CallTimeout})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build image client")
	}
	deliveryClient, err := delivery.NewClient(delivery.Options{BaseURL: cfg.InferenceBaseURL, RequestTimeout: cfg.CallTimeout})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build delivery client")
	}
	verifier, err := payment.NewVerifier(payment.VerifierOptions{BaseURL: cfg.InferenceBaseURL})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build payment verifier")
	}

	gateway, err := wallet.NewEthGateway(cfg.ChainRPCURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build wallet gateway")
	}

	payments, deployer, err := newChainServices(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build payment services")
	}
	logger.Info().Str("payment_mode", cfg.PaymentMode).Msg("payment services ready")

	var caster workflow.Caster = social.Disabled{}
	if cfg.ComposeAPIKey != "" {
		caster, err = social.NewClient(social.Options{
			BaseURL:    cfg.ComposeBaseURL,
			APIKey:     cfg.ComposeAPIKey,
			SignerUUID: cfg.ComposeSignerUUID,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build compose client")
		}
	}

	manager := workflow.NewManager(workflow.Deps{
		Sessions:      sessions,
		Verifications: verifications,
		Assets:        assets,
		Generator:     videoClient,
		Wallet:        gateway,
		Payments:      payments,
		Verifier:      verifier,
		Delivery:      deliveryClient,
		Caster:        caster,
		ChainID:       cfg.ChainID,
		CallTimeout:   cfg.CallTimeout,
		Logger:        logger,
	})

	app := handlers.NewApp(manager, gateway, deployer, imageClient, assets, logger)
	router := httpapi.NewRouter(app, logger, cfg.AllowedOrigins, cfg.RateLimitPerMin)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func newAssetStore(ctx context.Context, cfg *infra.Config) (storage.AssetStore, error) {
	switch cfg.StorageBackend {
	case "file":
		return storage.NewFileStore(cfg.StoragePath, cfg.PublicBaseURL+"/assets")
	case "minio":
		return storage.NewObjectStore(ctx, storage.ObjectStoreOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	default:
		return storage.NewMemoryStore(cfg.PublicBaseURL + "/assets"), nil
	}
}

func newChainServices(cfg *infra.Config) (workflow.Payer, token.Deployer, error) {
	if cfg.PaymentMode == "onchain" {
		payments, err := payment.NewOnchainService(payment.OnchainOptions{
			RPCURL:       cfg.ChainRPCURL,
			ChainID:      cfg.ChainID,
			PrivateKey:   cfg.ChainPrivateKey,
			TokenAddress: cfg.CoinFactory,
			Recipient:    cfg.CreatorAddress,
			AmountWei:    cfg.PaymentAmountWei,
		})
		if err != nil {
			return nil, nil, err
		}
		deployer, err := token.NewEthDeployer(token.EthOptions{
			RPCURL:     cfg.ChainRPCURL,
			ChainID:    cfg.ChainID,
			PrivateKey: cfg.ChainPrivateKey,
			Factory:    cfg.CoinFactory,
			Payout:     cfg.CreatorAddress,
		})
		if err != nil {
			return nil, nil, err
		}
		return payments, deployer, nil
	}
	return &payment.MockService{AmountWei: cfg.PaymentAmountWei}, token.MockDeployer{}, nil
}

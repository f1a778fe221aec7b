package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"miniapp-server/internal/domain"
	"miniapp-server/internal/infra"
	"miniapp-server/internal/providers/image"
	"miniapp-server/internal/storage"
	"miniapp-server/internal/token"
	"miniapp-server/internal/wallet"
	"miniapp-server/internal/workflow"
)

// App bundles the dependencies the HTTP handlers need.
type App struct {
	Flows    *workflow.Manager
	Wallet   wallet.Gateway
	Deployer token.Deployer
	Images   *image.Client
	Assets   storage.AssetStore
	Log      infra.Logger
}

func NewApp(flows *workflow.Manager, gw wallet.Gateway, deployer token.Deployer, images *image.Client, assets storage.AssetStore, log infra.Logger) *App {
	return &App{Flows: flows, Wallet: gw, Deployer: deployer, Images: images, Assets: assets, Log: log}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, codeStr, message string) {
	a.json(w, code, map[string]any{
		"error": map[string]string{"code": codeStr, "message": message},
	})
}

// fail maps a domain error onto the response envelope. The message stays
// intact; upstream errors pass through verbatim rather than being
// reinterpreted.
func (a *App) fail(w http.ResponseWriter, err error) {
	var serverErr *domain.ServerError
	var netErr *domain.NetworkError
	switch {
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrBusy):
		a.error(w, http.StatusConflict, "busy", err.Error())
	case errors.Is(err, domain.ErrNotVerified):
		a.error(w, http.StatusForbidden, "not_verified", err.Error())
	case errors.Is(err, domain.ErrWalletState):
		a.error(w, http.StatusPreconditionFailed, "wallet_not_ready", err.Error())
	case errors.Is(err, domain.ErrPayment), errors.Is(err, domain.ErrVerification):
		a.error(w, http.StatusPaymentRequired, "payment_failed", err.Error())
	case errors.Is(err, domain.ErrDelivery):
		a.error(w, http.StatusBadGateway, "delivery_failed", err.Error())
	case errors.As(err, &serverErr):
		a.error(w, http.StatusBadGateway, "upstream_error", serverErr.Error())
	case errors.As(err, &netErr):
		a.error(w, http.StatusBadGateway, "upstream_unreachable", netErr.Error())
	default:
		a.error(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

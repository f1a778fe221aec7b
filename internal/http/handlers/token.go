package handlers

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"miniapp-server/internal/domain"
	"miniapp-server/internal/token"
)

type tokenRequest struct {
	Action       string `json:"action"`
	Prompt       string `json:"prompt,omitempty"`
	VideoURL     string `json:"videoUrl,omitempty"`
	TokenAddress string `json:"tokenAddress,omitempty"`
	Amount       string `json:"amount,omitempty"` // wei
}

// Token is the pass-through for coin actions. The response shape mirrors
// the mini-app contract: success flag plus the address or hash, never a
// bare error.
func (a *App) Token(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.json(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid payload"})
		return
	}

	switch req.Action {
	case "create_token":
		if req.Prompt == "" {
			a.json(w, http.StatusBadRequest, map[string]any{"success": false, "message": "prompt is required for create_token"})
			return
		}
		address, err := a.Deployer.CreateToken(r.Context(), token.CreateParams{Prompt: req.Prompt, VideoURL: req.VideoURL})
		if err != nil {
			a.tokenError(w, err)
			return
		}
		a.json(w, http.StatusOK, map[string]any{
			"success":      true,
			"tokenAddress": address,
			"message":      "token created",
		})
	case "buy_token":
		if req.TokenAddress == "" || req.Amount == "" {
			a.json(w, http.StatusBadRequest, map[string]any{"success": false, "message": "tokenAddress and amount are required for buy_token"})
			return
		}
		amountWei, ok := new(big.Int).SetString(req.Amount, 10)
		if !ok || amountWei.Sign() <= 0 {
			a.json(w, http.StatusBadRequest, map[string]any{"success": false, "message": "amount must be a positive integer in wei"})
			return
		}
		hash, err := a.Deployer.BuyToken(r.Context(), req.TokenAddress, amountWei)
		if err != nil {
			a.tokenError(w, err)
			return
		}
		a.json(w, http.StatusOK, map[string]any{
			"success":         true,
			"transactionHash": hash,
			"message":         "token purchased",
		})
	default:
		a.json(w, http.StatusBadRequest, map[string]any{"success": false, "message": "action must be create_token or buy_token"})
	}
}

func (a *App) tokenError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	if errors.Is(err, domain.ErrValidation) {
		code = http.StatusBadRequest
	}
	a.json(w, code, map[string]any{"success": false, "message": err.Error()})
}

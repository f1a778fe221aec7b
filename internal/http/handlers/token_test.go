package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"miniapp-server/internal/http/handlers"
	"miniapp-server/internal/token"
)

type fakeDeployer struct {
	address    string
	hash       string
	err        error
	lastBuy    string
	lastAmount *big.Int
}

func (d *fakeDeployer) CreateToken(_ context.Context, params token.CreateParams) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	return d.address, nil
}

func (d *fakeDeployer) BuyToken(_ context.Context, tokenAddress string, amountWei *big.Int) (string, error) {
	d.lastBuy = tokenAddress
	d.lastAmount = amountWei
	if d.err != nil {
		return "", d.err
	}
	return d.hash, nil
}

func postToken(t *testing.T, app *handlers.App, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/token", strings.NewReader(body))
	rec := httptest.NewRecorder()
	app.Token(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

func TestTokenCreate(t *testing.T) {
	deployer := &fakeDeployer{address: "0x1111111111111111111111111111111111111111"}
	app := &handlers.App{Deployer: deployer, Log: zerolog.Nop()}

	rec := postToken(t, app, `{"action":"create_token","prompt":"sunset","videoUrl":"https://cdn.local/v/abc"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Fatalf("success = %v", body["success"])
	}
	if body["tokenAddress"] != deployer.address {
		t.Fatalf("tokenAddress = %v", body["tokenAddress"])
	}
}

func TestTokenBuy(t *testing.T) {
	deployer := &fakeDeployer{hash: "0xabc"}
	app := &handlers.App{Deployer: deployer, Log: zerolog.Nop()}

	rec := postToken(t, app, `{"action":"buy_token","tokenAddress":"0x1111111111111111111111111111111111111111","amount":"500000000000000000"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["transactionHash"] != "0xabc" {
		t.Fatalf("transactionHash = %v", body["transactionHash"])
	}
	if deployer.lastBuy != "0x1111111111111111111111111111111111111111" {
		t.Fatalf("lastBuy = %q", deployer.lastBuy)
	}
	// The requested amount reaches the trade, not a configured default.
	if deployer.lastAmount == nil || deployer.lastAmount.String() != "500000000000000000" {
		t.Fatalf("lastAmount = %v", deployer.lastAmount)
	}
}

func TestTokenRejectsBadRequests(t *testing.T) {
	app := &handlers.App{Deployer: &fakeDeployer{}, Log: zerolog.Nop()}
	cases := []struct {
		name string
		body string
	}{
		{"unknown action", `{"action":"mint"}`},
		{"create without prompt", `{"action":"create_token"}`},
		{"buy without address", `{"action":"buy_token","amount":"10000000000000000"}`},
		{"buy without amount", `{"action":"buy_token","tokenAddress":"0x1111111111111111111111111111111111111111"}`},
		{"buy with malformed amount", `{"action":"buy_token","tokenAddress":"0x1111111111111111111111111111111111111111","amount":"0.01"}`},
		{"buy with zero amount", `{"action":"buy_token","tokenAddress":"0x1111111111111111111111111111111111111111","amount":"0"}`},
		{"invalid json", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postToken(t, app, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rec.Code)
			}
			body := decodeBody(t, rec)
			if body["success"] != false {
				t.Fatalf("success = %v", body["success"])
			}
			if body["message"] == "" {
				t.Fatalf("message missing")
			}
		})
	}
}

func TestTokenDeployerErrorIs500(t *testing.T) {
	app := &handlers.App{Deployer: &fakeDeployer{err: errors.New("factory reverted")}, Log: zerolog.Nop()}
	rec := postToken(t, app, `{"action":"create_token","prompt":"sunset"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["success"] != false || body["message"] != "factory reverted" {
		t.Fatalf("body = %v", body)
	}
}

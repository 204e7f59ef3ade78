package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lendpool/oracle"
	"lendpool/pool"
)

type testEnv struct {
	server *Server
	engine *pool.Engine
	prices *oracle.Manual
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	prices := oracle.NewManual()
	prices.SetPrice("ETH", mustBig(t, "1600000000000000000000"))
	prices.SetPrice("USD", mustBig(t, "1000000000000000000"))

	engine := pool.NewEngine(prices)
	engine.SetClock(func() time.Time { return time.Unix(1_000_000, 0) })
	for _, cfg := range []pool.ReserveConfig{
		{Asset: "ETH", Decimals: 18, Borrowable: true, Risk: pool.RiskParams{
			LTVBps: 7500, LiqThresholdBps: 8000, LiqBonusBps: 500,
			CloseFactorBps: 5000, ReserveFactorBps: 1000,
		}},
		{Asset: "USD", Decimals: 18, Borrowable: true, Risk: pool.RiskParams{
			LTVBps: 7000, LiqThresholdBps: 7500, LiqBonusBps: 500,
			CloseFactorBps: 5000, ReserveFactorBps: 1000,
		}},
	} {
		if err := engine.InitReserve(cfg); err != nil {
			t.Fatalf("init reserve %s: %v", cfg.Asset, err)
		}
	}

	server := NewServer(engine, Options{AuthToken: "test-token", RateLimitPerSec: 1000})
	return &testEnv{server: server, engine: engine, prices: prices}
}

func mustBig(t *testing.T, value string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		t.Fatalf("invalid big integer literal %q", value)
	}
	return v
}

func marshalParam(t *testing.T, value interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal param: %v", err)
	}
	return raw
}

// call posts a JSON-RPC request through the full router, optionally with the
// bearer token.
func (env *testEnv) call(t *testing.T, method string, authed bool, params ...interface{}) (*httptest.ResponseRecorder, json.RawMessage, *RPCError) {
	t.Helper()
	rawParams := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		rawParams = append(rawParams, marshalParam(t, p))
	}
	body, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: method, Params: rawParams, ID: 1})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer test-token")
	}
	recorder := httptest.NewRecorder()
	env.server.Router().ServeHTTP(recorder, req)

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
	}
	return recorder, resp.Result, resp.Error
}

func (env *testEnv) seed(t *testing.T) {
	t.Helper()
	if _, err := env.engine.Lend("whale", "USD", mustBig(t, "100000000000000000000000")); err != nil {
		t.Fatalf("seed whale: %v", err)
	}
	if _, err := env.engine.Lend("alice", "ETH", mustBig(t, "50000000000000000000")); err != nil {
		t.Fatalf("seed alice: %v", err)
	}
}

func TestLendRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	recorder, _, rpcErr := env.call(t, "lend_lend", false, map[string]string{
		"user": "alice", "asset": "ETH", "amount": "1000000000000000000",
	})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d", recorder.Code)
	}
	if rpcErr == nil || rpcErr.Code != codeUnauthorized {
		t.Fatalf("error: %+v", rpcErr)
	}
}

func TestLendAndGetPosition(t *testing.T) {
	env := newTestEnv(t)

	_, result, rpcErr := env.call(t, "lend_lend", true, map[string]string{
		"user": "alice", "asset": "ETH", "amount": "50000000000000000000",
	})
	if rpcErr != nil {
		t.Fatalf("lend error: %+v", rpcErr)
	}
	var minted amountResult
	if err := json.Unmarshal(result, &minted); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if minted.Amount != "50000000000000000000" {
		t.Fatalf("minted: %s", minted.Amount)
	}

	_, result, rpcErr = env.call(t, "lend_getPosition", false, map[string]string{
		"user": "alice", "asset": "ETH",
	})
	if rpcErr != nil {
		t.Fatalf("get position error: %+v", rpcErr)
	}
	var view pool.PositionView
	if err := json.Unmarshal(result, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.SupplyWad.String() != "50000000000000000000" {
		t.Fatalf("supply: %s", view.SupplyWad)
	}
	if !view.UseAsCollateral {
		t.Fatal("collateral flag not defaulted")
	}
}

func TestBorrowRepayRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	_, _, rpcErr := env.call(t, "lend_borrow", true, map[string]string{
		"user": "alice", "asset": "USD", "amount": "30000000000000000000000",
	})
	if rpcErr != nil {
		t.Fatalf("borrow error: %+v", rpcErr)
	}

	_, result, rpcErr := env.call(t, "lend_getAccountData", false, map[string]string{"user": "alice"})
	if rpcErr != nil {
		t.Fatalf("account data error: %+v", rpcErr)
	}
	var data accountDataResult
	if err := json.Unmarshal(result, &data); err != nil {
		t.Fatalf("decode account data: %v", err)
	}
	if data.DebtValue != "30000000000000000000000" {
		t.Fatalf("debt value: %s", data.DebtValue)
	}
	if data.HealthFactor != "2133333333333333333" {
		t.Fatalf("health factor: %s", data.HealthFactor)
	}

	_, result, rpcErr = env.call(t, "lend_repayFull", true, map[string]string{
		"payer": "alice", "asset": "USD",
	})
	if rpcErr != nil {
		t.Fatalf("repay error: %+v", rpcErr)
	}
	var repaid repayResult
	if err := json.Unmarshal(result, &repaid); err != nil {
		t.Fatalf("decode repay result: %v", err)
	}
	if !repaid.Full {
		t.Fatal("repay not marked full")
	}
	if repaid.Paid != "30000000000000000000000" {
		t.Fatalf("paid: %s", repaid.Paid)
	}
}

func TestBorrowRejectedOverCapacity(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	recorder, _, rpcErr := env.call(t, "lend_borrow", true, map[string]string{
		"user": "alice", "asset": "USD", "amount": "65000000000000000000000",
	})
	if recorder.Code != http.StatusConflict {
		t.Fatalf("status: got %d", recorder.Code)
	}
	if rpcErr == nil || rpcErr.Code != codeServerError {
		t.Fatalf("error: %+v", rpcErr)
	}
}

func TestLiquidateOverRPC(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	if err := env.engine.Borrow("alice", "USD", mustBig(t, "30000000000000000000000")); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	env.prices.SetPrice("ETH", mustBig(t, "600000000000000000000"))

	_, result, rpcErr := env.call(t, "lend_liquidate", true, map[string]string{
		"liquidator":      "bob",
		"user":            "alice",
		"debtAsset":       "USD",
		"collateralAsset": "ETH",
		"repayAmount":     "15000000000000000000000",
	})
	if rpcErr != nil {
		t.Fatalf("liquidate error: %+v", rpcErr)
	}
	var out liquidateResult
	if err := json.Unmarshal(result, &out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if out.Seized != "26250000000000000000" {
		t.Fatalf("seized: %s", out.Seized)
	}
	if out.HealthFactor != "760000000000000000" {
		t.Fatalf("health factor: %s", out.HealthFactor)
	}
}

func TestGetPoolsListsReserves(t *testing.T) {
	env := newTestEnv(t)

	_, result, rpcErr := env.call(t, "lend_getPools", false)
	if rpcErr != nil {
		t.Fatalf("get pools error: %+v", rpcErr)
	}
	var views []pool.ReserveView
	if err := json.Unmarshal(result, &views); err != nil {
		t.Fatalf("decode views: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("reserve count: %d", len(views))
	}
	if views[0].Asset != "ETH" || views[1].Asset != "USD" {
		t.Fatalf("reserve order: %s, %s", views[0].Asset, views[1].Asset)
	}
}

func TestMethodValidation(t *testing.T) {
	env := newTestEnv(t)

	recorder, _, rpcErr := env.call(t, "lend_unknown", false)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("unknown method status: %d", recorder.Code)
	}
	if rpcErr == nil || rpcErr.Code != codeMethodNotFound {
		t.Fatalf("unknown method error: %+v", rpcErr)
	}

	_, _, rpcErr = env.call(t, "lend_lend", true, map[string]string{
		"user": "alice", "asset": "ETH", "amount": "-5",
	})
	if rpcErr == nil || rpcErr.Code != codeInvalidParams {
		t.Fatalf("negative amount error: %+v", rpcErr)
	}

	_, _, rpcErr = env.call(t, "lend_getReserve", false, map[string]string{"asset": "DOGE"})
	if rpcErr == nil {
		t.Fatal("unknown asset accepted")
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	recorder := httptest.NewRecorder()
	env.server.Router().ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("healthz status: %d", recorder.Code)
	}
}

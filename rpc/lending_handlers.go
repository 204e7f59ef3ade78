package rpc

import (
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
)

type assetParams struct {
	Asset string `json:"asset"`
}

type positionParams struct {
	User  string `json:"user"`
	Asset string `json:"asset"`
}

type accountParams struct {
	User string `json:"user"`
}

type amountParams struct {
	User   string `json:"user"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type repayParams struct {
	Payer      string `json:"payer"`
	OnBehalfOf string `json:"onBehalfOf,omitempty"`
	Asset      string `json:"asset"`
	Amount     string `json:"amount,omitempty"`
}

type collateralParams struct {
	User    string `json:"user"`
	Asset   string `json:"asset"`
	Enabled bool   `json:"enabled"`
}

type liquidateParams struct {
	Liquidator      string `json:"liquidator"`
	User            string `json:"user"`
	DebtAsset       string `json:"debtAsset"`
	CollateralAsset string `json:"collateralAsset"`
	RepayAmount     string `json:"repayAmount"`
}

type feesParams struct {
	Asset     string `json:"asset"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type amountResult struct {
	Amount string `json:"amount"`
}

type repayResult struct {
	Paid string `json:"paid"`
	Full bool   `json:"full"`
}

type accountDataResult struct {
	CollateralValue  string `json:"collateralValue"`
	DebtValue        string `json:"debtValue"`
	HealthFactor     string `json:"healthFactor"`
	AvailableBorrows string `json:"availableBorrows"`
}

type liquidateResult struct {
	Repaid       string `json:"repaid"`
	RepaidNative string `json:"repaidNative"`
	Seized       string `json:"seized"`
	SeizedNative string `json:"seizedNative"`
	HealthFactor string `json:"healthFactor"`
}

type okResult struct {
	OK bool `json:"ok"`
}

func decodeParams(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "expected parameter object"}
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "invalid parameter object", Data: err.Error()}
	}
	return nil
}

// parseAmount accepts a positive base-10 integer in the asset's native units.
func parseAmount(raw string) (*big.Int, *RPCError) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &RPCError{Code: codeInvalidParams, Message: "amount required"}
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, &RPCError{Code: codeInvalidParams, Message: "invalid amount", Data: raw}
	}
	if value.Sign() <= 0 {
		return nil, &RPCError{Code: codeInvalidParams, Message: "amount must be positive", Data: raw}
	}
	return value, nil
}

func requireField(name, value string) *RPCError {
	if strings.TrimSpace(value) == "" {
		return &RPCError{Code: codeInvalidParams, Message: name + " required"}
	}
	return nil
}

func writeEngineError(w http.ResponseWriter, id interface{}, logger *slog.Logger, err error) {
	status, code := errStatus(err)
	logger.Warn("operation rejected", "error", err)
	writeError(w, status, id, code, err.Error(), nil)
}

func (s *Server) handleGetReserve(w http.ResponseWriter, _ *http.Request, req *RPCRequest, logger *slog.Logger) {
	var params assetParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	view, err := s.engine.GetReserve(params.Asset)
	if err != nil {
		writeEngineError(w, req.ID, logger, err)
		return
	}
	writeResult(w, req.ID, view)
}

func (s *Server) handleGetPools(w http.ResponseWriter, _ *http.Request, req *RPCRequest, _ *slog.Logger) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	writeResult(w, req.ID, s.engine.ListReserves())
}

func (s *Server) handleGetPosition(w http.ResponseWriter, _ *http.Request, req *RPCRequest, logger *slog.Logger) {
	var params positionParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if rpcErr := requireField("user", params.User); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	view, err := s.engine.GetUserPosition(params.User, params.Asset)
	if err != nil {
		writeEngineError(w, req.ID, logger, err)
		return
	}
	writeResult(w, req.ID, view)
}

func (s *Server) handleGetAccountData(w http.ResponseWriter, _ *http.Request, req *RPCRequest, logger *slog.Logger) {
	var params accountParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if rpcErr := requireField("user", params.User); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	data, err := s.engine.GetAccountData(params.User)
	if err != nil {
		writeEngineError(w, req.ID, logger, err)
		return
	}
	writeResult(w, req.ID, accountDataResult{
		CollateralValue:  data.CollateralValueWad.String(),
		DebtValue:        data.DebtValueWad.String(),
		HealthFactor:     data.HealthFactorWad.String(),
		AvailableBorrows: data.AvailableBorrowsWad.String(),
	})
}

func (s *Server) handleAccrue(w http.ResponseWriter, _ *http.Request, req *RPCRequest, logger *slog.Logger) {
	var params assetParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if err := s.engine.Accrue(params.Asset); err != nil {
		writeEngineError(w, req.ID, logger, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleLend(w http.ResponseWriter, _ *http.Request, req *RPCRequest, logger *slog.Logger) {
	var params amountParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if rpcErr := requireField("user", params.User); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	minted, err := s.engine.Lend(params.User, params.Asset, amount)
	if err != nil {
		writeEngineError(w, req.ID, logger, err)
		return
	}
	logger.Info("deposit accepted", "user", params.User, "asset", params.Asset, "amount", amount.String())
	writeResult(w, req.ID, amountResult{Amount: minted.String()})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, _ *http.Request, req *RPCRequest, logger *slog.Logger) {
	var params amountParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if rpcErr := requireField("user", params.User); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	paid, err := s.engine.Withdraw(params.User, params.Asset, amount)
	if err != nil {
		writeEngineError(w, req.ID, logger, err)
		return
	}
	logger.Info("withdrawal accepted", "user", params.User, "asset", params.Asset, "paid", paid.String())
	writeResult(w, req.ID, amountResult{Amount: paid.String()})
}

func (s *Server) handleBorrow(w http.ResponseWriter, _ *http.Request, req *RPCRequest, logger *slog.Logger) {
	var params amountParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if rpcErr := requireField("user", params.User); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if err := s.engine.Borrow(params.User, params.Asset, amount); err != nil {
		writeEngineError(w, req.ID, logger, err)
		return
	}
	logger.Info("borrow accepted", "user", params.User, "asset", params.Asset, "amount", amount.String())
	writeResult(w, req.ID, amountResult{Amount: amount.String()})
}

func (s *Server) handleRepay(w http.ResponseWriter, _ *http.Request, req *RPCRequest, logger *slog.Logger) {
	var params repayParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if rpcErr := requireField("payer", params.Payer); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	onBehalfOf := strings.TrimSpace(params.OnBehalfOf)
	if onBehalfOf == "" {
		onBehalfOf = params.Payer
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	paid, full, err := s.engine.Repay(params.Payer, onBehalfOf, params.Asset, amount)
	if err != nil {
		writeEngineError(w, req.ID, logger, err)
		return
	}
	logger.Info("repay accepted", "payer", params.Payer, "onBehalfOf", onBehalfOf, "asset", params.Asset, "paid", paid.String(), "full", full)
	writeResult(w, req.ID, repayResult{Paid: paid.String(), Full: full})
}

func (s *Server) handleRepayFull(w http.ResponseWriter, _ *http.Request, req *RPCRequest, logger *slog.Logger) {
	var params repayParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if rpcErr := requireField("payer", params.Payer); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	onBehalfOf := strings.TrimSpace(params.OnBehalfOf)
	if onBehalfOf == "" {
		onBehalfOf = params.Payer
	}
	paid, full, err := s.engine.RepayFull(params.Payer, onBehalfOf, params.Asset)
	if err != nil {
		writeEngineError(w, req.ID, logger, err)
		return
	}
	logger.Info("full repay accepted", "payer", params.Payer, "onBehalfOf", onBehalfOf, "asset", params.Asset, "paid", paid.String())
	writeResult(w, req.ID, repayResult{Paid: paid.String(), Full: full})
}

func (s *Server) handleSetCollateral(w http.ResponseWriter, _ *http.Request, req *RPCRequest, logger *slog.Logger) {
	var params collateralParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if rpcErr := requireField("user", params.User); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	if err := s.engine.SetCollateralFlag(params.User, params.Asset, params.Enabled); err != nil {
		writeEngineError(w, req.ID, logger, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleLiquidate(w http.ResponseWriter, _ *http.Request, req *RPCRequest, logger *slog.Logger) {
	var params liquidateParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	for name, value := range map[string]string{
		"liquidator": params.Liquidator,
		"user":       params.User,
	} {
		if rpcErr := requireField(name, value); rpcErr != nil {
			writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
			return
		}
	}
	amount, rpcErr := parseAmount(params.RepayAmount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	result, err := s.engine.LiquidationCall(params.Liquidator, params.User, params.DebtAsset, params.CollateralAsset, amount)
	if err != nil {
		writeEngineError(w, req.ID, logger, err)
		return
	}
	logger.Info("liquidation executed",
		"liquidator", params.Liquidator,
		"user", params.User,
		"debtAsset", params.DebtAsset,
		"collateralAsset", params.CollateralAsset,
		"repaid", result.RepaidWad.String(),
		"seized", result.SeizedWad.String(),
	)
	writeResult(w, req.ID, liquidateResult{
		Repaid:       result.RepaidWad.String(),
		RepaidNative: result.RepaidNative.String(),
		Seized:       result.SeizedWad.String(),
		SeizedNative: result.SeizedNative.String(),
		HealthFactor: result.HealthFactorWad.String(),
	})
}

func (s *Server) handleWithdrawProtocolFees(w http.ResponseWriter, _ *http.Request, req *RPCRequest, logger *slog.Logger) {
	var params feesParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	if rpcErr := requireField("recipient", params.Recipient); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, nil)
		return
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	paid, err := s.engine.WithdrawProtocolFees(params.Asset, params.Recipient, amount)
	if err != nil {
		writeEngineError(w, req.ID, logger, err)
		return
	}
	logger.Info("protocol fees withdrawn", "asset", params.Asset, "recipient", params.Recipient, "paid", paid.String())
	writeResult(w, req.ID, amountResult{Amount: paid.String()})
}

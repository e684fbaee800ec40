package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"example.com/tokenledger/pkg/chain"
	"example.com/tokenledger/pkg/tokens"
)

const maxPageSize = 1000

// --- Read handlers ---

func (api *API) Health(w http.ResponseWriter, r *http.Request) {
	tip := api.host.Tip()
	api.writeJSONResponse(w, http.StatusOK, "Success", map[string]interface{}{
		"height": tip.Height,
		"tip":    hex.EncodeToString(tip.Hash),
	})
}

func (api *API) GetToken(w http.ResponseWriter, r *http.Request) {
	api.writeJSONResponse(w, http.StatusOK, "Success", api.host.TokenInfo())
}

// GetBalance retrieves the balance of an account
func (api *API) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, ok := api.pathAccount(w, r, "account")
	if !ok {
		return
	}
	api.writeJSONResponse(w, http.StatusOK, "Success", map[string]interface{}{
		"account": account,
		"balance": api.host.BalanceOf(account),
	})
}

func (api *API) GetAllowance(w http.ResponseWriter, r *http.Request) {
	owner, ok := api.pathAccount(w, r, "owner")
	if !ok {
		return
	}
	spender, ok := api.pathAccount(w, r, "spender")
	if !ok {
		return
	}
	api.writeJSONResponse(w, http.StatusOK, "Success", map[string]interface{}{
		"owner":     owner,
		"spender":   spender,
		"allowance": api.host.Allowance(owner, spender),
	})
}

// GetEvents pages through the notification journal
func (api *API) GetEvents(w http.ResponseWriter, r *http.Request) {
	since, ok := api.queryUint(w, r, "since", 0)
	if !ok {
		return
	}
	limit, ok := api.queryLimit(w, r, 100)
	if !ok {
		return
	}
	events, err := api.host.Events(since, limit)
	if err != nil {
		api.writeError(w, err)
		return
	}
	api.writeJSONResponse(w, http.StatusOK, "Success", events)
}

// GetReceipts returns the newest receipts first
func (api *API) GetReceipts(w http.ResponseWriter, r *http.Request) {
	limit, ok := api.queryLimit(w, r, 20)
	if !ok {
		return
	}
	receipts, err := api.host.Receipts(limit)
	if err != nil {
		api.writeError(w, err)
		return
	}
	api.writeJSONResponse(w, http.StatusOK, "Success", receipts)
}

func (api *API) GetDelegate(w http.ResponseWriter, r *http.Request) {
	owner, ok := api.pathAccount(w, r, "owner")
	if !ok {
		return
	}
	api.writeJSONResponse(w, http.StatusOK, "Success", map[string]interface{}{
		"owner":   owner,
		"balance": api.host.DelegateCall(owner),
	})
}

func (api *API) GetLoan(w http.ResponseWriter, r *http.Request) {
	api.writeJSONResponse(w, http.StatusOK, "Success", api.host.LoanInfo())
}

func (api *API) GetRandom(w http.ResponseWriter, r *http.Request) {
	v := api.host.Random()
	api.writeJSONResponse(w, http.StatusOK, "Success", map[string]string{
		"value": hex.EncodeToString(v[:]),
	})
}

// --- Write handlers ---

type transferRequest struct {
	To    *tokens.AccountID `json:"to"`
	Value *tokens.Amount    `json:"value"`
}

type approveRequest struct {
	Spender *tokens.AccountID `json:"spender"`
	Value   *tokens.Amount    `json:"value"`
}

type transferFromRequest struct {
	From  *tokens.AccountID `json:"from"`
	To    *tokens.AccountID `json:"to"`
	Value *tokens.Amount    `json:"value"`
}

type amountRequest struct {
	Amount *tokens.Amount `json:"amount"`
}

type ratioRequest struct {
	Token *tokens.AccountID `json:"token"`
	Ratio uint32            `json:"ratio"`
}

func (api *API) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !api.decode(w, r, &req) {
		return
	}
	if req.To == nil || req.Value == nil {
		api.writeJSONResponse(w, http.StatusBadRequest, "to and value are required", nil)
		return
	}
	api.invoke(w, r, "Transfer completed", func(ctx context.Context, caller tokens.AccountID) (*chain.Receipt, error) {
		return api.host.Transfer(ctx, caller, *req.To, *req.Value)
	})
}

func (api *API) Approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if !api.decode(w, r, &req) {
		return
	}
	if req.Spender == nil || req.Value == nil {
		api.writeJSONResponse(w, http.StatusBadRequest, "spender and value are required", nil)
		return
	}
	api.invoke(w, r, "Allowance set", func(ctx context.Context, caller tokens.AccountID) (*chain.Receipt, error) {
		return api.host.Approve(ctx, caller, *req.Spender, *req.Value)
	})
}

func (api *API) TransferFrom(w http.ResponseWriter, r *http.Request) {
	var req transferFromRequest
	if !api.decode(w, r, &req) {
		return
	}
	if req.From == nil || req.To == nil || req.Value == nil {
		api.writeJSONResponse(w, http.StatusBadRequest, "from, to and value are required", nil)
		return
	}
	api.invoke(w, r, "Transfer completed", func(ctx context.Context, caller tokens.AccountID) (*chain.Receipt, error) {
		return api.host.TransferFrom(ctx, caller, *req.From, *req.To, *req.Value)
	})
}

func (api *API) Issue(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !api.decodeAmount(w, r, &req) {
		return
	}
	api.invoke(w, r, "Tokens issued", func(ctx context.Context, caller tokens.AccountID) (*chain.Receipt, error) {
		return api.host.Issue(ctx, caller, *req.Amount)
	})
}

func (api *API) Burn(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !api.decodeAmount(w, r, &req) {
		return
	}
	api.invoke(w, r, "Tokens burned", func(ctx context.Context, caller tokens.AccountID) (*chain.Receipt, error) {
		return api.host.Burn(ctx, caller, *req.Amount)
	})
}

func (api *API) RechargeForBorrowing(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !api.decodeAmount(w, r, &req) {
		return
	}
	api.invoke(w, r, "Loan recharged", func(ctx context.Context, caller tokens.AccountID) (*chain.Receipt, error) {
		return api.host.RechargeForBorrowing(ctx, caller, *req.Amount)
	})
}

func (api *API) SetMinCollateralRatio(w http.ResponseWriter, r *http.Request) {
	var req ratioRequest
	if !api.decode(w, r, &req) {
		return
	}
	if req.Token == nil {
		api.writeJSONResponse(w, http.StatusBadRequest, "token is required", nil)
		return
	}
	api.invoke(w, r, "Collateral ratio set", func(ctx context.Context, caller tokens.AccountID) (*chain.Receipt, error) {
		return api.host.SetMinCollateralRatio(ctx, caller, *req.Token, req.Ratio)
	})
}

func (api *API) UpdateRandom(w http.ResponseWriter, r *http.Request) {
	api.invoke(w, r, "Random value updated", func(ctx context.Context, caller tokens.AccountID) (*chain.Receipt, error) {
		return api.host.UpdateRandom(ctx, caller)
	})
}

// --- Helpers ---

// invoke runs a signed mutation and answers with the resulting receipt.
func (api *API) invoke(w http.ResponseWriter, r *http.Request, message string, call func(context.Context, tokens.AccountID) (*chain.Receipt, error)) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		api.writeJSONResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), api.opTimeout)
	defer cancel()

	receipt, err := call(ctx, caller)
	if err != nil {
		api.writeError(w, err)
		return
	}
	api.writeJSONResponse(w, http.StatusOK, message, receipt)
}

func (api *API) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		api.writeJSONResponse(w, http.StatusBadRequest, "Invalid input data: "+err.Error(), nil)
		return false
	}
	return true
}

func (api *API) decodeAmount(w http.ResponseWriter, r *http.Request, req *amountRequest) bool {
	if !api.decode(w, r, req) {
		return false
	}
	if req.Amount == nil {
		api.writeJSONResponse(w, http.StatusBadRequest, "amount is required", nil)
		return false
	}
	return true
}

func (api *API) pathAccount(w http.ResponseWriter, r *http.Request, name string) (tokens.AccountID, bool) {
	id, err := tokens.ParseAccountID(mux.Vars(r)[name])
	if err != nil {
		api.writeJSONResponse(w, http.StatusBadRequest, "Invalid "+name+": "+err.Error(), nil)
		return tokens.AccountID{}, false
	}
	return id, true
}

func (api *API) queryUint(w http.ResponseWriter, r *http.Request, name string, def uint64) (uint64, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, true
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		api.writeJSONResponse(w, http.StatusBadRequest, "Invalid "+name, nil)
		return 0, false
	}
	return v, true
}

// queryLimit reads the page size. Zero is refused because the host treats
// it as unbounded.
func (api *API) queryLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	v, ok := api.queryUint(w, r, "limit", uint64(def))
	if !ok {
		return 0, false
	}
	if v == 0 || v > maxPageSize {
		api.writeJSONResponse(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxPageSize), nil)
		return 0, false
	}
	return int(v), true
}

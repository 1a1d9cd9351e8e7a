package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"p2pswap/internal/matcher"
	"p2pswap/internal/types"
)

const defaultPageLimit = 100

type submitPayload struct {
	TokenIn      string `json:"token_in"`
	TokenOut     string `json:"token_out"`
	AmountIn     string `json:"amount_in"`
	MinAmountOut string `json:"min_amount_out"`
	SourceChain  uint64 `json:"source_chain"`
	DestChain    uint64 `json:"dest_chain"`
	MaxSlippage  uint16 `json:"max_slippage"`
}

type submitResponse struct {
	ID     types.Hash    `json:"id"`
	Intent *types.Intent `json:"intent,omitempty"`
}

type batchPayload struct {
	IDs []string `json:"ids"`
}

type relayerPayload struct {
	Account    string `json:"account"`
	Authorized bool   `json:"authorized"`
}

type configurationPayload struct {
	RewardBps uint16 `json:"reward_bps"`
	FeeBps    uint16 `json:"fee_bps"`
}

type withdrawPayload struct {
	Token  string `json:"token"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type ownershipPayload struct {
	Next string `json:"next"`
}

type approvePayload struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type balanceResponse struct {
	Account   types.Address `json:"account"`
	Token     types.Address `json:"token"`
	Balance   *uint256.Int  `json:"balance"`
	Allowance *uint256.Int  `json:"allowance"`
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid payload: %v", err)
	}
	return nil
}

func parseAddress(field, raw string) (types.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return types.Address{}, fmt.Errorf("%s: invalid address %q", field, raw)
	}
	return common.HexToAddress(raw), nil
}

func parseHash(raw string) (types.Hash, error) {
	raw = strings.TrimSpace(raw)
	b, err := hexutil.Decode(raw)
	if err != nil || len(b) != common.HashLength {
		return types.Hash{}, fmt.Errorf("invalid intent id %q", raw)
	}
	return common.BytesToHash(b), nil
}

func parseAmount(field, raw string) (*uint256.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	v, err := types.ParseAmount(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %v", field, err)
	}
	return v, nil
}

func (p submitPayload) request() (matcher.SubmitRequest, error) {
	tokenIn, err := parseAddress("token_in", p.TokenIn)
	if err != nil {
		return matcher.SubmitRequest{}, err
	}
	tokenOut, err := parseAddress("token_out", p.TokenOut)
	if err != nil {
		return matcher.SubmitRequest{}, err
	}
	amountIn, err := parseAmount("amount_in", p.AmountIn)
	if err != nil {
		return matcher.SubmitRequest{}, err
	}
	minOut, err := parseAmount("min_amount_out", p.MinAmountOut)
	if err != nil {
		return matcher.SubmitRequest{}, err
	}
	return matcher.SubmitRequest{
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		AmountIn:     amountIn,
		MinAmountOut: minOut,
		SourceChain:  types.ChainID(p.SourceChain),
		DestChain:    types.ChainID(p.DestChain),
		MaxSlippage:  p.MaxSlippage,
	}, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload submitPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := payload.request()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.svc.Submit(r.Context(), callerFrom(r.Context()), req)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	resp := submitResponse{ID: id}
	if in, err := s.svc.GetIntent(id); err == nil {
		resp.Intent = in
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.svc.Cancel(r.Context(), callerFrom(r.Context()), id); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFallback(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.svc.ExecuteViaAMM(r.Context(), callerFrom(r.Context()), id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBatchMatch(w http.ResponseWriter, r *http.Request) {
	var payload batchPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ids := make([]types.Hash, 0, len(payload.IDs))
	for _, raw := range payload.IDs {
		id, err := parseHash(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		ids = append(ids, id)
	}
	n, err := s.svc.BatchMatch(r.Context(), callerFrom(r.Context()), ids)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"matched": n})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var payload approvePayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, err := parseAddress("token", payload.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount("amount", payload.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	owner := callerFrom(r.Context())
	if err := s.wallet.Approve(r.Context(), owner, token, amount); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.balance(owner, token))
}

func (s *Server) handleAuthorizeRelayer(w http.ResponseWriter, r *http.Request) {
	var payload relayerPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	account, err := parseAddress("account", payload.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.svc.AuthorizeRelayer(r.Context(), callerFrom(r.Context()), account, payload.Authorized); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]types.Address{"relayers": nonNil(s.svc.Relayers())})
}

func (s *Server) handleUpdateConfiguration(w http.ResponseWriter, r *http.Request) {
	var payload configurationPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.svc.UpdateConfiguration(r.Context(), callerFrom(r.Context()), payload.RewardBps, payload.FeeBps); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Configuration())
}

func (s *Server) handleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	var payload withdrawPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, err := parseAddress("token", payload.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseAddress("to", payload.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount("amount", payload.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.svc.EmergencyWithdraw(r.Context(), callerFrom(r.Context()), token, to, amount); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	var payload ownershipPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	next, err := parseAddress("next", payload.Next)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.svc.TransferOwnership(r.Context(), callerFrom(r.Context()), next); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]types.Address{"owner": s.svc.Owner()})
}

func (s *Server) handleGetIntent(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in, err := s.svc.GetIntent(id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (s *Server) handleIntentsByPair(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tokenIn, err := parseAddress("token_in", q.Get("token_in"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tokenOut, err := parseAddress("token_out", q.Get("token_out"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, nonNil(s.svc.IntentsByPair(tokenIn, tokenOut)))
}

func (s *Server) handleUserIntents(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress("owner", chi.URLParam(r, "owner"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, nonNil(s.svc.UserIntents(owner)))
}

func (s *Server) handleActiveIntents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(s.svc.ActiveIntents()))
}

func (s *Server) handleExpiredIntents(w http.ResponseWriter, r *http.Request) {
	var now uint64
	if raw := r.URL.Query().Get("now"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "now must be unix seconds")
			return
		}
		now = v
	}
	writeJSON(w, http.StatusOK, nonNil(s.svc.ExpiredIntents(now)))
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", defaultPageLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":   s.svc.MatchCount(),
		"matches": nonNil(s.svc.MatchedPairs(offset, limit)),
	})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return v, nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":          s.svc.Stats(),
		"active_intents": s.svc.ActiveIntentCount(),
		"match_count":    s.svc.MatchCount(),
	})
}

func (s *Server) handleRelayers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"owner":    s.svc.Owner(),
		"relayers": nonNil(s.svc.Relayers()),
	})
}

func (s *Server) handleConfiguration(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Configuration())
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, err := parseAddress("token", chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.balance(account, token))
}

func (s *Server) balance(account, token types.Address) balanceResponse {
	return balanceResponse{
		Account:   account,
		Token:     token,
		Balance:   s.wallet.BalanceOf(account, token),
		Allowance: s.wallet.Allowance(account, token),
	}
}

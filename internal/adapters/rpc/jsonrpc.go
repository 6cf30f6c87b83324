package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"royalty-exchange/go-backend/internal/identity"
	"royalty-exchange/go-backend/internal/ledger"
	"royalty-exchange/go-backend/internal/platform/ratelimiter"
	"royalty-exchange/go-backend/internal/txn"
	"royalty-exchange/go-backend/pkg/models"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// Submissions carry whole signed groups plus referenced operations, so the
// limit is larger than a plain control request needs.
const maxRPCBodyBytes int64 = 4 << 20

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if !s.applyCORS(w, r) {
		return
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if !s.authorizeRPC(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.limiter.Allow(ratelimiter.ClientKey(r, s.extractRPCToken(r)), time.Now()) {
		s.metrics.RPCRequests.WithLabelValues("any", "rate_limited").Inc()
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRPCBodyBytes)
	var req rpcRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeRPC(w, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: -32700, Message: "parse error"},
		})
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeRPCInvalidRequest(w, req.ID)
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeRPCInvalidRequest(w, req.ID)
		return
	}

	reqID := fmt.Sprintf("rpc_%d", time.Now().UnixNano())
	started := time.Now()
	s.log.Debug("rpc request", "request_id", reqID, "method", req.Method, "rpc_id", string(req.ID), "remote_addr", r.RemoteAddr)

	result, rpcErr := s.dispatchRPC(r.Context(), req.Method, req.Params)
	label := metricMethod(req.Method)
	if rpcErr != nil {
		s.metrics.RPCRequests.WithLabelValues(label, "error").Inc()
		s.log.Warn("rpc failed", "request_id", reqID, "method", req.Method, "rpc_code", rpcErr.Code, "latency_ms", time.Since(started).Milliseconds())
	} else {
		s.metrics.RPCRequests.WithLabelValues(label, "ok").Inc()
		s.log.Debug("rpc response", "request_id", reqID, "method", req.Method, "latency_ms", time.Since(started).Milliseconds())
	}
	writeRPC(w, rpcResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
		Error:   rpcErr,
	})
}

func (s *Server) dispatchRPC(ctx context.Context, method string, rawParams json.RawMessage) (any, *rpcError) {
	switch method {
	case models.MethodHealthCheck:
		return map[string]string{"status": "ok"}, nil
	case models.MethodStatus:
		return callWithoutParams(func() (any, error) {
			st, err := s.backend.Status(ctx)
			if err == nil {
				s.metrics.LastRound.Set(float64(st.LastRound))
			}
			return st, err
		})
	case models.MethodSuggestedParams:
		return callWithoutParams(func() (any, error) {
			p, err := s.backend.SuggestedParams(ctx)
			if err != nil {
				return nil, err
			}
			return models.SuggestedParams{Fee: p.Fee, FirstValid: p.FirstValid, LastValid: p.LastValid, GenesisID: p.GenesisID}, nil
		})
	case models.MethodSubmitGroup:
		return callWithSubmission(rawParams, func(sub ledger.Submission) (any, error) {
			id, err := s.backend.SubmitGroup(ctx, sub)
			if err != nil {
				return nil, err
			}
			return models.SubmitGroupResult{GroupID: id.String()}, nil
		})
	case models.MethodSimulate:
		return callWithSubmission(rawParams, func(sub ledger.Submission) (any, error) {
			trace, err := s.backend.Simulate(ctx, sub)
			if err != nil {
				return nil, err
			}
			blob, err := models.EncodeBlob(trace)
			if err != nil {
				return nil, err
			}
			return models.SimulateResult{Trace: blob}, nil
		})
	case models.MethodGroupStatus:
		return callWithGroupID(rawParams, func(id txn.GroupID) (any, error) {
			st, err := s.backend.GroupStatus(ctx, id)
			if err != nil {
				return nil, err
			}
			return groupStatusResult(st)
		})
	case models.MethodAccountInfo:
		return callWithAddress(rawParams, func(addr identity.Address) (any, error) {
			return s.backend.AccountInfo(ctx, addr)
		})
	case models.MethodAssetInfo:
		var p models.AssetParams
		if err := decodeParams(rawParams, &p); err != nil || p.AssetID == 0 {
			return nil, rpcInvalidParams()
		}
		return callWithoutParams(func() (any, error) {
			return s.backend.AssetInfo(ctx, txn.AssetID(p.AssetID))
		})
	case models.MethodApplicationState:
		var p models.AppParams
		if err := decodeParams(rawParams, &p); err != nil || p.AppID == 0 {
			return nil, rpcInvalidParams()
		}
		return callWithoutParams(func() (any, error) {
			return s.backend.ApplicationState(ctx, txn.AppID(p.AppID))
		})
	}
	return nil, &rpcError{Code: -32601, Message: "method not found"}
}

func groupStatusResult(st ledger.GroupStatus) (models.GroupStatusResult, error) {
	res := models.GroupStatusResult{State: string(st.State), LastRound: st.LastRound}
	if st.Receipt != nil {
		blob, err := models.EncodeBlob(st.Receipt)
		if err != nil {
			return models.GroupStatusResult{}, err
		}
		res.Receipt = blob
	}
	if st.Reject != nil {
		res.RejectIndex = st.Reject.Index
		res.RejectReason = st.Reject.Reason
	}
	return res, nil
}

func metricMethod(method string) string {
	switch method {
	case models.MethodHealthCheck, models.MethodStatus, models.MethodSuggestedParams,
		models.MethodSubmitGroup, models.MethodGroupStatus, models.MethodSimulate,
		models.MethodAccountInfo, models.MethodAssetInfo, models.MethodApplicationState:
		return method
	default:
		return "unknown"
	}
}

func writeRPC(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeRPCInvalidRequest(w http.ResponseWriter, id json.RawMessage) {
	writeRPC(w, rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: -32600, Message: "invalid request"},
	})
}

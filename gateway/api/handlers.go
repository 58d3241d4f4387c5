package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	gwerrors "github.com/pushchain/push-rpc-gateway/gateway/errors"
	"github.com/pushchain/push-rpc-gateway/gateway/jsonrpc"
	"github.com/pushchain/push-rpc-gateway/gateway/rpcpool"
)

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleDefaultRPC handles POST /eth on the default chain
func (s *Server) handleDefaultRPC(w http.ResponseWriter, r *http.Request) {
	s.serveRPC(w, r, s.registry.DefaultChainID())
}

// handleRPC handles POST /rpc/{chain_id}
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	s.serveRPC(w, r, mux.Vars(r)["chain_id"])
}

func (s *Server) serveRPC(w http.ResponseWriter, r *http.Request, chainID string) {
	mgr, ok := s.registry.Manager(chainID)
	if !ok {
		writeJSON(w, http.StatusNotFound, jsonrpc.NewErrorResponse(jsonrpc.ID{}, jsonrpc.CodeInvalidParams,
			fmt.Sprintf("unknown chain id %q", chainID)))
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, jsonrpc.NewErrorResponse(jsonrpc.ID{}, jsonrpc.CodeParseError, "parse error"))
		return
	}

	if len(body) > 0 && body[0] == '[' {
		s.serveBatch(r.Context(), w, mgr, body)
		return
	}

	req, failure := decodeRequest(body)
	if failure != nil {
		writeJSON(w, http.StatusBadRequest, failure)
		return
	}

	resp, failed := s.forward(r.Context(), mgr, req)
	status := http.StatusOK
	if failed {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

// serveBatch answers each entry in order through the same pool
func (s *Server) serveBatch(ctx context.Context, w http.ResponseWriter, mgr PoolManager, body []byte) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		writeJSON(w, http.StatusBadRequest, jsonrpc.NewErrorResponse(jsonrpc.ID{}, jsonrpc.CodeParseError, "parse error"))
		return
	}
	if len(raws) == 0 {
		writeJSON(w, http.StatusBadRequest, jsonrpc.NewErrorResponse(jsonrpc.ID{}, jsonrpc.CodeInvalidRequest, "invalid request"))
		return
	}

	responses := make([]*jsonrpc.Response, 0, len(raws))
	for _, raw := range raws {
		req, failure := decodeRequest(raw)
		if failure != nil {
			responses = append(responses, failure)
			continue
		}
		resp, _ := s.forward(ctx, mgr, req)
		responses = append(responses, resp)
	}

	writeJSON(w, http.StatusOK, responses)
}

// forward runs req through the pool. Terminal errors become an internal
// error envelope carrying the client-safe message.
func (s *Server) forward(ctx context.Context, mgr PoolManager, req *jsonrpc.Request) (*jsonrpc.Response, bool) {
	resp, err := mgr.Request(ctx, req)
	if err != nil {
		s.logger.Debug().
			Err(err).
			Str("chain_id", mgr.ChainID()).
			Str("method", req.Method).
			Msg("request failed")
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInternalError, gwerrors.ClientMessage(err)), true
	}
	return resp, false
}

// handleBroadcast handles POST /api/v1/broadcast/{chain_id}
func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	chainID := mux.Vars(r)["chain_id"]
	mgr, ok := s.registry.Manager(chainID)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: fmt.Sprintf("pool not found for chain %s", chainID)})
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "failed to read request body"})
		return
	}
	req, failure := decodeRequest(body)
	if failure != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: failure.Error.Message})
		return
	}

	result, err := mgr.Broadcast(r.Context(), req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: gwerrors.ClientMessage(err)})
		return
	}

	writeJSON(w, http.StatusOK, QueryResponse{Data: result})
}

// handlePools handles GET /api/v1/pools
func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	managers := s.registry.Managers()
	pools := make([]*rpcpool.PoolStats, 0, len(managers))
	for _, mgr := range managers {
		pools = append(pools, mgr.Stats())
	}
	sort.Slice(pools, func(i, j int) bool {
		return lessChainID(pools[i].ChainID, pools[j].ChainID)
	})

	writeJSON(w, http.StatusOK, QueryResponse{Data: PoolsResponse{
		DefaultChainID: s.registry.DefaultChainID(),
		Pools:          pools,
	}})
}

// handlePool handles GET /api/v1/pools/{chain_id}
func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	chainID := mux.Vars(r)["chain_id"]
	mgr, ok := s.registry.Manager(chainID)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: fmt.Sprintf("pool not found for chain %s", chainID)})
		return
	}

	writeJSON(w, http.StatusOK, QueryResponse{Data: mgr.Stats()})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	return bytes.TrimSpace(body), nil
}

// decodeRequest parses one call. The returned response is non-nil when the
// call is malformed.
func decodeRequest(raw []byte) (*jsonrpc.Request, *jsonrpc.Response) {
	var req jsonrpc.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, jsonrpc.NewErrorResponse(jsonrpc.ID{}, jsonrpc.CodeParseError, "parse error")
	}
	if req.JSONRPC == "" {
		req.JSONRPC = jsonrpc.Version
	}
	if req.JSONRPC != jsonrpc.Version {
		return nil, jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidRequest, "invalid request")
	}
	if req.Method == "" {
		return nil, jsonrpc.NewErrorResponse(req.ID, jsonrpc.CodeInvalidRequest, "method required")
	}
	if req.Params.IsNull() {
		req.Params = jsonrpc.TextArray()
	}
	return &req, nil
}

// lessChainID orders decimal ids numerically
func lessChainID(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

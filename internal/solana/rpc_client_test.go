package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// rpcServer answers every request with the result (or error) produced by fn.
func rpcServer(t *testing.T, fn func(req rpcRequest) (result interface{}, rpcErr map[string]interface{})) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}

		result, rpcErr := fn(req)
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
		}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHTTPClient_GetTransaction(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) (interface{}, map[string]interface{}) {
		if req.Method != "getTransaction" {
			t.Errorf("expected method getTransaction, got %s", req.Method)
		}
		return map[string]interface{}{
			"slot":      int64(123456),
			"blockTime": int64(1700000000),
			"meta": map[string]interface{}{
				"err":         nil,
				"logMessages": []string{"Program log: Instruction: Vote"},
			},
			"transaction": map[string]interface{}{
				"message": map[string]interface{}{
					"accountKeys": []string{"voter", "poll", "candidate"},
				},
			},
		}, nil
	})

	tx, err := NewHTTPClient(server.URL).GetTransaction(context.Background(), "sig")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if tx == nil || tx.Meta == nil || tx.Message == nil {
		t.Fatalf("expected transaction with meta and message, got %+v", tx)
	}
	if tx.Slot != 123456 || tx.BlockTime != 1700000000 {
		t.Errorf("unexpected slot/blockTime: %d/%d", tx.Slot, tx.BlockTime)
	}
	if len(tx.Meta.LogMessages) != 1 {
		t.Errorf("expected 1 log message, got %d", len(tx.Meta.LogMessages))
	}
	if len(tx.Message.AccountKeys) != 3 {
		t.Errorf("expected 3 account keys, got %d", len(tx.Message.AccountKeys))
	}
}

func TestHTTPClient_GetTransaction_NotFound(t *testing.T) {
	server := rpcServer(t, func(rpcRequest) (interface{}, map[string]interface{}) {
		return nil, nil
	})

	tx, err := NewHTTPClient(server.URL).GetTransaction(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if tx != nil {
		t.Errorf("expected nil for not found, got %+v", tx)
	}
}

func TestHTTPClient_Retry(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": int64(999)})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(3),
		WithRetryDelay(10*time.Millisecond),
	)

	slot, err := client.GetSlot(context.Background())
	if err != nil {
		t.Fatalf("GetSlot: %v", err)
	}
	if slot != 999 {
		t.Errorf("expected slot 999, got %d", slot)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestHTTPClient_RetryExhausted(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithMaxRetries(2), WithRetryDelay(time.Millisecond))
	if _, err := client.GetSlot(context.Background()); err == nil {
		t.Fatal("expected error after retries")
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestHTTPClient_RPCError(t *testing.T) {
	var attempts atomic.Int32
	server := rpcServer(t, func(rpcRequest) (interface{}, map[string]interface{}) {
		attempts.Add(1)
		return nil, map[string]interface{}{"code": -32600, "message": "Invalid Request"}
	})

	_, err := NewHTTPClient(server.URL).GetSlot(context.Background())
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *RPCError, got %T", err)
	}
	if rpcErr.Code != -32600 {
		t.Errorf("expected code -32600, got %d", rpcErr.Code)
	}
	if attempts.Load() != 1 {
		t.Errorf("RPC errors must not be retried, got %d attempts", attempts.Load())
	}
}

func TestHTTPClient_GetAccountInfo(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) (interface{}, map[string]interface{}) {
		if req.Method != "getAccountInfo" {
			t.Errorf("expected method getAccountInfo, got %s", req.Method)
		}
		return map[string]interface{}{
			"value": map[string]interface{}{
				"lamports":   uint64(1000000),
				"owner":      "11111111111111111111111111111111",
				"data":       []string{"SGVsbG8gV29ybGQ=", "base64"},
				"executable": false,
				"rentEpoch":  uint64(100),
			},
		}, nil
	})

	info, err := NewHTTPClient(server.URL).GetAccountInfo(context.Background(), "pubkey")
	if err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}
	if info == nil {
		t.Fatal("expected account info, got nil")
	}
	if info.Lamports != 1000000 || info.Owner != "11111111111111111111111111111111" {
		t.Errorf("unexpected account: %+v", info)
	}
	data, err := info.DecodeData()
	if err != nil {
		t.Fatalf("DecodeData: %v", err)
	}
	if string(data) != "Hello World" {
		t.Errorf("unexpected data: %q", data)
	}
}

func TestHTTPClient_GetAccountInfo_NotFound(t *testing.T) {
	server := rpcServer(t, func(rpcRequest) (interface{}, map[string]interface{}) {
		return map[string]interface{}{"value": nil}, nil
	})

	info, err := NewHTTPClient(server.URL).GetAccountInfo(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}
	if info != nil {
		t.Errorf("expected nil for not found, got %+v", info)
	}
}

func TestHTTPClient_GetProgramAccounts(t *testing.T) {
	disc := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	server := rpcServer(t, func(req rpcRequest) (interface{}, map[string]interface{}) {
		if req.Method != "getProgramAccounts" {
			t.Errorf("expected method getProgramAccounts, got %s", req.Method)
		}
		if len(req.Params) != 2 || req.Params[0] != "program" {
			t.Fatalf("unexpected params: %v", req.Params)
		}
		config := req.Params[1].(map[string]interface{})
		filters := config["filters"].([]interface{})
		memcmp := filters[0].(map[string]interface{})["memcmp"].(map[string]interface{})
		if memcmp["bytes"] != base64.StdEncoding.EncodeToString(disc) || memcmp["encoding"] != "base64" {
			t.Errorf("unexpected memcmp filter: %v", memcmp)
		}
		if memcmp["offset"].(float64) != 0 {
			t.Errorf("unexpected offset: %v", memcmp["offset"])
		}
		return []interface{}{
			map[string]interface{}{
				"pubkey": "acct1",
				"account": map[string]interface{}{
					"lamports": 1,
					"owner":    "program",
					"data":     []string{base64.StdEncoding.EncodeToString(disc), "base64"},
				},
			},
		}, nil
	})

	accounts, err := NewHTTPClient(server.URL).GetProgramAccounts(context.Background(), "program",
		MemcmpFilter{Offset: 0, Bytes: disc})
	if err != nil {
		t.Fatalf("GetProgramAccounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0].Pubkey != "acct1" || accounts[0].Account.Owner != "program" {
		t.Fatalf("unexpected accounts: %+v", accounts)
	}
}

func TestHTTPClient_GetLatestBlockhash(t *testing.T) {
	server := rpcServer(t, func(rpcRequest) (interface{}, map[string]interface{}) {
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 10},
			"value": map[string]interface{}{
				"blockhash":            "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N",
				"lastValidBlockHeight": 3090,
			},
		}, nil
	})

	bh, err := NewHTTPClient(server.URL).GetLatestBlockhash(context.Background())
	if err != nil {
		t.Fatalf("GetLatestBlockhash: %v", err)
	}
	if bh.Blockhash != "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N" || bh.LastValidBlockHeight != 3090 {
		t.Errorf("unexpected blockhash: %+v", bh)
	}
}

func TestHTTPClient_SendTransaction(t *testing.T) {
	raw := []byte{9, 8, 7}
	server := rpcServer(t, func(req rpcRequest) (interface{}, map[string]interface{}) {
		if req.Method != "sendTransaction" {
			t.Errorf("expected method sendTransaction, got %s", req.Method)
		}
		if req.Params[0] != base64.StdEncoding.EncodeToString(raw) {
			t.Errorf("unexpected payload: %v", req.Params[0])
		}
		config := req.Params[1].(map[string]interface{})
		if config["encoding"] != "base64" || config["skipPreflight"] != true {
			t.Errorf("unexpected config: %v", config)
		}
		return "5sig", nil
	})

	sig, err := NewHTTPClient(server.URL).SendTransaction(context.Background(), raw, &SendOpts{SkipPreflight: true})
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}
	if sig != "5sig" {
		t.Errorf("unexpected signature: %s", sig)
	}
}

func TestHTTPClient_SendTransaction_PreflightFailure(t *testing.T) {
	server := rpcServer(t, func(rpcRequest) (interface{}, map[string]interface{}) {
		return nil, map[string]interface{}{
			"code":    ErrCodeSendTransactionPreflightFailure,
			"message": "Transaction simulation failed: Error processing Instruction 0: custom program error: 0x1777",
			"data": map[string]interface{}{
				"err":  map[string]interface{}{"InstructionError": []interface{}{0, map[string]interface{}{"Custom": 6007}}},
				"logs": []string{"Program log: AnchorError"},
			},
		}
	})

	_, err := NewHTTPClient(server.URL).SendTransaction(context.Background(), []byte{1}, nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *RPCError, got %v", err)
	}
	idx, code, ok := InstructionErrorCode(rpcErr.TransactionErr())
	if !ok || idx != 0 || code != 6007 {
		t.Errorf("expected custom error 6007 at 0, got %d/%d/%v", idx, code, ok)
	}
}

func TestHTTPClient_GetSignatureStatuses(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) (interface{}, map[string]interface{}) {
		sigs := req.Params[0].([]interface{})
		if len(sigs) != 2 {
			t.Fatalf("expected 2 signatures, got %d", len(sigs))
		}
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 82},
			"value": []interface{}{
				map[string]interface{}{"slot": 72, "confirmations": 10, "err": nil, "confirmationStatus": "confirmed"},
				nil,
			},
		}, nil
	})

	statuses, err := NewHTTPClient(server.URL).GetSignatureStatuses(context.Background(), "a", "b")
	if err != nil {
		t.Fatalf("GetSignatureStatuses: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[0] == nil || statuses[0].Slot != 72 || !statuses[0].Reached(CommitmentConfirmed) {
		t.Errorf("unexpected first status: %+v", statuses[0])
	}
	if statuses[0].Reached(CommitmentFinalized) {
		t.Error("confirmed status must not satisfy finalized")
	}
	if statuses[1] != nil {
		t.Errorf("expected nil for unknown signature, got %+v", statuses[1])
	}
}

func TestInstructionErrorCode(t *testing.T) {
	var txErr interface{}
	if err := json.Unmarshal([]byte(`{"InstructionError":[1,{"Custom":6003}]}`), &txErr); err != nil {
		t.Fatal(err)
	}
	idx, code, ok := InstructionErrorCode(txErr)
	if !ok || idx != 1 || code != 6003 {
		t.Errorf("got %d/%d/%v", idx, code, ok)
	}

	for _, raw := range []string{`"AccountInUse"`, `{"InstructionError":[0,"InvalidArgument"]}`, `null`} {
		var v interface{}
		json.Unmarshal([]byte(raw), &v)
		if _, _, ok := InstructionErrorCode(v); ok {
			t.Errorf("%s: expected no custom code", raw)
		}
	}
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.GetSlot(ctx); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "secret-key", 0, nil)
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
	return payload
}

func TestClientRegisterUser(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/register" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("X-API-Key"); got != "secret-key" {
			t.Fatalf("expected api key header, got %q", got)
		}
		payload := decodeBody(t, r)
		if payload["phone_number"] != "+1555" {
			t.Fatalf("unexpected payload %v", payload)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true, "workflow_id": "reg-1", "message": "code sent",
		})
	})

	res, err := client.RegisterUser(context.Background(), "+1555")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if !res.Success || res.WorkflowID != "reg-1" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestClientVerifyCode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/workflow/verify-code" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		payload := decodeBody(t, r)
		if payload["workflow_id"] != "reg-1" || payload["code"] != "123456" {
			t.Fatalf("unexpected payload %v", payload)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "message": "verified"})
	})

	res, err := client.VerifyCode(context.Background(), "+1555", "reg-1", "123456")
	if err != nil {
		t.Fatalf("VerifyCode: %v", err)
	}
	if !res.Success {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestClientSendMoney(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/payment/send" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		payload := decodeBody(t, r)
		if payload["amount"].(float64) != 12.5 || payload["recipient"] != "bob" {
			t.Fatalf("unexpected payload %v", payload)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "workflow_id": "pay-9"})
	})

	res, err := client.SendMoney(context.Background(), "+1555", 12.5, "bob")
	if err != nil {
		t.Fatalf("SendMoney: %v", err)
	}
	if res.WorkflowID != "pay-9" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestClientCheckBalance(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("expected GET, got %s", r.Method)
		}
		if r.URL.Path != "/api/balance/+1555" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "balance": 42.5})
	})

	res, err := client.CheckBalance(context.Background(), "+1555")
	if err != nil {
		t.Fatalf("CheckBalance: %v", err)
	}
	if res.Balance != 42.5 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestClientTransactionHistoryLimit(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "5" {
			t.Fatalf("expected limit=5, got %q", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"transactions": []map[string]any{
				{"id": 1, "type": "send", "amount": 3, "status": "confirmed"},
			},
			"count": 1,
		})
	})

	res, err := client.GetTransactionHistory(context.Background(), "+1555", 5)
	if err != nil {
		t.Fatalf("GetTransactionHistory: %v", err)
	}
	if len(res.Transactions) != 1 || res.Transactions[0].Type != "send" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestClientConfirmAndCancelPaths(t *testing.T) {
	var paths []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	if _, err := client.ConfirmAction(context.Background(), "+1555", "pay-1"); err != nil {
		t.Fatalf("ConfirmAction: %v", err)
	}
	if _, err := client.CancelAction(context.Background(), "+1555", "pay-1"); err != nil {
		t.Fatalf("CancelAction: %v", err)
	}
	if paths[0] != "/api/workflow/confirm" || paths[1] != "/api/workflow/cancel" {
		t.Fatalf("unexpected paths %v", paths)
	}
}

func TestClientNon2xxIsError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	if _, err := client.CheckBalance(context.Background(), "+1555"); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestClientSendMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/send-message" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		payload := decodeBody(t, r)
		if payload["to"] != "+1555" || payload["message"] != "hello" {
			t.Fatalf("unexpected payload %v", payload)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	if err := client.SendMessage(context.Background(), "+1555", "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
}

func TestClientSendMessageFailureFlag(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "unreachable"})
	})

	if err := client.SendMessage(context.Background(), "+1555", "hello"); err == nil {
		t.Fatal("expected error when delivery reports failure")
	}
}

func TestClientHealthy(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "timestamp": "2026-01-01T00:00:00Z"})
	})

	if err := client.Healthy(context.Background()); err != nil {
		t.Fatalf("Healthy: %v", err)
	}
}

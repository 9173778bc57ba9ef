// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package rpc

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPHandler_ServesJSONRPC(t *testing.T) {
	server := httptest.NewServer(NewHTTPHandler(newTestDispatcher(t, newTestNode(t)), nil))
	defer server.Close()

	res, err := http.Post(server.URL, "application/json", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"eth_chainId"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"jsonrpc":"2.0","id":1,"result":"0x7a69"}`; string(body) != want {
		t.Errorf("unexpected response %s", body)
	}
	if got := res.Header.Get("Content-Type"); got != contentType {
		t.Errorf("unexpected content type %s", got)
	}
}

func TestHTTPHandler_RejectsOtherMethods(t *testing.T) {
	handler := NewHTTPHandler(newTestDispatcher(t, newTestNode(t)), nil)
	tests := map[string]struct {
		method string
		body   string
		status int
	}{
		"health check": {http.MethodGet, "", http.StatusOK},
		"put":          {http.MethodPut, "{}", http.StatusMethodNotAllowed},
		"delete":       {http.MethodDelete, "", http.StatusMethodNotAllowed},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, httptest.NewRequest(test.method, "/", strings.NewReader(test.body)))
			if recorder.Code != test.status {
				t.Errorf("unexpected status, wanted %d, got %d", test.status, recorder.Code)
			}
		})
	}
}

func TestHTTPHandler_RejectsOversizedRequests(t *testing.T) {
	handler := NewHTTPHandler(newTestDispatcher(t, newTestNode(t)), nil)
	body := `{"jsonrpc":"2.0","id":1,"method":"web3_sha3","params":["0x` + strings.Repeat("00", maxRequestContentLength) + `"]}`
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	if recorder.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("unexpected status %d", recorder.Code)
	}
}

func TestHTTPHandler_AllowsConfiguredOrigins(t *testing.T) {
	handler := NewHTTPHandler(newTestDispatcher(t, newTestNode(t)), []string{"http://example.com"})
	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Errorf("unexpected allowed origin %q", got)
	}
}

func TestServe_StopsWhenContextIsCanceled(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	handler := NewHTTPHandler(newTestDispatcher(t, newTestNode(t)), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, listener, handler, nil)
	}()

	res, err := http.Post("http://"+listener.Addr().String(), "application/json", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"eth_blockNumber"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	res.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("server did not stop")
	}
}

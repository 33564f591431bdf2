package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/Klingon-tech/klingnet-redemption/internal/redemption"
	"github.com/Klingon-tech/klingnet-redemption/internal/rpc"
	"github.com/Klingon-tech/klingnet-redemption/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
)

func TestParseGlobals(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantURL  string
		wantNet  string
		wantRest []string
		wantErr  bool
	}{
		{
			name:     "defaults",
			args:     []string{"status", "x"},
			wantURL:  "http://127.0.0.1:9545",
			wantNet:  "mainnet",
			wantRest: []string{"status", "x"},
		},
		{
			name:     "testnet port",
			args:     []string{"--network", "testnet", "info"},
			wantURL:  "http://127.0.0.1:9645",
			wantNet:  "testnet",
			wantRest: []string{"info"},
		},
		{
			name:     "explicit rpc",
			args:     []string{"--rpc=http://node:1234", "--network=testnet", "tokens"},
			wantURL:  "http://node:1234",
			wantNet:  "testnet",
			wantRest: []string{"tokens"},
		},
		{
			name:     "flags after command are untouched",
			args:     []string{"burn", "--rpc", "x"},
			wantURL:  "http://127.0.0.1:9545",
			wantNet:  "mainnet",
			wantRest: []string{"burn", "--rpc", "x"},
		},
		{
			name:    "bad network",
			args:    []string{"--network", "devnet", "info"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, rest, err := parseGlobals(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if g.rpcURL != tt.wantURL {
				t.Errorf("rpcURL = %q, want %q", g.rpcURL, tt.wantURL)
			}
			if g.network != tt.wantNet {
				t.Errorf("network = %q, want %q", g.network, tt.wantNet)
			}
			if len(rest) != len(tt.wantRest) {
				t.Fatalf("rest = %v, want %v", rest, tt.wantRest)
			}
			for i := range rest {
				if rest[i] != tt.wantRest[i] {
					t.Errorf("rest[%d] = %q, want %q", i, rest[i], tt.wantRest[i])
				}
			}
		})
	}
}

func TestKeystoreDir(t *testing.T) {
	g := &globals{dataDir: "/data", network: "testnet"}
	if got, want := g.keystoreDir(), filepath.Join("/data", "testnet", "keystore"); got != want {
		t.Errorf("keystoreDir() = %q, want %q", got, want)
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		units uint64
		want  string
	}{
		{0, "0.000000000"},
		{1, "0.000000001"},
		{1_000_000_000, "1.000000000"},
		{2_500_000_000, "2.500000000"},
	}
	for _, tt := range tests {
		if got := formatAmount(tt.units); got != tt.want {
			t.Errorf("formatAmount(%d) = %q, want %q", tt.units, got, tt.want)
		}
	}
}

// recordServer answers redemption_getRecord with a record holding bta
// and bpa, and counts the calls it served.
func recordServer(t *testing.T, bta, bpa types.Address, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     string `json:"id"`
			Method string `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Method != "redemption_getRecord" {
			t.Errorf("method = %q, want redemption_getRecord", req.Method)
		}
		calls.Add(1)
		json.NewEncoder(w).Encode(rpc.Response{
			JSONRPC: "2.0",
			Result: rpc.RecordResult{Data: &redemption.Record{
				BuyerTokenAccount:   bta,
				BuyerPaymentAccount: bpa,
			}},
			ID: req.ID,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRecordAccounts(t *testing.T) {
	storedBTA := types.Address{0x01}
	storedBPA := types.Address{0x02}
	flagBTA := types.Address{0x11}
	flagBPA := types.Address{0x12}

	tests := []struct {
		name      string
		bta, bpa  string
		wantBTA   types.Address
		wantBPA   types.Address
		wantCalls int32
	}{
		{"from record", "", "", storedBTA, storedBPA, 1},
		{"token account only", flagBTA.String(), "", flagBTA, storedBPA, 1},
		{"payer only", "", flagBPA.String(), storedBTA, flagBPA, 1},
		{"both flags", flagBTA.String(), flagBPA.String(), flagBTA, flagBPA, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := recordServer(t, storedBTA, storedBPA, &calls)
			client := rpcclient.New(srv.URL)

			bta, bpa := recordAccounts(context.Background(), client, types.Address{0xAA}, tt.bta, tt.bpa)
			if bta != tt.wantBTA {
				t.Errorf("token account = %s, want %s", bta, tt.wantBTA)
			}
			if bpa != tt.wantBPA {
				t.Errorf("payer = %s, want %s", bpa, tt.wantBPA)
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("record fetched %d times, want %d", got, tt.wantCalls)
			}
		})
	}
}

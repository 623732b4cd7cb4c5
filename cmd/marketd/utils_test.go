package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestHttpHelpers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/treasury":
			// nolint
			json.NewEncoder(w).Encode(feeInfo{FeeRateBps: 250, AccruedBalance: 25})
		case "/v1/treasury/withdraw":
			if r.Header.Get(callerHeader) != "0x0pera70r" {
				w.WriteHeader(http.StatusForbidden)
				fmt.Fprint(w, `{"name":"UNAUTHORIZED"}`)
				return
			}
			fmt.Fprint(w, `{"amount":25}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	info, err := get[feeInfo](server.URL+"/v1/treasury", "", "")
	require.NoError(t, err)
	require.Equal(t, uint32(250), info.FeeRateBps)
	require.Equal(t, uint64(25), info.AccruedBalance)

	amount, err := getUint64(
		post[any](server.URL+"/v1/treasury/withdraw", `{}`, "amount", "0x0pera70r"),
	)
	require.NoError(t, err)
	require.Equal(t, uint64(25), amount)

	_, err = post[any](server.URL+"/v1/treasury/withdraw", `{}`, "amount", "0xb0b")
	require.ErrorContains(t, err, "UNAUTHORIZED")

	_, err = get[any](server.URL+"/v1/unknown", "", "")
	require.Error(t, err)
}

func TestGetUint64(t *testing.T) {
	fixtures := []struct {
		name        string
		val         any
		expected    uint64
		expectedErr string
	}{
		{name: "number", val: float64(975), expected: 975},
		{name: "string", val: "975", expected: 975},
		{name: "negative", val: float64(-1), expectedErr: "invalid amount (must be >= 0)"},
		{name: "missing", val: nil, expectedErr: "missing amount in response"},
		{name: "bool", val: true, expectedErr: "invalid amount type bool"},
	}
	for _, f := range fixtures {
		t.Run(f.name, func(t *testing.T) {
			n, err := getUint64(f.val, nil)
			if f.expectedErr != "" {
				require.EqualError(t, err, f.expectedErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, f.expected, n)
		})
	}
}

func TestGetCaller(t *testing.T) {
	newContext := func(args ...string) *cli.Context {
		set := flag.NewFlagSet("test", flag.ContinueOnError)
		set.String(callerFlagName, "", "")
		require.NoError(t, set.Parse(args))
		return cli.NewContext(cli.NewApp(), set, nil)
	}

	caller, err := getCaller(newContext("--caller", "0xa11ce"))
	require.NoError(t, err)
	require.Equal(t, "0xa11ce", caller)

	t.Setenv("MARKETD_CALLER", "0xb0b")
	caller, err = getCaller(newContext())
	require.NoError(t, err)
	require.Equal(t, "0xb0b", caller)

	t.Setenv("MARKETD_CALLER", "")
	_, err = getCaller(newContext())
	require.EqualError(t, err, "missing caller, set --caller or MARKETD_CALLER")
}

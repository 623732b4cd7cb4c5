package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
)

const (
	timeout      = 15 * time.Second
	callerHeader = "X-Caller-Address"
)

type listing struct {
	AssetId uint64 `json:"assetId"`
	Seller  string `json:"seller"`
	Price   uint64 `json:"price"`
	Active  bool   `json:"active"`
}

func (l listing) String() string {
	if l.Seller == "" {
		return fmt.Sprintf("asset %d was never listed", l.AssetId)
	}
	return fmt.Sprintf(
		"asset: %d\nseller: %s\nprice: %d\nactive: %t", l.AssetId, l.Seller, l.Price, l.Active,
	)
}

type feeInfo struct {
	FeeRateBps     uint32 `json:"feeRateBps"`
	AccruedBalance uint64 `json:"accruedBalance"`
	TotalCollected uint64 `json:"totalCollected"`
	TotalWithdrawn uint64 `json:"totalWithdrawn"`
}

func (i feeInfo) String() string {
	return fmt.Sprintf(
		"fee rate: %d bps\naccrued: %d\ntotal collected: %d\ntotal withdrawn: %d",
		i.FeeRateBps, i.AccruedBalance, i.TotalCollected, i.TotalWithdrawn,
	)
}

// getCaller returns the --caller flag, falling back to the MARKETD_CALLER env var.
func getCaller(ctx *cli.Context) (string, error) {
	caller := ctx.String(callerFlagName)
	if caller == "" {
		caller = viper.GetString(callerViperEnvName)
	}
	if caller == "" {
		return "", fmt.Errorf("missing caller, set --%s or MARKETD_CALLER", callerFlagName)
	}
	return caller, nil
}

func post[T any](url, body, key, caller string) (result T, err error) {
	req, err := http.NewRequest("POST", url, strings.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Add("Content-Type", "application/json")
	if len(caller) > 0 {
		req.Header.Add(callerHeader, caller)
	}
	return do[T](req, key)
}

func get[T any](url, key, caller string) (result T, err error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return
	}
	req.Header.Add("Content-Type", "application/json")
	if len(caller) > 0 {
		req.Header.Add(callerHeader, caller)
	}
	return do[T](req, key)
}

// do sends the request and decodes the response body, or its key field if not empty.
func do[T any](req *http.Request, key string) (result T, err error) {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return
	}
	// nolint
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}
	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("failed to %s: %s", strings.ToLower(req.Method), string(buf))
		return
	}
	if key == "" {
		var res T
		if err = json.Unmarshal(buf, &res); err != nil {
			return
		}
		result = res
		return
	}

	res := make(map[string]T)
	if err = json.Unmarshal(buf, &res); err != nil {
		return
	}
	result = res[key]
	return
}

func getUint64(val any, err error) (uint64, error) {
	if err != nil {
		return 0, err
	}

	switch v := val.(type) {
	case float64:
		if v < 0 {
			return 0, fmt.Errorf("invalid amount (must be >= 0)")
		}
		return uint64(v), nil
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount: %w", err)
		}
		return n, nil
	case nil:
		return 0, fmt.Errorf("missing amount in response")
	default:
		return 0, fmt.Errorf("invalid amount type %T", val)
	}
}

package main

import (
	"fmt"

	"github.com/nftmarket/marketd/internal/config"
	"github.com/urfave/cli/v2"
)

const (
	urlFlagName        = "url"
	callerFlagName     = "caller"
	offsetFlagName     = "offset"
	limitFlagName      = "limit"
	afterFlagName      = "after"
	assetIdFlagName    = "id"
	feeRateFlagName    = "bps"
	recipientFlagName  = "recipient"
	defaultQueryLimit  = 20
	callerViperEnvName = "caller"
)

var (
	urlFlag = &cli.StringFlag{
		Name:  urlFlagName,
		Usage: "the url where to reach marketd",
		Value: fmt.Sprintf("http://127.0.0.1:%d", config.DefaultPort),
	}
	callerFlag = &cli.StringFlag{
		Name:  callerFlagName,
		Usage: "the address the request is made on behalf of, defaults to MARKETD_CALLER",
	}
	offsetFlag = &cli.Uint64Flag{
		Name:  offsetFlagName,
		Usage: "number of active listings to skip",
	}
	limitFlag = &cli.Uint64Flag{
		Name:  limitFlagName,
		Usage: "max number of items to return",
		Value: defaultQueryLimit,
	}
	afterFlag = &cli.Uint64Flag{
		Name:  afterFlagName,
		Usage: "return events with seq greater than this",
	}
	assetIdFlag = &cli.Uint64Flag{
		Name:     assetIdFlagName,
		Usage:    "id of the asset",
		Required: true,
	}
	feeRateFlag = &cli.UintFlag{
		Name:     feeRateFlagName,
		Usage:    "the new fee rate in basis points",
		Required: true,
	}
	recipientFlag = &cli.StringFlag{
		Name:     recipientFlagName,
		Usage:    "address receiving the accrued fees",
		Required: true,
	}
)

package main

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"
)

var (
	listingsCmd = &cli.Command{
		Name:   "listings",
		Usage:  "Get a page of active listings",
		Action: listingsAction,
		Flags:  []cli.Flag{urlFlag, offsetFlag, limitFlag},
	}
	listingCmd = &cli.Command{
		Name:   "listing",
		Usage:  "Get the listing of an asset",
		Action: listingAction,
		Flags:  []cli.Flag{urlFlag, assetIdFlag},
	}
	feesCmd = &cli.Command{
		Name:   "fees",
		Usage:  "Get fee rate and treasury balances",
		Action: feesAction,
		Flags:  []cli.Flag{urlFlag},
	}
	statsCmd = &cli.Command{
		Name:   "stats",
		Usage:  "Get market stats",
		Action: statsAction,
		Flags:  []cli.Flag{urlFlag},
	}
	eventsCmd = &cli.Command{
		Name:   "events",
		Usage:  "Get market events from the event log",
		Action: eventsAction,
		Flags:  []cli.Flag{urlFlag, afterFlag, limitFlag},
	}
	setFeeRateCmd = &cli.Command{
		Name:   "set-fee-rate",
		Usage:  "Change the protocol fee rate (operator only)",
		Action: setFeeRateAction,
		Flags:  []cli.Flag{urlFlag, callerFlag, feeRateFlag},
	}
	withdrawCmd = &cli.Command{
		Name:   "withdraw-fees",
		Usage:  "Withdraw accrued fees (operator only)",
		Action: withdrawAction,
		Flags:  []cli.Flag{urlFlag, callerFlag, recipientFlag},
	}
)

func listingsAction(ctx *cli.Context) error {
	url := fmt.Sprintf(
		"%s/v1/listings?offset=%d&limit=%d",
		ctx.String(urlFlagName), ctx.Uint64(offsetFlagName), ctx.Uint64(limitFlagName),
	)
	listings, err := get[[]listing](url, "listings", "")
	if err != nil {
		return err
	}
	return printJSON(listings)
}

func listingAction(ctx *cli.Context) error {
	url := fmt.Sprintf("%s/v1/listings/%d", ctx.String(urlFlagName), ctx.Uint64(assetIdFlagName))
	info, err := get[listing](url, "", "")
	if err != nil {
		return err
	}
	fmt.Println(info)
	return nil
}

func feesAction(ctx *cli.Context) error {
	url := fmt.Sprintf("%s/v1/treasury", ctx.String(urlFlagName))
	info, err := get[feeInfo](url, "", "")
	if err != nil {
		return err
	}
	fmt.Println(info)
	return nil
}

func statsAction(ctx *cli.Context) error {
	url := fmt.Sprintf("%s/v1/stats", ctx.String(urlFlagName))
	stats, err := get[map[string]any](url, "", "")
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func eventsAction(ctx *cli.Context) error {
	url := fmt.Sprintf(
		"%s/v1/events?after=%d&limit=%d",
		ctx.String(urlFlagName), ctx.Uint64(afterFlagName), ctx.Uint64(limitFlagName),
	)
	events, err := get[[]json.RawMessage](url, "events", "")
	if err != nil {
		return err
	}
	return printJSON(events)
}

func setFeeRateAction(ctx *cli.Context) error {
	caller, err := getCaller(ctx)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/v1/treasury/fee-rate", ctx.String(urlFlagName))
	body := fmt.Sprintf(`{"feeRateBps": %d}`, ctx.Uint(feeRateFlagName))
	if _, err := post[map[string]any](url, body, "", caller); err != nil {
		return err
	}
	fmt.Printf("fee rate set to %d bps\n", ctx.Uint(feeRateFlagName))
	return nil
}

func withdrawAction(ctx *cli.Context) error {
	caller, err := getCaller(ctx)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/v1/treasury/withdraw", ctx.String(urlFlagName))
	buf, err := json.Marshal(map[string]string{"recipient": ctx.String(recipientFlagName)})
	if err != nil {
		return err
	}
	amount, err := getUint64(post[any](url, string(buf), "amount", caller))
	if err != nil {
		return err
	}
	fmt.Printf("withdrawn %d to %s\n", amount, ctx.String(recipientFlagName))
	return nil
}

func printJSON(v any) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(buf))
	return nil
}

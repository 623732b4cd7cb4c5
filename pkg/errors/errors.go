package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	grpccodes "google.golang.org/grpc/codes"
)

// Code is the type representing a namespace error code.
type Code[MT any] struct {
	Code     uint16
	Name     string
	GrpcCode grpccodes.Code
}

// New creates a new error with the given code and the message
func (c Code[MT]) New(msg string, args ...any) TypedError[MT] {
	return &ErrorImpl[MT]{
		code:  c,
		cause: fmt.Errorf(msg, args...),
	}
}

// Wrap creates a new Error with the given code and the cause error
func (c Code[MT]) Wrap(cause error) TypedError[MT] {
	return &ErrorImpl[MT]{
		code:  c,
		cause: cause,
	}
}

// Is reports whether any error in err's chain carries this code.
func (c Code[MT]) Is(err error) bool {
	var structuredErr Error
	if !stderrors.As(err, &structuredErr) {
		return false
	}
	return structuredErr.Code() == c.Code
}

func (c Code[MT]) String() string {
	return fmt.Sprintf("%s (%d)", c.Name, c.Code)
}

type Error interface {
	error
	Log() *log.Entry
	Code() uint16
	CodeName() string
	GrpcCode() grpccodes.Code
	Metadata() map[string]string
}

type TypedError[MT any] interface {
	Error
	WithMetadata(MT) TypedError[MT]
}

// ErrorImpl is the default concrete implementation of TypedError.
type ErrorImpl[MT any] struct {
	code     Code[MT]
	cause    error
	metadata MT
}

func (e *ErrorImpl[MT]) Log() *log.Entry {
	return log.WithField("name", e.code.Name).
		WithField("code", e.code.Code).
		WithField("metadata", e.metadata)
}

func (e *ErrorImpl[MT]) Metadata() map[string]string {
	// convert any metadata to map[string]string
	metadata := make(map[string]string)
	buf, err := json.Marshal(e.metadata)
	if err == nil {
		var genericMap map[string]any
		if err := json.Unmarshal(buf, &genericMap); err == nil {
			for k, v := range genericMap {
				vStr := ""
				if v != nil {
					vStr = fmt.Sprintf("%v", v)
				}
				metadata[k] = vStr
			}
		}
	}
	return metadata
}

func (e *ErrorImpl[MT]) GrpcCode() grpccodes.Code {
	return e.code.GrpcCode
}

func (e *ErrorImpl[MT]) Code() uint16 {
	return e.code.Code
}

func (e *ErrorImpl[MT]) CodeName() string {
	return e.code.Name
}

// Error() implements the error interface.
func (e *ErrorImpl[MT]) Error() string {
	return fmt.Sprintf("%s: %s", e.code.String(), e.cause.Error())
}

func (e *ErrorImpl[MT]) Unwrap() error {
	return e.cause
}

func (e *ErrorImpl[MT]) WithMetadata(metadata MT) TypedError[MT] {
	e.metadata = metadata
	return e
}

type CallerMetadata struct {
	Caller string `json:"caller"`
}

type AssetMetadata struct {
	AssetId uint64 `json:"asset_id"`
}

type OwnershipMetadata struct {
	AssetId uint64 `json:"asset_id"`
	Owner   string `json:"owner"`
	Caller  string `json:"caller"`
}

type TransferMetadata struct {
	AssetId uint64 `json:"asset_id"`
	From    string `json:"from"`
	Caller  string `json:"caller"`
}

type ListingMetadata struct {
	AssetId uint64 `json:"asset_id"`
	Seller  string `json:"seller"`
}

type PriceMetadata struct {
	AssetId uint64 `json:"asset_id"`
	Price   uint64 `json:"price"`
}

type PaymentMetadata struct {
	AssetId  uint64 `json:"asset_id"`
	Price    uint64 `json:"price"`
	Received uint64 `json:"received"`
}

type FeeRateMetadata struct {
	FeeRateBps uint32 `json:"fee_rate_bps"`
	MaxRateBps uint32 `json:"max_rate_bps"`
}

type PayoutMetadata struct {
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
}

type AddressMetadata struct {
	Address string `json:"address"`
}

type RequestMetadata struct {
	Field string `json:"field"`
}

type PageMetadata struct {
	Limit       uint64 `json:"limit"`
	MaxPageSize uint64 `json:"max_page_size"`
}

var INTERNAL_ERROR = Code[map[string]any]{0, "INTERNAL_ERROR", grpccodes.Internal}
var UNAUTHORIZED = Code[CallerMetadata]{1, "UNAUTHORIZED", grpccodes.PermissionDenied}
var NOT_OWNER = Code[OwnershipMetadata]{2, "NOT_OWNER", grpccodes.PermissionDenied}
var NOT_AUTHORIZED = Code[TransferMetadata]{3, "NOT_AUTHORIZED", grpccodes.PermissionDenied}
var NOT_APPROVED = Code[AssetMetadata]{4, "NOT_APPROVED", grpccodes.PermissionDenied}
var NOT_SELLER = Code[ListingMetadata]{5, "NOT_SELLER", grpccodes.PermissionDenied}
var ASSET_NOT_FOUND = Code[AssetMetadata]{6, "ASSET_NOT_FOUND", grpccodes.NotFound}
var INVALID_PRICE = Code[PriceMetadata]{7, "INVALID_PRICE", grpccodes.InvalidArgument}
var FEE_TOO_HIGH = Code[FeeRateMetadata]{8, "FEE_TOO_HIGH", grpccodes.InvalidArgument}
var INVALID_ADDRESS = Code[AddressMetadata]{9, "INVALID_ADDRESS", grpccodes.InvalidArgument}

var LISTING_NOT_ACTIVE = Code[AssetMetadata]{
	10,
	"LISTING_NOT_ACTIVE",
	grpccodes.FailedPrecondition,
}
var SELF_PURCHASE = Code[ListingMetadata]{11, "SELF_PURCHASE", grpccodes.FailedPrecondition}

var WRONG_PAYMENT_AMOUNT = Code[PaymentMetadata]{
	12,
	"WRONG_PAYMENT_AMOUNT",
	grpccodes.FailedPrecondition,
}

var NOTHING_TO_WITHDRAW = Code[any]{
	13,
	"NOTHING_TO_WITHDRAW",
	grpccodes.FailedPrecondition,
}
var PAYOUT_FAILED = Code[PayoutMetadata]{14, "PAYOUT_FAILED", grpccodes.Aborted}
var PAGE_TOO_LARGE = Code[PageMetadata]{15, "PAGE_TOO_LARGE", grpccodes.ResourceExhausted}
var INVALID_REQUEST = Code[RequestMetadata]{16, "INVALID_REQUEST", grpccodes.InvalidArgument}

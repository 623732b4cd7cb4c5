package domain

import (
	"strings"
	"time"
)

// Asset is a single-owner, uniquely identified item tracked by the registry.
// MetadataURI is opaque and never interpreted.
type Asset struct {
	Id          uint64
	Owner       string
	MetadataURI string
	// Approved is the only identity, besides the owner and its operators, allowed to move the
	// asset. Empty when unset.
	Approved string
	MintedAt int64
}

func NewAsset(id uint64, owner, metadataURI string) Asset {
	return Asset{
		Id:          id,
		Owner:       owner,
		MetadataURI: metadataURI,
		MintedAt:    time.Now().Unix(),
	}
}

// TransferTo changes the owner and drops the per-asset approval.
func (a *Asset) TransferTo(owner string) {
	a.Owner = owner
	a.Approved = ""
}

func (a Asset) IsOwner(addr string) bool {
	return a.Owner == addr
}

// OperatorApproval is a blanket grant from an owner to an operator over all of its assets.
type OperatorApproval struct {
	Owner    string
	Operator string
}

// IsZeroAddress returns whether addr is empty or made of zeroes only (ie. 0x000...0).
func IsZeroAddress(addr string) bool {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return true
	}
	trimmed = strings.TrimPrefix(strings.ToLower(trimmed), "0x")
	return strings.Trim(trimmed, "0") == ""
}

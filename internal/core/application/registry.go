package application

import (
	"context"
	"fmt"

	"github.com/nftmarket/marketd/internal/core/domain"
	"github.com/nftmarket/marketd/internal/core/ports"
	"github.com/nftmarket/marketd/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// assetRegistry owns asset identities, ownership and transfer approvals.
type assetRegistry struct {
	repoManager   ports.RepoManager
	marketAddress string
	ownerAddress  string
}

func (r *assetRegistry) isMintingAuthority(caller string) bool {
	if caller == r.marketAddress {
		return true
	}
	return len(r.ownerAddress) > 0 && caller == r.ownerAddress
}

func (r *assetRegistry) mint(
	ctx context.Context, caller, recipient, metadataURI string,
) (uint64, errors.Error) {
	if !r.isMintingAuthority(caller) {
		return 0, errors.UNAUTHORIZED.New("%s is not allowed to mint", caller).
			WithMetadata(errors.CallerMetadata{Caller: caller})
	}
	if domain.IsZeroAddress(recipient) {
		return 0, errors.INVALID_ADDRESS.New("cannot mint to the zero address").
			WithMetadata(errors.AddressMetadata{Address: recipient})
	}

	lastId, err := r.repoManager.Assets().LastAssetId(ctx)
	if err != nil {
		return 0, errors.INTERNAL_ERROR.Wrap(fmt.Errorf("failed to get last asset id: %w", err))
	}

	asset := domain.NewAsset(lastId+1, recipient, metadataURI)
	touch(ctx)
	if err := r.repoManager.Assets().AddAsset(ctx, asset); err != nil {
		return 0, errors.INTERNAL_ERROR.Wrap(fmt.Errorf("failed to add asset: %w", err))
	}

	emit(ctx, domain.Minted{AssetId: asset.Id, Owner: recipient, MetadataURI: metadataURI})
	log.WithField("asset_id", asset.Id).Debugf("minted asset to %s", recipient)
	return asset.Id, nil
}

func (r *assetRegistry) getAsset(ctx context.Context, assetId uint64) (*domain.Asset, errors.Error) {
	asset, err := r.repoManager.Assets().GetAsset(ctx, assetId)
	if err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(fmt.Errorf("failed to get asset: %w", err))
	}
	if asset == nil {
		return nil, errors.ASSET_NOT_FOUND.New("asset %d not found", assetId).
			WithMetadata(errors.AssetMetadata{AssetId: assetId})
	}
	return asset, nil
}

func (r *assetRegistry) isOperator(ctx context.Context, owner, operator string) (bool, errors.Error) {
	if len(operator) <= 0 {
		return false, nil
	}
	approved, err := r.repoManager.Assets().IsOperatorApproved(ctx, owner, operator)
	if err != nil {
		return false, errors.INTERNAL_ERROR.Wrap(
			fmt.Errorf("failed to get operator approval: %w", err),
		)
	}
	return approved, nil
}

// transfer is the only path through which ownership changes.
func (r *assetRegistry) transfer(
	ctx context.Context, caller, from, to string, assetId uint64,
) errors.Error {
	asset, err := r.getAsset(ctx, assetId)
	if err != nil {
		return err
	}
	if !asset.IsOwner(from) {
		return errors.NOT_OWNER.New("%s does not own asset %d", from, assetId).
			WithMetadata(errors.OwnershipMetadata{
				AssetId: assetId, Owner: asset.Owner, Caller: caller,
			})
	}

	authorized := caller == from || (len(asset.Approved) > 0 && caller == asset.Approved)
	if !authorized {
		if authorized, err = r.isOperator(ctx, from, caller); err != nil {
			return err
		}
	}
	if !authorized {
		return errors.NOT_AUTHORIZED.New("%s cannot move asset %d", caller, assetId).
			WithMetadata(errors.TransferMetadata{AssetId: assetId, From: from, Caller: caller})
	}
	if domain.IsZeroAddress(to) {
		return errors.INVALID_ADDRESS.New("cannot transfer to the zero address").
			WithMetadata(errors.AddressMetadata{Address: to})
	}

	asset.TransferTo(to)
	touch(ctx)
	if err := r.repoManager.Assets().UpdateAsset(ctx, *asset); err != nil {
		return errors.INTERNAL_ERROR.Wrap(fmt.Errorf("failed to update asset: %w", err))
	}

	emit(ctx, domain.Transferred{AssetId: assetId, From: from, To: to})
	return nil
}

// approve overwrites the per-asset approval, an empty spender clears it.
func (r *assetRegistry) approve(
	ctx context.Context, caller string, assetId uint64, spender string,
) errors.Error {
	asset, err := r.getAsset(ctx, assetId)
	if err != nil {
		return err
	}
	if !asset.IsOwner(caller) {
		return errors.NOT_OWNER.New("%s does not own asset %d", caller, assetId).
			WithMetadata(errors.OwnershipMetadata{
				AssetId: assetId, Owner: asset.Owner, Caller: caller,
			})
	}
	if domain.IsZeroAddress(spender) {
		spender = ""
	}

	asset.Approved = spender
	touch(ctx)
	if err := r.repoManager.Assets().UpdateAsset(ctx, *asset); err != nil {
		return errors.INTERNAL_ERROR.Wrap(fmt.Errorf("failed to update asset: %w", err))
	}

	emit(ctx, domain.Approval{AssetId: assetId, Owner: caller, Approved: spender})
	return nil
}

func (r *assetRegistry) setApprovalForAll(
	ctx context.Context, caller, operator string, approved bool,
) errors.Error {
	if domain.IsZeroAddress(operator) || operator == caller {
		return errors.INVALID_ADDRESS.New("invalid operator %q", operator).
			WithMetadata(errors.AddressMetadata{Address: operator})
	}

	touch(ctx)
	if err := r.repoManager.Assets().SetOperatorApproval(
		ctx, caller, operator, approved,
	); err != nil {
		return errors.INTERNAL_ERROR.Wrap(fmt.Errorf("failed to set operator approval: %w", err))
	}

	emit(ctx, domain.ApprovalForAll{Owner: caller, Operator: operator, Approved: approved})
	return nil
}

// isApprovedForTransfer doesn't check that owner actually owns the asset.
func (r *assetRegistry) isApprovedForTransfer(
	ctx context.Context, assetId uint64, owner, spender string,
) (bool, errors.Error) {
	asset, err := r.getAsset(ctx, assetId)
	if err != nil {
		return false, err
	}
	if len(spender) > 0 && asset.Approved == spender {
		return true, nil
	}
	return r.isOperator(ctx, owner, spender)
}

func (s *service) Mint(ctx context.Context, caller, metadataURI string) (uint64, errors.Error) {
	var assetId uint64
	if err := s.write(ctx, "registry.Mint", func(ctx context.Context) errors.Error {
		var err errors.Error
		assetId, err = s.registry.mint(ctx, s.cfg.MarketAddress, caller, metadataURI)
		return err
	}); err != nil {
		return 0, err
	}
	return assetId, nil
}

func (s *service) MintTo(
	ctx context.Context, caller, recipient, metadataURI string,
) (uint64, errors.Error) {
	var assetId uint64
	if err := s.write(ctx, "registry.MintTo", func(ctx context.Context) errors.Error {
		var err errors.Error
		assetId, err = s.registry.mint(ctx, caller, recipient, metadataURI)
		return err
	}); err != nil {
		return 0, err
	}
	return assetId, nil
}

func (s *service) Transfer(
	ctx context.Context, caller, from, to string, assetId uint64,
) errors.Error {
	return s.write(ctx, "registry.Transfer", func(ctx context.Context) errors.Error {
		return s.registry.transfer(ctx, caller, from, to, assetId)
	})
}

func (s *service) Approve(
	ctx context.Context, caller string, assetId uint64, spender string,
) errors.Error {
	return s.write(ctx, "registry.Approve", func(ctx context.Context) errors.Error {
		return s.registry.approve(ctx, caller, assetId, spender)
	})
}

func (s *service) SetApprovalForAll(
	ctx context.Context, caller, operator string, approved bool,
) errors.Error {
	return s.write(ctx, "registry.SetApprovalForAll", func(ctx context.Context) errors.Error {
		return s.registry.setApprovalForAll(ctx, caller, operator, approved)
	})
}

func (s *service) OwnerOf(ctx context.Context, assetId uint64) (string, errors.Error) {
	var owner string
	if err := s.read(ctx, func(ctx context.Context) errors.Error {
		asset, err := s.registry.getAsset(ctx, assetId)
		if err != nil {
			return err
		}
		owner = asset.Owner
		return nil
	}); err != nil {
		return "", err
	}
	return owner, nil
}

func (s *service) TokenURI(ctx context.Context, assetId uint64) (string, errors.Error) {
	var uri string
	if err := s.read(ctx, func(ctx context.Context) errors.Error {
		asset, err := s.registry.getAsset(ctx, assetId)
		if err != nil {
			return err
		}
		uri = asset.MetadataURI
		return nil
	}); err != nil {
		return "", err
	}
	return uri, nil
}

func (s *service) IsApprovedForTransfer(
	ctx context.Context, assetId uint64, owner, spender string,
) (bool, errors.Error) {
	var approved bool
	if err := s.read(ctx, func(ctx context.Context) errors.Error {
		var err errors.Error
		approved, err = s.registry.isApprovedForTransfer(ctx, assetId, owner, spender)
		return err
	}); err != nil {
		return false, err
	}
	return approved, nil
}

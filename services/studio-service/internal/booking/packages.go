package booking

import (
	"context"

	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/entitlements"
	"github.com/md-rashed-zaman/studiosched/services/studio-service/internal/model"
)

// ProviderEvent identifies the payment provider event that paid for a grant.
// A zero value means a manual grant.
type ProviderEvent struct {
	Provider string
	EventID  string
}

func (s *Service) ListPackages(ctx context.Context, caller Caller, clientID string) ([]model.Package, error) {
	const op = "booking.ListPackages"

	if caller.Role == model.RoleClient && caller.UserID != clientID {
		return nil, reject(op, KindForbidden, "cannot view another client's packages")
	}
	pkgs, err := s.store.ListPackages(ctx, clientID, "")
	if err != nil {
		return nil, persistence(op, err)
	}
	return pkgs, nil
}

// GrantPackage creates an active package for a client. When ev names a
// provider event that was already processed, nothing is created and the
// second return value is false.
func (s *Service) GrantPackage(ctx context.Context, caller Caller, g entitlements.Grant, ev ProviderEvent) (model.Package, bool, error) {
	const op = "booking.GrantPackage"

	if caller.Role != model.RoleAdmin {
		return model.Package{}, false, reject(op, KindForbidden, "only admins can grant packages")
	}
	if g.PurchaseDate.IsZero() {
		g.PurchaseDate = s.now()
	}
	pkg, err := entitlements.NewPackage(g)
	if err != nil {
		return model.Package{}, false, &Error{Kind: KindInvalidInput, Op: op, Msg: err.Error()}
	}

	created := false
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if ev.EventID != "" {
			first, err := tx.MarkProviderEvent(ctx, ev.Provider, ev.EventID)
			if err != nil {
				return persistence(op, err)
			}
			if !first {
				return nil
			}
		}
		if err := tx.CreatePackage(ctx, &pkg); err != nil {
			return persistence(op, err)
		}
		created = true
		return nil
	})
	if err != nil {
		return model.Package{}, false, err
	}
	if !created {
		s.log.InfoContext(ctx, "duplicate provider event ignored", "provider", ev.Provider, "event_id", ev.EventID)
		return model.Package{}, false, nil
	}
	s.log.InfoContext(ctx, "package granted",
		"package_id", pkg.ID,
		"client_id", pkg.ClientID,
		"type", pkg.PackageType,
		"sessions", pkg.SessionsIncluded,
	)
	return pkg, true, nil
}

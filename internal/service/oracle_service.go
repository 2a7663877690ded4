package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quorumlabs/settled/internal/domain"
	"github.com/quorumlabs/settled/internal/oracle"
)

// OracleService exposes the oracle registry over the API: listing registered
// references and settling manual oracles. Settlement is restricted to the
// adjudicator and the owner so market outcomes cannot be reported by
// arbitrary callers.
type OracleService struct {
	oracles     *oracle.Registry
	adjudicator common.Address
	owner       common.Address
	audit       domain.AuditStore
	logger      *slog.Logger
}

// NewOracleService creates an OracleService with the given registry and the
// identities allowed to settle.
func NewOracleService(
	oracles *oracle.Registry,
	adjudicator, owner common.Address,
	audit domain.AuditStore,
	logger *slog.Logger,
) *OracleService {
	return &OracleService{
		oracles:     oracles,
		adjudicator: adjudicator,
		owner:       owner,
		audit:       audit,
		logger:      logger.With(slog.String("component", "oracle_service")),
	}
}

// Refs returns every registered oracle reference.
func (s *OracleService) Refs() []common.Address {
	return s.oracles.List()
}

// Settle records the observed outcome on a manual oracle so markets bound to
// it become resolvable. Only the adjudicator or the owner may settle, and
// only operator-settled oracles accept an answer.
func (s *OracleService) Settle(ctx context.Context, caller, ref common.Address, answer int64, settledAt time.Time) error {
	if caller != s.adjudicator && caller != s.owner {
		return domain.ErrUnauthorized
	}

	o, err := s.oracles.Lookup(ref)
	if err != nil {
		return err
	}
	manual, ok := o.(*oracle.Manual)
	if !ok {
		return fmt.Errorf("oracle_service: %s is not operator-settled: %w", ref.Hex(), domain.ErrInvalidOracle)
	}
	manual.Set(answer, settledAt)

	detail := map[string]any{
		"oracle_ref": ref.Hex(),
		"answer":     answer,
		"settled_at": settledAt,
		"caller":     caller.Hex(),
	}
	if err := s.audit.Log(ctx, domain.EventOracleSettled, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", domain.EventOracleSettled),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "oracle settled",
		slog.String("oracle_ref", ref.Hex()),
		slog.Int64("answer", answer),
		slog.Time("settled_at", settledAt),
	)
	return nil
}

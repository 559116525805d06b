package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/congo-pay/wallet/internal/funding"
	"github.com/congo-pay/wallet/internal/ledger"
	"github.com/congo-pay/wallet/internal/logging"
	"github.com/congo-pay/wallet/internal/notification"
)

// reconciliationDestination receives charges that were taken but never credited.
const reconciliationDestination = "operations"

// Service owns wallet creation and the top-up protocol.
type Service struct {
	store    ledger.Store
	gateway  funding.Gateway
	notifier notification.Notifier
	logger   *slog.Logger
	metrics  *Metrics
}

// NewService builds a wallet service instance. notifier, logger and metrics may be nil.
func NewService(store ledger.Store, gateway funding.Gateway, notifier notification.Notifier, logger *slog.Logger, metrics *Metrics) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{store: store, gateway: gateway, notifier: notifier, logger: logger, metrics: metrics}
}

// Create provisions an empty wallet. A user owns at most one.
func (s *Service) Create(ctx context.Context, input CreateInput) (ledger.Wallet, error) {
	if err := validateInput(input); err != nil {
		return ledger.Wallet{}, err
	}
	w, err := s.store.CreateWallet(ctx, input.UserID)
	if err != nil {
		return ledger.Wallet{}, err
	}
	s.logger.InfoContext(ctx, "wallet created", "wallet_id", w.ID, "user_id", w.UserID)
	return w, nil
}

// Get retrieves a wallet and its balance.
func (s *Service) Get(ctx context.Context, id string) (ledger.Wallet, error) {
	return s.store.GetWallet(ctx, id)
}

// Transactions returns the wallet's top-up attempts, oldest first.
func (s *Service) Transactions(ctx context.Context, walletID string) ([]ledger.Transaction, error) {
	if _, err := s.store.GetWallet(ctx, walletID); err != nil {
		return nil, err
	}
	return s.store.ListTransactions(ctx, walletID)
}

// PendingReconciliation lists failed transactions that carry a payment reference:
// the card was charged but the wallet was never credited.
func (s *Service) PendingReconciliation(ctx context.Context) ([]ledger.Transaction, error) {
	failed, err := s.store.TransactionsByStatus(ctx, ledger.StatusFailed)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Transaction, 0, len(failed))
	for _, tx := range failed {
		if tx.PaymentReference != "" {
			out = append(out, tx)
		}
	}
	return out, nil
}

// TopUp charges the card and credits the wallet.
//
// A transaction row is stored before the gateway is called, and every failure after
// that point leaves the row FAILED before the error is returned. The balance is applied
// with a compare-and-swap commit retried up to MaxRetries times on version conflicts.
// Caller cancellation does not interrupt an attempt that has started.
func (s *Service) TopUp(ctx context.Context, input TopUpInput) (ledger.Wallet, error) {
	start := time.Now()
	w, err := s.topUp(ctx, input)
	s.metrics.observeTopUp(outcomeOf(err), time.Since(start))
	return w, err
}

func (s *Service) topUp(ctx context.Context, input TopUpInput) (ledger.Wallet, error) {
	if err := validateInput(input); err != nil {
		return ledger.Wallet{}, err
	}
	ctx = context.WithoutCancel(ctx)

	w, err := s.store.GetWallet(ctx, input.WalletID)
	if err != nil {
		return ledger.Wallet{}, err
	}

	tx, err := s.store.CreateTransaction(ctx, ledger.NewTransaction(w.ID, input.Amount))
	if err != nil {
		return ledger.Wallet{}, err
	}
	log := s.logger.With(
		"wallet_id", w.ID,
		"transaction_id", tx.ID,
		"amount", tx.Amount.String(),
		"card", funding.MaskCardNumber(input.CardNumber),
	)
	if id := logging.RequestID(ctx); id != "" {
		log = log.With("request_id", id)
	}

	payment, err := s.gateway.Charge(ctx, input.CardNumber, input.Amount)
	if err != nil {
		cause := fmt.Errorf("%w: %w", ErrChargeFailed, err)
		if errors.Is(err, funding.ErrAmountTooSmall) {
			cause = ErrAmountTooSmall
		}
		log.WarnContext(ctx, "charge rejected", "error", err)
		return ledger.Wallet{}, s.fail(ctx, log, tx, cause)
	}

	if err := tx.MarkProcessed(payment.Reference); err != nil {
		return ledger.Wallet{}, s.fail(ctx, log, tx, fmt.Errorf("%w: %w", ErrChargeFailed, err))
	}
	log = log.With("payment_reference", payment.Reference)
	processed, err := s.store.SaveTransaction(ctx, tx)
	if err != nil {
		// Money has moved; the FAILED row keeps the reference for reconciliation.
		cause := fmt.Errorf("%w: record charge: %w", ErrBalanceUpdateFailed, err)
		s.requestReconciliation(ctx, log, tx, w.UserID)
		return ledger.Wallet{}, s.fail(ctx, log, tx, cause)
	}

	credited, done, err := s.applyBalance(ctx, log, processed)
	if err != nil {
		cause := fmt.Errorf("%w: %w", ErrBalanceUpdateFailed, err)
		failErr := s.fail(ctx, log, processed, cause)
		if !errors.Is(failErr, ledger.ErrTransactionFinalized) {
			s.requestReconciliation(ctx, log, processed, w.UserID)
			return ledger.Wallet{}, failErr
		}
		// The row is already terminal, so the commit may have landed despite the error.
		credited, done, err = s.settled(ctx, processed)
		if err != nil {
			log.ErrorContext(ctx, "cannot resolve finalized transaction", "error", err)
			s.requestReconciliation(ctx, log, processed, w.UserID)
			return ledger.Wallet{}, errors.Join(failErr, err)
		}
		if done.Status != ledger.StatusSuccess {
			s.requestReconciliation(ctx, log, processed, w.UserID)
			return ledger.Wallet{}, failErr
		}
		log.WarnContext(ctx, "commit reported an error but was applied", "error", cause)
	}

	log.InfoContext(ctx, "wallet topped up", "balance", credited.Balance.String(), "version", credited.Version)
	s.notify(ctx, log, notification.Message{
		Kind:        notification.KindTopUpCompleted,
		Destination: credited.UserID,
		Body:        fmt.Sprintf("Your wallet was credited with %s", done.Amount.String()),
		Attributes: map[string]string{
			"wallet_id":      credited.ID,
			"transaction_id": done.ID,
			"balance":        credited.Balance.String(),
		},
	})
	return credited, nil
}

// applyBalance re-reads the wallet on every attempt and commits the credit together
// with the SUCCESS transition. Only version conflicts are retried.
func (s *Service) applyBalance(ctx context.Context, log *slog.Logger, tx ledger.Transaction) (ledger.Wallet, ledger.Transaction, error) {
	var lastErr error
	for attempt := 1; attempt <= MaxRetries; attempt++ {
		current, err := s.store.GetWallet(ctx, tx.WalletID)
		if err != nil {
			return ledger.Wallet{}, ledger.Transaction{}, err
		}
		current.Balance = current.Balance.Add(tx.Amount)

		succeeded := tx
		if err := succeeded.MarkSucceeded(); err != nil {
			return ledger.Wallet{}, ledger.Transaction{}, err
		}

		w, saved, err := s.store.Commit(ctx, current, succeeded)
		if err == nil {
			s.metrics.observeCommit(attempt)
			return w, saved, nil
		}
		if !errors.Is(err, ledger.ErrVersionConflict) {
			return ledger.Wallet{}, ledger.Transaction{}, err
		}
		s.metrics.conflict()
		log.DebugContext(ctx, "wallet version conflict", "attempt", attempt, "version", current.Version)
		lastErr = err
	}
	s.metrics.observeCommit(MaxRetries)
	return ledger.Wallet{}, ledger.Transaction{}, fmt.Errorf("gave up after %d attempts: %w", MaxRetries, lastErr)
}

// settled reads back a transaction another write has already finalized, along with
// its wallet.
func (s *Service) settled(ctx context.Context, tx ledger.Transaction) (ledger.Wallet, ledger.Transaction, error) {
	stored, err := s.store.GetTransaction(ctx, tx.ID)
	if err != nil {
		return ledger.Wallet{}, ledger.Transaction{}, err
	}
	w, err := s.store.GetWallet(ctx, stored.WalletID)
	if err != nil {
		return ledger.Wallet{}, ledger.Transaction{}, err
	}
	return w, stored, nil
}

// fail persists tx as FAILED and returns cause. If the row cannot be written the
// returned error carries both.
func (s *Service) fail(ctx context.Context, log *slog.Logger, tx ledger.Transaction, cause error) error {
	if err := tx.MarkFailed(); err != nil {
		log.ErrorContext(ctx, "cannot mark transaction failed", "error", err, "cause", cause)
		return errors.Join(cause, err)
	}
	if _, err := s.store.SaveTransaction(ctx, tx); err != nil {
		log.ErrorContext(ctx, "persist failed transaction", "error", err, "cause", cause)
		return errors.Join(cause, err)
	}
	log.WarnContext(ctx, "top-up failed", "error", cause)
	return cause
}

func (s *Service) requestReconciliation(ctx context.Context, log *slog.Logger, tx ledger.Transaction, userID string) {
	log.ErrorContext(ctx, "charge taken but wallet not credited")
	s.notify(ctx, log, notification.Message{
		Kind:        notification.KindReconciliationRequired,
		Destination: reconciliationDestination,
		Body:        fmt.Sprintf("Charge %s of %s was not credited", tx.PaymentReference, tx.Amount.String()),
		Attributes: map[string]string{
			"wallet_id":         tx.WalletID,
			"transaction_id":    tx.ID,
			"payment_reference": tx.PaymentReference,
			"user_id":           userID,
		},
	})
}

func (s *Service) notify(ctx context.Context, log *slog.Logger, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		log.WarnContext(ctx, "notification failed", "kind", msg.Kind, "error", err)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, ErrInvalidInput):
		return outcomeInvalid
	case errors.Is(err, ErrBalanceUpdateFailed):
		return outcomeBalanceUpdateFailed
	case errors.Is(err, ErrAmountTooSmall):
		return outcomeAmountTooSmall
	case errors.Is(err, ErrChargeFailed):
		return outcomeChargeFailed
	case errors.Is(err, ErrNotFound):
		return outcomeNotFound
	default:
		return outcomeError
	}
}

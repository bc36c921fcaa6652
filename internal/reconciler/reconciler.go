// Package reconciler converts signed survey-network postbacks into ledger
// entries, exactly once per external transaction.
package reconciler

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"

	"github.com/paylessai/payless-gateway/internal/ledger"
)

// Postback status codes as sent by the rewards network.
const (
	StatusCompleted = 1
	StatusReversed  = 2
)

var (
	// ErrMissingParams indicates a postback without all required fields.
	ErrMissingParams = errors.New("reconciler: missing required parameters")
	// ErrBadSignature indicates a postback whose hash does not verify.
	ErrBadSignature = errors.New("reconciler: invalid hash")
	// ErrUnknownStatus indicates a status code other than completed/reversed.
	ErrUnknownStatus = errors.New("reconciler: unknown status code")
)

// Postback carries the raw query parameters of one callback delivery.
type Postback struct {
	TransID   string
	UserID    string
	Status    string
	AmountUSD string
	OfferID   string
	Hash      string
}

// Outcome is the acknowledgement returned when a postback is accepted.
type Outcome struct {
	CreditsAwarded  float64
	CreditsReversed float64
	Duplicate       bool
}

// Reconciler verifies and applies postbacks against the ledger.
type Reconciler struct {
	entries          ledger.Store
	secret           string
	creditsPerDollar float64
	logger           *log.Logger
}

// New creates a Reconciler. The secret is the shared secure hash configured
// with the rewards network.
func New(entries ledger.Store, secret string, creditsPerDollar float64) *Reconciler {
	if creditsPerDollar <= 0 {
		creditsPerDollar = 100
	}
	return &Reconciler{entries: entries, secret: secret, creditsPerDollar: creditsPerDollar}
}

// SetLogger attaches a logger for postback diagnostics.
func (r *Reconciler) SetLogger(l *log.Logger) { r.logger = l }

// Handle validates the postback and posts the corresponding ledger entry.
// Redelivery of an already-applied transaction reports success without a
// second entry.
func (r *Reconciler) Handle(ctx context.Context, p Postback) (*Outcome, error) {
	if p.TransID == "" || p.UserID == "" || p.Status == "" || p.AmountUSD == "" || p.Hash == "" {
		return nil, ErrMissingParams
	}

	// The network signs trans_id with the shared secret: MD5(trans_id + "-" + secret).
	if !strings.EqualFold(p.Hash, SignTransaction(p.TransID, r.secret)) {
		r.logf("postback hash mismatch trans=%s user=%s", p.TransID, p.UserID)
		return nil, ErrBadSignature
	}

	status, err := strconv.Atoi(p.Status)
	if err != nil {
		return nil, ErrUnknownStatus
	}
	payoutUSD, err := strconv.ParseFloat(p.AmountUSD, 64)
	if err != nil || payoutUSD < 0 {
		return nil, ErrMissingParams
	}
	offerID := p.OfferID
	if offerID == "" {
		offerID = "unknown"
	}
	credits := math.Floor(payoutUSD * r.creditsPerDollar)

	switch status {
	case StatusCompleted:
		desc := fmt.Sprintf("Survey %s completed (trans: %s, $%v)", offerID, p.TransID, payoutUSD)
		_, err := r.entries.AppendWithRef(ctx, p.UserID, credits, ledger.ReasonSurveyComplete, desc, completionRef(p.TransID))
		if errors.Is(err, ledger.ErrDuplicateReference) {
			r.logf("postback duplicate trans=%s user=%s", p.TransID, p.UserID)
			return &Outcome{CreditsAwarded: credits, Duplicate: true}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reconciler: append completion: %w", err)
		}
		r.logf("postback completed trans=%s user=%s credits=%v", p.TransID, p.UserID, credits)
		return &Outcome{CreditsAwarded: credits}, nil

	case StatusReversed:
		desc := fmt.Sprintf("Survey reversed (trans: %s)", p.TransID)
		_, err := r.entries.AppendWithRef(ctx, p.UserID, -credits, ledger.ReasonAdjust, desc, reversalRef(p.TransID))
		if errors.Is(err, ledger.ErrDuplicateReference) {
			r.logf("postback duplicate reversal trans=%s user=%s", p.TransID, p.UserID)
			return &Outcome{CreditsReversed: credits, Duplicate: true}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reconciler: append reversal: %w", err)
		}
		r.logf("postback reversed trans=%s user=%s credits=%v", p.TransID, p.UserID, credits)
		return &Outcome{CreditsReversed: credits}, nil

	default:
		return nil, ErrUnknownStatus
	}
}

// SignTransaction computes the hex MD5 signature the network attaches to a
// transaction id.
func SignTransaction(transID, secret string) string {
	sum := md5.Sum([]byte(transID + "-" + secret))
	return hex.EncodeToString(sum[:])
}

// completionRef and reversalRef are distinct so a legitimate reversal is not
// blocked by the idempotency key of the original completion.
func completionRef(transID string) string { return "cpx:" + transID }
func reversalRef(transID string) string   { return "cpx:reversal:" + transID }

func (r *Reconciler) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}

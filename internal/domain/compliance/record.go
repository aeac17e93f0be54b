package compliance

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/giveflow/backend/internal/domain/shared"
)

// RecordKind distinguishes receipts from their corrections
type RecordKind string

const (
	// RecordReceipt acknowledges a settled donation
	RecordReceipt RecordKind = "RECEIPT"
	// RecordVoid cancels a previously issued receipt after a refund
	RecordVoid RecordKind = "VOID"
)

// IsValid returns true if the kind is known
func (k RecordKind) IsValid() bool {
	return k == RecordReceipt || k == RecordVoid
}

// Record is a write-once compliance document for a ledger movement. Records
// are never updated or deleted; a refund produces a voiding record that
// references the receipt it cancels.
type Record struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key"`
	Kind       RecordKind `gorm:"size:10;not null;index"`
	SerialNo   string     `gorm:"size:40;not null;uniqueIndex"`
	FiscalYear int        `gorm:"not null;index"`

	// LedgerEntryID ties the record to exactly one ledger entry
	LedgerEntryID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	// VoidsRecordID points a VOID record at the receipt it cancels
	VoidsRecordID *uuid.UUID `gorm:"type:uuid;index"`

	DonorID    uuid.UUID `gorm:"type:uuid;not null;index"`
	CampaignID uuid.UUID `gorm:"type:uuid;not null;index"`

	Amount   decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Currency string          `gorm:"size:3;not null"`

	IssuedAt  time.Time `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName returns the database table name
func (Record) TableName() string {
	return "compliance_records"
}

// FormatSerial builds the human-facing serial number for a record
func FormatSerial(kind RecordKind, fiscalYear int, sequence int64) string {
	prefix := "RCP"
	if kind == RecordVoid {
		prefix = "VOD"
	}
	return fmt.Sprintf("%s-%04d-%08d", prefix, fiscalYear, sequence)
}

// NewReceipt issues a receipt for a settled ledger entry
func NewReceipt(
	ledgerEntryID, donorID, campaignID uuid.UUID,
	amount decimal.Decimal,
	currency string,
	issuedAt time.Time,
	sequence int64,
) (*Record, error) {
	return newRecord(RecordReceipt, ledgerEntryID, donorID, campaignID, amount, currency, issuedAt, sequence, nil)
}

// NewVoid issues a voiding record for a refunded ledger entry, cancelling the
// given receipt
func NewVoid(
	ledgerEntryID, donorID, campaignID uuid.UUID,
	amount decimal.Decimal,
	currency string,
	issuedAt time.Time,
	sequence int64,
	voids uuid.UUID,
) (*Record, error) {
	if voids == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_VOID_TARGET", "A voiding record must reference the receipt it cancels")
	}
	return newRecord(RecordVoid, ledgerEntryID, donorID, campaignID, amount, currency, issuedAt, sequence, &voids)
}

func newRecord(
	kind RecordKind,
	ledgerEntryID, donorID, campaignID uuid.UUID,
	amount decimal.Decimal,
	currency string,
	issuedAt time.Time,
	sequence int64,
	voids *uuid.UUID,
) (*Record, error) {
	if ledgerEntryID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_LEDGER_ENTRY", "Ledger entry ID cannot be empty")
	}
	if donorID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_DONOR", "Donor ID cannot be empty")
	}
	if campaignID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CAMPAIGN", "Campaign ID cannot be empty")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Record amount must be positive")
	}
	if currency == "" {
		return nil, shared.NewDomainError("INVALID_CURRENCY", "Currency cannot be empty")
	}
	if sequence <= 0 {
		return nil, shared.NewDomainError("INVALID_SEQUENCE", "Serial sequence must be positive")
	}

	fiscalYear := issuedAt.UTC().Year()
	return &Record{
		ID:            uuid.New(),
		Kind:          kind,
		SerialNo:      FormatSerial(kind, fiscalYear, sequence),
		FiscalYear:    fiscalYear,
		LedgerEntryID: ledgerEntryID,
		VoidsRecordID: voids,
		DonorID:       donorID,
		CampaignID:    campaignID,
		Amount:        amount,
		Currency:      currency,
		IssuedAt:      issuedAt,
	}, nil
}

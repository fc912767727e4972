package sqlite

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/prepaid/account"
	"github.com/xraph/prepaid/catalog"
	"github.com/xraph/prepaid/id"
	"github.com/xraph/prepaid/job"
	"github.com/xraph/prepaid/txn"
	"github.com/xraph/prepaid/types"
)

// SQLite has no native JSON column type, so structured fields are stored
// as serialized TEXT and decoded on read.

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:prepaid_accounts"`

	UserID         string    `grove:"user_id,pk"`
	Currency       string    `grove:"currency"`
	BalanceCents   int64     `grove:"balance_cents"`
	ReservedCents  int64     `grove:"reserved_cents"`
	PurchasedCents int64     `grove:"total_purchased_cents"`
	UsedCents      int64     `grove:"total_used_cents"`
	CreatedAt      time.Time `grove:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"`
}

func fromAccountModel(m *accountModel) *account.Account {
	return &account.Account{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		UserID:         m.UserID,
		Currency:       m.Currency,
		Balance:        types.Money{Amount: m.BalanceCents, Currency: m.Currency},
		Reserved:       types.Money{Amount: m.ReservedCents, Currency: m.Currency},
		TotalPurchased: types.Money{Amount: m.PurchasedCents, Currency: m.Currency},
		TotalUsed:      types.Money{Amount: m.UsedCents, Currency: m.Currency},
	}
}

// ==================== Transaction models ====================

type transactionModel struct {
	grove.BaseModel `grove:"table:prepaid_transactions"`

	ID          string          `grove:"id,pk"`
	UserID      string          `grove:"user_id"`
	Kind        string          `grove:"kind"`
	AmountCents int64           `grove:"amount_cents"`
	Currency    string          `grove:"currency"`
	Status      string          `grove:"status"`
	Description string          `grove:"description"`
	ReferenceID string          `grove:"reference_id"`
	Metadata    json.RawMessage `grove:"metadata"`
	CreatedAt   time.Time       `grove:"created_at"`
	SettledAt   *time.Time      `grove:"settled_at"`
}

func toTransactionModel(t *txn.Transaction) *transactionModel {
	metadata, _ := json.Marshal(t.Metadata) //nolint:errcheck // best-effort

	return &transactionModel{
		ID:          t.ID.String(),
		UserID:      t.UserID,
		Kind:        string(t.Kind),
		AmountCents: t.Amount.Amount,
		Currency:    t.Amount.Currency,
		Status:      string(t.Status),
		Description: t.Description,
		ReferenceID: t.ReferenceID,
		Metadata:    metadata,
		CreatedAt:   t.CreatedAt,
		SettledAt:   t.SettledAt,
	}
}

func fromTransactionModel(m *transactionModel) (*txn.Transaction, error) {
	txnID, err := id.ParseTransactionID(m.ID)
	if err != nil {
		return nil, err
	}

	var metadata map[string]string
	if len(m.Metadata) > 0 && string(m.Metadata) != "null" {
		_ = json.Unmarshal(m.Metadata, &metadata) //nolint:errcheck // best-effort
	}

	return &txn.Transaction{
		ID:          txnID,
		UserID:      m.UserID,
		Kind:        txn.Kind(m.Kind),
		Amount:      types.Money{Amount: m.AmountCents, Currency: m.Currency},
		Status:      txn.Status(m.Status),
		Description: m.Description,
		ReferenceID: m.ReferenceID,
		Metadata:    metadata,
		CreatedAt:   m.CreatedAt,
		SettledAt:   m.SettledAt,
	}, nil
}

// ==================== Job models ====================

type jobModel struct {
	grove.BaseModel `grove:"table:prepaid_jobs"`

	ID                  string          `grove:"id,pk"`
	UserID              string          `grove:"user_id"`
	Type                string          `grove:"type"`
	Status              string          `grove:"status"`
	CreditTransactionID string          `grove:"credit_transaction_id"`
	Input               json.RawMessage `grove:"input"`
	Result              json.RawMessage `grove:"result"`
	FailedReason        string          `grove:"failed_reason"`
	RefundStatus        string          `grove:"refund_status"`
	ReconcileNeeded     bool            `grove:"reconcile_needed"`
	CreatedAt           time.Time       `grove:"created_at"`
	UpdatedAt           time.Time       `grove:"updated_at"`
}

func toJobModel(j *job.Job) *jobModel {
	m := &jobModel{
		ID:              j.ID.String(),
		UserID:          j.UserID,
		Type:            j.Type,
		Status:          string(j.Status),
		Input:           j.Input,
		Result:          j.Result,
		FailedReason:    j.FailedReason,
		RefundStatus:    string(j.RefundStatus),
		ReconcileNeeded: j.ReconcileNeeded,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}
	if !j.CreditTransactionID.IsNil() {
		m.CreditTransactionID = j.CreditTransactionID.String()
	}
	return m
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	jobID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, err
	}

	j := &job.Job{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:              jobID,
		UserID:          m.UserID,
		Type:            m.Type,
		Status:          job.Status(m.Status),
		Input:           m.Input,
		Result:          m.Result,
		FailedReason:    m.FailedReason,
		RefundStatus:    job.RefundStatus(m.RefundStatus),
		ReconcileNeeded: m.ReconcileNeeded,
	}
	if m.CreditTransactionID != "" {
		txnID, err := id.ParseTransactionID(m.CreditTransactionID)
		if err != nil {
			return nil, err
		}
		j.CreditTransactionID = txnID
	}
	return j, nil
}

// ==================== Job type models ====================

type jobTypeModel struct {
	grove.BaseModel `grove:"table:prepaid_job_types"`

	ID             string          `grove:"id,pk"`
	Key            string          `grove:"key"`
	Name           string          `grove:"name"`
	Description    string          `grove:"description"`
	PriceCents     int64           `grove:"price_cents"`
	Currency       string          `grove:"currency"`
	Status         string          `grove:"status"`
	RequiredFields json.RawMessage `grove:"required_fields"`
	Metadata       json.RawMessage `grove:"metadata"`
	CreatedAt      time.Time       `grove:"created_at"`
	UpdatedAt      time.Time       `grove:"updated_at"`
}

func toJobTypeModel(t *catalog.JobType) *jobTypeModel {
	fields, _ := json.Marshal(t.RequiredFields) //nolint:errcheck // best-effort
	metadata, _ := json.Marshal(t.Metadata)     //nolint:errcheck // best-effort

	return &jobTypeModel{
		ID:             t.ID.String(),
		Key:            t.Key,
		Name:           t.Name,
		Description:    t.Description,
		PriceCents:     t.Price.Amount,
		Currency:       t.Price.Currency,
		Status:         string(t.Status),
		RequiredFields: fields,
		Metadata:       metadata,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func fromJobTypeModel(m *jobTypeModel) (*catalog.JobType, error) {
	typeID, err := id.ParseJobTypeID(m.ID)
	if err != nil {
		return nil, err
	}

	var fields []string
	if len(m.RequiredFields) > 0 && string(m.RequiredFields) != "null" {
		_ = json.Unmarshal(m.RequiredFields, &fields) //nolint:errcheck // best-effort
	}
	var metadata map[string]string
	if len(m.Metadata) > 0 && string(m.Metadata) != "null" {
		_ = json.Unmarshal(m.Metadata, &metadata) //nolint:errcheck // best-effort
	}

	return &catalog.JobType{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             typeID,
		Key:            m.Key,
		Name:           m.Name,
		Description:    m.Description,
		Price:          types.Money{Amount: m.PriceCents, Currency: m.Currency},
		Status:         catalog.Status(m.Status),
		RequiredFields: fields,
		Metadata:       metadata,
	}, nil
}

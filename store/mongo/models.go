package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/prepaid/account"
	"github.com/xraph/prepaid/catalog"
	"github.com/xraph/prepaid/id"
	"github.com/xraph/prepaid/job"
	"github.com/xraph/prepaid/txn"
	"github.com/xraph/prepaid/types"
)

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:prepaid_accounts"`

	UserID         string    `grove:"user_id,pk"            bson:"_id"`
	Currency       string    `grove:"currency"              bson:"currency"`
	BalanceCents   int64     `grove:"balance_cents"         bson:"balance_cents"`
	ReservedCents  int64     `grove:"reserved_cents"        bson:"reserved_cents"`
	PurchasedCents int64     `grove:"total_purchased_cents" bson:"total_purchased_cents"`
	UsedCents      int64     `grove:"total_used_cents"      bson:"total_used_cents"`
	CreatedAt      time.Time `grove:"created_at"            bson:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"            bson:"updated_at"`
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

	ID          string            `grove:"id,pk"        bson:"_id"`
	UserID      string            `grove:"user_id"      bson:"user_id"`
	Kind        string            `grove:"kind"         bson:"kind"`
	AmountCents int64             `grove:"amount_cents" bson:"amount_cents"`
	Currency    string            `grove:"currency"     bson:"currency"`
	Status      string            `grove:"status"       bson:"status"`
	Description string            `grove:"description"  bson:"description"`
	ReferenceID string            `grove:"reference_id" bson:"reference_id"`
	Metadata    map[string]string `grove:"metadata"     bson:"metadata,omitempty"`
	CreatedAt   time.Time         `grove:"created_at"   bson:"created_at"`
	SettledAt   *time.Time        `grove:"settled_at"   bson:"settled_at,omitempty"`
}

func toTransactionModel(t *txn.Transaction) *transactionModel {
	return &transactionModel{
		ID:          t.ID.String(),
		UserID:      t.UserID,
		Kind:        string(t.Kind),
		AmountCents: t.Amount.Amount,
		Currency:    t.Amount.Currency,
		Status:      string(t.Status),
		Description: t.Description,
		ReferenceID: t.ReferenceID,
		Metadata:    t.Metadata,
		CreatedAt:   t.CreatedAt,
		SettledAt:   t.SettledAt,
	}
}

func fromTransactionModel(m *transactionModel) (*txn.Transaction, error) {
	txnID, err := id.ParseTransactionID(m.ID)
	if err != nil {
		return nil, err
	}

	return &txn.Transaction{
		ID:          txnID,
		UserID:      m.UserID,
		Kind:        txn.Kind(m.Kind),
		Amount:      types.Money{Amount: m.AmountCents, Currency: m.Currency},
		Status:      txn.Status(m.Status),
		Description: m.Description,
		ReferenceID: m.ReferenceID,
		Metadata:    m.Metadata,
		CreatedAt:   m.CreatedAt,
		SettledAt:   m.SettledAt,
	}, nil
}

// ==================== Job models ====================

type jobModel struct {
	grove.BaseModel `grove:"table:prepaid_jobs"`

	ID                  string    `grove:"id,pk"                 bson:"_id"`
	UserID              string    `grove:"user_id"               bson:"user_id"`
	Type                string    `grove:"type"                  bson:"type"`
	Status              string    `grove:"status"                bson:"status"`
	CreditTransactionID string    `grove:"credit_transaction_id" bson:"credit_transaction_id"`
	Input               []byte    `grove:"input"                 bson:"input,omitempty"`
	Result              []byte    `grove:"result"                bson:"result,omitempty"`
	FailedReason        string    `grove:"failed_reason"         bson:"failed_reason"`
	RefundStatus        string    `grove:"refund_status"         bson:"refund_status"`
	ReconcileNeeded     bool      `grove:"reconcile_needed"      bson:"reconcile_needed"`
	CreatedAt           time.Time `grove:"created_at"            bson:"created_at"`
	UpdatedAt           time.Time `grove:"updated_at"            bson:"updated_at"`
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

	ID             string            `grove:"id,pk"           bson:"_id"`
	Key            string            `grove:"key"             bson:"key"`
	Name           string            `grove:"name"            bson:"name"`
	Description    string            `grove:"description"     bson:"description"`
	PriceCents     int64             `grove:"price_cents"     bson:"price_cents"`
	Currency       string            `grove:"currency"        bson:"currency"`
	Status         string            `grove:"status"          bson:"status"`
	RequiredFields []string          `grove:"required_fields" bson:"required_fields,omitempty"`
	Metadata       map[string]string `grove:"metadata"        bson:"metadata,omitempty"`
	CreatedAt      time.Time         `grove:"created_at"      bson:"created_at"`
	UpdatedAt      time.Time         `grove:"updated_at"      bson:"updated_at"`
}

func toJobTypeModel(t *catalog.JobType) *jobTypeModel {
	return &jobTypeModel{
		ID:             t.ID.String(),
		Key:            t.Key,
		Name:           t.Name,
		Description:    t.Description,
		PriceCents:     t.Price.Amount,
		Currency:       t.Price.Currency,
		Status:         string(t.Status),
		RequiredFields: t.RequiredFields,
		Metadata:       t.Metadata,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func fromJobTypeModel(m *jobTypeModel) (*catalog.JobType, error) {
	typeID, err := id.ParseJobTypeID(m.ID)
	if err != nil {
		return nil, err
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
		RequiredFields: m.RequiredFields,
		Metadata:       m.Metadata,
	}, nil
}

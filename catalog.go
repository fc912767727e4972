package prepaid

import (
	"context"

	"github.com/xraph/prepaid/catalog"
	"github.com/xraph/prepaid/id"
	"github.com/xraph/prepaid/types"
)

// ──────────────────────────────────────────────────
// Job Type Catalog Management
// ──────────────────────────────────────────────────

// CreateJobType adds a purchasable analysis type to the catalog.
func (e *Engine) CreateJobType(ctx context.Context, t *catalog.JobType) error {
	if t.Key == "" {
		return ValidationError{Field: "key", Message: "key is required"}
	}
	if err := validateAmount(t.Price); err != nil {
		return err
	}
	if t.ID == (id.JobTypeID{}) {
		t.ID = id.NewJobTypeID()
	}
	if t.Status == "" {
		t.Status = catalog.StatusActive
	}
	t.Entity = types.NewEntity()

	if err := e.store.CreateJobType(ctx, t); err != nil {
		return err
	}

	e.logger.Info("job type created",
		"key", t.Key,
		"price", t.Price,
	)
	e.plugins.EmitJobTypeCreated(ctx, t)
	return nil
}

// GetJobType retrieves a job type by its catalog key.
func (e *Engine) GetJobType(ctx context.Context, key string) (*catalog.JobType, error) {
	return e.store.GetJobType(ctx, key)
}

// ListJobTypes lists catalog entries.
func (e *Engine) ListJobTypes(ctx context.Context, opts catalog.ListOpts) ([]*catalog.JobType, error) {
	return e.store.ListJobTypes(ctx, opts)
}

// UpdateJobType updates a catalog entry in place.
func (e *Engine) UpdateJobType(ctx context.Context, t *catalog.JobType) error {
	if err := validateAmount(t.Price); err != nil {
		return err
	}
	return e.store.UpdateJobType(ctx, t)
}

// ArchiveJobType retires a job type. Existing jobs are untouched; new
// submissions for the type are rejected.
func (e *Engine) ArchiveJobType(ctx context.Context, typeID id.JobTypeID) error {
	if err := e.store.ArchiveJobType(ctx, typeID); err != nil {
		return err
	}

	e.logger.Info("job type archived", "type_id", typeID)
	e.plugins.EmitJobTypeArchived(ctx, typeID.String())
	return nil
}

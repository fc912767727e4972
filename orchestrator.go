package prepaid

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xraph/prepaid/handler"
	"github.com/xraph/prepaid/id"
	"github.com/xraph/prepaid/job"
	"github.com/xraph/prepaid/types"
)

// ──────────────────────────────────────────────────
// Job orchestration
// ──────────────────────────────────────────────────

// JobRequest describes one analysis job to run.
type JobRequest struct {
	UserID   string            `json:"user_id"`
	Type     string            `json:"type"`
	Input    json.RawMessage   `json:"input,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// JobResult is what a caller gets back from SubmitJob. Declined
// reservations and handler failures come back as Success=false with a nil
// error: the caller is never left guessing whether money was held, so
// Refunded and RefundStatus always state what happened to the hold.
type JobResult struct {
	Success      bool             `json:"success"`
	JobID        id.JobID         `json:"job_id,omitempty"`
	Job          *job.Job         `json:"job,omitempty"`
	Message      string           `json:"message,omitempty"`
	Result       json.RawMessage  `json:"result,omitempty"`
	Refunded     bool             `json:"refunded,omitempty"`
	RefundStatus job.RefundStatus `json:"refund_status,omitempty"`
}

// SubmitJob drives one analysis job end-to-end: price lookup, job row,
// reservation, handler invocation, settlement. Configuration problems (an
// unknown or archived job type, a missing handler) fail fast with an error
// before any row or hold exists. Once a job's outcome is decided it is
// never flipped again, even when settlement fails afterwards.
func (e *Engine) SubmitJob(ctx context.Context, req JobRequest) (*JobResult, error) {
	if req.UserID == "" {
		return nil, ValidationError{Field: "user_id", Message: "user id is required"}
	}
	if req.Type == "" {
		return nil, ValidationError{Field: "type", Message: "job type is required"}
	}

	// Price lookup. Only an active catalog entry is purchasable.
	jt, err := e.store.GetJobType(ctx, req.Type)
	if err != nil {
		return nil, err
	}
	if !jt.Active() {
		return nil, fmt.Errorf("%w: %s", ErrJobTypeArchived, jt.Key)
	}

	// A type with no handler is a configuration error: fail before any
	// row or hold exists.
	h, ok := e.handlers.Get(jt.Key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotRegistered, jt.Key)
	}

	// Job row first, so the reservation can reference it.
	j := &job.Job{
		ID:           id.NewJobID(),
		UserID:       req.UserID,
		Type:         jt.Key,
		Status:       job.StatusPending,
		Input:        req.Input,
		RefundStatus: job.RefundNone,
	}
	j.Entity = types.NewEntity()

	if err := e.store.CreateJob(ctx, j); err != nil {
		return nil, err
	}

	res, err := e.Reserve(ctx, req.UserID, jt.Price, "analysis: "+jt.Key, j.ID.String(), req.Metadata)
	if err != nil {
		// Store unavailable mid-reserve: no hold exists, so drop the row
		// and propagate rather than leave a half-created job behind.
		if delErr := e.store.DeleteJob(ctx, j.ID); delErr != nil {
			e.logger.Error("failed to delete job after reservation error",
				"job_id", j.ID,
				"error", delErr,
			)
		}
		return nil, err
	}
	if !res.Accepted {
		// A declined reservation leaves no partial job behind.
		if delErr := e.store.DeleteJob(ctx, j.ID); delErr != nil {
			e.logger.Error("failed to delete job after declined reservation",
				"job_id", j.ID,
				"error", delErr,
			)
		}
		return &JobResult{
			Success: false,
			Message: "insufficient balance",
		}, nil
	}

	j.CreditTransactionID = res.TransactionID
	j.Status = job.StatusProcessing
	if err := e.store.UpdateJob(ctx, j); err != nil {
		return nil, err
	}

	e.logger.Info("job started",
		"job_id", j.ID,
		"user_id", j.UserID,
		"type", j.Type,
		"price", jt.Price,
		"transaction_id", res.TransactionID,
	)

	result, handleErr := e.invokeHandler(ctx, h, j)
	if handleErr == nil {
		handleErr = validateResult(result, jt.RequiredFields)
	}

	if handleErr != nil {
		return e.failJob(ctx, j, handleErr)
	}
	return e.completeJob(ctx, j, result)
}

// GetJob retrieves a job by ID.
func (e *Engine) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return e.store.GetJob(ctx, jobID)
}

// ListJobs lists a user's jobs, newest first.
func (e *Engine) ListJobs(ctx context.Context, userID string, opts job.ListOpts) ([]*job.Job, error) {
	return e.store.ListJobs(ctx, userID, opts)
}

// ListReconciliationJobs returns jobs whose outcome is final but whose
// reservation never settled, oldest first.
func (e *Engine) ListReconciliationJobs(ctx context.Context) ([]*job.Job, error) {
	return e.store.ListReconciliation(ctx)
}

// invokeHandler runs the analysis handler under the configured timeout.
// A handler panic is contained and reported as a failure: one bad analysis
// must not take the engine down.
func (e *Engine) invokeHandler(ctx context.Context, h handler.Handler, j *job.Job) (json.RawMessage, error) {
	hctx, cancel := context.WithTimeout(ctx, e.handlerTimeout)
	defer cancel()

	type outcome struct {
		result json.RawMessage
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: panic: %v", ErrHandlerFailure, r)}
			}
		}()
		result, err := h.Handle(hctx, handler.Input{
			JobID:   j.ID.String(),
			UserID:  j.UserID,
			Type:    j.Type,
			Payload: j.Input,
		})
		if err != nil {
			done <- outcome{err: fmt.Errorf("%w: %v", ErrHandlerFailure, err)}
			return
		}
		done <- outcome{result: result}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-hctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrHandlerFailure, hctx.Err())
	}
}

// validateResult checks that a handler delivered a non-empty JSON object
// carrying every field the catalog entry requires. A structurally invalid
// result is the same as a handler failure: the user is only charged for
// something actually delivered.
func validateResult(result json.RawMessage, requiredFields []string) error {
	if len(result) == 0 {
		return fmt.Errorf("%w: empty result", ErrInvalidResult)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(result, &doc); err != nil {
		return fmt.Errorf("%w: not a JSON object: %v", ErrInvalidResult, err)
	}
	if len(doc) == 0 {
		return fmt.Errorf("%w: empty result", ErrInvalidResult)
	}
	for _, field := range requiredFields {
		if _, ok := doc[field]; !ok {
			return fmt.Errorf("%w: %s", ErrInvalidResult, field)
		}
	}
	return nil
}

// completeJob fixes the job's outcome as completed, then confirms the
// reservation. A confirm failure after the result is already delivered
// never flips the job back; it is flagged for reconciliation instead.
func (e *Engine) completeJob(ctx context.Context, j *job.Job, result json.RawMessage) (*JobResult, error) {
	j.Result = result
	j.Status = job.StatusCompleted
	j.RefundStatus = job.RefundNone
	if err := e.store.UpdateJob(ctx, j); err != nil {
		return nil, err
	}

	if _, err := e.Confirm(ctx, j.CreditTransactionID); err != nil {
		e.logger.Error("settlement confirm failed after job completion",
			"job_id", j.ID,
			"transaction_id", j.CreditTransactionID,
			"error", err,
		)
		j.ReconcileNeeded = true
		if updErr := e.store.UpdateJob(ctx, j); updErr != nil {
			e.logger.Error("failed to flag job for reconciliation",
				"job_id", j.ID,
				"error", updErr,
			)
		}
		e.plugins.EmitReconciliationGap(ctx, j, err)
	}

	e.logger.Info("job completed",
		"job_id", j.ID,
		"user_id", j.UserID,
		"type", j.Type,
	)
	e.plugins.EmitJobCompleted(ctx, j)

	return &JobResult{
		Success:      true,
		JobID:        j.ID,
		Job:          j,
		Message:      "job completed",
		Result:       result,
		RefundStatus: job.RefundNone,
	}, nil
}

// failJob fixes the job's outcome as failed and releases the hold. The
// caller always learns whether the credit came back: RefundStatus is
// refunded on a released hold and failed when the release itself broke,
// which also flags the job for reconciliation.
func (e *Engine) failJob(ctx context.Context, j *job.Job, cause error) (*JobResult, error) {
	j.Status = job.StatusFailed
	j.FailedReason = cause.Error()
	j.RefundStatus = job.RefundPending

	outcome, refundErr := e.Refund(ctx, j.CreditTransactionID, j.FailedReason)
	switch {
	case refundErr != nil:
		e.logger.Error("refund failed for failed job",
			"job_id", j.ID,
			"transaction_id", j.CreditTransactionID,
			"error", refundErr,
		)
		j.RefundStatus = job.RefundFailed
		j.ReconcileNeeded = true
		e.plugins.EmitReconciliationGap(ctx, j, refundErr)
	case outcome.Released:
		j.RefundStatus = job.RefundRefunded
	default:
		// Already settled elsewhere; report the state we found.
		j.RefundStatus = job.RefundNone
	}

	if err := e.store.UpdateJob(ctx, j); err != nil {
		e.logger.Error("failed to persist failed job",
			"job_id", j.ID,
			"error", err,
		)
	}

	e.logger.Warn("job failed",
		"job_id", j.ID,
		"user_id", j.UserID,
		"type", j.Type,
		"reason", j.FailedReason,
		"refund_status", j.RefundStatus,
	)
	e.plugins.EmitJobFailed(ctx, j, j.FailedReason)

	return &JobResult{
		Success:      false,
		JobID:        j.ID,
		Job:          j,
		Message:      j.FailedReason,
		Refunded:     j.RefundStatus == job.RefundRefunded,
		RefundStatus: j.RefundStatus,
	}, nil
}

// Package catalog defines the job type catalog: what kinds of analysis
// can be bought and at what price.
package catalog

import (
	"github.com/xraph/prepaid/id"
	"github.com/xraph/prepaid/types"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// JobType is one purchasable analysis type. Key is the stable identifier
// handlers register under; Price is charged per job. RequiredFields lists
// the top-level keys a handler result must contain to count as delivered.
type JobType struct {
	types.Entity
	ID             id.JobTypeID      `json:"id"`
	Key            string            `json:"key"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Price          types.Money       `json:"price"`
	Status         Status            `json:"status"`
	RequiredFields []string          `json:"required_fields,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Active reports whether jobs of this type may be submitted.
func (t *JobType) Active() bool {
	return t.Status == StatusActive
}

// ListOpts filters job type listings.
type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}

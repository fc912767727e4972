package prepaid

import "github.com/xraph/prepaid/id"

// ID is the primary identifier type for all Prepaid entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

package domain

// EntityType names a collection in the entity store
type EntityType string

const (
	EntityLead             EntityType = "lead"
	EntityEvent            EntityType = "event"
	EntityPayment          EntityType = "payment"
	EntityRequestedService EntityType = "requested_service"
	EntityChangeRequest    EntityType = "change_request"
	EntityTimelineItem     EntityType = "timeline_item"
	EntityFileRecord       EntityType = "file_record"
)

// AllEntityTypes lists every persisted entity type
var AllEntityTypes = []EntityType{
	EntityLead,
	EntityEvent,
	EntityPayment,
	EntityRequestedService,
	EntityChangeRequest,
	EntityTimelineItem,
	EntityFileRecord,
}

// Versioned carries the optimistic-concurrency version of a stored record.
// The store owns the value; it is never written as part of the record data.
type Versioned struct {
	Version int64 `json:"version"`
}

func (v *Versioned) GetVersion() int64  { return v.Version }
func (v *Versioned) SetVersion(n int64) { v.Version = n }

// Entity is implemented by every stored record type
type Entity interface {
	EntityID() string
	GetVersion() int64
	SetVersion(n int64)
}

package schema

// Slot names a value in the local key-value store.
type Slot string

const (
	SlotProducts     Slot = "products"
	SlotCategories   Slot = "categories"
	SlotSuppliers    Slot = "suppliers"
	SlotSales        Slot = "sales"
	SlotPurchases    Slot = "purchases"
	SlotAdjustments  Slot = "adjustments"
	SlotActivities   Slot = "activities"
	SlotSettings     Slot = "settings"
	SlotLastSyncTime Slot = "lastSyncTime"

	// Auth session slots, owned by the auth package.
	SlotToken Slot = "token"
	SlotUser  Slot = "user"
)

// CollectionSlots lists the array-valued slots in wire order.
var CollectionSlots = []Slot{
	SlotProducts,
	SlotCategories,
	SlotSuppliers,
	SlotSales,
	SlotPurchases,
	SlotAdjustments,
	SlotActivities,
}

// DataSlots lists every slot that holds business data, including settings.
// These are the slots a sync response may replace.
var DataSlots = append(append([]Slot{}, CollectionSlots...), SlotSettings)

// LocalDataSlots lists the slots removed when local data is cleared.
var LocalDataSlots = append(append([]Slot{}, DataSlots...), SlotLastSyncTime)

// String returns the slot name.
func (s Slot) String() string {
	return string(s)
}

// IsCollection reports whether the slot holds a JSON array.
func (s Slot) IsCollection() bool {
	for _, c := range CollectionSlots {
		if c == s {
			return true
		}
	}
	return false
}

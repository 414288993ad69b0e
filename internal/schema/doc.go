// Package schema defines the canonical inventory records exchanged with the
// sync server, the names of the local store slots that hold them, and the
// small shared vocabulary (connection status, toast severity) used across the
// sync core.
//
// # Records
//
// Every record type here is the server-shaped, strictly typed form of an
// entity. Loosely typed records written by the UI layer are kept as [Record]
// values until the normalize package converts them. Nothing outside normalize
// should read a [Record] field by name.
//
// JSON field names are snake_case. Money is carried as decimal.Decimal and
// encoded as a bare JSON number.
//
// # Money encoding
//
// Importing this package sets decimal.MarshalJSONWithoutQuotes for the whole
// process, because the sync server rejects quoted amounts. Every
// decimal.Decimal marshaled anywhere in a binary that links schema is
// therefore written as a JSON number. Unmarshaling accepts both forms.
//
// # Slots
//
// The local store is a flat set of named slots, one per collection plus
// settings, the last sync timestamp and the auth session:
//
//	products      []Product
//	categories    []Category
//	suppliers     []Supplier
//	sales         []Sale
//	purchases     []Purchase
//	adjustments   []Adjustment
//	activities    []Activity
//	settings      Settings
//	lastSyncTime  RFC3339 string
//	token, user   auth session
//
// # Temporary IDs
//
// Records created offline carry a negative id until the server assigns a
// permanent positive one. Use [IsTemporaryID] rather than comparing by hand.
package schema

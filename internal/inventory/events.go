package inventory

// ChangedEvent reports inventory records mutated by a committed transaction.
type ChangedEvent struct {
	Kind MovementKind
	Keys []Key
}

// KeysOf collects the keys of records.
func KeysOf(records []Record) []Key {
	keys := make([]Key, 0, len(records))
	for _, rec := range records {
		keys = append(keys, rec.Key())
	}
	return keys
}

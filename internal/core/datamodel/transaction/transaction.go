package transaction

import "time"

// Status is the access decision recorded for a scan. The strings are part
// of the on-disk and remote document formats and must not change.
type Status string

const (
	StatusGranted Status = "Access Granted"
	StatusDenied  Status = "Access Denied"
	StatusBlocked Status = "Blocked"
)

// Transaction is one recorded access decision. It is immutable once
// appended to the local log. The JSON shape matches the historical
// appliance format; remote documents additionally carry entity_id and a
// remote-generated created_at which are never present locally.
type Transaction struct {
	Name      string `json:"name"`
	Card      string `json:"card"`
	Reader    int    `json:"reader"`
	Status    Status `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// Time returns the decision instant as wall-clock time.
func (t Transaction) Time() time.Time {
	return time.Unix(t.Timestamp, 0)
}

// Day returns the UTC day key (YYYYMMDD) the transaction belongs to,
// used to pick its log file.
func (t Transaction) Day() string {
	return t.Time().UTC().Format("20060102")
}

package types

// BusinessRecord is one extracted listing.
//
// The struct is comparable and its identity is the full tuple: two records are
// the same only when name, website and phone all match exactly. A business seen
// once with a website and once without becomes two records.
type BusinessRecord struct {
	Name    string `json:"business_name" bson:"name"    yaml:"name"`
	Website string `json:"website"       bson:"website" yaml:"website"`
	Phone   string `json:"phone"         bson:"phone"   yaml:"phone"`
}

// IsEmpty reports whether no field was extracted.
func (r BusinessRecord) IsEmpty() bool {
	return r.Name == "" && r.Website == "" && r.Phone == ""
}

// ResultSet accumulates deduplicated records for one run.
// It is owned by a single goroutine and is not safe for concurrent use.
type ResultSet struct {
	seen  map[BusinessRecord]struct{}
	order []BusinessRecord
}

// NewResultSet creates an empty ResultSet.
func NewResultSet() *ResultSet {
	return &ResultSet{
		seen: make(map[BusinessRecord]struct{}),
	}
}

// Add inserts the record and reports whether it was new.
func (rs *ResultSet) Add(r BusinessRecord) bool {
	if _, ok := rs.seen[r]; ok {
		return false
	}
	rs.seen[r] = struct{}{}
	rs.order = append(rs.order, r)
	return true
}

// Len returns the number of unique records.
func (rs *ResultSet) Len() int {
	return len(rs.order)
}

// Records returns a copy of the records in insertion order.
func (rs *ResultSet) Records() []BusinessRecord {
	out := make([]BusinessRecord, len(rs.order))
	copy(out, rs.order)
	return out
}

// PhoneCount returns how many records carry a phone number.
func PhoneCount(records []BusinessRecord) int {
	n := 0
	for _, r := range records {
		if r.Phone != "" {
			n++
		}
	}
	return n
}

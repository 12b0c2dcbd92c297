package migration

import (
	"fmt"

	"gorm.io/gorm"
)

// existingColumns returns the set of column names currently defined on
// table, read from the SQLite catalog via the pragma_table_info
// table-valued function. The set is built fresh on every call; the
// schema can legitimately change between invocations and must not be
// cached. The table is assumed to exist already; callers create new
// tables before inspecting them or restrict inspection to tables known
// to pre-exist.
func existingColumns(db *gorm.DB, table string) (map[string]struct{}, error) {
	var names []string
	err := db.Raw("SELECT name FROM pragma_table_info(?)", table).Scan(&names).Error
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("table %s has no columns; does it exist?", table)
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set, nil
}

package catalog

import "fmt"

// rescueColumnNames returns {"series_id", "addr0", ..., "addr7"}, the fixed
// column layout of akumuli_rescue_points.
func rescueColumnNames() []string {
	cols := make([]string, 0, rescueAddrSlots+1)
	cols = append(cols, "series_id")
	for i := 0; i < rescueAddrSlots; i++ {
		cols = append(cols, fmt.Sprintf("addr%d", i))
	}
	return cols
}

// rescueColumnDefs renders the addr0..addr7 column definitions using the
// given SQL integer type, nullable since a series may have fewer than
// rescueAddrSlots buffered chunk addresses (akumuli pads the rest with
// null, per metadatastorage.cpp's upsert_rescue_points).
func rescueColumnDefs(sqlType string) string {
	out := ""
	for i := 0; i < rescueAddrSlots; i++ {
		if i > 0 {
			out += ",\n\t\t\t"
		}
		out += fmt.Sprintf("addr%d %s", i, sqlType)
	}
	return out
}

// rescueArgs builds the (series_id, addr0, ..., addr7) argument list for
// one row, padding with nil past len(p.Addrs) exactly as the original
// upsert_rescue_points pads with "null".
func rescueArgs(p RescuePoint) []any {
	args := make([]any, 0, rescueAddrSlots+1)
	args = append(args, p.SeriesID)
	for i := 0; i < rescueAddrSlots; i++ {
		if i < len(p.Addrs) {
			args = append(args, p.Addrs[i])
		} else {
			args = append(args, nil)
		}
	}
	return args
}

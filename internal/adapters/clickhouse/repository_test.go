package clickhouse

import "testing"

func TestInsertQuery(t *testing.T) {
	tests := []struct {
		name    string
		table   string
		columns []string
		want    string
	}{
		{
			name:    "single column",
			table:   "experiment_exposures",
			columns: []string{"timestamp"},
			want:    "INSERT INTO experiment_exposures (timestamp) VALUES (?)",
		},
		{
			name:    "several columns",
			table:   "pricing_decisions",
			columns: []string{"timestamp", "flight_id", "multiplier"},
			want:    "INSERT INTO pricing_decisions (timestamp, flight_id, multiplier) VALUES (?, ?, ?)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := insertQuery(tt.table, tt.columns); got != tt.want {
				t.Errorf("insertQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}

package featurelog

import (
	"sort"

	"github.com/Meesho/BharatMLStack/feature-server/internal/columnar"
	"github.com/Meesho/BharatMLStack/feature-server/internal/handler/feature"
	"github.com/Meesho/BharatMLStack/feature-server/internal/types"
)

const (
	RequestIdColumn    = "request_id"
	ValueColumnSuffix  = "__value"
	StatusColumnSuffix = "__status"
)

// EncodeRecord renders one served response as an Arrow IPC stream. Columns are request_id, the
// scalar entity row fields in name order, then a msgpack value column and an int32 status column
// per distinct feature name.
func EncodeRecord(requestId string, req *feature.Request, resp *feature.Response) ([]byte, error) {
	rowCount := resp.RowCount()
	columns := make([]columnar.Column, 0, 1+2*len(resp.FeatureNames()))

	ids := make([]types.Value, rowCount)
	for i := range ids {
		ids[i] = types.StringValue(requestId)
	}
	columns = append(columns, columnar.Column{Name: RequestIdColumn, Type: types.ValueTypeString, Values: ids})
	columns = append(columns, entityColumns(req.EntityRows, rowCount)...)

	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		seen[c.Name] = struct{}{}
	}
	for col, name := range resp.FeatureNames() {
		valueName, statusName := name+ValueColumnSuffix, name+StatusColumnSuffix
		if _, dup := seen[valueName]; dup {
			continue
		}
		seen[valueName] = struct{}{}

		values := make([]types.Value, rowCount)
		statuses := make([]types.Value, rowCount)
		for i, fv := range resp.Column(col) {
			statuses[i] = types.Int32Value(int32(fv.Status))
			values[i] = types.NullValue(types.ValueTypeBytes)
			if fv.Status != types.StatusPresent {
				continue
			}
			encoded, err := types.EncodeValue(fv.Value)
			if err != nil {
				return nil, err
			}
			values[i] = types.BytesValue(encoded)
		}
		columns = append(columns,
			columnar.Column{Name: valueName, Type: types.ValueTypeBytes, Values: values},
			columnar.Column{Name: statusName, Type: types.ValueTypeInt32, Values: statuses},
		)
	}

	batch, err := columnar.NewBatch(rowCount, columns...)
	if err != nil {
		return nil, err
	}
	return columnar.Encode(batch)
}

// entityColumns keeps scalar entity fields. A column takes the type of its first non-null value;
// values of any other type are logged as null.
func entityColumns(rows []types.EntityRow, rowCount int) []columnar.Column {
	colTypes := make(map[string]types.ValueType)
	for _, row := range rows {
		for name, v := range row {
			if _, ok := colTypes[name]; ok || name == RequestIdColumn || v.IsNull() || v.Type().IsList() {
				continue
			}
			colTypes[name] = v.Type()
		}
	}
	names := make([]string, 0, len(colTypes))
	for name := range colTypes {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]columnar.Column, 0, len(names))
	for _, name := range names {
		t := colTypes[name]
		values := make([]types.Value, rowCount)
		for i := range values {
			values[i] = types.NullValue(t)
			if i >= len(rows) {
				continue
			}
			if v, ok := rows[i][name]; ok && !v.IsNull() && v.Type() == t {
				values[i] = v
			}
		}
		out = append(out, columnar.Column{Name: name, Type: t, Values: values})
	}
	return out
}

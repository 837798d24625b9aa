package audit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryFiltersClamp(t *testing.T) {
	cases := []struct {
		name          string
		filters       QueryFilters
		wantSinceDays int
		wantLimit     int
	}{
		{"defaults", QueryFilters{}, 7, 50},
		{"negative values", QueryFilters{SinceDays: -1, Limit: -5}, 7, 50},
		{"within bounds", QueryFilters{SinceDays: 30, Limit: 100}, 30, 100},
		{"window capped", QueryFilters{SinceDays: 365, Limit: 10}, 90, 10},
		{"page capped", QueryFilters{SinceDays: 10, Limit: 5000}, 10, 200},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sinceDays, limit := tc.filters.clamp()
			assert.Equal(t, tc.wantSinceDays, sinceDays)
			assert.Equal(t, tc.wantLimit, limit)
		})
	}
}

func TestRecorderPrepare(t *testing.T) {
	r := NewRecorder(nil, nil)

	entry, args, err := r.prepare(Record{
		SubjectID: 10,
		Action:    ActionOverrideSet,
		Target:    OverrideTarget(5),
		New:       map[string]any{"isGranted": true},
		Reason:    "temporary elevation",
		ActorID:   42,
	})
	require.NoError(t, err)

	assert.NotEqual(t, entry.ID.String(), "00000000-0000-0000-0000-000000000000")
	assert.Equal(t, TargetOverride, entry.Target.Kind)
	assert.EqualValues(t, 5, entry.Target.ID)
	assert.Nil(t, entry.OldValue)
	assert.JSONEq(t, `{"isGranted":true}`, string(entry.NewValue))
	assert.False(t, entry.At.IsZero())
	assert.Len(t, args, 10)
}

func TestRecorderPrepareRejectsIncompleteRecords(t *testing.T) {
	r := NewRecorder(nil, nil)

	_, _, err := r.prepare(Record{Target: RoleTarget(1), ActorID: 42})
	assert.Error(t, err, "action is required")

	_, _, err = r.prepare(Record{Action: ActionRoleCreate, ActorID: 42})
	assert.Error(t, err, "target is required")
}

func TestRecorderPrepareEmptyReasonIsNull(t *testing.T) {
	r := NewRecorder(nil, nil)

	_, args, err := r.prepare(Record{
		Action:  ActionRoleDelete,
		Target:  RoleTarget(3),
		ActorID: 42,
	})
	require.NoError(t, err)
	assert.Nil(t, args[7], "blank reason is stored as NULL")
}

func TestMarshalValueNilStaysNil(t *testing.T) {
	raw, err := marshalValue(nil)
	require.NoError(t, err)
	assert.Nil(t, raw)

	raw, err = marshalValue(map[string]any{"permissionIds": []int64{1, 2}})
	require.NoError(t, err)
	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "permissionIds")
}

func TestTargetConstructors(t *testing.T) {
	assert.Equal(t, Target{Kind: TargetRole, ID: 1}, RoleTarget(1))
	assert.Equal(t, Target{Kind: TargetAssignment, ID: 2}, AssignmentTarget(2))
	assert.Equal(t, Target{Kind: TargetOverride, ID: 3}, OverrideTarget(3))
}

package thesis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressStep(t *testing.T) {
	tests := map[Status]int{
		StatusNotSubmitted:          0,
		StatusSubmitted:             1,
		StatusResubmitted:           1,
		StatusResubmissionRequested: 1,
		StatusUnderReview:           2,
		StatusApproved:              3,
		StatusRejected:              0,
	}
	for status, want := range tests {
		assert.Equal(t, want, ProgressStep(status), status)
	}
}

func TestNextStatus_Table(t *testing.T) {
	to, ok := NextStatus(StatusNotSubmitted, OpSubmit)
	assert.True(t, ok)
	assert.Equal(t, StatusUnderReview, to)

	to, ok = NextStatus(StatusResubmissionRequested, OpResubmit)
	assert.True(t, ok)
	assert.Equal(t, StatusUnderReview, to)

	_, ok = NextStatus(StatusNotSubmitted, OpApprove)
	assert.False(t, ok)

	for _, terminal := range []Status{StatusApproved, StatusRejected} {
		assert.True(t, terminal.IsTerminal())
		assert.Empty(t, AllowedOperations(terminal))
	}
}

func TestAllowedOperations(t *testing.T) {
	assert.Equal(t, []Operation{OpApprove, OpReject, OpRequestResubmission}, AllowedOperations(StatusUnderReview))
	assert.Equal(t, []Operation{OpSubmit}, AllowedOperations(StatusNotSubmitted))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" Under_Review ")
	assert.NoError(t, err)
	assert.Equal(t, StatusUnderReview, s)

	_, err = ParseStatus("archived")
	assert.Error(t, err)

	assert.False(t, StatusSubmitted.IsPersistent())
	assert.True(t, StatusSubmitted.IsValid())
}

func TestActor_Validate(t *testing.T) {
	assert.NoError(t, Actor{ID: "u1", Role: RoleStudent}.Validate())
	assert.Error(t, Actor{ID: "", Role: RoleStudent}.Validate())
	assert.Error(t, Actor{ID: "u1", Role: "guest"}.Validate())
	assert.True(t, Actor{ID: "u1", Role: RoleAdmin}.IsPrivileged())
	assert.False(t, Actor{ID: "u1", Role: RoleStudent}.IsPrivileged())
}

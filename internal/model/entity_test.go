package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTicketType(t *testing.T) {
	cases := map[string]TicketType{
		"report":                   TicketTypeReport,
		"unban_ticket":             TicketTypeAppealBan,
		"Вернуть пилота":           TicketTypeReturnRole,
		"Заявка на администратора": TicketTypeAdminApplication,
		" imported ":               TicketTypeImported,
		"ask_question_ticket":      TicketTypeQuestion,
	}
	for in, want := range cases {
		got, err := ParseTicketType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseTicketType("complaint")
	require.Error(t, err)
}

func TestStoredValues(t *testing.T) {
	assert.Equal(t, []string{"report", "Жалоба", "report_ticket"}, TicketTypeReport.StoredValues())
	assert.Equal(t, []string{"imported", "Импорт"}, TicketTypeImported.StoredValues())
	for _, tt := range TicketTypes {
		for _, v := range tt.StoredValues() {
			got, err := ParseTicketType(v)
			require.NoError(t, err, v)
			assert.Equal(t, tt, got, v)
		}
	}
}

func TestEveryTypeHasTitle(t *testing.T) {
	for _, tt := range TicketTypes {
		assert.NotEqual(t, string(tt), tt.Title(), tt)
	}
}

func TestQuestionSetsWithinBounds(t *testing.T) {
	for _, tt := range []TicketType{TicketTypeReport, TicketTypeAppealBan, TicketTypeReturnRole, TicketTypeAdminApplication} {
		qs := Questions(tt)
		assert.GreaterOrEqual(t, len(qs), 2, tt)
		assert.LessOrEqual(t, len(qs), 5, tt)
	}
	assert.Empty(t, Questions(TicketTypeQuestion))
	assert.Equal(t, "Никнейм нарушителя", FieldLabel(TicketTypeReport, "offender"))
	assert.Equal(t, "custom", FieldLabel(TicketTypeReport, "custom"))
}

func TestAnswersValueScan(t *testing.T) {
	in := Answers{"nickname": "X", "steam": "76561198000000000"}
	v, err := in.Value()
	require.NoError(t, err)

	var out Answers
	require.NoError(t, out.Scan(v))
	assert.Equal(t, in, out)

	require.NoError(t, out.Scan(`{"a":"b"}`))
	assert.Equal(t, Answers{"a": "b"}, out)

	require.NoError(t, out.Scan(nil))
	assert.Empty(t, out)

	require.Error(t, out.Scan(42))
}

func TestStringPtr(t *testing.T) {
	assert.Nil(t, StringPtr(""))
	assert.Equal(t, "x", *StringPtr("x"))
	assert.Equal(t, "def", Deref(nil, "def"))
	assert.Equal(t, "v", Deref(StringPtr("v"), "def"))
}

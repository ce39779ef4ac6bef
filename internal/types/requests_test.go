//nolint:revive // types is a standard Go package name pattern
package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func TestSubmitFeedbackRequest_Validation(t *testing.T) {
	validate := validator.New()

	tests := []struct {
		name    string
		request SubmitFeedbackRequest
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid request",
			request: SubmitFeedbackRequest{Answers: []AnswerRequest{
				{QuestionID: "Q1", Rating: intPtr(4)},
				{QuestionID: "Q2", Content: "Great mentor"},
			}},
		},
		{
			name:    "missing answers",
			request: SubmitFeedbackRequest{},
			wantErr: true,
			errMsg:  "required",
		},
		{
			name:    "answer without question id",
			request: SubmitFeedbackRequest{Answers: []AnswerRequest{{Content: "x"}}},
			wantErr: true,
			errMsg:  "QuestionID",
		},
		{
			name:    "rating out of range",
			request: SubmitFeedbackRequest{Answers: []AnswerRequest{{QuestionID: "Q1", Rating: intPtr(6)}}},
			wantErr: true,
			errMsg:  "max",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.request)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStatusActionRequest_Validation(t *testing.T) {
	validate := validator.New()

	for _, action := range []string{"view", "start", "save", "discard"} {
		assert.NoError(t, validate.Struct(StatusActionRequest{Action: action}), action)
	}
	assert.Error(t, validate.Struct(StatusActionRequest{Action: "complete"}))
	assert.Error(t, validate.Struct(StatusActionRequest{}))
}

func TestCreateReviewRequest_Validation(t *testing.T) {
	validate := validator.New()
	valid := CreateReviewRequest{
		Reviewee:   "dana@example.com",
		TemplateID: uuid.New(),
		Deadline:   time.Date(2024, 3, 8, 17, 0, 0, 0, time.UTC),
		Reviewers:  []ReviewerRequest{{Email: "alice@example.com", Name: "Alice"}},
	}
	require.NoError(t, validate.Struct(valid))

	noReviewers := valid
	noReviewers.Reviewers = []ReviewerRequest{}
	assert.Error(t, validate.Struct(noReviewers))

	badEmail := valid
	badEmail.Reviewers = []ReviewerRequest{{Email: "not-an-email"}}
	assert.Error(t, validate.Struct(badEmail))

	noTemplate := valid
	noTemplate.TemplateID = uuid.Nil
	assert.Error(t, validate.Struct(noTemplate))
}

func TestStatusActionRequest_JSON(t *testing.T) {
	var req StatusActionRequest
	require.NoError(t, json.Unmarshal([]byte(`{"action":"save","progress":{"Q1":"draft"}}`), &req))
	assert.Equal(t, "save", req.Action)
	assert.JSONEq(t, `{"Q1":"draft"}`, string(req.Progress))
}

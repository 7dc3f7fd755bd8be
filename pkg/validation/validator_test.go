package validation

import (
	"errors"
	"testing"

	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type screeningInput struct {
	Subject   models.Subject    `validate:"required"`
	ListTypes []models.ListType `validate:"omitempty,dive,list_type"`
	Providers []string          `validate:"omitempty,dive,provider_name"`
	Priority  models.Priority   `validate:"priority"`
}

type reviewInput struct {
	Decision models.ReviewDecision `validate:"decision"`
}

func TestValidateStruct(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		input   interface{}
		wantTag string
	}{
		{"valid", screeningInput{Subject: models.Subject{Name: "John Doe"}, Providers: []string{"ofac"}}, ""},
		{"missing name", screeningInput{}, "required"},
		{"bad date", screeningInput{Subject: models.Subject{Name: "A", DateOfBirth: "01/01/1980"}}, "datetime"},
		{"bad entity type", screeningInput{Subject: models.Subject{Name: "A", EntityType: "vessel"}}, "oneof"},
		{"bad list type", screeningInput{Subject: models.Subject{Name: "A"}, ListTypes: []models.ListType{"gossip"}}, "list_type"},
		{"bad provider", screeningInput{Subject: models.Subject{Name: "A"}, Providers: []string{"OFAC list"}}, "provider_name"},
		{"bad priority", screeningInput{Subject: models.Subject{Name: "A"}, Priority: "asap"}, "priority"},
		{"bad decision", reviewInput{Decision: "maybe"}, "decision"},
		{"good decision", reviewInput{Decision: models.DecisionFalsePositive}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateStruct(tt.input)
			if tt.wantTag == "" {
				assert.NoError(t, err)
				return
			}
			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs), "got %v", err)
			require.NotEmpty(t, verrs)
			assert.Equal(t, tt.wantTag, verrs[0].Tag)
			assert.NotEmpty(t, verrs[0].Message)
			assert.Contains(t, err.Error(), "validation failed")
		})
	}
}

func TestSanitizeText(t *testing.T) {
	v := NewValidator()

	assert.Equal(t, "", v.SanitizeText(""))
	assert.Equal(t, "Different date of birth", v.SanitizeText("  Different <b>date of birth</b> "))
	assert.Equal(t, "hello", v.SanitizeText(`<script>alert(1)</script>hello`))
}

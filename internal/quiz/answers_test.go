package quiz

import (
	"encoding/json"
	"testing"

	"github.com/mind-engage/mindengage-courses/internal/errs"
)

func TestDecodeAnswers(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantLen     int
		wantDropped int
		wantErr     bool
	}{
		{name: "empty", raw: ``},
		{name: "null", raw: `null`},
		{name: "object is rejected", raw: `{"question_id":"q1"}`, wantErr: true},
		{name: "valid", raw: `[{"question_id":"q1","selected_option_id":"a"}]`, wantLen: 1},
		{name: "explicit unanswered", raw: `[{"question_id":"q1","selected_option_id":null}]`, wantLen: 1},
		{name: "numeric option dropped", raw: `[{"question_id":"q1","selected_option_id":7}]`, wantDropped: 1},
		{name: "empty question id dropped", raw: `[{"question_id":"","selected_option_id":"a"}]`, wantDropped: 1},
		{name: "scalars dropped", raw: `["q1", true, null]`, wantDropped: 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, dropped, err := DecodeAnswers(json.RawMessage(tc.raw))
			if tc.wantErr {
				if errs.KindOf(err) != errs.KindValidation {
					t.Fatalf("want validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(got) != tc.wantLen || dropped != tc.wantDropped {
				t.Fatalf("got %d answers, %d dropped", len(got), dropped)
			}
		})
	}
}

package validation

import (
	"errors"
	"testing"
)

type request struct {
	Username string   `json:"username" validate:"required,min=3,max=16"`
	Gain     int      `json:"gain" validate:"min=0,max=4"`
	Limit    *int     `json:"limit" validate:"omitempty,min=1,max=500"`
	Layout   string   `json:"layout" validate:"oneof=multi-gain single-gain"`
	Packet   []byte   `json:"packet" validate:"max=62"`
	Tags     []string `json:"-" validate:"len=2"`
}

func intPtr(v int) *int { return &v }

func valid() request {
	return request{Username: "operator", Gain: 2, Layout: "multi-gain", Tags: []string{"a", "b"}}
}

func TestValidate(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name      string
		mutate    func(r *request)
		wantField string
		wantRule  string
	}{
		{"valid", func(r *request) {}, "", ""},
		{"missing username", func(r *request) { r.Username = "" }, "username", "required"},
		{"short username", func(r *request) { r.Username = "op" }, "username", "min"},
		{"long username", func(r *request) { r.Username = "a-very-long-operator-name" }, "username", "max"},
		{"gain too high", func(r *request) { r.Gain = 5 }, "gain", "max"},
		{"negative gain", func(r *request) { r.Gain = -1 }, "gain", "min"},
		{"nil limit", func(r *request) { r.Limit = nil }, "", ""},
		{"zero limit", func(r *request) { r.Limit = intPtr(0) }, "limit", "min"},
		{"limit in range", func(r *request) { r.Limit = intPtr(50) }, "", ""},
		{"unknown layout", func(r *request) { r.Layout = "stereo" }, "layout", "oneof"},
		{"packet too long", func(r *request) { r.Packet = make([]byte, 63) }, "packet", "max"},
		{"wrong tag count", func(r *request) { r.Tags = nil }, "Tags", "len"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(&r)
			err := v.Validate(&r)

			if tt.wantField == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("Validate() error = %v, want *FieldError", err)
			}
			if fe.Field != tt.wantField || fe.Rule != tt.wantRule {
				t.Errorf("FieldError = %s/%s, want %s/%s", fe.Field, fe.Rule, tt.wantField, tt.wantRule)
			}
		})
	}
}

func TestValidateMessage(t *testing.T) {
	r := valid()
	r.Packet = make([]byte, 63)
	err := NewValidator().Validate(&r)
	if err == nil || err.Error() != "packet: maximum length is 62" {
		t.Errorf("Validate() error = %v, want packet: maximum length is 62", err)
	}
}

func TestValidateNotStruct(t *testing.T) {
	if err := NewValidator().Validate(42); err == nil {
		t.Error("Validate(42) succeeded")
	}
}

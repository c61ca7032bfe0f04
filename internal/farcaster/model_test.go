package farcaster

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestNormalizeUsername(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"dwr", "dwr"},
		{"@dwr", "dwr"},
		{"https://warpcast.com/dwr", "dwr"},
		{"https://warpcast.com/dwr/0xabc", "dwr"},
		{"http://warpcast.com/@dwr?x=1", "dwr"},
		{"  DWR.eth ", "dwr.eth"},
		{"https://warpcast.com", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeUsername(tt.in); got != tt.want {
				t.Errorf("NormalizeUsername(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseUserRef(t *testing.T) {
	tests := []struct {
		in   string
		want UserRef
	}{
		{"3", UserRef{FID: 3}},
		{"@dwr", UserRef{Username: "dwr"}},
		{"0", UserRef{Username: "0"}},
		{"  ", UserRef{}},
	}
	for _, tt := range tests {
		if got := ParseUserRef(tt.in); got != tt.want {
			t.Errorf("ParseUserRef(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
	if !ParseUserRef("  ").IsZero() {
		t.Error("blank input should parse to the zero ref")
	}
	if s := ByFID(3).String(); s != "3" {
		t.Errorf("ByFID(3).String() = %q", s)
	}
	if s := ByUsername("dwr").String(); s != "@dwr" {
		t.Errorf("ByUsername(dwr).String() = %q", s)
	}
}

func TestUserRefMatches(t *testing.T) {
	p := Profile{FID: 3, Username: "Dwr"}
	tests := []struct {
		ref  UserRef
		want bool
	}{
		{ByFID(3), true},
		{ByFID(4), false},
		{ByUsername("dwr"), true},
		{ByUsername("dw"), false},
	}
	for _, tt := range tests {
		if got := tt.ref.Matches(p); got != tt.want {
			t.Errorf("%v.Matches = %v, want %v", tt.ref, got, tt.want)
		}
	}
	if (UserRef{}).Matches(Profile{}) {
		t.Error("zero ref should match nothing")
	}
}

func TestProfileUnmarshal_V1Shape(t *testing.T) {
	var p Profile
	err := json.Unmarshal([]byte(`{"fid":5,"username":"five","displayName":"Five","pfp":{"url":"https://img/5.png"},"followerCount":12}`), &p)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := Profile{FID: 5, Username: "five", DisplayName: "Five", PfpURL: "https://img/5.png", FollowerCount: 12}
	if !reflect.DeepEqual(p, want) {
		t.Fatalf("got %+v, want %+v", p, want)
	}

	// marshalled form is the v2 shape and survives a round trip unchanged
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var again Profile
	if err := json.Unmarshal(data, &again); err != nil {
		t.Fatalf("Unmarshal again: %v", err)
	}
	if !reflect.DeepEqual(again, p) {
		t.Errorf("round trip changed profile: %+v", again)
	}
}
